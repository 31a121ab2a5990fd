package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/mitchellh/go-homedir"

	"github.com/conn-castle/service-install/internal/fsutil"
	"github.com/conn-castle/service-install/internal/messages"
)

const (
	systemUnitDir     = "/etc/systemd/system"
	userUnitDir       = ".config/systemd/user"
	systemdRuntimeDir = "/run/systemd/system"
	unitFileMode      = 0o644
	jobModeReplace    = "replace"
	jobResultDone     = "done"
)

// BusConn is the subset of *dbus.Conn the systemd backend uses.
type BusConn interface {
	ReloadContext(ctx context.Context) error
	EnableUnitFilesContext(ctx context.Context, files []string, runtime bool, force bool) (bool, []dbus.EnableUnitFileChange, error)
	DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) ([]dbus.DisableUnitFileChange, error)
	StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	ListUnitFilesByPatternsContext(ctx context.Context, states []string, patterns []string) ([]dbus.UnitFile, error)
	Close()
}

// DialFunc opens a bus connection for a scope.
type DialFunc func(ctx context.Context, scope Scope) (BusConn, error)

func dialBus(ctx context.Context, scope Scope) (BusConn, error) {
	if scope == ScopeSystem {
		return dbus.NewSystemConnectionContext(ctx)
	}
	return dbus.NewUserConnectionContext(ctx)
}

// SystemdOptions configures a Systemd backend. Zero values select the real
// unit directory and bus for the scope.
type SystemdOptions struct {
	UnitDir string
	Dial    DialFunc
	// Probe reports whether systemd is running at the scope. It defaults to
	// checking /run/systemd/system (system) or the session bus socket (user).
	Probe func(scope Scope) bool
}

// Systemd registers services as systemd units and drives them over D-Bus.
type Systemd struct {
	scope   Scope
	unitDir string
	dial    DialFunc
	probe   func(scope Scope) bool
}

// NewSystemd builds a systemd backend for scope.
func NewSystemd(scope Scope, opts SystemdOptions) *Systemd {
	s := &Systemd{scope: scope, unitDir: opts.UnitDir, dial: opts.Dial, probe: opts.Probe}
	if s.unitDir == "" {
		s.unitDir = defaultUnitDir(scope)
	}
	if s.dial == nil {
		s.dial = dialBus
	}
	if s.probe == nil {
		s.probe = systemdRunning
	}
	return s
}

func defaultUnitDir(scope Scope) string {
	if scope == ScopeSystem {
		return systemUnitDir
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "systemd", "user")
	}
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, userUnitDir)
}

func systemdRunning(scope Scope) bool {
	if _, err := os.Stat(systemdRuntimeDir); err != nil {
		return false
	}
	if scope == ScopeSystem {
		return true
	}
	if addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS"); addr != "" {
		return true
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = fmt.Sprintf("/run/user/%d", os.Getuid())
	}
	_, err := os.Stat(filepath.Join(runtimeDir, "bus"))
	return err == nil
}

// Name returns "systemd".
func (s *Systemd) Name() string { return NameSystemd }

// Scope returns the bus scope the backend talks to.
func (s *Systemd) Scope() Scope { return s.scope }

// UnitDir returns the directory unit files are written to.
func (s *Systemd) UnitDir() string { return s.unitDir }

// Available reports whether systemd is running and its bus reachable.
func (s *Systemd) Available(ctx context.Context) error {
	if s.unitDir == "" || !s.probe(s.scope) {
		return fmt.Errorf(messages.InstallBackendUnavailableFmt+": %w", NameSystemd, s.scope, ErrUnavailable)
	}
	conn, err := s.dial(ctx, s.scope)
	if err != nil {
		return fmt.Errorf(messages.InstallBackendUnavailableFmt+": %w", NameSystemd, s.scope, errors.Join(ErrUnavailable, err))
	}
	conn.Close()
	return nil
}

// Render renders the service unit and, for timed schedules, its timer.
func (s *Systemd) Render(d Descriptor) (Registration, error) {
	d.Scope = s.scope
	return renderSystemd(d, s.unitDir)
}

func (s *Systemd) withConn(ctx context.Context, fn func(conn BusConn) error) error {
	conn, err := s.dial(ctx, s.scope)
	if err != nil {
		return fmt.Errorf(messages.BackendSystemdConnectFmt, s.scope, err)
	}
	defer conn.Close()
	return fn(conn)
}

func (s *Systemd) reload(ctx context.Context, conn BusConn) error {
	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf(messages.BackendSystemdReloadFmt, s.scope, err)
	}
	return nil
}

// Register removes the replaced registration's unit files, writes reg's and
// reloads the manager.
func (s *Systemd) Register(ctx context.Context, reg Registration, replaced *Registration) error {
	if replaced != nil {
		for _, artifact := range replaced.Artifacts {
			if err := os.Remove(artifact.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf(messages.BackendSystemdRemoveUnitFmt, artifact.Path, err)
			}
		}
	}
	if err := os.MkdirAll(s.unitDir, 0o755); err != nil {
		return fmt.Errorf(messages.BackendSystemdWriteUnitFmt, s.unitDir, err)
	}
	for _, artifact := range reg.Artifacts {
		if err := fsutil.WriteFileAtomic(artifact.Path, []byte(artifact.Content), unitFileMode); err != nil {
			return fmt.Errorf(messages.BackendSystemdWriteUnitFmt, artifact.Path, err)
		}
	}
	return s.withConn(ctx, func(conn BusConn) error { return s.reload(ctx, conn) })
}

// Unregister removes reg's unit files and reloads the manager.
func (s *Systemd) Unregister(ctx context.Context, reg Registration) error {
	for _, artifact := range reg.Artifacts {
		if err := os.Remove(artifact.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf(messages.BackendSystemdRemoveUnitFmt, artifact.Path, err)
		}
	}
	return s.withConn(ctx, func(conn BusConn) error { return s.reload(ctx, conn) })
}

// Enable enables the primary unit.
func (s *Systemd) Enable(ctx context.Context, h Handle) error {
	return s.withConn(ctx, func(conn BusConn) error {
		if _, _, err := conn.EnableUnitFilesContext(ctx, []string{h.Primary}, false, true); err != nil {
			return fmt.Errorf(messages.BackendSystemdEnableFmt, h.Primary, err)
		}
		return s.reload(ctx, conn)
	})
}

// Disable disables the primary unit.
func (s *Systemd) Disable(ctx context.Context, h Handle) error {
	return s.withConn(ctx, func(conn BusConn) error {
		if _, err := conn.DisableUnitFilesContext(ctx, []string{h.Primary}, false); err != nil {
			return fmt.Errorf(messages.BackendSystemdDisableFmt, h.Primary, err)
		}
		return s.reload(ctx, conn)
	})
}

type jobFunc func(ctx context.Context, name string, mode string, ch chan<- string) (int, error)

func (s *Systemd) runJob(ctx context.Context, verb string, unit string, job func(conn BusConn) jobFunc) error {
	return s.withConn(ctx, func(conn BusConn) error {
		done := make(chan string, 1)
		if _, err := job(conn)(ctx, unit, jobModeReplace, done); err != nil {
			return fmt.Errorf(messages.BackendSystemdJobFmt, verb, unit, err)
		}
		select {
		case result := <-done:
			if result != jobResultDone {
				return fmt.Errorf(messages.BackendSystemdJobResultFmt, verb, unit, result)
			}
			return nil
		case <-ctx.Done():
			return fmt.Errorf(messages.BackendSystemdJobFmt, verb, unit, ctx.Err())
		}
	})
}

// Start starts the primary unit and waits for the job to finish.
func (s *Systemd) Start(ctx context.Context, h Handle) error {
	return s.runJob(ctx, "start", h.Primary, func(conn BusConn) jobFunc { return conn.StartUnitContext })
}

// Stop stops the primary unit and, for timers, the service it triggers.
func (s *Systemd) Stop(ctx context.Context, h Handle) error {
	if err := s.runJob(ctx, "stop", h.Primary, func(conn BusConn) jobFunc { return conn.StopUnitContext }); err != nil {
		return err
	}
	if service := serviceUnitName(h.Name); h.Primary != service {
		return s.runJob(ctx, "stop", service, func(conn BusConn) jobFunc { return conn.StopUnitContext })
	}
	return nil
}

// Restart restarts the primary unit.
func (s *Systemd) Restart(ctx context.Context, h Handle) error {
	return s.runJob(ctx, "restart", h.Primary, func(conn BusConn) jobFunc { return conn.RestartUnitContext })
}

func (s *Systemd) state(ctx context.Context, conn BusConn, primary string) (State, error) {
	var state State
	files, err := conn.ListUnitFilesByPatternsContext(ctx, nil, []string{primary})
	if err != nil {
		return State{}, fmt.Errorf(messages.BackendSystemdListFmt, primary, err)
	}
	for _, file := range files {
		if filepath.Base(file.Path) == primary && (file.Type == "enabled" || file.Type == "enabled-runtime") {
			state.Enabled = true
		}
	}
	units, err := conn.ListUnitsByNamesContext(ctx, []string{primary})
	if err != nil {
		return State{}, fmt.Errorf(messages.BackendSystemdListFmt, primary, err)
	}
	for _, unit := range units {
		if unit.Name == primary && unit.ActiveState == "active" {
			state.Running = true
		}
	}
	return state, nil
}

// FindExisting looks for <name>.service first, then for any unit in the unit
// directory whose ExecStart runs execPath.
func (s *Systemd) FindExisting(ctx context.Context, name string, execPath string) (*Existing, error) {
	reg, found, err := s.readRegistration(name)
	if err != nil {
		return nil, err
	}
	if !found && execPath != "" {
		reg, found, err = s.findByExecPath(execPath)
		if err != nil {
			return nil, err
		}
	}
	if !found {
		return nil, nil
	}

	handle := Handle{
		Backend:     NameSystemd,
		Name:        reg.Name,
		Primary:     reg.Primary,
		ExecPath:    reg.ExecPath,
		CreatedByUs: HasMarker(reg.Artifacts[0].Content),
	}
	err = s.withConn(ctx, func(conn BusConn) error {
		state, err := s.state(ctx, conn, reg.Primary)
		handle.State = state
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Existing{Handle: handle, Registration: reg}, nil
}

// readRegistration reads <name>.service and, when present, <name>.timer.
func (s *Systemd) readRegistration(name string) (Registration, bool, error) {
	servicePath := filepath.Join(s.unitDir, serviceUnitName(name))
	data, err := os.ReadFile(servicePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Registration{}, false, nil
		}
		return Registration{}, false, fmt.Errorf(messages.BackendSystemdReadUnitFmt, servicePath, err)
	}
	unit, err := parseUnit(string(data))
	if err != nil {
		return Registration{}, false, fmt.Errorf(messages.BackendSystemdReadUnitFmt, servicePath, err)
	}
	reg := Registration{
		Backend:    NameSystemd,
		Name:       name,
		Primary:    serviceUnitName(name),
		ExecPath:   unit.execPath(),
		Enableable: unit.hasInstall,
		Artifacts:  []Artifact{{Path: servicePath, Content: string(data)}},
	}
	timerPath := filepath.Join(s.unitDir, timerUnitName(name))
	timer, err := os.ReadFile(timerPath)
	switch {
	case err == nil:
		reg.Primary = timerUnitName(name)
		reg.Enableable = true
		reg.Artifacts = append(reg.Artifacts, Artifact{Path: timerPath, Content: string(timer)})
	case !errors.Is(err, os.ErrNotExist):
		return Registration{}, false, fmt.Errorf(messages.BackendSystemdReadUnitFmt, timerPath, err)
	}
	return reg, true, nil
}

// findByExecPath scans the .service units at the top of the unit directory,
// the only level systemd loads units from. When several run execPath, a unit
// carrying our marker wins over foreign ones, then the first by file name.
func (s *Systemd) findByExecPath(execPath string) (Registration, bool, error) {
	entries, err := os.ReadDir(s.unitDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Registration{}, false, nil
		}
		return Registration{}, false, fmt.Errorf(messages.BackendSystemdReadUnitFmt, s.unitDir, err)
	}
	match := ""
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), serviceSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.unitDir, entry.Name()))
		if err != nil {
			continue
		}
		unit, err := parseUnit(string(data))
		if err != nil || unit.execPath() != execPath {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), serviceSuffix)
		if HasMarker(string(data)) {
			return s.readRegistration(name)
		}
		if match == "" {
			match = name
		}
	}
	if match == "" {
		return Registration{}, false, nil
	}
	return s.readRegistration(match)
}
