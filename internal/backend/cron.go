package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/conn-castle/service-install/internal/messages"
	"github.com/conn-castle/service-install/internal/procs"
	"github.com/conn-castle/service-install/internal/schedule"
)

const crontabArtifactPrefix = "crontab:"

var cronDaemons = []string{"cron", "crond", "cronie"}

// LaunchFunc starts command detached from the caller, as owner when owner is
// not the invoking user.
type LaunchFunc func(command string, owner string) error

// CronOptions configures a Cron backend.
type CronOptions struct {
	// User owns the crontab; empty means the invoking user.
	User    string
	Crontab Crontab
	Procs   procs.Table
	Launch  LaunchFunc
	// LookPath locates the crontab program for Available.
	LookPath func(file string) (string, error)
}

// Cron registers services as entries in a user's crontab.
type Cron struct {
	scope    Scope
	user     string
	crontab  Crontab
	procs    procs.Table
	launch   LaunchFunc
	lookPath func(file string) (string, error)
}

// NewCron builds a cron backend for scope.
func NewCron(scope Scope, opts CronOptions) *Cron {
	c := &Cron{
		scope:    scope,
		user:     opts.User,
		crontab:  opts.Crontab,
		procs:    opts.Procs,
		launch:   opts.Launch,
		lookPath: opts.LookPath,
	}
	if c.crontab == nil {
		c.crontab = CommandCrontab{}
	}
	if c.procs == nil {
		c.procs = procs.New()
	}
	if c.launch == nil {
		c.launch = launchDetached
	}
	if c.lookPath == nil {
		c.lookPath = exec.LookPath
	}
	return c
}

// Name returns "cron".
func (c *Cron) Name() string { return NameCron }

// Scope returns the scope the backend was built for.
func (c *Cron) Scope() Scope { return c.scope }

func (c *Cron) owner() string {
	if c.user != "" {
		return c.user
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return strconv.Itoa(os.Getuid())
}

// Available reports whether crontab(1) exists and a cron daemon is running.
func (c *Cron) Available(context.Context) error {
	if _, err := c.lookPath("crontab"); err != nil {
		return fmt.Errorf(messages.InstallBackendUnavailableFmt+": %s: %w", NameCron, c.scope, messages.BackendCronNotInstalled, ErrUnavailable)
	}
	for _, daemon := range cronDaemons {
		running, err := c.procs.FindByName(daemon)
		if err == nil && len(running) > 0 {
			return nil
		}
	}
	return fmt.Errorf(messages.InstallBackendUnavailableFmt+": %s: %w", NameCron, c.scope, messages.BackendCronDaemonNotRunning, ErrUnavailable)
}

// Render renders the marker comment and rule for d.
func (c *Cron) Render(d Descriptor) (Registration, error) {
	if err := validateDescriptor(d); err != nil {
		return Registration{}, err
	}
	when, err := schedule.Cron(d.Schedule)
	if err != nil {
		return Registration{}, fmt.Errorf(messages.InstallScheduleUnsupportedFmt, NameCron, d.Schedule, err)
	}
	rule := cronRule{
		when:       when,
		workingDir: d.WorkingDir,
		env:        d.Environment,
		execPath:   d.ExecPath,
		args:       d.Args,
	}
	return Registration{
		Backend:    NameCron,
		Name:       d.Name,
		Primary:    d.Name,
		ExecPath:   d.ExecPath,
		Enableable: true,
		Artifacts: []Artifact{{
			Path:    crontabArtifactPrefix + c.owner(),
			Content: Marker(d.Name) + "\n" + rule.String() + "\n",
		}},
	}, nil
}

func (c *Cron) read(ctx context.Context) (crontabDoc, error) {
	text, err := c.crontab.Read(ctx, c.user)
	if err != nil {
		return crontabDoc{}, fmt.Errorf(messages.BackendCronListFmt, c.owner(), err)
	}
	return parseCrontab(text), nil
}

func (c *Cron) write(ctx context.Context, doc crontabDoc) error {
	if err := c.crontab.Write(ctx, c.user, doc.String()); err != nil {
		return fmt.Errorf(messages.BackendCronInstallFmt, c.owner(), err)
	}
	return nil
}

// blockLines returns the lines a registration adds, with its rule disabled.
// Enable activates it, matching how systemd units start out disabled.
func blockLines(reg Registration) []string {
	var lines []string
	for _, artifact := range reg.Artifacts {
		doc := parseCrontab(artifact.Content)
		for _, line := range doc.lines {
			if _, ok := markerName(line); ok {
				lines = append(lines, line)
				continue
			}
			lines = append(lines, disabledRule(line))
		}
	}
	return lines
}

// Register writes reg's entry, replacing any entry with the same name and the
// replaced registration's entry. The new entry takes the place of the first
// line removed, so registering a replaced entry back restores its position.
func (c *Cron) Register(ctx context.Context, reg Registration, replaced *Registration) error {
	doc, err := c.read(ctx)
	if err != nil {
		return err
	}
	at, found := -1, false
	if replaced != nil {
		at, found = c.removeRegistration(&doc, *replaced)
	}
	if i, ok := c.removeRegistration(&doc, reg); ok && (!found || i < at) {
		at, found = i, true
	}
	if found {
		doc.insertLines(at, blockLines(reg)...)
	} else {
		doc.appendLines(blockLines(reg)...)
	}
	return c.write(ctx, doc)
}

// removeRegistration drops reg's lines from doc and returns the lowest index
// a line was removed at.
func (c *Cron) removeRegistration(doc *crontabDoc, reg Registration) (int, bool) {
	at, found := 0, false
	removed := func(i int) {
		if !found || i < at {
			at, found = i, true
		}
	}
	for _, artifact := range reg.Artifacts {
		lines := parseCrontab(artifact.Content).lines
		if len(lines) > 0 {
			if name, ok := markerName(lines[0]); ok {
				if i, ok := doc.removeManaged(name); ok {
					removed(i)
				}
				continue
			}
		}
		for _, line := range lines {
			if i, ok := doc.findRule(enabledRule(line)); ok {
				doc.lines = append(doc.lines[:i:i], doc.lines[i+1:]...)
				removed(i)
			}
		}
	}
	return at, found
}

// Unregister removes reg's entry. A missing entry is not an error.
func (c *Cron) Unregister(ctx context.Context, reg Registration) error {
	doc, err := c.read(ctx)
	if err != nil {
		return err
	}
	c.removeRegistration(&doc, reg)
	return c.write(ctx, doc)
}

// ruleIndex locates the rule line of h: after its marker when we created it,
// by exact text otherwise.
func (c *Cron) ruleIndex(doc crontabDoc, h Handle) (int, error) {
	if h.CreatedByUs {
		i, ok, err := doc.findManaged(h.Name)
		if !ok {
			return 0, fmt.Errorf(messages.BackendCronEntryMissingFmt, c.owner(), h.Name)
		}
		if err != nil {
			return 0, fmt.Errorf(messages.BackendCronCorruptFmt, c.owner(), h.Name)
		}
		return i + 1, nil
	}
	i, ok := doc.findRule(enabledRule(h.Primary))
	if !ok {
		return 0, fmt.Errorf(messages.BackendCronEntryMissingFmt, c.owner(), h.Name)
	}
	return i, nil
}

func (c *Cron) setEnabled(ctx context.Context, h Handle, enabled bool) error {
	doc, err := c.read(ctx)
	if err != nil {
		return err
	}
	i, err := c.ruleIndex(doc, h)
	if err != nil {
		return err
	}
	if enabled {
		doc.lines[i] = enabledRule(doc.lines[i])
	} else {
		doc.lines[i] = disabledRule(doc.lines[i])
	}
	return c.write(ctx, doc)
}

// Enable uncomments the rule.
func (c *Cron) Enable(ctx context.Context, h Handle) error {
	return c.setEnabled(ctx, h, true)
}

// Disable comments the rule out behind the disabled prefix.
func (c *Cron) Disable(ctx context.Context, h Handle) error {
	return c.setEnabled(ctx, h, false)
}

// Start launches an on-boot rule's command now. Timed rules are left to cron.
func (c *Cron) Start(ctx context.Context, h Handle) error {
	doc, err := c.read(ctx)
	if err != nil {
		return err
	}
	i, err := c.ruleIndex(doc, h)
	if err != nil {
		return err
	}
	rule, err := parseCronRule(doc.lines[i])
	if err != nil {
		return fmt.Errorf(messages.BackendCronRuleFmt, doc.lines[i], err)
	}
	if !rule.onBoot() {
		return nil
	}
	if err := c.launch(rule.command(), c.user); err != nil {
		return fmt.Errorf(messages.BackendCronStartFmt, h.Name, err)
	}
	return nil
}

// Stop terminates every process executing the handle's exec path.
func (c *Cron) Stop(ctx context.Context, h Handle) error {
	running, err := c.procs.Find(h.ExecPath)
	if err != nil {
		return fmt.Errorf(messages.BackendCronStopFmt, h.Name, err)
	}
	for _, proc := range running {
		if err := c.procs.Terminate(ctx, proc.PID); err != nil {
			return fmt.Errorf(messages.BackendCronStopFmt, h.Name, err)
		}
	}
	return nil
}

// Restart stops then starts the service.
func (c *Cron) Restart(ctx context.Context, h Handle) error {
	if err := c.Stop(ctx, h); err != nil {
		return err
	}
	return c.Start(ctx, h)
}

// FindExisting looks for name's marker, then for any rule running execPath.
// Artifacts are reported in their enabled form so they compare equal to a
// fresh Render.
func (c *Cron) FindExisting(ctx context.Context, name string, execPath string) (*Existing, error) {
	doc, err := c.read(ctx)
	if err != nil {
		return nil, err
	}

	if i, ok, err := doc.findManaged(name); ok {
		if err != nil {
			return nil, fmt.Errorf(messages.BackendCronCorruptFmt, c.owner(), name)
		}
		return c.existing(name, doc.lines[i], doc.lines[i+1], true)
	}
	if execPath == "" {
		return nil, nil
	}
	for i, line := range doc.lines {
		if _, ok := markerName(line); ok || (len(line) > 0 && line[0] == '#' && !isDisabled(line)) {
			continue
		}
		rule, err := parseCronRule(line)
		if err != nil || rule.execPath != execPath {
			continue
		}
		if i > 0 {
			if owner, ok := markerName(doc.lines[i-1]); ok {
				return c.existing(owner, doc.lines[i-1], line, true)
			}
		}
		return c.existing(filepath.Base(execPath), "", line, false)
	}
	return nil, nil
}

func (c *Cron) existing(name string, marker string, line string, ours bool) (*Existing, error) {
	rule, err := parseCronRule(line)
	if err != nil {
		return nil, fmt.Errorf(messages.BackendCronRuleFmt, line, err)
	}
	content := enabledRule(line) + "\n"
	primary := name
	if ours {
		content = marker + "\n" + content
	} else {
		primary = enabledRule(line)
	}
	reg := Registration{
		Backend:    NameCron,
		Name:       name,
		Primary:    primary,
		ExecPath:   rule.execPath,
		Enableable: true,
		Artifacts:  []Artifact{{Path: crontabArtifactPrefix + c.owner(), Content: content}},
	}
	handle := Handle{
		Backend:     NameCron,
		Name:        name,
		Primary:     primary,
		ExecPath:    rule.execPath,
		CreatedByUs: ours,
		State:       State{Enabled: !isDisabled(line)},
	}
	// An enabled timed rule counts as running, like an active systemd timer.
	if !rule.onBoot() && handle.State.Enabled {
		handle.State.Running = true
	} else if running, err := c.procs.Find(rule.execPath); err == nil && len(running) > 0 {
		handle.State.Running = true
	}
	return &Existing{Handle: handle, Registration: reg}, nil
}

// launchDetached starts command through sh in a new session and releases it,
// so it outlives the installer.
func launchDetached(command string, owner string) error {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if owner != "" && os.Geteuid() == 0 {
		u, err := user.Lookup(owner)
		if err != nil {
			return fmt.Errorf(messages.BackendCronLookupUserFmt, owner, err)
		}
		uid, err := strconv.ParseUint(u.Uid, 10, 32)
		if err != nil {
			return fmt.Errorf(messages.BackendCronLookupUserFmt, owner, err)
		}
		gid, err := strconv.ParseUint(u.Gid, 10, 32)
		if err != nil {
			return fmt.Errorf(messages.BackendCronLookupUserFmt, owner, err)
		}
		cmd.SysProcAttr.Credential = &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}
		cmd.Dir = u.HomeDir
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer func() { _ = devNull.Close() }()
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
