package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/procs"
	"github.com/conn-castle/service-install/internal/testutil"
	"github.com/conn-castle/service-install/internal/schedule"
)

// faultSystem is a test helper that allows deterministic error injection for the
// installer System interface and counts filesystem mutations.
type faultSystem struct {
	System
	exe        string
	home       string
	copyErrs   map[string]error
	chmodErrs  map[string]error
	chownErrs  map[string]error
	removeErrs map[string]error
	mutations  []string
}

func newFaultSystem() *faultSystem {
	return &faultSystem{
		System:     RealSystem{},
		copyErrs:   map[string]error{},
		chmodErrs:  map[string]error{},
		chownErrs:  map[string]error{},
		removeErrs: map[string]error{},
	}
}

func normalizePath(path string) string {
	return filepath.Clean(path)
}

func (f *faultSystem) Executable() (string, error) {
	if f.exe != "" {
		return f.exe, nil
	}
	return f.System.Executable()
}

func (f *faultSystem) HomeDir() (string, error) {
	if f.home != "" {
		return f.home, nil
	}
	return f.System.HomeDir()
}

// Noexec pretends no test directory is mounted noexec, since CI often mounts
// /tmp that way.
func (f *faultSystem) Noexec(string) (bool, error) {
	return false, nil
}

func (f *faultSystem) Mkdir(path string, perm os.FileMode) error {
	f.mutations = append(f.mutations, "mkdir "+path)
	return f.System.Mkdir(path, perm)
}

func (f *faultSystem) Remove(name string) error {
	f.mutations = append(f.mutations, "remove "+name)
	if err, ok := f.removeErrs[normalizePath(name)]; ok {
		return err
	}
	return f.System.Remove(name)
}

func (f *faultSystem) Chmod(name string, mode os.FileMode) error {
	f.mutations = append(f.mutations, "chmod "+name)
	if err, ok := f.chmodErrs[normalizePath(name)]; ok {
		return err
	}
	return f.System.Chmod(name, mode)
}

func (f *faultSystem) Chown(name string, uid int, gid int) error {
	f.mutations = append(f.mutations, "chown "+name)
	if err, ok := f.chownErrs[normalizePath(name)]; ok {
		return err
	}
	return f.System.Chown(name, uid, gid)
}

func (f *faultSystem) CopyFileAtomic(src string, dst string, perm os.FileMode) error {
	f.mutations = append(f.mutations, "copy "+dst)
	if err, ok := f.copyErrs[normalizePath(dst)]; ok {
		return err
	}
	return f.System.CopyFileAtomic(src, dst, perm)
}

type fakeEntry struct {
	reg     backend.Registration
	state   backend.State
	foreign bool
}

// fakeBackend keeps registrations in memory and records lifecycle calls as
// "kind:name". Injected failures fire once.
type fakeBackend struct {
	name        string
	scope       backend.Scope
	unavailable error
	entries     map[string]*fakeEntry
	foreign     []backend.Registration
	fail        map[string]error
	calls       []string
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{
		name:    name,
		scope:   backend.ScopeUser,
		entries: map[string]*fakeEntry{},
		fail:    map[string]error{},
	}
}

func (b *fakeBackend) Name() string         { return b.name }
func (b *fakeBackend) Scope() backend.Scope { return b.scope }

func (b *fakeBackend) Available(context.Context) error {
	return b.unavailable
}

func (b *fakeBackend) Render(d backend.Descriptor) (backend.Registration, error) {
	none := d.Schedule.Kind == schedule.KindNone || d.Schedule.Kind == ""
	if b.name == backend.NameCron && none {
		return backend.Registration{}, schedule.ErrNotExpressible
	}
	unit := d.Name + ".service"
	return backend.Registration{
		Backend:    b.name,
		Name:       d.Name,
		Primary:    unit,
		ExecPath:   d.ExecPath,
		Enableable: !none,
		Artifacts: []backend.Artifact{{
			Path:    "/units/" + unit,
			Content: fmt.Sprintf("# marker\nExecStart=%s\nSchedule=%s\n", d.ExecPath, d.Schedule),
		}},
	}, nil
}

// seed installs a registration as if it had been there before the test.
func (b *fakeBackend) seed(reg backend.Registration, state backend.State, foreign bool) {
	b.entries[reg.Name] = &fakeEntry{reg: reg, state: state, foreign: foreign}
	if foreign {
		b.foreign = append(b.foreign, reg)
	}
}

func (b *fakeBackend) call(kind string, name string) error {
	key := kind + ":" + name
	b.calls = append(b.calls, key)
	if err, ok := b.fail[key]; ok {
		delete(b.fail, key)
		return err
	}
	return nil
}

func (b *fakeBackend) Register(_ context.Context, reg backend.Registration, replaced *backend.Registration) error {
	if err := b.call("register", reg.Name); err != nil {
		return err
	}
	if replaced != nil {
		delete(b.entries, replaced.Name)
	}
	foreign := false
	for _, seeded := range b.foreign {
		foreign = foreign || seeded.SameArtifacts(reg)
	}
	b.entries[reg.Name] = &fakeEntry{reg: reg, foreign: foreign}
	return nil
}

func (b *fakeBackend) Unregister(_ context.Context, reg backend.Registration) error {
	if err := b.call("unregister", reg.Name); err != nil {
		return err
	}
	delete(b.entries, reg.Name)
	return nil
}

func (b *fakeBackend) entry(h backend.Handle) (*fakeEntry, error) {
	e, ok := b.entries[h.Name]
	if !ok {
		return nil, fmt.Errorf("%s is not registered", h.Name)
	}
	return e, nil
}

func (b *fakeBackend) lifecycle(kind string, h backend.Handle, apply func(*backend.State)) error {
	if err := b.call(kind, h.Name); err != nil {
		return err
	}
	e, err := b.entry(h)
	if err != nil {
		return err
	}
	apply(&e.state)
	return nil
}

func (b *fakeBackend) Enable(_ context.Context, h backend.Handle) error {
	return b.lifecycle("enable", h, func(s *backend.State) { s.Enabled = true })
}

func (b *fakeBackend) Disable(_ context.Context, h backend.Handle) error {
	return b.lifecycle("disable", h, func(s *backend.State) { s.Enabled = false })
}

func (b *fakeBackend) Start(_ context.Context, h backend.Handle) error {
	return b.lifecycle("start", h, func(s *backend.State) { s.Running = true })
}

func (b *fakeBackend) Stop(_ context.Context, h backend.Handle) error {
	return b.lifecycle("stop", h, func(s *backend.State) { s.Running = false })
}

func (b *fakeBackend) Restart(_ context.Context, h backend.Handle) error {
	return b.lifecycle("restart", h, func(s *backend.State) { s.Running = true })
}

func (b *fakeBackend) FindExisting(_ context.Context, name string, execPath string) (*backend.Existing, error) {
	if e, ok := b.entries[name]; ok {
		return b.existing(e), nil
	}
	if execPath == "" {
		return nil, nil
	}
	for _, e := range b.entries {
		if e.reg.ExecPath == execPath {
			return b.existing(e), nil
		}
	}
	return nil, nil
}

func (b *fakeBackend) existing(e *fakeEntry) *backend.Existing {
	h := e.reg.Handle()
	h.CreatedByUs = !e.foreign
	h.State = e.state
	return &backend.Existing{Handle: h, Registration: e.reg}
}

// stateOf returns the state of name and whether it is registered.
func (b *fakeBackend) stateOf(name string) (backend.State, bool) {
	e, ok := b.entries[name]
	if !ok {
		return backend.State{}, false
	}
	return e.state, true
}

type fakeFactory struct {
	systemd *fakeBackend
	cron    *fakeBackend
}

func (f fakeFactory) Systemd(backend.Scope) backend.Backend { return f.systemd }

func (f fakeFactory) Cron(backend.Scope, string) backend.Backend { return f.cron }

// fakeTable is an in-memory process table.
type fakeTable struct {
	procs      []procs.Process
	terminated []int
	findErr    error
}

func (t *fakeTable) Find(path string) ([]procs.Process, error) {
	if t.findErr != nil {
		return nil, t.findErr
	}
	var out []procs.Process
	for _, p := range t.procs {
		if p.Exe == path {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *fakeTable) FindByName(name string) ([]procs.Process, error) {
	var out []procs.Process
	for _, p := range t.procs {
		if filepath.Base(p.Exe) == name {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *fakeTable) Terminate(_ context.Context, pid int) error {
	t.terminated = append(t.terminated, pid)
	for i, p := range t.procs {
		if p.PID == pid {
			t.procs = append(t.procs[:i], t.procs[i+1:]...)
			return nil
		}
	}
	return nil
}

// harness wires an Installer to a temp install dir, a fake systemd backend
// and a fake process table.
type harness struct {
	t       *testing.T
	dir     string
	source  string
	target  string
	sys     *faultSystem
	systemd *fakeBackend
	cron    *fakeBackend
	table   *fakeTable
	inst    *Installer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		dir:     filepath.Join(t.TempDir(), "bin"),
		sys:     newFaultSystem(),
		systemd: newFakeBackend(backend.NameSystemd),
		cron:    newFakeBackend(backend.NameCron),
		table:   &fakeTable{},
	}
	require.NoError(t, os.MkdirAll(h.dir, 0o755))
	h.source = testutil.WriteScript(t, t.TempDir(), "cli-build", "echo v2\n")
	h.target = filepath.Join(h.dir, "cli")
	h.inst = h.newInstaller(nil)
	return h
}

func (h *harness) newInstaller(prompter Prompter) *Installer {
	h.t.Helper()
	inst, err := New(Options{
		System:     h.sys,
		Backends:   fakeFactory{systemd: h.systemd, cron: h.cron},
		Procs:      h.table,
		Prompter:   prompter,
		BackupRoot: h.t.TempDir(),
	})
	require.NoError(h.t, err)
	return inst
}

// spec is Scenario A's spec: a daily service installed into the temp dir.
func (h *harness) spec() Spec {
	return Spec{
		Name:      "cli",
		Source:    h.source,
		TargetDir: h.dir,
		Schedule:  schedule.Daily(10, 42, 0),
	}
}

func (h *harness) writeTarget(content string, mode os.FileMode) {
	h.t.Helper()
	require.NoError(h.t, os.WriteFile(h.target, []byte(content), mode))
	require.NoError(h.t, os.Chmod(h.target, mode))
}

func (h *harness) readTarget() string {
	h.t.Helper()
	data, err := os.ReadFile(h.target)
	require.NoError(h.t, err)
	return string(data)
}

func kinds(steps []Step) []StepKind {
	out := make([]StepKind, 0, len(steps))
	for _, step := range steps {
		out = append(out, step.Kind)
	}
	return out
}

var errInjected = errors.New("injected failure")
