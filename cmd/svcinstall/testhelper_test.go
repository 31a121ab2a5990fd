package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/install"
	"github.com/conn-castle/service-install/internal/logging"
	"github.com/conn-castle/service-install/internal/procs"
	"github.com/conn-castle/service-install/internal/testutil"
)

type memCrontab struct {
	content string
}

func (m *memCrontab) Read(context.Context, string) (string, error) { return m.content, nil }

func (m *memCrontab) Write(_ context.Context, _ string, content string) error {
	m.content = content
	return nil
}

// idleProcs reports a running cron daemon and nothing else.
type idleProcs struct{}

func (idleProcs) Find(string) ([]procs.Process, error) { return nil, nil }

func (idleProcs) FindByName(name string) ([]procs.Process, error) {
	if name == "cron" {
		return []procs.Process{{PID: 1, Exe: "/usr/sbin/cron"}}, nil
	}
	return nil, nil
}

func (idleProcs) Terminate(context.Context, int) error { return nil }

// cronOnly offers an unreachable systemd and an in-memory crontab.
type cronOnly struct {
	cron *backend.Cron
}

func (f cronOnly) Systemd(scope backend.Scope) backend.Backend {
	return backend.NewSystemd(scope, backend.SystemdOptions{
		UnitDir: "/nonexistent",
		Probe:   func(backend.Scope) bool { return false },
	})
}

func (f cronOnly) Cron(backend.Scope, string) backend.Backend { return f.cron }

// execSystem is the real filesystem on a mount that is never noexec.
type execSystem struct {
	install.RealSystem
}

func (execSystem) Noexec(string) (bool, error) { return false, nil }

type cliHarness struct {
	t       *testing.T
	app     *app
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	crontab *memCrontab
	source  string
	dir     string
	asked   []string
	answer  bool
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	h := &cliHarness{
		t:       t,
		stdout:  &bytes.Buffer{},
		stderr:  &bytes.Buffer{},
		crontab: &memCrontab{},
		dir:     t.TempDir(),
	}
	h.source = testutil.WriteScript(t, t.TempDir(), "cli-build", "echo v2\n")

	cron := backend.NewCron(backend.ScopeUser, backend.CronOptions{
		Crontab:  h.crontab,
		Procs:    idleProcs{},
		Launch:   func(string, string) error { return nil },
		LookPath: func(file string) (string, error) { return "/usr/bin/" + file, nil },
	})
	h.app = &app{
		stdin:       &bytes.Buffer{},
		stdout:      h.stdout,
		stderr:      h.stderr,
		logLevel:    "warn",
		logFormat:   logging.FormatConsole,
		system:      execSystem{},
		factory:     cronOnly{cron: cron},
		procs:       idleProcs{},
		lockDir:     t.TempDir(),
		backupRoot:  t.TempDir(),
		interactive: func() bool { return false },
		confirm: func(title string) (bool, error) {
			h.asked = append(h.asked, title)
			return h.answer, nil
		},
		palette: newPalette(false),
	}
	return h
}

// run executes the CLI and returns its exit code.
func (h *cliHarness) run(args ...string) int {
	h.t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()
	return runMain(context.Background(), h.app, append([]string{"svcinstall"}, args...))
}

func (h *cliHarness) installArgs(extra ...string) []string {
	args := []string{"install", "cli", "--source", h.source, "--target-dir", h.dir, "--schedule", "every 15m"}
	return append(args, extra...)
}
