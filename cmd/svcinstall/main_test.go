package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/install"
	"github.com/conn-castle/service-install/internal/messages"
	"github.com/conn-castle/service-install/internal/testutil"
)

func TestInstallStatusRemoveRoundTrip(t *testing.T) {
	h := newCLIHarness(t)
	target := filepath.Join(h.dir, "cli")

	require.Equal(t, 0, h.run(h.installArgs("--yes", "--env", "LOG=info")...), h.stderr.String())
	assert.Contains(t, h.stdout.String(), "write executable "+target)
	assert.Contains(t, h.stdout.String(), "install cli:")
	assert.Contains(t, h.crontab.content, backend.Marker("cli"))
	assert.Contains(t, h.crontab.content, "*/15 * * * *")
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, install.DefaultMode, info.Mode().Perm())

	require.Equal(t, 0, h.run(h.installArgs("--yes", "--env", "LOG=info")...), h.stderr.String())
	assert.Contains(t, h.stdout.String(), messages.InstallNothingToDo)

	require.Equal(t, 0, h.run("status", "cli"), h.stderr.String())
	assert.Contains(t, h.stdout.String(), "backend:    cron")
	assert.Contains(t, h.stdout.String(), "executable: "+target)
	assert.Contains(t, h.stdout.String(), "managed:    true")
	assert.Contains(t, h.stdout.String(), "enabled+running")

	require.Equal(t, 0, h.run("remove", "cli", "--yes"), h.stderr.String())
	assert.Contains(t, h.stdout.String(), "remove cli:")
	assert.NotContains(t, h.crontab.content, backend.Marker("cli"))
	_, err = os.Stat(target)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	assert.Equal(t, exitFailure, h.run("status", "cli"))
	assert.Contains(t, h.stdout.String(), "cli is not installed")
	assert.Empty(t, h.stderr.String())
}

func TestInstallRefusesWithoutConfirmation(t *testing.T) {
	h := newCLIHarness(t)
	assert.Equal(t, exitFailure, h.run(h.installArgs()...))
	assert.Contains(t, h.stderr.String(), messages.CLIConfirmNeedsTTY)
	assert.Empty(t, h.crontab.content)
	assert.NoFileExists(t, filepath.Join(h.dir, "cli"))
}

func TestInstallAsksInteractively(t *testing.T) {
	h := newCLIHarness(t)
	h.app.interactive = func() bool { return true }

	assert.Equal(t, exitFailure, h.run(h.installArgs()...))
	require.Len(t, h.asked, 1)
	assert.Contains(t, h.asked[0], "to cli?")
	assert.Contains(t, h.stderr.String(), messages.CLIAborted)
	assert.Empty(t, h.crontab.content)

	h.answer = true
	require.Equal(t, 0, h.run(h.installArgs()...), h.stderr.String())
	assert.FileExists(t, filepath.Join(h.dir, "cli"))
}

func TestPlanJSONChangesNothing(t *testing.T) {
	h := newCLIHarness(t)
	args := h.installArgs("--json")
	args[0] = "plan"
	require.Equal(t, 0, h.run(args...), h.stderr.String())

	var plan planJSON
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &plan))
	assert.Equal(t, "install", plan.Op)
	assert.Equal(t, backend.NameCron, plan.Backend)
	assert.Equal(t, string(install.ConflictNone), plan.Conflict)
	kinds := make([]string, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		kinds = append(kinds, step.Kind)
	}
	assert.Equal(t, []string{"write-executable", "set-mode", "set-owner", "register", "enable", "start"}, kinds)
	require.Len(t, plan.Previews, 1)
	assert.Contains(t, plan.Previews[0].Diff, "+"+backend.Marker("cli"))

	assert.Empty(t, h.crontab.content)
	assert.NoFileExists(t, filepath.Join(h.dir, "cli"))
}

func TestPlanTextShowsDiff(t *testing.T) {
	h := newCLIHarness(t)
	args := h.installArgs()
	args[0] = "plan"
	require.Equal(t, 0, h.run(args...), h.stderr.String())
	out := h.stdout.String()
	assert.Contains(t, out, "install cli via cron (user)")
	assert.Contains(t, out, " 1. write executable")
	assert.Contains(t, out, "--- crontab:")
}

func TestExitCodes(t *testing.T) {
	h := newCLIHarness(t)
	assert.Equal(t, exitSpec, h.run(h.installArgs("--yes", "--backend", "launchd")...))
	assert.Contains(t, h.stderr.String(), `unknown backend "launchd"`)

	assert.Equal(t, exitSpec, h.run("install", "bad name", "--yes", "--source", h.source))
	assert.Equal(t, exitConflict, h.run("remove", "cli", "--yes"))
	assert.Equal(t, exitFailure, h.run("install", "--yes"))
	assert.Contains(t, h.stderr.String(), messages.CLINameRequired)

	assert.Equal(t, exitRollback, exitCode(&install.RollbackError{Original: errors.New("x")}))
	assert.Equal(t, exitPartial, exitCode(&install.AggregateError{}))
	assert.Equal(t, exitBackend, exitCode(&install.Error{Kind: install.KindBackend}))
	assert.Equal(t, exitLocation, exitCode(&install.Error{Kind: install.KindLocation}))
}

func TestUnknownLogFormat(t *testing.T) {
	h := newCLIHarness(t)
	assert.Equal(t, exitFailure, h.run("status", "cli", "--log-format", "xml"))
	assert.Contains(t, h.stderr.String(), "log format")
}

func TestVersionString(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, BuildDate
	t.Cleanup(func() { Version, Commit, BuildDate = origVersion, origCommit, origDate })

	Version, Commit, BuildDate = "1.2.3", "unknown", "unknown"
	assert.Equal(t, "1.2.3", versionString())
	Commit, BuildDate = "abc123", "2026-01-02"
	assert.Equal(t, "1.2.3 (commit abc123, built 2026-01-02)", versionString())
}

func TestInstallThroughCrontabCommand(t *testing.T) {
	h := newCLIHarness(t)
	state := t.TempDir()
	h.app.factory = cronOnly{cron: backend.NewCron(backend.ScopeUser, backend.CronOptions{
		Crontab:  backend.CommandCrontab{Path: testutil.WriteFakeCrontab(t, state)},
		Procs:    idleProcs{},
		Launch:   func(string, string) error { return nil },
		LookPath: func(file string) (string, error) { return "/usr/bin/" + file, nil },
	})}

	require.Equal(t, 0, h.run(h.installArgs("--yes")...), h.stderr.String())
	table, err := os.ReadFile(filepath.Join(state, "self.tab"))
	require.NoError(t, err)
	assert.Contains(t, string(table), backend.Marker("cli"))

	require.Equal(t, 0, h.run("remove", "cli", "--yes"), h.stderr.String())
	table, err = os.ReadFile(filepath.Join(state, "self.tab"))
	require.NoError(t, err)
	assert.NotContains(t, string(table), backend.Marker("cli"))
}
