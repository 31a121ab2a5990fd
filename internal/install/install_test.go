package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/procs"
)

func TestNewRequiresSystemAndBackends(t *testing.T) {
	_, err := New(Options{Backends: fakeFactory{}})
	require.Error(t, err)
	_, err = New(Options{System: RealSystem{}})
	require.Error(t, err)
}

// Scenario A: nothing installed yet.
func TestInstallFreshDailyService(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	plan, err := h.inst.PrepareInstall(ctx, h.spec())
	require.NoError(t, err)
	assert.Equal(t, ConflictNone, plan.Conflict.Kind)
	assert.Equal(t, []StepKind{
		StepWriteExecutable, StepSetMode, StepSetOwner, StepRegister, StepEnable, StepStart,
	}, kinds(plan.Steps))
	assert.Equal(t, h.target, plan.Target)
	assert.Equal(t, backend.NameSystemd, plan.Backend)
	require.Len(t, plan.Previews, 1)
	assert.Contains(t, plan.Previews[0].UnifiedDiff, "+ExecStart="+h.target)

	report, err := h.inst.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Len(t, report.Applied, 6)
	require.NotNil(t, report.Handle)
	assert.Equal(t, backend.State{Enabled: true, Running: true}, report.Handle.State)
	assert.True(t, report.Handle.CreatedByUs)

	assert.Equal(t, "#!/bin/sh\necho v2\n", h.readTarget())
	info, err := os.Stat(h.target)
	require.NoError(t, err)
	assert.Equal(t, DefaultMode, info.Mode().Perm())
	assert.Equal(t, []string{"register:cli", "enable:cli", "start:cli"}, h.systemd.calls)
}

// Scenario B: the same spec re-run converges without touching the filesystem.
func TestInstallRerunIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.inst.Install(ctx, h.spec())
	require.NoError(t, err)
	h.sys.mutations = nil
	h.systemd.calls = nil

	plan, err := h.inst.PrepareInstall(ctx, h.spec())
	require.NoError(t, err)
	assert.Equal(t, ConflictManagedService, plan.Conflict.Kind)
	assert.True(t, plan.Empty())
	assert.Empty(t, plan.Previews)

	_, err = h.inst.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Empty(t, h.sys.mutations)
	assert.Empty(t, h.systemd.calls)
}

func TestInstallOverIdenticalFileSkipsWrite(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.writeTarget("#!/bin/sh\necho v2\n", DefaultMode)

	plan, err := h.inst.PrepareInstall(ctx, h.spec())
	require.NoError(t, err)
	assert.Equal(t, ConflictIdenticalFile, plan.Conflict.Kind)
	assert.Equal(t, []StepKind{StepRegister, StepEnable, StepStart}, kinds(plan.Steps))
	assert.Zero(t, plan.FilesystemSteps())

	_, err = h.inst.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Empty(t, h.sys.mutations)
}

func TestInstallStartsUpToDateStoppedService(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.inst.Install(ctx, h.spec())
	require.NoError(t, err)
	h.systemd.entries["cli"].state.Running = false

	plan, err := h.inst.PrepareInstall(ctx, h.spec())
	require.NoError(t, err)
	assert.Equal(t, []StepKind{StepStart}, kinds(plan.Steps))
}

func TestInstallReinstallsChangedBinary(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.inst.Install(ctx, h.spec())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(h.source, []byte("#!/bin/sh\necho v3\n"), 0o755))
	h.systemd.calls = nil

	plan, err := h.inst.PrepareInstall(ctx, h.spec())
	require.NoError(t, err)
	assert.Equal(t, []StepKind{
		StepStop, StepDisable, StepUnregister,
		StepBackupFile, StepWriteExecutable, StepSetMode, StepSetOwner,
		StepRegister, StepEnable, StepRestart,
	}, kinds(plan.Steps))

	_, err = h.inst.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho v3\n", h.readTarget())
	state, ok := h.systemd.stateOf("cli")
	require.True(t, ok)
	assert.Equal(t, backend.State{Enabled: true, Running: true}, state)
}

// Scenario C: a foreign running service occupies the slot and the install
// fails after it was stopped and disabled.
func TestInstallOverForeignServiceRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.writeTarget("#!/bin/sh\necho legacy\n", 0o750)
	legacy := backend.Registration{
		Backend:    backend.NameSystemd,
		Name:       "legacy",
		Primary:    "legacy.service",
		ExecPath:   h.target,
		Enableable: true,
		Artifacts:  []backend.Artifact{{Path: "/units/legacy.service", Content: "legacy\n"}},
	}
	h.systemd.seed(legacy, backend.State{Enabled: true, Running: true}, true)
	h.systemd.fail["register:cli"] = errInjected

	spec := h.spec()
	spec.Overwrite = true
	plan, err := h.inst.PrepareInstall(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, ConflictManagedService, plan.Conflict.Kind)
	assert.False(t, plan.Conflict.CreatedByUs())
	assert.Equal(t, []StepKind{
		StepStop, StepDisable,
		StepBackupFile, StepWriteExecutable, StepSetMode, StepSetOwner,
		StepRegister, StepEnable, StepStart,
	}, kinds(plan.Steps))
	assert.Equal(t, "legacy", plan.Steps[0].Handle.Name)

	_, err = h.inst.Execute(ctx, plan)
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, KindBackend, KindOf(err))

	state, ok := h.systemd.stateOf("legacy")
	require.True(t, ok)
	assert.Equal(t, backend.State{Enabled: true, Running: true}, state)
	_, registered := h.systemd.stateOf("cli")
	assert.False(t, registered)
	assert.Equal(t, []string{"stop:legacy", "disable:legacy", "register:cli", "enable:legacy", "start:legacy"}, h.systemd.calls)

	assert.Equal(t, "#!/bin/sh\necho legacy\n", h.readTarget())
	info, err := os.Stat(h.target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())
}

func TestInstallReplacingForeignRegistrationRestoresIt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	foreign := backend.Registration{
		Backend:    backend.NameSystemd,
		Name:       "cli",
		Primary:    "cli.service",
		ExecPath:   "/opt/vendor/cli",
		Enableable: true,
		Artifacts:  []backend.Artifact{{Path: "/units/cli.service", Content: "vendor\n"}},
	}
	h.systemd.seed(foreign, backend.State{Enabled: true, Running: true}, true)
	h.systemd.fail["enable:cli"] = errInjected

	spec := h.spec()
	spec.Overwrite = true
	plan, err := h.inst.PrepareInstall(ctx, spec)
	require.NoError(t, err)
	register := plan.Steps[len(plan.Steps)-3]
	require.Equal(t, StepRegister, register.Kind)
	require.NotNil(t, register.Replaced)

	_, err = h.inst.Execute(ctx, plan)
	require.ErrorIs(t, err, errInjected)

	existing, err := h.systemd.FindExisting(ctx, "cli", "")
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.False(t, existing.Handle.CreatedByUs)
	assert.True(t, existing.Registration.SameArtifacts(foreign))
	assert.Equal(t, backend.State{Enabled: true, Running: true}, existing.Handle.State)
	_, err = os.Stat(h.target)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInstallRefusesForeignServiceWithoutOverwrite(t *testing.T) {
	h := newHarness(t)
	h.systemd.seed(backend.Registration{Backend: backend.NameSystemd, Name: "cli", Primary: "cli.service"}, backend.State{}, true)

	_, err := h.inst.PrepareInstall(context.Background(), h.spec())
	require.ErrorIs(t, err, ErrServiceConflict)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Empty(t, h.sys.mutations)
}

func TestInstallRefusesOccupiedLocation(t *testing.T) {
	h := newHarness(t)
	h.writeTarget("someone else's tool\n", 0o755)

	_, err := h.inst.PrepareInstall(context.Background(), h.spec())
	require.ErrorIs(t, err, ErrLocationOccupied)
	assert.Equal(t, KindLocation, KindOf(err))
	assert.Equal(t, "someone else's tool\n", h.readTarget())
}

func TestInstallWithRunningProcess(t *testing.T) {
	setup := func(t *testing.T) *harness {
		h := newHarness(t)
		h.writeTarget("#!/bin/sh\nsleep 100\n", 0o755)
		h.table.procs = []procs.Process{{PID: 4242, Exe: h.target}}
		return h
	}

	t.Run("fails without overwrite or prompter", func(t *testing.T) {
		h := setup(t)
		_, err := h.inst.PrepareInstall(context.Background(), h.spec())
		require.ErrorIs(t, err, ErrProcessRunning)
		assert.Equal(t, KindConflict, KindOf(err))
	})

	t.Run("confirmed by prompter", func(t *testing.T) {
		h := setup(t)
		var asked []int
		inst := h.newInstaller(PromptFuncs{ConfirmStopProcessFunc: func(p procs.Process) (bool, error) {
			asked = append(asked, p.PID)
			return true, nil
		}})
		plan, err := inst.PrepareInstall(context.Background(), h.spec())
		require.NoError(t, err)
		assert.Equal(t, []int{4242}, asked)
		assert.Equal(t, ConflictRunningProcess, plan.Conflict.Kind)
		assert.Equal(t, []StepKind{
			StepStopProcess, StepBackupFile, StepWriteExecutable, StepSetMode, StepSetOwner,
			StepRegister, StepEnable, StepStart,
		}, kinds(plan.Steps))

		_, err = inst.Execute(context.Background(), plan)
		require.NoError(t, err)
		assert.Equal(t, []int{4242}, h.table.terminated)
	})

	t.Run("declined by prompter", func(t *testing.T) {
		h := setup(t)
		inst := h.newInstaller(PromptFuncs{ConfirmStopProcessFunc: func(procs.Process) (bool, error) { return false, nil }})
		_, err := inst.PrepareInstall(context.Background(), h.spec())
		require.ErrorIs(t, err, ErrProcessRunning)
	})

	t.Run("prompter error", func(t *testing.T) {
		h := setup(t)
		inst := h.newInstaller(PromptFuncs{})
		_, err := inst.PrepareInstall(context.Background(), h.spec())
		require.ErrorIs(t, err, ErrProcessRunning)
		assert.Contains(t, err.Error(), "confirm stopping process 4242")
	})

	t.Run("overwrite stops without asking", func(t *testing.T) {
		h := setup(t)
		spec := h.spec()
		spec.Overwrite = true
		plan, err := h.inst.PrepareInstall(context.Background(), spec)
		require.NoError(t, err)
		assert.Equal(t, StepStopProcess, plan.Steps[0].Kind)
	})
}

func TestInstallNeverRewritesRunningExecutable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.writeTarget("the running binary\n", DefaultMode)
	h.sys.exe = h.target

	spec := h.spec()
	spec.Overwrite = true
	plan, err := h.inst.PrepareInstall(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, []StepKind{StepRegister, StepEnable, StepStart}, kinds(plan.Steps))

	_, err = h.inst.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, "the running binary\n", h.readTarget())
	assert.Empty(t, h.sys.mutations)
}

func TestInstallReadOnlyMode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	spec := h.spec()
	spec.ReadOnly = true

	_, err := h.inst.Install(ctx, spec)
	require.NoError(t, err)
	info, err := os.Stat(h.target)
	require.NoError(t, err)
	assert.Equal(t, ReadOnlyMode, info.Mode().Perm())
}

func TestInstallCreatesMissingDirectoryAndRollsItBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	spec := h.spec()
	spec.TargetDir = h.dir + "/nested"
	h.systemd.fail["start:cli"] = errInjected

	plan, err := h.inst.PrepareInstall(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, StepCreateDir, plan.Steps[0].Kind)

	_, err = h.inst.Execute(ctx, plan)
	require.ErrorIs(t, err, errInjected)
	_, err = os.Stat(spec.TargetDir)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, registered := h.systemd.stateOf("cli")
	assert.False(t, registered)
}

func TestInstallFallsBackToCron(t *testing.T) {
	h := newHarness(t)
	h.systemd.unavailable = fmt.Errorf("%w: no session bus", backend.ErrUnavailable)

	plan, err := h.inst.PrepareInstall(context.Background(), h.spec())
	require.NoError(t, err)
	assert.Equal(t, backend.NameCron, plan.Backend)
}

func TestExecuteRejectsConsumedPlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	plan, err := h.inst.PrepareInstall(ctx, h.spec())
	require.NoError(t, err)
	_, err = h.inst.Execute(ctx, plan)
	require.NoError(t, err)
	require.True(t, plan.Consumed())

	_, err = h.inst.Execute(ctx, plan)
	require.ErrorIs(t, err, ErrPlanConsumed)
	_, err = h.inst.ExecuteBestEffort(ctx, plan)
	require.ErrorIs(t, err, ErrPlanConsumed)
}

func TestInstallThenRemoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.inst.Install(ctx, h.spec())
	require.NoError(t, err)
	h.systemd.calls = nil

	plan, err := h.inst.PrepareRemove(ctx, RemoveSpec{Name: "cli"})
	require.NoError(t, err)
	assert.Equal(t, []StepKind{StepStop, StepDisable, StepUnregister, StepBackupFile, StepRemoveFile}, kinds(plan.Steps))

	_, err = h.inst.Execute(ctx, plan)
	require.NoError(t, err)
	_, err = os.Stat(h.target)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, registered := h.systemd.stateOf("cli")
	assert.False(t, registered)
	assert.Equal(t, []string{"stop:cli", "disable:cli", "unregister:cli"}, h.systemd.calls)

	existing, err := h.inst.Status(ctx, RemoveSpec{Name: "cli"})
	require.NoError(t, err)
	assert.Nil(t, existing)
}

func TestRemoveRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.inst.Install(ctx, h.spec())
	require.NoError(t, err)
	h.sys.removeErrs[h.target] = errInjected

	_, err = h.inst.Remove(ctx, RemoveSpec{Name: "cli"})
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, KindLocation, KindOf(err))

	assert.Equal(t, "#!/bin/sh\necho v2\n", h.readTarget())
	state, ok := h.systemd.stateOf("cli")
	require.True(t, ok)
	assert.Equal(t, backend.State{Enabled: true, Running: true}, state)
}

func TestRemoveRequiresOurInstall(t *testing.T) {
	t.Run("nothing installed", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.inst.PrepareRemove(context.Background(), RemoveSpec{Name: "cli"})
		require.ErrorIs(t, err, ErrNoInstallFound)
		assert.Contains(t, err.Error(), "systemd, cron")
	})
	t.Run("foreign registration", func(t *testing.T) {
		h := newHarness(t)
		h.systemd.seed(backend.Registration{Backend: backend.NameSystemd, Name: "cli", Primary: "cli.service"}, backend.State{}, true)
		_, err := h.inst.PrepareRemove(context.Background(), RemoveSpec{Name: "cli"})
		require.ErrorIs(t, err, ErrServiceConflict)
	})
}

func TestRemoveFindsCronRegistration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	spec := h.spec()
	spec.Backend = backend.NameCron
	_, err := h.inst.Install(ctx, spec)
	require.NoError(t, err)

	plan, err := h.inst.PrepareRemove(ctx, RemoveSpec{Name: "cli"})
	require.NoError(t, err)
	assert.Equal(t, backend.NameCron, plan.Backend)
}

func TestRemoveLeavesRunningExecutable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.inst.Install(ctx, h.spec())
	require.NoError(t, err)
	h.sys.exe = h.target

	plan, err := h.inst.PrepareRemove(ctx, RemoveSpec{Name: "cli"})
	require.NoError(t, err)
	assert.Equal(t, []StepKind{StepStop, StepDisable, StepUnregister}, kinds(plan.Steps))
	_, err = h.inst.Execute(ctx, plan)
	require.NoError(t, err)
	assert.FileExists(t, h.target)
}

func TestBestEffortRemoveAttemptsEverything(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.inst.Install(ctx, h.spec())
	require.NoError(t, err)
	h.systemd.fail["unregister:cli"] = errInjected

	report, err := h.inst.BestEffortRemove(ctx, RemoveSpec{Name: "cli"})
	require.Error(t, err)
	var aggregate *AggregateError
	require.True(t, errors.As(err, &aggregate))
	require.Len(t, aggregate.Failed(), 1)
	assert.Equal(t, StepUnregister, aggregate.Failed()[0].Step.Kind)

	assert.Len(t, report.Outcomes, 5)
	assert.Len(t, report.Applied, 4)
	_, err = os.Stat(h.target)
	assert.ErrorIs(t, err, os.ErrNotExist)
	// Nothing was rolled back: the service stays stopped and disabled.
	state, ok := h.systemd.stateOf("cli")
	require.True(t, ok)
	assert.Equal(t, backend.State{}, state)
}
