// Package install plans and executes transactional installs and removals of
// an executable as an OS-managed service.
//
// Every change is a Step carrying the prior state its inverse needs. A Plan is
// built from a validated Spec and a classified Conflict without touching the
// system, then executed all-or-nothing (Execute) or best-effort
// (ExecuteBestEffort).
package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/messages"
	"github.com/conn-castle/service-install/internal/procs"
)

// Options configures an Installer.
type Options struct {
	System   System
	Backends backend.Factory
	// Procs defaults to the /proc process table.
	Procs    procs.Table
	Prompter Prompter
	Logger   *slog.Logger
	// BackupRoot holds per-plan backup directories; defaults to os.TempDir().
	BackupRoot   string
	DiffMaxLines int
}

// Installer prepares and executes plans.
type Installer struct {
	sys          System
	backends     backend.Factory
	procs        procs.Table
	prompter     Prompter
	logger       *slog.Logger
	backupRoot   string
	diffMaxLines int
}

// Report summarizes an executed plan.
type Report struct {
	PlanID  string
	Op      Operation
	Name    string
	Backend string
	Target  string
	// Applied lists the steps that took effect, in order.
	Applied []Step
	// Outcomes holds one entry per step for best-effort runs.
	Outcomes []Outcome
	// Handle is the registration as observed after an install.
	Handle *backend.Handle
}

// New returns an Installer.
func New(opts Options) (*Installer, error) {
	if opts.System == nil {
		return nil, errors.New(messages.InstallSystemRequired)
	}
	if opts.Backends == nil {
		return nil, errors.New(messages.InstallBackendRequired)
	}
	table := opts.Procs
	if table == nil {
		table = procs.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	backupRoot := opts.BackupRoot
	if strings.TrimSpace(backupRoot) == "" {
		backupRoot = os.TempDir()
	}
	return &Installer{
		sys:          opts.System,
		backends:     opts.Backends,
		procs:        table,
		prompter:     opts.Prompter,
		logger:       logger,
		backupRoot:   backupRoot,
		diffMaxLines: normalizeDiffMaxLines(opts.DiffMaxLines),
	}, nil
}

// PrepareInstall validates spec, scans the install slot and builds a plan.
// Nothing on the system changes; prompts for running processes happen here.
func (inst *Installer) PrepareInstall(ctx context.Context, spec Spec) (*Plan, error) {
	v, err := inst.validate(ctx, spec)
	if err != nil {
		return nil, err
	}
	conflict, err := Scan(ctx, ScanInput{Name: spec.Name, Source: v.source, Target: v.target}, inst.sys, inst.procs, v.backend)
	if err != nil {
		return nil, err
	}
	self, err := inst.isSelf(v.target, conflict.File.Exists)
	if err != nil {
		return nil, err
	}
	confirmed, err := inst.confirmStops(spec, conflict)
	if err != nil {
		return nil, err
	}

	plan := inst.newPlan(OpInstall, spec.Name, v.backend)
	plan.Target = v.target
	plan.Conflict = conflict
	plan.registration = v.registration
	plan.Steps, err = buildInstallPlan(planInput{
		v:         v,
		conflict:  conflict,
		self:      self,
		euid:      inst.sys.Geteuid(),
		egid:      inst.sys.Getegid(),
		backupDir: plan.backupDir,
		confirmed: confirmed,
	})
	if err != nil {
		return nil, err
	}
	var current *backend.Registration
	if conflict.Existing != nil {
		current = &conflict.Existing.Registration
	}
	plan.Previews = buildDiffPreviews(current, v.registration, inst.diffMaxLines)

	inst.logger.Info("install planned",
		"plan", plan.ID, "service", spec.Name, "backend", plan.Backend, "scope", plan.Scope,
		"target", plan.Target, "conflict", conflict.Kind, "steps", len(plan.Steps))
	if self {
		inst.logger.Warn("target is the running executable; it will not be rewritten", "target", v.target)
	}
	return plan, nil
}

// PrepareRemove locates our registration of spec.Name and builds a plan that
// stops, disables and unregisters it and removes its executable.
func (inst *Installer) PrepareRemove(ctx context.Context, spec RemoveSpec) (*Plan, error) {
	if err := validateName(spec.Name); err != nil {
		return nil, err
	}
	scope := spec.scope()
	if err := inst.checkElevation(scope, spec.RunAs); err != nil {
		return nil, err
	}
	be, existing, searched, err := inst.locate(ctx, spec)
	if err != nil {
		return nil, err
	}

	in := removeInput{name: spec.Name, where: strings.Join(searched, ", "), existing: existing}
	if existing != nil && existing.Registration.ExecPath != "" {
		target := existing.Registration.ExecPath
		in.file, err = inspectFile(inst.sys, target)
		if err != nil {
			return nil, newError(KindLocation, nil, fmt.Errorf(messages.InstallFailedStatFmt, target, err))
		}
		in.self, err = inst.isSelf(target, in.file.Exists)
		if err != nil {
			return nil, err
		}
	}

	plan := inst.newPlan(OpRemove, spec.Name, be)
	in.backupDir = plan.backupDir
	plan.Steps, err = buildRemovePlan(in)
	if err != nil {
		return nil, err
	}
	plan.Target = existing.Registration.ExecPath
	plan.registration = existing.Registration
	plan.Conflict = Conflict{Kind: ConflictManagedService, File: in.file, Existing: existing}

	inst.logger.Info("remove planned",
		"plan", plan.ID, "service", spec.Name, "backend", plan.Backend, "target", plan.Target, "steps", len(plan.Steps))
	if in.self {
		inst.logger.Warn("installed executable is the running executable; it will not be removed", "target", plan.Target)
	}
	return plan, nil
}

// Status returns the registration of spec.Name, or nil when there is none.
func (inst *Installer) Status(ctx context.Context, spec RemoveSpec) (*backend.Existing, error) {
	if err := validateName(spec.Name); err != nil {
		return nil, err
	}
	_, existing, _, err := inst.locate(ctx, spec)
	return existing, err
}

// locate searches every reachable backend for a registration of spec.Name.
// It returns the backend holding it, or the first backend searched.
func (inst *Installer) locate(ctx context.Context, spec RemoveSpec) (backend.Backend, *backend.Existing, []string, error) {
	available, err := inst.availableBackends(ctx, spec.Backend, spec.scope(), spec.RunAs)
	if err != nil {
		return nil, nil, nil, err
	}
	searched := make([]string, 0, len(available))
	for _, be := range available {
		searched = append(searched, be.Name())
		existing, err := be.FindExisting(ctx, spec.Name, "")
		if err != nil {
			return nil, nil, nil, newError(KindBackend, nil, err)
		}
		if existing != nil {
			return be, existing, searched, nil
		}
	}
	return available[0], nil, searched, nil
}

// Install prepares and executes an install plan.
func (inst *Installer) Install(ctx context.Context, spec Spec) (Report, error) {
	plan, err := inst.PrepareInstall(ctx, spec)
	if err != nil {
		return Report{}, err
	}
	return inst.Execute(ctx, plan)
}

// Remove prepares and executes a remove plan with rollback on failure.
func (inst *Installer) Remove(ctx context.Context, spec RemoveSpec) (Report, error) {
	plan, err := inst.PrepareRemove(ctx, spec)
	if err != nil {
		return Report{}, err
	}
	return inst.Execute(ctx, plan)
}

// BestEffortRemove prepares a remove plan and runs every step regardless of
// failures.
func (inst *Installer) BestEffortRemove(ctx context.Context, spec RemoveSpec) (Report, error) {
	plan, err := inst.PrepareRemove(ctx, spec)
	if err != nil {
		return Report{}, err
	}
	return inst.ExecuteBestEffort(ctx, plan)
}

// Execute runs plan all-or-nothing. A plan executes at most once.
func (inst *Installer) Execute(ctx context.Context, plan *Plan) (Report, error) {
	if err := inst.consume(plan); err != nil {
		return Report{}, err
	}
	logger := inst.logger.With("plan", plan.ID, "op", plan.Op, "service", plan.Name)
	err := NewExecutor(inst.applier(plan, logger), logger).Execute(ctx, plan.Steps)
	report := plan.report()
	if err != nil {
		var rollbackErr *RollbackError
		if errors.As(err, &rollbackErr) {
			logger.Error("rollback incomplete; backups kept", "backups", plan.backupDir, "error", err)
			return report, err
		}
		inst.cleanupBackups(plan, logger)
		return report, err
	}
	report.Applied = plan.Steps
	inst.cleanupBackups(plan, logger)
	if plan.Op == OpInstall {
		report.Handle = inst.observe(ctx, plan, logger)
	}
	logger.Info("plan executed", "steps", len(plan.Steps), "filesystem_steps", plan.FilesystemSteps())
	return report, nil
}

// ExecuteBestEffort runs every step of plan exactly once and never rolls back.
func (inst *Installer) ExecuteBestEffort(ctx context.Context, plan *Plan) (Report, error) {
	if err := inst.consume(plan); err != nil {
		return Report{}, err
	}
	logger := inst.logger.With("plan", plan.ID, "op", plan.Op, "service", plan.Name, "mode", "best-effort")
	outcomes, err := NewExecutor(inst.applier(plan, logger), logger).BestEffort(ctx, plan.Steps)
	report := plan.report()
	report.Outcomes = outcomes
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			report.Applied = append(report.Applied, outcome.Step)
		}
	}
	if err != nil {
		logger.Warn("best-effort run had failures; backups kept", "backups", plan.backupDir, "failed", len(outcomes)-len(report.Applied))
		return report, err
	}
	inst.cleanupBackups(plan, logger)
	return report, nil
}

func (inst *Installer) newPlan(op Operation, name string, be backend.Backend) *Plan {
	id := uuid.NewString()
	return &Plan{
		ID:        id,
		Op:        op,
		Name:      name,
		Backend:   be.Name(),
		Scope:     be.Scope(),
		be:        be,
		backupDir: filepath.Join(inst.backupRoot, "service-install-"+id),
	}
}

func (inst *Installer) consume(plan *Plan) error {
	if plan.consumed {
		return newError(KindSpec, ErrPlanConsumed, errors.New(messages.InstallPlanConsumed))
	}
	plan.consumed = true
	return nil
}

func (inst *Installer) applier(plan *Plan, logger *slog.Logger) *stepApplier {
	return &stepApplier{
		sys:       inst.sys,
		be:        plan.be,
		procs:     inst.procs,
		backupDir: plan.backupDir,
		logger:    logger,
	}
}

func (inst *Installer) cleanupBackups(plan *Plan, logger *slog.Logger) {
	if err := inst.sys.RemoveAll(plan.backupDir); err != nil {
		logger.Warn(fmt.Sprintf(messages.InstallCleanupBackupDirFmt, plan.backupDir, err))
	}
}

// observe re-reads the registration after an install so the report carries
// the state the backend reports, not the state the plan intended.
func (inst *Installer) observe(ctx context.Context, plan *Plan, logger *slog.Logger) *backend.Handle {
	existing, err := plan.be.FindExisting(ctx, plan.Name, plan.Target)
	if err != nil || existing == nil {
		logger.Warn("could not observe installed service", "error", err)
		return nil
	}
	return &existing.Handle
}

// isSelf reports whether target resolves to the running executable.
func (inst *Installer) isSelf(target string, exists bool) (bool, error) {
	if !exists {
		return false, nil
	}
	exe, err := inst.sys.Executable()
	if err != nil {
		return false, specError(nil, messages.InstallResolveExecutableFmt, err)
	}
	self, err := inst.sys.EvalSymlinks(exe)
	if err != nil {
		return false, specError(nil, messages.InstallResolveExecutableFmt, err)
	}
	resolved, err := inst.sys.EvalSymlinks(target)
	if err != nil {
		return false, newError(KindLocation, nil, fmt.Errorf(messages.InstallFailedStatFmt, target, err))
	}
	return resolved == self, nil
}

// confirmStops asks the prompter about each running process when overwrite
// is off. Declined processes are left out; the plan builder then fails.
func (inst *Installer) confirmStops(spec Spec, c Conflict) ([]int, error) {
	if c.Kind != ConflictRunningProcess || spec.Overwrite || inst.prompter == nil {
		return nil, nil
	}
	var confirmed []int
	for _, p := range c.Processes {
		ok, err := inst.prompter.ConfirmStopProcess(p)
		if err != nil {
			return nil, newError(KindConflict, ErrProcessRunning, fmt.Errorf(messages.InstallPromptFailedFmt, p.PID, err))
		}
		if !ok {
			inst.logger.Info(messages.InstallStopProcessNotConfirmed, "pid", p.PID)
			break
		}
		confirmed = append(confirmed, p.PID)
	}
	return confirmed, nil
}

func (p *Plan) report() Report {
	return Report{
		PlanID:  p.ID,
		Op:      p.Op,
		Name:    p.Name,
		Backend: p.Backend,
		Target:  p.Target,
	}
}
