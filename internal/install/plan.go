package install

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/messages"
)

// Operation names what a Plan does.
type Operation string

const (
	OpInstall Operation = "install"
	OpRemove  Operation = "remove"
)

// Plan is the ordered list of steps for one install or remove attempt. A Plan
// is bound to the backend chosen during validation and executes at most once.
type Plan struct {
	ID       string
	Op       Operation
	Name     string
	Backend  string
	Scope    backend.Scope
	Target   string
	Conflict Conflict
	Steps    []Step
	// Previews shows how the registration artifacts change.
	Previews []DiffPreview

	registration backend.Registration
	be           backend.Backend
	backupDir    string
	consumed     bool
}

// Empty reports whether executing the plan would change nothing.
func (p *Plan) Empty() bool {
	return len(p.Steps) == 0
}

// Consumed reports whether the plan has been executed.
func (p *Plan) Consumed() bool {
	return p.consumed
}

// FilesystemSteps counts the steps that change files at the install location.
func (p *Plan) FilesystemSteps() int {
	n := 0
	for _, step := range p.Steps {
		if step.mutatesFilesystem() {
			n++
		}
	}
	return n
}

// Describe renders every step in tense t.
func (p *Plan) Describe(t Tense) []string {
	lines := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		lines = append(lines, step.Describe(t))
	}
	return lines
}

// planInput is everything the install plan builder reads. It is resolved
// before building so building itself never touches the system.
type planInput struct {
	v         validated
	conflict  Conflict
	self      bool
	euid      int
	egid      int
	backupDir string
	// confirmed lists the running processes the prompter allowed to stop.
	confirmed []int
}

// buildInstallPlan turns a validated spec and its conflict into steps:
// conflict resolution first, then the filesystem, register, enable and start.
func buildInstallPlan(in planInput) ([]Step, error) {
	v, c := in.v, in.conflict
	var steps []Step

	// Resolve the conflict.
	reinstall := false
	var replaced *backend.Registration
	if existing := c.Existing; existing != nil {
		h := existing.Handle
		if !h.CreatedByUs {
			if !v.spec.Overwrite {
				return nil, newError(KindConflict, ErrServiceConflict,
					fmt.Errorf(messages.InstallServiceConflictFmt, v.spec.Name, h))
			}
			steps = append(steps, stopAndDisable(h)...)
			if v.registration.Overlaps(existing.Registration) {
				prior := existing.Registration
				replaced = &prior
			}
		} else {
			if upToDate(v, c) {
				if !h.State.Running {
					return []Step{{Kind: StepStart, Handle: v.registration.Handle()}}, nil
				}
				return nil, nil
			}
			steps = append(steps, stopAndDisable(h)...)
			steps = append(steps, Step{Kind: StepUnregister, Registration: existing.Registration})
			reinstall = true
		}
	}

	allowReplace := v.spec.Overwrite || c.CreatedByUs()
	if c.Kind == ConflictRunningProcess {
		for _, p := range c.Processes {
			if !v.spec.Overwrite && !slices.Contains(in.confirmed, p.PID) {
				return nil, newError(KindConflict, ErrProcessRunning,
					fmt.Errorf(messages.InstallProcessRunningFmt, p.PID, v.target))
			}
			steps = append(steps, Step{Kind: StepStopProcess, PID: p.PID, Path: v.target})
		}
		allowReplace = true
	}

	// Filesystem.
	if v.location.create {
		steps = append(steps, Step{Kind: StepCreateDir, Path: v.location.dir, Mode: DefaultMode})
	}
	written := false
	switch {
	case in.self:
		// The target is the running executable; it is never rewritten.
	case !c.File.Exists:
		steps = append(steps, Step{Kind: StepWriteExecutable, Path: v.target, Source: v.source, Mode: writeMode})
		written = true
	case !c.File.Identical:
		if !allowReplace {
			return nil, newError(KindLocation, ErrLocationOccupied,
				fmt.Errorf(messages.InstallLocationOccupiedFmt, v.target))
		}
		backup := Step{
			Kind:       StepBackupFile,
			Path:       v.target,
			BackupPath: filepath.Join(in.backupDir, filepath.Base(v.target)),
			PrevMode:   c.File.Mode,
			PrevUID:    c.File.UID,
			PrevGID:    c.File.GID,
		}
		write := backup
		write.Kind = StepWriteExecutable
		write.Source = v.source
		write.Mode = writeMode
		write.Existed = true
		steps = append(steps, backup, write)
		written = true
	}

	prevMode, prevUID, prevGID := c.File.Mode, c.File.UID, c.File.GID
	if written {
		prevMode, prevUID, prevGID = writeMode, in.euid, in.egid
	}
	if written || prevMode != v.mode {
		steps = append(steps, Step{Kind: StepSetMode, Path: v.target, Mode: v.mode, PrevMode: prevMode})
	}
	if written || prevUID != v.uid || prevGID != v.gid {
		steps = append(steps, Step{
			Kind:    StepSetOwner,
			Path:    v.target,
			UID:     v.uid,
			GID:     v.gid,
			PrevUID: prevUID,
			PrevGID: prevGID,
		})
	}

	// Registration and lifecycle.
	handle := v.registration.Handle()
	steps = append(steps, Step{Kind: StepRegister, Registration: v.registration, Replaced: replaced})
	if v.registration.Enableable {
		steps = append(steps, Step{Kind: StepEnable, Handle: handle})
	}
	if reinstall {
		// The prior instance was stopped above, so the restart undoes to stop.
		steps = append(steps, Step{Kind: StepRestart, Handle: handle})
	} else {
		steps = append(steps, Step{Kind: StepStart, Handle: handle})
	}
	return steps, nil
}

// upToDate reports whether our registration already matches what the install asks for.
func upToDate(v validated, c Conflict) bool {
	existing := c.Existing
	if existing == nil || !existing.Handle.CreatedByUs {
		return false
	}
	if !c.File.Exists || !c.File.Identical || c.File.Mode != v.mode {
		return false
	}
	if c.File.UID != v.uid || c.File.GID != v.gid {
		return false
	}
	if !existing.Registration.SameArtifacts(v.registration) {
		return false
	}
	return existing.Handle.State.Enabled || !v.registration.Enableable
}

func stopAndDisable(h backend.Handle) []Step {
	var steps []Step
	if h.State.Running {
		steps = append(steps, Step{Kind: StepStop, Handle: h})
	}
	if h.State.Enabled {
		steps = append(steps, Step{Kind: StepDisable, Handle: h})
	}
	return steps
}

// removeInput is everything the remove plan builder reads.
type removeInput struct {
	name      string
	where     string
	existing  *backend.Existing
	file      FileFacts
	self      bool
	backupDir string
}

// buildRemovePlan stops, disables and unregisters our registration, then
// removes its executable behind a backup.
func buildRemovePlan(in removeInput) ([]Step, error) {
	if in.existing == nil {
		return nil, newError(KindConflict, ErrNoInstallFound, fmt.Errorf(messages.InstallNoInstallFoundFmt, in.name, in.where))
	}
	h := in.existing.Handle
	if !h.CreatedByUs {
		return nil, newError(KindConflict, ErrServiceConflict, fmt.Errorf(messages.InstallForeignRemoveFmt, in.name))
	}
	steps := stopAndDisable(h)
	steps = append(steps, Step{Kind: StepUnregister, Registration: in.existing.Registration})

	target := in.existing.Registration.ExecPath
	if in.file.Exists && !in.self {
		backupPath := filepath.Join(in.backupDir, filepath.Base(target))
		backup := Step{
			Kind:       StepBackupFile,
			Path:       target,
			BackupPath: backupPath,
			PrevMode:   in.file.Mode,
			PrevUID:    in.file.UID,
			PrevGID:    in.file.GID,
		}
		remove := backup
		remove.Kind = StepRemoveFile
		steps = append(steps, backup, remove)
	}
	return steps, nil
}

// Registration returns the registration the plan installs or removes.
func (p *Plan) Registration() backend.Registration {
	return p.registration
}
