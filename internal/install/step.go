package install

import (
	"fmt"
	"os"

	"github.com/conn-castle/service-install/internal/backend"
)

// StepKind tags what a Step does.
type StepKind string

// Step kinds.
const (
	StepCreateDir       StepKind = "create-dir"
	StepRemoveDir       StepKind = "remove-dir"
	StepStopProcess     StepKind = "stop-process"
	StepStop            StepKind = "stop"
	StepStart           StepKind = "start"
	StepRestart         StepKind = "restart"
	StepDisable         StepKind = "disable"
	StepEnable          StepKind = "enable"
	StepRegister        StepKind = "register"
	StepUnregister      StepKind = "unregister"
	StepBackupFile      StepKind = "backup-file"
	StepRestoreBackup   StepKind = "restore-backup"
	StepWriteExecutable StepKind = "write-executable"
	StepRemoveFile      StepKind = "remove-file"
	StepSetMode         StepKind = "set-mode"
	StepSetOwner        StepKind = "set-owner"
	StepNoop            StepKind = "noop"
)

// Step is one action of a Plan together with the prior state needed to undo
// it. Inverse is a pure function of the value.
type Step struct {
	Kind StepKind

	// Path is the file or directory acted on.
	Path string
	// Source is the executable copied by write-executable.
	Source string
	// BackupPath holds the prior content of Path for backup/restore steps.
	BackupPath string
	// Existed records that write-executable replaces a file that was backed up.
	Existed bool

	Mode     os.FileMode
	PrevMode os.FileMode
	UID      int
	GID      int
	PrevUID  int
	PrevGID  int

	PID int

	Handle       backend.Handle
	Registration backend.Registration
	// Replaced is the registration a register step overwrites, if any.
	Replaced  *backend.Registration
	PrevState backend.State
}

// Inverse returns the step that undoes s.
func (s Step) Inverse() Step {
	switch s.Kind {
	case StepCreateDir:
		return Step{Kind: StepRemoveDir, Path: s.Path, Mode: s.Mode}
	case StepRemoveDir:
		return Step{Kind: StepCreateDir, Path: s.Path, Mode: s.Mode}
	case StepStop:
		return Step{Kind: StepStart, Handle: s.Handle}
	case StepStart:
		return Step{Kind: StepStop, Handle: s.Handle}
	case StepRestart:
		if s.PrevState.Running {
			return Step{Kind: StepRestart, Handle: s.Handle, PrevState: s.PrevState}
		}
		return Step{Kind: StepStop, Handle: s.Handle}
	case StepDisable:
		return Step{Kind: StepEnable, Handle: s.Handle}
	case StepEnable:
		return Step{Kind: StepDisable, Handle: s.Handle}
	case StepRegister:
		if s.Replaced != nil {
			current := s.Registration
			return Step{Kind: StepRegister, Registration: *s.Replaced, Replaced: &current}
		}
		return Step{Kind: StepUnregister, Registration: s.Registration}
	case StepUnregister:
		return Step{Kind: StepRegister, Registration: s.Registration}
	case StepBackupFile:
		return s.restore()
	case StepWriteExecutable:
		if s.Existed {
			return s.restore()
		}
		return Step{Kind: StepRemoveFile, Path: s.Path}
	case StepRemoveFile:
		if s.BackupPath == "" {
			return Step{Kind: StepNoop, Path: s.Path}
		}
		return s.restore()
	case StepSetMode:
		return Step{Kind: StepSetMode, Path: s.Path, Mode: s.PrevMode, PrevMode: s.Mode}
	case StepSetOwner:
		return Step{Kind: StepSetOwner, Path: s.Path, UID: s.PrevUID, GID: s.PrevGID, PrevUID: s.UID, PrevGID: s.GID}
	default:
		// stop-process, restore-backup and noop have nothing to undo.
		return Step{Kind: StepNoop, Path: s.Path, PID: s.PID}
	}
}

func (s Step) restore() Step {
	return Step{
		Kind:       StepRestoreBackup,
		Path:       s.Path,
		BackupPath: s.BackupPath,
		Mode:       s.PrevMode,
		UID:        s.PrevUID,
		GID:        s.PrevGID,
	}
}

// Tense selects the grammatical form of a step description.
type Tense int

const (
	// TenseFuture reads as an instruction: "write executable to /x".
	TenseFuture Tense = iota
	// TenseActive reads as progress: "writing executable to /x".
	TenseActive
	// TensePast reads as a report: "wrote executable to /x".
	TensePast
)

type verb struct{ future, active, past string }

func (v verb) in(t Tense) string {
	switch t {
	case TenseActive:
		return v.active
	case TensePast:
		return v.past
	default:
		return v.future
	}
}

var verbs = map[StepKind]verb{
	StepCreateDir:       {"create", "creating", "created"},
	StepRemoveDir:       {"remove", "removing", "removed"},
	StepStopProcess:     {"stop", "stopping", "stopped"},
	StepStop:            {"stop", "stopping", "stopped"},
	StepStart:           {"start", "starting", "started"},
	StepRestart:         {"restart", "restarting", "restarted"},
	StepDisable:         {"disable", "disabling", "disabled"},
	StepEnable:          {"enable", "enabling", "enabled"},
	StepRegister:        {"register", "registering", "registered"},
	StepUnregister:      {"unregister", "unregistering", "unregistered"},
	StepBackupFile:      {"back up", "backing up", "backed up"},
	StepRestoreBackup:   {"restore", "restoring", "restored"},
	StepWriteExecutable: {"write", "writing", "wrote"},
	StepRemoveFile:      {"remove", "removing", "removed"},
	StepSetMode:         {"set", "setting", "set"},
	StepSetOwner:        {"set", "setting", "set"},
	StepNoop:            {"skip", "skipping", "skipped"},
}

// Describe renders s for humans in the given tense.
func (s Step) Describe(t Tense) string {
	v, ok := verbs[s.Kind]
	if !ok {
		return string(s.Kind)
	}
	w := v.in(t)
	switch s.Kind {
	case StepCreateDir, StepRemoveDir:
		return fmt.Sprintf("%s directory %s", w, s.Path)
	case StepStopProcess:
		return fmt.Sprintf("%s process %d running %s", w, s.PID, s.Path)
	case StepStop, StepStart, StepRestart, StepDisable, StepEnable:
		return fmt.Sprintf("%s %s", w, s.Handle)
	case StepRegister:
		if s.Replaced != nil {
			return fmt.Sprintf("%s %s %s in place of %s", w, s.Registration.Backend, s.Registration.Primary, s.Replaced.Primary)
		}
		return fmt.Sprintf("%s %s %s", w, s.Registration.Backend, s.Registration.Primary)
	case StepUnregister:
		return fmt.Sprintf("%s %s %s", w, s.Registration.Backend, s.Registration.Primary)
	case StepBackupFile:
		return fmt.Sprintf("%s %s to %s", w, s.Path, s.BackupPath)
	case StepRestoreBackup:
		return fmt.Sprintf("%s %s from %s", w, s.Path, s.BackupPath)
	case StepWriteExecutable:
		return fmt.Sprintf("%s executable %s", w, s.Path)
	case StepRemoveFile:
		return fmt.Sprintf("%s %s", w, s.Path)
	case StepSetMode:
		return fmt.Sprintf("%s mode of %s to %04o", w, s.Path, s.Mode.Perm())
	case StepSetOwner:
		return fmt.Sprintf("%s owner of %s to %d:%d", w, s.Path, s.UID, s.GID)
	default:
		if s.PID != 0 {
			return fmt.Sprintf("%s undo of stopping process %d", w, s.PID)
		}
		return fmt.Sprintf("%s %s", w, s.Path)
	}
}

// mutatesFilesystem reports whether s changes files at the install location.
func (s Step) mutatesFilesystem() bool {
	switch s.Kind {
	case StepCreateDir, StepRemoveDir, StepWriteExecutable, StepRemoveFile,
		StepRestoreBackup, StepSetMode, StepSetOwner:
		return true
	}
	return false
}
