package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/messages"
	"github.com/conn-castle/service-install/internal/procs"
)

const (
	backupDirMode  os.FileMode = 0o700
	backupFileMode os.FileMode = 0o600
)

// stepApplier performs steps against the system and the plan's backend.
type stepApplier struct {
	sys       System
	be        backend.Backend
	procs     procs.Table
	backupDir string
	logger    *slog.Logger

	backupReady bool
}

// Apply performs s. Backend failures are classified KindBackend and
// filesystem failures KindLocation.
func (a *stepApplier) Apply(ctx context.Context, s Step) error {
	switch s.Kind {
	case StepCreateDir:
		if err := a.sys.Mkdir(s.Path, s.Mode); err != nil {
			return fsError(messages.InstallCreateDirFmt, s.Path, err)
		}
	case StepRemoveDir:
		if err := a.sys.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fsError(messages.InstallRemoveDirFmt, s.Path, err)
		}
	case StepStopProcess:
		if err := a.procs.Terminate(ctx, s.PID); err != nil {
			return newError(KindConflict, nil, fmt.Errorf(messages.InstallStopProcessFmt, s.PID, err))
		}
	case StepStop:
		return a.backendError(s, a.be.Stop(ctx, s.Handle))
	case StepStart:
		return a.backendError(s, a.be.Start(ctx, s.Handle))
	case StepRestart:
		return a.backendError(s, a.be.Restart(ctx, s.Handle))
	case StepDisable:
		return a.backendError(s, a.be.Disable(ctx, s.Handle))
	case StepEnable:
		return a.backendError(s, a.be.Enable(ctx, s.Handle))
	case StepRegister:
		return a.backendError(s, a.be.Register(ctx, s.Registration, s.Replaced))
	case StepUnregister:
		return a.backendError(s, a.be.Unregister(ctx, s.Registration))
	case StepBackupFile:
		if err := a.ensureBackupDir(); err != nil {
			return newError(KindLocation, nil, err)
		}
		if err := a.sys.CopyFileAtomic(s.Path, s.BackupPath, backupFileMode); err != nil {
			return fsError(messages.InstallBackupFmt, s.Path, err)
		}
	case StepRestoreBackup:
		if err := a.restore(s); err != nil {
			return fsError(messages.InstallRestoreBackupFmt, s.Path, err)
		}
	case StepWriteExecutable:
		if err := a.sys.CopyFileAtomic(s.Source, s.Path, s.Mode); err != nil {
			return fsError(messages.InstallWriteExecutableFmt, s.Path, err)
		}
	case StepRemoveFile:
		if err := a.sys.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fsError(messages.InstallRemoveFileFmt, s.Path, err)
		}
	case StepSetMode:
		if err := a.sys.Chmod(s.Path, s.Mode); err != nil {
			return fsError(messages.InstallSetModeFmt, s.Path, s.Mode, err)
		}
	case StepSetOwner:
		if err := a.sys.Chown(s.Path, s.UID, s.GID); err != nil {
			return fsError(messages.InstallSetOwnerFmt, s.Path, s.UID, s.GID, err)
		}
	case StepNoop:
		if s.PID != 0 {
			a.logger.Warn("stopped process is not restarted", "pid", s.PID, "path", s.Path)
		}
	default:
		return fmt.Errorf(messages.InstallUnknownStepKindFmt, s.Kind)
	}
	return nil
}

// restore copies the backup over the path and puts back its mode, and its
// owner when running as root.
func (a *stepApplier) restore(s Step) error {
	if err := a.sys.CopyFileAtomic(s.BackupPath, s.Path, s.Mode); err != nil {
		return err
	}
	if err := a.sys.Chmod(s.Path, s.Mode); err != nil {
		return err
	}
	if a.sys.Geteuid() != 0 {
		return nil
	}
	return a.sys.Chown(s.Path, s.UID, s.GID)
}

func (a *stepApplier) ensureBackupDir() error {
	if a.backupReady {
		return nil
	}
	if err := a.sys.MkdirAll(a.backupDir, backupDirMode); err != nil {
		return fmt.Errorf(messages.InstallCreateBackupDirFmt, err)
	}
	a.backupReady = true
	return nil
}

func (a *stepApplier) backendError(s Step, err error) error {
	if err == nil {
		return nil
	}
	return newError(KindBackend, nil, fmt.Errorf(messages.InstallBackendStepFmt, s.Kind, a.be.Name(), err))
}

func fsError(format string, args ...any) error {
	return newError(KindLocation, nil, fmt.Errorf(format, args...))
}
