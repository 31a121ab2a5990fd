package install

import (
	"os"
	"regexp"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/schedule"
)

const (
	// DefaultMode is the permission set given to installed executables.
	DefaultMode os.FileMode = 0o755
	// ReadOnlyMode clears every write bit and keeps execute.
	ReadOnlyMode os.FileMode = 0o555
	// writeMode is what write-executable leaves behind before set-mode runs.
	writeMode os.FileMode = 0o700
)

var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9:_.@-]+$`)

// Spec describes one service to install.
type Spec struct {
	// Name is the service name; it also names the installed executable.
	Name        string
	Description string
	// Source is the executable to install; empty means the running executable.
	Source string
	// TargetDir overrides the install location probe.
	TargetDir   string
	RunAs       string
	Schedule    schedule.Schedule
	Overwrite   bool
	ReadOnly    bool
	Environment map[string]string
	Args        []string
	WorkingDir  string
	// Scope is the elevation intent: system-wide or per-user.
	Scope backend.Scope
	// Backend forces "systemd" or "cron"; empty picks automatically.
	Backend string
}

// RemoveSpec identifies an installed service to remove.
type RemoveSpec struct {
	Name    string
	RunAs   string
	Scope   backend.Scope
	Backend string
}

func (s Spec) mode() os.FileMode {
	if s.ReadOnly {
		return ReadOnlyMode
	}
	return DefaultMode
}

func (s Spec) scope() backend.Scope {
	if s.Scope == "" {
		return backend.ScopeUser
	}
	return s.Scope
}

func (s RemoveSpec) scope() backend.Scope {
	if s.Scope == "" {
		return backend.ScopeUser
	}
	return s.Scope
}
