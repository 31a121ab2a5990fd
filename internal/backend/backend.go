// Package backend registers services with the OS scheduling mechanisms this
// tool supports: systemd (over D-Bus) and cron (by editing the crontab file).
//
// Both implement Backend, a small capability surface the install engine drives
// one call at a time. Every artifact a backend writes carries a marker comment
// so a later scan can tell registrations created by this tool from foreign ones
// without any side registry.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/conn-castle/service-install/internal/envfile"
	"github.com/conn-castle/service-install/internal/messages"
	"github.com/conn-castle/service-install/internal/schedule"
)

// ErrUnavailable reports that a backend cannot be reached at the requested scope.
var ErrUnavailable = errors.New("backend unavailable")

// Backend names.
const (
	NameSystemd = "systemd"
	NameCron    = "cron"
)

// Scope selects system-wide or per-user registration.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeSystem Scope = "system"
)

// Descriptor is everything a backend needs to register a service.
type Descriptor struct {
	Name        string
	Description string
	ExecPath    string
	Args        []string
	Environment map[string]string
	WorkingDir  string
	RunAs       string
	Schedule    schedule.Schedule
	Scope       Scope
}

func (d Descriptor) description() string {
	if strings.TrimSpace(d.Description) != "" {
		return d.Description
	}
	return "starts " + d.Name
}

// Artifact is one file (or crontab block) a registration consists of.
type Artifact struct {
	Path    string
	Content string
}

// Registration is the rendered, backend-native form of a Descriptor.
type Registration struct {
	Backend  string
	Name     string
	Primary  string
	ExecPath string
	// Enableable is false when the primary unit has nothing to enable, e.g. a
	// systemd service without an [Install] section.
	Enableable bool
	Artifacts  []Artifact
}

// Handle returns the identity used for lifecycle calls on this registration.
func (r Registration) Handle() Handle {
	return Handle{
		Backend:     r.Backend,
		Name:        r.Name,
		Primary:     r.Primary,
		ExecPath:    r.ExecPath,
		CreatedByUs: true,
	}
}

// SameArtifacts reports whether both registrations would leave identical
// files behind.
func (r Registration) SameArtifacts(other Registration) bool {
	if len(r.Artifacts) != len(other.Artifacts) {
		return false
	}
	for i := range r.Artifacts {
		if r.Artifacts[i] != other.Artifacts[i] {
			return false
		}
	}
	return true
}

// Overlaps reports whether registering r would clobber other: for systemd a
// shared unit file, for cron an entry of the same name.
func (r Registration) Overlaps(other Registration) bool {
	if r.Backend != other.Backend {
		return false
	}
	if r.Backend == NameCron {
		return r.Name == other.Name
	}
	for _, a := range r.Artifacts {
		for _, b := range other.Artifacts {
			if a.Path == b.Path {
				return true
			}
		}
	}
	return false
}

// State is the observed run state of a registration.
type State struct {
	Enabled bool
	Running bool
}

// String renders the state as e.g. "enabled+running".
func (s State) String() string {
	enabled := "disabled"
	if s.Enabled {
		enabled = "enabled"
	}
	running := "stopped"
	if s.Running {
		running = "running"
	}
	return enabled + "+" + running
}

// Handle identifies a registered service: a unit name for systemd, a crontab
// marker for cron.
type Handle struct {
	Backend     string
	Name        string
	Primary     string
	ExecPath    string
	CreatedByUs bool
	State       State
}

// String renders the handle for logs and step descriptions.
func (h Handle) String() string {
	return fmt.Sprintf("%s %s", h.Backend, h.Primary)
}

// Existing is a registration found on the system, with its artifacts as they
// currently are on disk so they can be restored later.
type Existing struct {
	Handle       Handle
	Registration Registration
}

// Backend is the capability surface shared by systemd and cron.
type Backend interface {
	Name() string
	Scope() Scope
	// Available returns an error wrapping ErrUnavailable when the mechanism
	// cannot be reached at this backend's scope.
	Available(ctx context.Context) error
	Render(d Descriptor) (Registration, error)
	// Register writes reg. When replaced is non-nil its artifacts are removed
	// first, so registering can swap one registration for another.
	Register(ctx context.Context, reg Registration, replaced *Registration) error
	Unregister(ctx context.Context, reg Registration) error
	Enable(ctx context.Context, h Handle) error
	Disable(ctx context.Context, h Handle) error
	Start(ctx context.Context, h Handle) error
	Stop(ctx context.Context, h Handle) error
	Restart(ctx context.Context, h Handle) error
	// FindExisting looks for a registration by service name, then by the exec
	// path it runs. It returns nil when none exists.
	FindExisting(ctx context.Context, name string, execPath string) (*Existing, error)
}

// Factory builds backends for a resolved scope and crontab owner.
type Factory interface {
	Systemd(scope Scope) Backend
	Cron(scope Scope, user string) Backend
}

func validateDescriptor(d Descriptor) error {
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.ExecPath) == "" {
		return errors.New(messages.BackendInvalidDescriptor)
	}
	values := append([]string{d.Name, d.Description, d.ExecPath, d.WorkingDir, d.RunAs}, d.Args...)
	for key, value := range d.Environment {
		if !envfile.ValidKey(key) {
			return fmt.Errorf(messages.BackendInvalidEnvKeyFmt, key)
		}
		values = append(values, value)
	}
	for _, value := range values {
		if strings.ContainsAny(value, "\n\r\x00") {
			return fmt.Errorf(messages.BackendControlCharFmt, value)
		}
	}
	return nil
}
