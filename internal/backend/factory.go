package backend

import "github.com/conn-castle/service-install/internal/procs"

// DefaultFactory builds backends that talk to the real system.
type DefaultFactory struct {
	Procs procs.Table
}

// Systemd returns a systemd backend for scope.
func (f DefaultFactory) Systemd(scope Scope) Backend {
	return NewSystemd(scope, SystemdOptions{})
}

// Cron returns a cron backend editing user's crontab. An empty user means
// the invoking user.
func (f DefaultFactory) Cron(scope Scope, user string) Backend {
	return NewCron(scope, CronOptions{User: user, Procs: f.Procs})
}
