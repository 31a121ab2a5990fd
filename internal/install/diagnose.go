package install

import (
	"context"
	"errors"
	"fmt"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/messages"
)

// BackendProbe is the reachability of one service-management backend.
type BackendProbe struct {
	Name string
	// Err is nil when the backend is reachable.
	Err error
}

// LocationProbe is the usability of one candidate install directory.
type LocationProbe struct {
	Dir string
	// Create is set when Dir is missing but can be created.
	Create bool
	Err    error
}

// Diagnosis describes what an install in scope would run into, without
// preparing a plan.
type Diagnosis struct {
	Scope     backend.Scope
	RunAs     string
	Backends  []BackendProbe
	Locations []LocationProbe
	// Elevation is non-nil when the install would fail for lack of root.
	Elevation error
}

// Diagnose probes every backend and default install location for scope.
func (inst *Installer) Diagnose(ctx context.Context, scope backend.Scope, runAs string) (Diagnosis, error) {
	if err := ctx.Err(); err != nil {
		return Diagnosis{}, err
	}
	d := Diagnosis{Scope: scope, RunAs: runAs}

	cronUser := ""
	if scope == backend.ScopeSystem {
		cronUser = runAs
	}
	for _, b := range []backend.Backend{inst.backends.Systemd(scope), inst.backends.Cron(scope, cronUser)} {
		d.Backends = append(d.Backends, BackendProbe{Name: b.Name(), Err: b.Available(ctx)})
	}

	candidates := systemCandidates
	if scope == backend.ScopeUser {
		home, err := inst.sys.HomeDir()
		if err != nil {
			return Diagnosis{}, newError(KindLocation, ErrNoSuitableLocation, fmt.Errorf(messages.InstallNoHomeFmt, err))
		}
		candidates = userCandidates(home)
	}
	for _, dir := range candidates {
		loc, err := inst.probeDir(dir)
		d.Locations = append(d.Locations, LocationProbe{Dir: dir, Create: loc.create, Err: err})
	}

	d.Elevation = inst.checkElevation(scope, runAs)
	if d.Elevation != nil && !errors.Is(d.Elevation, ErrNeedsElevation) {
		return Diagnosis{}, d.Elevation
	}
	return d, nil
}
