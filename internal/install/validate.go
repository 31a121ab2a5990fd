package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/envfile"
	"github.com/conn-castle/service-install/internal/messages"
	"github.com/conn-castle/service-install/internal/schedule"
)

// validated is a Spec after normalization: the source is resolved, a location
// and backend are chosen and the registration is rendered.
type validated struct {
	spec         Spec
	scope        backend.Scope
	source       string
	location     location
	target       string
	mode         os.FileMode
	uid          int
	gid          int
	backend      backend.Backend
	registration backend.Registration
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return specError(ErrMissingServiceName, messages.InstallMissingServiceName)
	}
	if !serviceNamePattern.MatchString(name) {
		return specError(ErrInvalidServiceName, messages.InstallInvalidServiceNameFmt, name)
	}
	return nil
}

// validateValues rejects values that cannot be written into a unit file or a
// crontab line without changing its structure.
func validateValues(spec Spec) error {
	check := func(field, value string) error {
		if strings.ContainsAny(value, "\n\r\x00") {
			return specError(ErrInvalidSpecValue, messages.InstallControlCharFmt, field, value)
		}
		return nil
	}
	if err := check("description", spec.Description); err != nil {
		return err
	}
	if err := check("working directory", spec.WorkingDir); err != nil {
		return err
	}
	if err := check("run-as user", spec.RunAs); err != nil {
		return err
	}
	for _, arg := range spec.Args {
		if err := check("argument", arg); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(spec.Environment))
	for key := range spec.Environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !envfile.ValidKey(key) {
			return specError(ErrInvalidSpecValue, messages.InstallInvalidEnvKeyFmt, key)
		}
		if err := check("environment value for "+key, spec.Environment[key]); err != nil {
			return err
		}
	}
	return nil
}

// validate checks spec and resolves everything the plan builder needs. It
// never mutates anything.
func (inst *Installer) validate(ctx context.Context, spec Spec) (validated, error) {
	if err := validateName(spec.Name); err != nil {
		return validated{}, err
	}
	if err := validateValues(spec); err != nil {
		return validated{}, err
	}
	if err := spec.Schedule.Validate(); err != nil {
		return validated{}, newError(KindSpec, ErrScheduleUnsupported, err)
	}
	source, err := inst.resolveSource(spec.Source)
	if err != nil {
		return validated{}, err
	}
	scope := spec.scope()
	if err := inst.checkElevation(scope, spec.RunAs); err != nil {
		return validated{}, err
	}
	loc, err := inst.resolveLocation(spec.TargetDir, scope)
	if err != nil {
		return validated{}, err
	}
	be, err := inst.selectBackend(ctx, spec.Backend, scope, spec.RunAs)
	if err != nil {
		return validated{}, err
	}

	target := filepath.Join(loc.dir, spec.Name)
	reg, err := be.Render(backend.Descriptor{
		Name:        spec.Name,
		Description: spec.Description,
		ExecPath:    target,
		Args:        spec.Args,
		Environment: spec.Environment,
		WorkingDir:  spec.WorkingDir,
		RunAs:       spec.RunAs,
		Schedule:    spec.Schedule,
		Scope:       scope,
	})
	if err != nil {
		if errors.Is(err, schedule.ErrNotExpressible) {
			return validated{}, newError(KindSpec, ErrScheduleUnsupported, err)
		}
		return validated{}, newError(KindSpec, nil, err)
	}

	uid, gid := 0, 0
	if scope == backend.ScopeUser {
		uid, gid = inst.sys.Geteuid(), inst.sys.Getegid()
	}
	return validated{
		spec:         spec,
		scope:        scope,
		source:       source,
		location:     loc,
		target:       target,
		mode:         spec.mode(),
		uid:          uid,
		gid:          gid,
		backend:      be,
		registration: reg,
	}, nil
}

// resolveSource returns the absolute, symlink-free path of the executable to
// install. An empty source means the running executable.
func (inst *Installer) resolveSource(source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		exe, err := inst.sys.Executable()
		if err != nil {
			return "", specError(ErrSourceNotFile, messages.InstallResolveExecutableFmt, err)
		}
		source = exe
	}
	resolved, err := inst.sys.EvalSymlinks(source)
	if err != nil {
		return "", specError(ErrSourceNotFile, messages.InstallFailedStatFmt, source, err)
	}
	info, err := inst.sys.Stat(resolved)
	if err != nil {
		return "", specError(ErrSourceNotFile, messages.InstallFailedStatFmt, resolved, err)
	}
	if !info.Mode().IsRegular() {
		return "", specError(ErrSourceNotFile, messages.InstallSourceNotFileFmt, resolved)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", specError(ErrSourceNotFile, messages.InstallFailedStatFmt, resolved, err)
	}
	return abs, nil
}

// checkElevation reports NeedsElevation when the install needs root and the
// process is not running as root. It never escalates itself.
func (inst *Installer) checkElevation(scope backend.Scope, runAs string) error {
	root := inst.sys.Geteuid() == 0
	if runAs != "" {
		u, err := inst.sys.LookupUser(runAs)
		if err != nil {
			return specError(ErrUnknownUser, messages.InstallUnknownUserFmt, runAs, err)
		}
		if !root && u.Uid != strconv.Itoa(inst.sys.Geteuid()) {
			return specError(ErrNeedsElevation, messages.InstallNeedsRootForRunAsFmt, runAs)
		}
	}
	if scope == backend.ScopeSystem && !root {
		return specError(ErrNeedsElevation, "%s", messages.InstallNeedsRootForSystem)
	}
	return nil
}

// selectBackend returns the requested backend when it is reachable, or the
// first reachable of systemd and cron.
func (inst *Installer) selectBackend(ctx context.Context, name string, scope backend.Scope, runAs string) (backend.Backend, error) {
	available, err := inst.availableBackends(ctx, name, scope, runAs)
	if err != nil {
		return nil, err
	}
	return available[0], nil
}

// availableBackends returns every reachable backend matching the request, in
// preference order. It fails when none is reachable.
func (inst *Installer) availableBackends(ctx context.Context, name string, scope backend.Scope, runAs string) ([]backend.Backend, error) {
	cronUser := ""
	if scope == backend.ScopeSystem {
		cronUser = runAs
	}
	var candidates []backend.Backend
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		candidates = []backend.Backend{inst.backends.Systemd(scope), inst.backends.Cron(scope, cronUser)}
	case backend.NameSystemd:
		candidates = []backend.Backend{inst.backends.Systemd(scope)}
	case backend.NameCron:
		candidates = []backend.Backend{inst.backends.Cron(scope, cronUser)}
	default:
		return nil, specError(nil, messages.InstallUnknownBackendFmt, name)
	}

	var available []backend.Backend
	var errs []error
	for _, candidate := range candidates {
		err := candidate.Available(ctx)
		if err == nil {
			available = append(available, candidate)
			continue
		}
		inst.logger.Debug("backend unavailable", "backend", candidate.Name(), "scope", scope, "reason", err)
		errs = append(errs, err)
	}
	switch {
	case len(available) > 0:
		return available, nil
	case len(candidates) == 1:
		return nil, newError(KindBackend, ErrBackendUnavailable, errs[0])
	default:
		return nil, newError(KindBackend, ErrBackendUnavailable,
			fmt.Errorf(messages.InstallNoBackendAvailableFmt+": %w", scope, errors.Join(errs...)))
	}
}
