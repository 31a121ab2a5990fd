package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/config"
	"github.com/conn-castle/service-install/internal/envfile"
	"github.com/conn-castle/service-install/internal/install"
	"github.com/conn-castle/service-install/internal/messages"
	"github.com/conn-castle/service-install/internal/schedule"
)

// specFlags are the install spec flags shared by install and plan.
type specFlags struct {
	file        string
	source      string
	targetDir   string
	runAs       string
	schedule    string
	overwrite   bool
	readOnly    bool
	env         []string
	envFile     string
	args        []string
	workingDir  string
	description string
	system      bool
	backend     string
}

func (f *specFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.file, "file", "f", "", messages.FlagFile)
	flags.StringVar(&f.source, "source", "", messages.FlagSource)
	flags.StringVar(&f.targetDir, "target-dir", "", messages.FlagTargetDir)
	flags.StringVar(&f.runAs, "run-as", "", messages.FlagRunAs)
	flags.StringVar(&f.schedule, "schedule", "", messages.FlagSchedule)
	flags.BoolVar(&f.overwrite, "overwrite", false, messages.FlagOverwrite)
	flags.BoolVar(&f.readOnly, "read-only", false, messages.FlagReadOnly)
	flags.StringArrayVarP(&f.env, "env", "e", nil, messages.FlagEnv)
	flags.StringVar(&f.envFile, "env-file", "", messages.FlagEnvFile)
	flags.StringArrayVar(&f.args, "arg", nil, messages.FlagArg)
	flags.StringVar(&f.workingDir, "working-dir", "", messages.FlagWorkingDir)
	flags.StringVar(&f.description, "description", "", messages.FlagDescription)
	flags.BoolVar(&f.system, "system", false, messages.FlagSystem)
	flags.StringVar(&f.backend, "backend", "", messages.FlagBackend)
}

// build assembles the install spec: the spec file first, then every flag the
// user set explicitly, then the positional name.
func (f *specFlags) build(cmd *cobra.Command, args []string) (install.Spec, []string, error) {
	var spec install.Spec
	var warnings []string
	if f.file != "" {
		file, err := config.Load(f.file)
		if err != nil {
			return install.Spec{}, nil, err
		}
		spec, err = file.Spec()
		if err != nil {
			return install.Spec{}, nil, err
		}
		warnings = file.Warnings()
	}

	changed := cmd.Flags().Changed
	if changed("source") {
		spec.Source = f.source
	}
	if changed("target-dir") {
		spec.TargetDir = f.targetDir
	}
	if changed("run-as") {
		spec.RunAs = f.runAs
	}
	if changed("schedule") {
		s, err := schedule.Parse(f.schedule)
		if err != nil {
			return install.Spec{}, nil, err
		}
		spec.Schedule = s
	}
	if changed("overwrite") {
		spec.Overwrite = f.overwrite
	}
	if changed("read-only") {
		spec.ReadOnly = f.readOnly
	}
	if changed("arg") {
		spec.Args = append([]string(nil), f.args...)
	}
	if changed("working-dir") {
		spec.WorkingDir = f.workingDir
	}
	if changed("description") {
		spec.Description = f.description
	}
	if changed("system") {
		spec.Scope = scopeOf(f.system)
	}
	if changed("backend") {
		spec.Backend = f.backend
	}
	if err := f.mergeEnv(&spec); err != nil {
		return install.Spec{}, nil, err
	}

	if len(args) > 0 {
		if spec.Name != "" && spec.Name != args[0] {
			return install.Spec{}, nil, fmt.Errorf(messages.CLINameMismatchFmt, args[0], spec.Name)
		}
		spec.Name = args[0]
	}
	if spec.Name == "" {
		return install.Spec{}, nil, errors.New(messages.CLINameRequired)
	}
	return spec, warnings, nil
}

// mergeEnv layers --env-file and then --env over the spec file environment.
func (f *specFlags) mergeEnv(spec *install.Spec) error {
	if f.envFile == "" && len(f.env) == 0 {
		return nil
	}
	env := make(map[string]string, len(spec.Environment))
	for k, v := range spec.Environment {
		env[k] = v
	}
	if f.envFile != "" {
		loaded, err := envfile.Load(f.envFile)
		if err != nil {
			return err
		}
		for k, v := range loaded {
			env[k] = v
		}
	}
	for _, pair := range f.env {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf(messages.CLIInvalidEnvFmt, pair)
		}
		if !envfile.ValidKey(k) {
			return fmt.Errorf(messages.CLIInvalidEnvKeyFmt, k)
		}
		env[k] = v
	}
	spec.Environment = env
	return nil
}

func scopeOf(system bool) backend.Scope {
	if system {
		return backend.ScopeSystem
	}
	return backend.ScopeUser
}
