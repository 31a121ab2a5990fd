// Package config loads install specs from TOML spec files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/envfile"
	"github.com/conn-castle/service-install/internal/install"
	"github.com/conn-castle/service-install/internal/messages"
	"github.com/conn-castle/service-install/internal/schedule"
)

// ErrConfigValidation wraps spec file validation failures, as opposed to
// TOML syntax or filesystem errors.
var ErrConfigValidation = errors.New("spec file validation failed")

// File is the on-disk form of an install spec.
type File struct {
	Name        string            `toml:"name"`
	Description string            `toml:"description"`
	Source      string            `toml:"source"`
	TargetDir   string            `toml:"target_dir"`
	RunAs       string            `toml:"run_as"`
	Schedule    schedule.Schedule `toml:"schedule"`
	Overwrite   bool              `toml:"overwrite"`
	ReadOnly    bool              `toml:"read_only"`
	Args        []string          `toml:"args"`
	WorkingDir  string            `toml:"working_dir"`
	Scope       string            `toml:"scope"`
	Backend     string            `toml:"backend"`
	EnvFile     string            `toml:"env_file"`
	Env         map[string]string `toml:"env"`

	// dir is the directory relative paths resolve against.
	dir string
}

// Load reads and validates the spec file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf(messages.ConfigMissingFileFmt, path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf(messages.ConfigMissingFileFmt, path, err)
	}
	return Parse(data, path, filepath.Dir(abs))
}

// Parse decodes and validates spec file data. source names the data in
// errors; dir anchors relative source, target_dir, working_dir and env_file.
func Parse(data []byte, source string, dir string) (*File, error) {
	var f File
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&f); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: "+messages.ConfigUnrecognizedKeysFmt, ErrConfigValidation, source, strict.String())
		}
		return nil, fmt.Errorf(messages.ConfigInvalidConfigFmt, source, err)
	}
	f.dir = dir
	if err := f.Validate(source); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}
	return &f, nil
}

// Validate checks fields the installer cannot check on its own.
func (f *File) Validate(source string) error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf(messages.ConfigNameRequiredFmt, source)
	}
	switch backend.Scope(f.Scope) {
	case "", backend.ScopeUser, backend.ScopeSystem:
	default:
		return fmt.Errorf(messages.ConfigScopeInvalidFmt, source, f.Scope)
	}
	switch f.Backend {
	case "", backend.NameSystemd, backend.NameCron:
	default:
		return fmt.Errorf(messages.ConfigBackendInvalidFmt, source, f.Backend)
	}
	for _, key := range sortedKeys(f.Env) {
		if !envfile.ValidKey(key) {
			return fmt.Errorf(messages.ConfigEnvKeyInvalidFmt, source, key)
		}
	}
	return nil
}

// Warnings lists advisory problems that do not block an install.
func (f *File) Warnings() []string {
	var out []string
	for _, key := range SecretLikeKeys(f.Env) {
		out = append(out, fmt.Sprintf(messages.ConfigInlineSecretWarningFmt, key))
	}
	return out
}

// Spec converts the file into an install spec. Variables from env_file are
// applied first and inline env entries override them.
func (f *File) Spec() (install.Spec, error) {
	env := map[string]string{}
	if f.EnvFile != "" {
		loaded, err := envfile.Load(f.resolve(f.EnvFile))
		if err != nil {
			return install.Spec{}, err
		}
		for k, v := range loaded {
			env[k] = v
		}
	}
	for k, v := range f.Env {
		env[k] = v
	}
	if len(env) == 0 {
		env = nil
	}

	spec := install.Spec{
		Name:        strings.TrimSpace(f.Name),
		Description: f.Description,
		TargetDir:   f.resolve(f.TargetDir),
		RunAs:       f.RunAs,
		Schedule:    f.Schedule,
		Overwrite:   f.Overwrite,
		ReadOnly:    f.ReadOnly,
		Environment: env,
		Args:        append([]string(nil), f.Args...),
		WorkingDir:  f.resolve(f.WorkingDir),
		Scope:       backend.Scope(f.Scope),
		Backend:     f.Backend,
	}
	if spec.Schedule.Kind == "" {
		spec.Schedule = schedule.None()
	}
	if f.Source != "" {
		spec.Source = f.resolve(f.Source)
	}
	return spec, nil
}

// resolve anchors a relative path at the spec file's directory.
func (f *File) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || f.dir == "" {
		return path
	}
	return filepath.Join(f.dir, path)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
