package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/install"
	"github.com/conn-castle/service-install/internal/schedule"
)

func buildSpec(t *testing.T, args ...string) (install.Spec, []string, error) {
	t.Helper()
	var flags specFlags
	cmd := &cobra.Command{Use: "test"}
	flags.register(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return flags.build(cmd, cmd.Flags().Args())
}

func TestSpecFlagsOverrideSpecFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "cli.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
name = "cli"
source = "/opt/build/cli"
schedule = "boot"
read_only = true
args = ["--from-file"]

[env]
A = "file"
B = "file"
API_TOKEN = "0123456789abcdef"
`), 0o600))
	envFile := filepath.Join(dir, "extra.env")
	require.NoError(t, os.WriteFile(envFile, []byte("B=envfile\nC=envfile\n"), 0o600))

	spec, warnings, err := buildSpec(t,
		"--file", file,
		"--schedule", "weekly mon 03:00",
		"--read-only=false",
		"--env-file", envFile,
		"-e", "C=flag",
		"--system",
		"cli",
	)
	require.NoError(t, err)
	assert.Equal(t, "cli", spec.Name)
	assert.Equal(t, "/opt/build/cli", spec.Source)
	assert.Equal(t, schedule.Weekly(1, 3, 0, 0), spec.Schedule)
	assert.False(t, spec.ReadOnly)
	assert.Equal(t, []string{"--from-file"}, spec.Args)
	assert.Equal(t, backend.ScopeSystem, spec.Scope)
	assert.Equal(t, map[string]string{"A": "file", "B": "envfile", "C": "flag", "API_TOKEN": "0123456789abcdef"}, spec.Environment)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "API_TOKEN")
}

func TestSpecFlagsErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "cli.toml")
	require.NoError(t, os.WriteFile(file, []byte(`name = "cli"`), 0o600))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing name", nil, "a service name is required"},
		{"name mismatch", []string{"--file", file, "other"}, `name argument "other" does not match spec file name "cli"`},
		{"env without equals", []string{"-e", "NOPE", "cli"}, `invalid --env "NOPE"`},
		{"env bad key", []string{"-e", "A-B=1", "cli"}, `invalid --env key "A-B"`},
		{"bad schedule", []string{"--schedule", "hourly", "cli"}, "unknown kind"},
		{"missing env file", []string{"--env-file", filepath.Join(dir, "none.env"), "cli"}, "failed to read env file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := buildSpec(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSpecFlagsDefaults(t *testing.T) {
	spec, warnings, err := buildSpec(t, "cli")
	require.NoError(t, err)
	assert.Equal(t, install.Spec{Name: "cli"}, spec)
	assert.Empty(t, warnings)
}
