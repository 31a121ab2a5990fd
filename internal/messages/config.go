package messages

// Config messages for spec file loading and validation.
const (
	// ConfigMissingFileFmt formats missing spec file errors.
	ConfigMissingFileFmt      = "missing spec file %s: %w"
	ConfigInvalidConfigFmt    = "invalid spec file %s: %w"
	ConfigUnrecognizedKeysFmt = "%s: unrecognized keys:\n%s"

	ConfigNameRequiredFmt   = "%s: name is required"
	ConfigScopeInvalidFmt   = "%s: scope must be user or system, got %q"
	ConfigBackendInvalidFmt = "%s: backend must be systemd or cron, got %q"
	ConfigEnvKeyInvalidFmt  = "%s: env key %q is not a valid variable name"

	// ConfigInlineSecretWarningFmt warns about secret-like inline env values.
	ConfigInlineSecretWarningFmt = "env %s looks like a secret; inline values land in the world-readable service registration; move it to env_file"
)
