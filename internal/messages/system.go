package messages

// System messages for internal helpers.
const (
	// EnvfileLineErrorFmt formats envfile line errors.
	EnvfileLineErrorFmt            = "line %d: %w"
	EnvfileReadFailedFmt           = "failed to read env content: %w"
	EnvfileReadFileFmt             = "failed to read env file %s: %w"
	EnvfileInvalidFileFmt          = "invalid env file %s: %w"
	EnvfileExpectedKeyValue        = "expected KEY=VALUE"
	EnvfileInvalidKeyFmt           = "invalid variable name %q"
	EnvfileUnterminatedQuotedValue = "unterminated quoted value"
	EnvfileInvalidQuotedSuffix     = "invalid trailing characters after quoted value"

	// LockNameRequired indicates the lock key is empty.
	LockNameRequired     = "lock name is required"
	LockCreateDirFmt     = "create lock dir %s: %w"
	LockAcquireFmt       = "lock %s: %w"
	LockTimeoutFmt       = "timed out waiting for lock %s after %s"
	LockReleaseFmt       = "unlock %s: %w"
	LockHeldElsewhereFmt = "another svcinstall run holds %s"

	// LoggingUnsupportedFormatFmt formats unknown log format errors.
	LoggingUnsupportedFormatFmt = "log format: unsupported value %q (expected console or json)"
	LoggingUnsupportedLevelFmt  = "log level: unsupported value %q (expected debug, info, warn or error)"
)
