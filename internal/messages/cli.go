package messages

// CLI messages for user-facing commands and prompts.
const (
	// RootUse is the CLI command name.
	RootUse   = "svcinstall"
	RootShort = "Install an executable as a systemd or cron service, and remove it cleanly"
	RootLong  = "svcinstall copies an executable into place and registers it with systemd or cron.\n" +
		"Every change is planned first and rolled back if any step fails."

	RootFlagLogLevel  = "Log level: debug, info, warn or error"
	RootFlagLogFormat = "Log format: console or json"
	RootFlagLockWait  = "How long to wait for another svcinstall run on the same service"
	RootFlagYes       = "Answer yes to every confirmation"

	// VersionCommitFmt formats the commit hash for version display.
	VersionCommitFmt = "commit %s"
	VersionBuildFmt  = "built %s"
	VersionFullFmt   = "%s (%s)"
	VersionTemplate  = "{{.Version}}\n"

	// InstallUse is the install command usage.
	InstallUse   = "install [NAME]"
	InstallShort = "Install an executable as a managed service"
	PlanUse      = "plan [NAME]"
	PlanShort    = "Show what install would change without changing anything"
	RemoveUse    = "remove NAME"
	RemoveShort  = "Stop, unregister and delete an installed service"
	StatusUse    = "status NAME"
	StatusShort  = "Show the registration and state of an installed service"

	FlagFile        = "Load the install spec from a TOML file; flags override its values"
	FlagSource      = "Executable to install (default: this executable)"
	FlagTargetDir   = "Directory to install into (default: probe standard locations)"
	FlagRunAs       = "User the service runs as"
	FlagSchedule    = "Schedule: none, boot, 'daily HH:MM', 'weekly DAY HH:MM' or 'every DURATION'"
	FlagOverwrite   = "Replace conflicting files, services and processes"
	FlagReadOnly    = "Install the executable without write permission (0555)"
	FlagEnv         = "Environment variable KEY=VALUE for the service (repeatable)"
	FlagEnvFile     = "Dotenv file with environment variables for the service"
	FlagArg         = "Argument passed to the executable (repeatable)"
	FlagWorkingDir  = "Working directory of the service"
	FlagDescription = "Human readable service description"
	FlagSystem      = "Install system-wide instead of for the current user (needs root)"
	FlagBackend     = "Force a backend: systemd or cron"
	FlagBestEffort  = "Keep going past failed steps instead of rolling back"
	FlagDiffLines   = "Maximum diff lines shown per registration file"
	FlagJSON        = "Print the plan as JSON"

	CLINameRequired      = "a service name is required (argument, --file or name in the spec file)"
	CLINameMismatchFmt   = "name argument %q does not match spec file name %q"
	CLIInvalidEnvFmt     = "invalid --env %q: expected KEY=VALUE"
	CLIInvalidEnvKeyFmt  = "invalid --env key %q"
	CLIConfirmNeedsTTY   = "refusing to change the system without confirmation; re-run in a terminal or pass --yes"
	CLIAborted           = "aborted; nothing was changed"
	CLIConfirmApplyFmt   = "Apply %d step(s) to %s?"
	CLIConfirmStopFmt    = "Process %d is running %s. Stop it?"
	CLIWarningFmt        = "warning: %s\n"
	CLINotInstalledFmt   = "%s is not installed\n"
	CLIPlanHeaderFmt     = "Plan %s: %s %s via %s (%s)\n"
	CLIPlanTargetFmt     = "  target: %s\n"
	CLIPlanConflictFmt   = "  conflict: %s\n"
	CLIPlanStepFmt       = "  %2d. %s\n"
	CLIPreviewHeaderFmt  = "\n--- %s\n"
	CLIDoneFmt           = "%s %s: %d step(s) applied\n"
	CLIStepDoneFmt       = "  ok   %s\n"
	CLIStepFailedFmt     = "  FAIL %s: %v\n"
	CLIHandleFmt         = "  service: %s (%s)\n"
	CLIStatusBackendFmt  = "backend:    %s\n"
	CLIStatusUnitFmt     = "unit:       %s\n"
	CLIStatusExecFmt     = "executable: %s\n"
	CLIStatusOwnerFmt    = "managed:    %t\n"
	CLIStatusStateFmt    = "state:      %s\n"
	CLIStatusArtifactFmt = "artifact:   %s\n"
)
