package messages

// Install engine messages.
const (
	// InstallSystemRequired indicates a System implementation is required.
	InstallSystemRequired          = "install system is required"
	InstallBackendRequired         = "install backend set is required"
	InstallMissingServiceName      = "service name is required"
	InstallInvalidServiceNameFmt   = "service name %q may only contain letters, digits and the characters :_.@-"
	InstallInvalidEnvKeyFmt        = "environment key %q must match [A-Za-z_][A-Za-z0-9_]*"
	InstallControlCharFmt          = "%s %q contains a newline, carriage return or NUL"
	InstallResolveExecutableFmt    = "resolve current executable: %w"
	InstallSourceNotFileFmt        = "source %s is not a regular file"
	InstallFailedStatFmt           = "failed to stat %s: %w"
	InstallNeedsRootForSystem      = "installing for the whole system requires root"
	InstallNeedsRootForRunAsFmt    = "running the service as user %q requires root"
	InstallUnknownUserFmt          = "user %q does not exist: %w"
	InstallNoHomeFmt               = "resolve home directory: %w"
	InstallNoSuitableLocationFmt   = "none of the candidate directories are writable and executable: %s"
	InstallTargetDirUnusableFmt    = "target directory %s is not usable: %w"
	InstallBackendUnavailableFmt   = "backend %s is not available for %s scope"
	InstallNoBackendAvailableFmt   = "neither systemd nor cron is available for %s scope"
	InstallUnknownBackendFmt       = "unknown backend %q (expected systemd or cron)"
	InstallScheduleUnsupportedFmt  = "backend %s cannot express schedule %s: %w"
	InstallLocationOccupiedFmt     = "a different file already exists at %s; enable overwrite to replace it"
	InstallProcessRunningFmt       = "process %d is running %s; enable overwrite or confirm stopping it"
	InstallServiceConflictFmt      = "service %s is registered by someone else (%s); enable overwrite to take it over"
	InstallNoInstallFoundFmt       = "no installation of %s found in %s"
	InstallForeignRemoveFmt        = "service %s was not installed by this tool; refusing to remove it"
	InstallScanFailedFmt           = "scan install location %s: %w"
	InstallPlanConsumed            = "plan has already been executed; prepare a new one"
	InstallPromptFailedFmt         = "confirm stopping process %d: %w"
	InstallStepFailedFmt           = "step %d (%s) failed: %w"
	InstallRollbackHeaderFmt       = "%v; rollback failed for %d step(s)"
	InstallRollbackStepFailedFmt   = "rollback of %s: %v"
	InstallAggregateHeaderFmt      = "%d of %d step(s) failed"
	InstallAggregateLineFmt        = "\n* tried to %s\n  failed because: %v"
	InstallCreateBackupDirFmt      = "create backup directory: %w"
	InstallCleanupBackupDirFmt     = "remove backup directory %s: %v"
	InstallUnknownStepKindFmt      = "unknown step kind %q"
	InstallStopProcessFmt          = "stop process %d: %w"
	InstallWriteExecutableFmt      = "write executable %s: %w"
	InstallBackupFmt               = "back up %s: %w"
	InstallRestoreBackupFmt        = "restore %s from backup: %w"
	InstallSetModeFmt              = "set mode of %s to %s: %w"
	InstallSetOwnerFmt             = "set owner of %s to %d:%d: %w"
	InstallRemoveFileFmt           = "remove %s: %w"
	InstallCreateDirFmt            = "create directory %s: %w"
	InstallRemoveDirFmt            = "remove directory %s: %w"
	InstallStopProcessNotConfirmed = "stopping the running process was not confirmed"
	InstallNotDirectoryFmt         = "%s is not a directory"
	InstallNotWritableFmt          = "%s is not writable: %w"
	InstallNoexecMountFmt          = "%s is on a noexec mount"
	InstallNothingToDo             = "already installed and up to date"
	InstallBackendStepFmt          = "%s %s: %w"
	InstallStopPromptRequired      = "no prompt configured to confirm stopping a running process"
)
