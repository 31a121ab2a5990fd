package messages

// Backend messages for systemd and cron.
const (
	BackendSystemdConnectFmt    = "connect to systemd %s bus: %w"
	BackendSystemdReloadFmt     = "reload systemd %s manager: %w"
	BackendSystemdEnableFmt     = "enable %s: %w"
	BackendSystemdDisableFmt    = "disable %s: %w"
	BackendSystemdJobFmt        = "%s %s: %w"
	BackendSystemdJobResultFmt  = "%s %s: job finished with result %q"
	BackendSystemdListFmt       = "query state of %s: %w"
	BackendSystemdWriteUnitFmt  = "write unit file %s: %w"
	BackendSystemdRemoveUnitFmt = "remove unit file %s: %w"
	BackendSystemdReadUnitFmt   = "read unit file %s: %w"

	BackendCronNotInstalled     = "crontab command not found"
	BackendCronDaemonNotRunning = "no cron daemon is running"
	BackendCronListFmt          = "list crontab of %s: %w"
	BackendCronInstallFmt       = "install crontab of %s: %w"
	BackendCronEntryMissingFmt  = "crontab of %s has no entry for %s"
	BackendCronCorruptFmt       = "crontab of %s: marker for %s is not followed by a rule"
	BackendCronRuleFmt          = "parse crontab rule %q: %w"
	BackendCronStartFmt         = "start %s: %w"
	BackendCronStopFmt          = "stop %s: %w"
	BackendCronLookupUserFmt    = "look up crontab owner %q: %w"

	BackendInvalidDescriptor = "service descriptor requires a name and an exec path"
	BackendInvalidEnvKeyFmt  = "invalid environment key %q"
	BackendControlCharFmt    = "descriptor value %q contains a newline, carriage return or NUL"
)
