package messages

// Doctor messages for the doctor command.
const (
	// DoctorUse is the doctor command name.
	DoctorUse   = "doctor"
	DoctorShort = "Check which backends and install locations are usable"

	DoctorHealthCheckFmt = "Checking %s install prerequisites...\n"

	DoctorCheckNameBackend   = "Backend"
	DoctorCheckNameLocation  = "Location"
	DoctorCheckNameElevation = "Elevation"

	DoctorBackendAvailableFmt    = "%s is available (%s scope)"
	DoctorBackendUnavailableFmt  = "%s is unavailable (%s scope): %v"
	DoctorNoBackendRecommend     = "Install systemd or a cron daemon with a crontab binary."
	DoctorNoUserBackendRecommend = "Start a user session bus (loginctl enable-linger) or install crontab, or use --system."

	DoctorLocationDefaultFmt       = "%s (default)"
	DoctorLocationDefaultCreateFmt = "%s (default, will be created)"
	DoctorLocationUsableFmt        = "%s"
	DoctorLocationUnusableFmt      = "%s: %v"
	DoctorNoLocationRecommend      = "Pass --target-dir with a writable directory on an exec-capable mount."

	DoctorElevationOKFmt     = "sufficient privileges for %s scope"
	DoctorElevationRecommend = "Re-run with sudo, or drop --system and --run-as."

	DoctorFailureSummary = "Some checks failed. Installs in this scope will not succeed until the items above are fixed."
	DoctorFailureError   = "doctor checks failed"
	DoctorSuccessSummary = "All checks passed."

	DoctorStatusOKLabel        = "[OK]  "
	DoctorStatusWarnLabel      = "[WARN]"
	DoctorStatusFailLabel      = "[FAIL]"
	DoctorResultLineFmt        = "%s %-10s %s\n"
	DoctorRecommendationPrefix = "       hint: "
)
