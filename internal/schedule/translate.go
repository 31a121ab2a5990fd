package schedule

import (
	"fmt"
	"strconv"
	"time"
)

var systemdWeekdays = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// TimerFields holds the [Timer] section values for a systemd timer unit.
// Empty fields are omitted from the rendered unit.
type TimerFields struct {
	OnCalendar      string
	OnBootSec       string
	OnUnitActiveSec string
	AccuracySec     string
	Persistent      bool
}

// Systemd translates a timed schedule into timer unit fields. Untimed
// schedules (none, on-boot) need no timer and return ok == false.
func Systemd(s Schedule) (fields TimerFields, ok bool, err error) {
	if err := s.Validate(); err != nil {
		return TimerFields{}, false, err
	}
	switch s.normalizedKind() {
	case KindNone, KindOnBoot:
		return TimerFields{}, false, nil
	case KindDaily:
		return TimerFields{
			OnCalendar:  "*-*-* " + s.At.String(),
			AccuracySec: "1s",
			Persistent:  true,
		}, true, nil
	case KindWeekly:
		return TimerFields{
			OnCalendar:  systemdWeekdays[s.Weekday] + " *-*-* " + s.At.String(),
			AccuracySec: "1s",
			Persistent:  true,
		}, true, nil
	case KindEvery:
		secs := strconv.FormatInt(int64(s.Interval/time.Second), 10) + "s"
		return TimerFields{
			OnBootSec:       secs,
			OnUnitActiveSec: secs,
			AccuracySec:     "1s",
		}, true, nil
	}
	return TimerFields{}, false, fmt.Errorf("%w: unknown kind %q", ErrNotExpressible, s.Kind)
}

// Cron translates a schedule into a five-field cron time expression, or the
// @reboot nickname for on-boot schedules.
func Cron(s Schedule) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	switch s.normalizedKind() {
	case KindNone:
		return "", fmt.Errorf("%w: cron cannot run a service without a trigger", ErrNotExpressible)
	case KindOnBoot:
		return "@reboot", nil
	case KindDaily:
		if s.At.Second != 0 {
			return "", fmt.Errorf("%w: cron has minute resolution, got %s", ErrNotExpressible, s.At)
		}
		return fmt.Sprintf("%d %d * * *", s.At.Minute, s.At.Hour), nil
	case KindWeekly:
		if s.At.Second != 0 {
			return "", fmt.Errorf("%w: cron has minute resolution, got %s", ErrNotExpressible, s.At)
		}
		return fmt.Sprintf("%d %d * * %d", s.At.Minute, s.At.Hour, int(s.Weekday)), nil
	case KindEvery:
		return cronInterval(s.Interval)
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrNotExpressible, s.Kind)
}

func cronInterval(interval time.Duration) (string, error) {
	if interval%time.Minute != 0 {
		return "", fmt.Errorf("%w: cron has minute resolution, got %s", ErrNotExpressible, interval)
	}
	minutes := int(interval / time.Minute)
	switch {
	case minutes == 1:
		return "* * * * *", nil
	case minutes < 60 && 60%minutes == 0:
		return fmt.Sprintf("*/%d * * * *", minutes), nil
	case minutes%60 != 0:
		return "", fmt.Errorf("%w: %s does not divide an hour", ErrNotExpressible, interval)
	}
	hours := minutes / 60
	switch {
	case hours == 1:
		return "0 * * * *", nil
	case hours == 24:
		return "0 0 * * *", nil
	case hours < 24 && 24%hours == 0:
		return fmt.Sprintf("0 */%d * * *", hours), nil
	}
	return "", fmt.Errorf("%w: %s does not divide a day", ErrNotExpressible, interval)
}
