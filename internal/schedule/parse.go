package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// Parse reads a schedule from its textual form:
//
//	none | boot | daily HH:MM[:SS] | weekly DAY HH:MM[:SS] | every DURATION
func Parse(text string) (Schedule, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(fields) == 0 {
		return None(), nil
	}
	var s Schedule
	switch fields[0] {
	case "none":
		if len(fields) != 1 {
			return Schedule{}, fmt.Errorf("schedule %q: none takes no arguments", text)
		}
		s = None()
	case "boot", "on-boot", "@reboot":
		if len(fields) != 1 {
			return Schedule{}, fmt.Errorf("schedule %q: boot takes no arguments", text)
		}
		s = OnBoot()
	case "daily":
		if len(fields) != 2 {
			return Schedule{}, fmt.Errorf("schedule %q: expected daily HH:MM[:SS]", text)
		}
		at, err := parseTimeOfDay(fields[1])
		if err != nil {
			return Schedule{}, fmt.Errorf("schedule %q: %w", text, err)
		}
		s = Schedule{Kind: KindDaily, At: at}
	case "weekly":
		if len(fields) != 3 {
			return Schedule{}, fmt.Errorf("schedule %q: expected weekly DAY HH:MM[:SS]", text)
		}
		day, ok := weekdays[fields[1]]
		if !ok {
			return Schedule{}, fmt.Errorf("schedule %q: unknown weekday %q", text, fields[1])
		}
		at, err := parseTimeOfDay(fields[2])
		if err != nil {
			return Schedule{}, fmt.Errorf("schedule %q: %w", text, err)
		}
		s = Schedule{Kind: KindWeekly, Weekday: day, At: at}
	case "every":
		if len(fields) != 2 {
			return Schedule{}, fmt.Errorf("schedule %q: expected every DURATION", text)
		}
		interval, err := time.ParseDuration(fields[1])
		if err != nil {
			return Schedule{}, fmt.Errorf("schedule %q: %w", text, err)
		}
		s = Every(interval)
	default:
		return Schedule{}, fmt.Errorf("schedule %q: unknown kind %q", text, fields[0])
	}
	if err := s.Validate(); err != nil {
		return Schedule{}, fmt.Errorf("schedule %q: %w", text, err)
	}
	return s, nil
}

func parseTimeOfDay(text string) (TimeOfDay, error) {
	parts := strings.Split(text, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", text)
	}
	values := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", text, err)
		}
		values[i] = n
	}
	at := TimeOfDay{Hour: values[0], Minute: values[1], Second: values[2]}
	if err := at.validate(); err != nil {
		return TimeOfDay{}, err
	}
	return at, nil
}

// UnmarshalText implements encoding.TextUnmarshaler so schedules can be read
// straight from TOML config.
func (s *Schedule) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Schedule) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
