// Package schedule models when an installed service runs and translates that
// abstract schedule into the native grammar of each backend: systemd timer
// fields and five-field cron time expressions.
//
// Translation is lossless or it fails with ErrNotExpressible; a schedule is
// never silently rounded to something the backend can express.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotExpressible reports that a backend cannot represent a schedule exactly.
var ErrNotExpressible = errors.New("schedule not expressible")

// Kind identifies the shape of a schedule.
type Kind string

const (
	// KindNone means the service is registered and started once, never re-triggered.
	KindNone   Kind = "none"
	KindOnBoot Kind = "on-boot"
	KindDaily  Kind = "daily"
	KindWeekly Kind = "weekly"
	KindEvery  Kind = "every"
)

// TimeOfDay is a local wall-clock time.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// String formats the time as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 || t.Second < 0 || t.Second > 59 {
		return fmt.Errorf("time of day %s out of range", t)
	}
	return nil
}

// Schedule is an abstract trigger for a service. The zero value is KindNone.
type Schedule struct {
	Kind     Kind
	At       TimeOfDay
	Weekday  time.Weekday
	Interval time.Duration
}

// None returns a schedule that never re-triggers the service.
func None() Schedule { return Schedule{Kind: KindNone} }

// OnBoot returns a schedule that starts the service when the system boots.
func OnBoot() Schedule { return Schedule{Kind: KindOnBoot} }

// Daily returns a schedule firing once a day at the given local time.
func Daily(hour, minute, second int) Schedule {
	return Schedule{Kind: KindDaily, At: TimeOfDay{Hour: hour, Minute: minute, Second: second}}
}

// Weekly returns a schedule firing once a week on day at the given local time.
func Weekly(day time.Weekday, hour, minute, second int) Schedule {
	return Schedule{Kind: KindWeekly, Weekday: day, At: TimeOfDay{Hour: hour, Minute: minute, Second: second}}
}

// Every returns a schedule firing repeatedly with the given interval.
func Every(interval time.Duration) Schedule {
	return Schedule{Kind: KindEvery, Interval: interval}
}

// IsTimed reports whether the schedule needs a timer (systemd) to fire.
func (s Schedule) IsTimed() bool {
	switch s.Kind {
	case KindDaily, KindWeekly, KindEvery:
		return true
	default:
		return false
	}
}

// Validate checks that the schedule's fields are in range.
func (s Schedule) Validate() error {
	switch s.normalizedKind() {
	case KindNone, KindOnBoot:
		return nil
	case KindDaily:
		return s.At.validate()
	case KindWeekly:
		if s.Weekday < time.Sunday || s.Weekday > time.Saturday {
			return fmt.Errorf("weekday %d out of range", s.Weekday)
		}
		return s.At.validate()
	case KindEvery:
		if s.Interval < time.Second {
			return fmt.Errorf("interval %s must be at least one second", s.Interval)
		}
		if s.Interval%time.Second != 0 {
			return fmt.Errorf("interval %s must be a whole number of seconds", s.Interval)
		}
		return nil
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}

// String renders the schedule in the same form Parse accepts.
func (s Schedule) String() string {
	switch s.normalizedKind() {
	case KindNone:
		return "none"
	case KindOnBoot:
		return "boot"
	case KindDaily:
		return "daily " + s.At.String()
	case KindWeekly:
		return "weekly " + strings.ToLower(s.Weekday.String()[:3]) + " " + s.At.String()
	case KindEvery:
		return "every " + s.Interval.String()
	default:
		return string(s.Kind)
	}
}

func (s Schedule) normalizedKind() Kind {
	if s.Kind == "" {
		return KindNone
	}
	return s.Kind
}
