package alarm

import (
	"time"

	"github.com/commutealarm/commutealarm/pkg/clock"
)

// scanDays covers today plus a full week ahead, so a weekday already passed
// today is still found on the same weekday next week.
const scanDays = 7

// Engine derives the next trigger instant of an alarm pair. It never reads
// the wall clock; callers pass now explicitly.
type Engine struct {
	zone clock.Zone
}

func NewEngine(zone clock.Zone) *Engine {
	return &Engine{zone: zone}
}

func (e *Engine) Zone() clock.Zone {
	return e.zone
}

// Next returns the instant at which the schedule must fire next. When both
// alarms are disabled the result is now.
func (e *Engine) Next(preparation, departure Alarm, repeat Repeat, now time.Time) time.Time {
	prep, prepOK := e.candidate(preparation, repeat, now)
	dep, depOK := e.candidate(departure, repeat, now)

	switch {
	case !prepOK && !depOK:
		return now
	case !prepOK:
		return dep
	case prep.Before(now):
		if depOK {
			return dep
		}
		return now
	case !depOK:
		return prep
	case dep.Before(prep):
		return dep
	default:
		return prep
	}
}

// candidate reports false for a disabled alarm.
func (e *Engine) candidate(a Alarm, repeat Repeat, now time.Time) (time.Time, bool) {
	if !a.Enabled {
		return time.Time{}, false
	}
	if !repeat.Enabled {
		return a.TriggeredAt, true
	}

	today := e.zone.In(now)
	for offset := 0; offset <= scanDays; offset++ {
		day := today.AddDate(0, 0, offset)
		if !repeat.Days.Contains(WeekdayOf(day)) {
			continue
		}
		at := e.zone.Combine(day, a.TriggeredAt)
		if at.After(now) {
			return at, true
		}
	}
	return a.TriggeredAt, true
}
