// Package alarm computes when a schedule's alarm pair fires next.
package alarm

import (
	"errors"
	"fmt"
	"time"
)

type Mode string

const (
	ModeSound          Mode = "SOUND"
	ModeVibration      Mode = "VIBRATION"
	ModeSoundVibration Mode = "SOUND_VIBRATION"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeSound, ModeVibration, ModeSoundVibration:
		return true
	}
	return false
}

// Settings are the per-member defaults copied onto newly created alarms.
type Settings struct {
	Mode          Mode `gorm:"type:varchar(32);default:'SOUND'"`
	SnoozeMinutes int  `gorm:"default:5"`
	SnoozeCount   int  `gorm:"default:3"`
	Sound         string
}

// NewAlarm returns an alarm carrying s that triggers at the given instant.
func (s Settings) NewAlarm(enabled bool, at time.Time) Alarm {
	return Alarm{
		Mode:          s.Mode,
		SnoozeMinutes: s.SnoozeMinutes,
		SnoozeCount:   s.SnoozeCount,
		Sound:         s.Sound,
		Enabled:       enabled,
		TriggeredAt:   at,
	}
}

// Alarm is one of the two alarms of a schedule. For repeating schedules only
// the local time of day of TriggeredAt is significant.
type Alarm struct {
	Mode          Mode `gorm:"type:varchar(32)"`
	SnoozeMinutes int
	SnoozeCount   int
	Sound         string
	Enabled       bool
	TriggeredAt   time.Time
}

// Weekday codes run from 1 (Sunday) to 7 (Saturday).
type Weekday int

const (
	Sunday Weekday = iota + 1
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

func WeekdayOf(t time.Time) Weekday {
	return Weekday(t.Weekday()) + 1
}

func (w Weekday) Valid() bool {
	return w >= Sunday && w <= Saturday
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return time.Weekday(w - 1).String()
}

var (
	ErrEmptyRepeatDays  = errors.New("repeat days are required for a repeating schedule")
	ErrInvalidWeekday   = errors.New("weekday code must be between 1 and 7")
	ErrUnexpectedRepeat = errors.New("repeat days are only allowed on a repeating schedule")
	ErrDuplicateWeekday = errors.New("repeat days contain a duplicate weekday")
)

type Weekdays []Weekday

func (d Weekdays) Contains(day Weekday) bool {
	for _, candidate := range d {
		if candidate == day {
			return true
		}
	}
	return false
}

// Repeat is the weekly recurrence of a schedule.
type Repeat struct {
	Enabled bool
	Days    Weekdays
}

func Once() Repeat {
	return Repeat{}
}

func Weekly(days ...Weekday) Repeat {
	return Repeat{Enabled: true, Days: days}
}

// Validate enforces that days are present exactly when the schedule repeats.
func (r Repeat) Validate() error {
	if !r.Enabled {
		if len(r.Days) > 0 {
			return ErrUnexpectedRepeat
		}
		return nil
	}
	if len(r.Days) == 0 {
		return ErrEmptyRepeatDays
	}
	seen := make(map[Weekday]struct{}, len(r.Days))
	for _, day := range r.Days {
		if !day.Valid() {
			return ErrInvalidWeekday
		}
		if _, ok := seen[day]; ok {
			return ErrDuplicateWeekday
		}
		seen[day] = struct{}{}
	}
	return nil
}
