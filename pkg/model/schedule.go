package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/commutealarm/commutealarm/pkg/alarm"
)

type AlarmKind string

const (
	PreparationAlarm AlarmKind = "preparation"
	DepartureAlarm   AlarmKind = "departure"
)

var ErrUnknownAlarmKind = errors.New("unknown alarm kind")

func ParseAlarmKind(value string) (AlarmKind, error) {
	switch kind := AlarmKind(value); kind {
	case PreparationAlarm, DepartureAlarm:
		return kind, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlarmKind, value)
}

type Schedule struct {
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	MemberID         int64  `gorm:"not null;index"`
	DedupKey         string `gorm:"type:varchar(36);not null;uniqueIndex"`
	Title            string
	DeparturePlaceID int64       `gorm:"not null"`
	DeparturePlace   *Place      `gorm:"foreignKey:DeparturePlaceID"`
	ArrivalPlaceID   int64       `gorm:"not null"`
	ArrivalPlace     *Place      `gorm:"foreignKey:ArrivalPlaceID"`
	PreparationAlarm alarm.Alarm `gorm:"embedded;embeddedPrefix:preparation_"`
	DepartureAlarm   alarm.Alarm `gorm:"embedded;embeddedPrefix:departure_"`
	IsRepeat         bool        `gorm:"not null;default:false"`
	RepeatDays       RepeatDays  `gorm:"type:varchar(32)"`
	AppointmentAt    time.Time   `gorm:"not null"`
	TravelMinutes    int
	NextAlarmAt      time.Time `gorm:"index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (s *Schedule) Repeat() alarm.Repeat {
	return alarm.Repeat{Enabled: s.IsRepeat, Days: alarm.Weekdays(s.RepeatDays)}
}

// SetRepeat switches the schedule to weekly on days, or back to one-time when
// days is empty.
func (s *Schedule) SetRepeat(days []alarm.Weekday) error {
	repeat := alarm.Repeat{Enabled: len(days) > 0, Days: days}
	if err := repeat.Validate(); err != nil {
		return err
	}
	s.IsRepeat = repeat.Enabled
	if repeat.Enabled {
		s.RepeatDays = RepeatDays(days)
	} else {
		s.RepeatDays = nil
	}
	return nil
}

// RecomputeNextAlarm refreshes the NextAlarmAt cache and reports whether it
// changed.
func (s *Schedule) RecomputeNextAlarm(engine *alarm.Engine, now time.Time) bool {
	next := engine.Next(s.PreparationAlarm, s.DepartureAlarm, s.Repeat(), now).UTC()
	if next.Equal(s.NextAlarmAt) {
		return false
	}
	s.NextAlarmAt = next
	return true
}

func (s *Schedule) SwitchAlarm(kind AlarmKind, enabled bool, engine *alarm.Engine, now time.Time) error {
	switch kind {
	case PreparationAlarm:
		s.PreparationAlarm.Enabled = enabled
	case DepartureAlarm:
		s.DepartureAlarm.Enabled = enabled
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAlarmKind, kind)
	}
	s.RecomputeNextAlarm(engine, now)
	return nil
}

// RepeatDays is stored as a JSON array of weekday codes and as NULL for
// one-time schedules.
type RepeatDays []alarm.Weekday

func (d RepeatDays) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	data, err := json.Marshal([]alarm.Weekday(d))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (d *RepeatDays) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("failed to scan RepeatDays: unexpected type %T", value)
	}
	if len(data) == 0 {
		*d = nil
		return nil
	}
	var days []alarm.Weekday
	if err := json.Unmarshal(data, &days); err != nil {
		return fmt.Errorf("failed to scan RepeatDays: %w", err)
	}
	*d = days
	return nil
}
