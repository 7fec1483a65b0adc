package clock

import (
	"encoding/json"
	"fmt"
	"time"
)

// LocalDateTimeLayout is the ISO-8601 local date-time form without offset.
const LocalDateTimeLayout = "2006-01-02T15:04:05"

var localDateTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// LocalDateTime is a wall-clock value with no zone attached.
type LocalDateTime struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

func NewLocalDateTime(year int, month time.Month, day, hour, minute, second int) LocalDateTime {
	return LocalDateTime{Year: year, Month: month, Day: day, Hour: hour, Minute: minute, Second: second}
}

func ParseLocalDateTime(value string) (LocalDateTime, error) {
	for _, layout := range localDateTimeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return UTC().Local(t), nil
		}
	}
	return LocalDateTime{}, fmt.Errorf("invalid local date-time %q", value)
}

func (l LocalDateTime) IsZero() bool {
	return l == LocalDateTime{}
}

func (l LocalDateTime) String() string {
	return time.Date(l.Year, l.Month, l.Day, l.Hour, l.Minute, l.Second, 0, time.UTC).Format(LocalDateTimeLayout)
}

func (l LocalDateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *LocalDateTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("local date-time must be a string: %w", err)
	}
	parsed, err := ParseLocalDateTime(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
