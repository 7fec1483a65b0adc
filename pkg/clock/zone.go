package clock

import (
	"fmt"
	"time"
)

// Zone is the single place where wall-clock values are bound to a location.
type Zone struct {
	loc *time.Location
}

func LoadZone(name string) (Zone, error) {
	if name == "" {
		return UTC(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("load zone %q: %w", name, err)
	}
	return Zone{loc: loc}, nil
}

func FixedZone(name string, offset time.Duration) Zone {
	return Zone{loc: time.FixedZone(name, int(offset/time.Second))}
}

func UTC() Zone {
	return Zone{loc: time.UTC}
}

func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

func (z Zone) String() string {
	return z.Location().String()
}

// In returns t expressed in the zone.
func (z Zone) In(t time.Time) time.Time {
	return t.In(z.Location())
}

// Instant resolves a local date-time to an absolute instant.
func (z Zone) Instant(l LocalDateTime) time.Time {
	return time.Date(l.Year, l.Month, l.Day, l.Hour, l.Minute, l.Second, 0, z.Location())
}

// Local drops the location of t after converting it into the zone.
func (z Zone) Local(t time.Time) LocalDateTime {
	t = z.In(t)
	return LocalDateTime{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// Combine joins the calendar date of day with the time of day of at, both
// read in the zone.
func (z Zone) Combine(day, at time.Time) time.Time {
	day = z.In(day)
	at = z.In(at)
	return time.Date(day.Year(), day.Month(), day.Day(), at.Hour(), at.Minute(), at.Second(), 0, z.Location())
}
