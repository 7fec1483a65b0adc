package quota

import (
	"context"
	"errors"
	"testing"
)

type fixedCounter struct {
	count int64
	err   error
}

func (c fixedCounter) CountByMember(context.Context, int64) (int64, error) {
	return c.count, c.err
}

func TestAdmitSchedule(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		counter fixedCounter
		want    error
	}{
		{name: "unlimited", max: 0, counter: fixedCounter{count: 1000}},
		{name: "below cap", max: 3, counter: fixedCounter{count: 2}},
		{name: "at cap", max: 3, counter: fixedCounter{count: 3}, want: ErrScheduleLimitReached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewManager(tt.counter, tt.max).AdmitSchedule(context.Background(), 1)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAdmitScheduleCountError(t *testing.T) {
	boom := errors.New("db down")
	err := NewManager(fixedCounter{err: boom}, 1).AdmitSchedule(context.Background(), 1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped count error, got %v", err)
	}
	if errors.Is(err, ErrScheduleLimitReached) {
		t.Fatal("count failure reported as limit reached")
	}
}
