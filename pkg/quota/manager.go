package quota

import (
	"context"
	"errors"
	"fmt"
)

var ErrScheduleLimitReached = errors.New("member schedule limit reached")

type ScheduleCounter interface {
	CountByMember(ctx context.Context, memberID int64) (int64, error)
}

// Manager enforces the per-member schedule cap. A non-positive cap means
// unlimited.
type Manager struct {
	counter      ScheduleCounter
	maxPerMember int
}

func NewManager(counter ScheduleCounter, maxPerMember int) *Manager {
	return &Manager{counter: counter, maxPerMember: maxPerMember}
}

// AdmitSchedule returns ErrScheduleLimitReached when the member cannot own
// another schedule.
func (m *Manager) AdmitSchedule(ctx context.Context, memberID int64) error {
	if m.maxPerMember <= 0 {
		return nil
	}
	count, err := m.counter.CountByMember(ctx, memberID)
	if err != nil {
		return fmt.Errorf("count schedules of member %d: %w", memberID, err)
	}
	if count >= int64(m.maxPerMember) {
		return fmt.Errorf("%w: %d of %d", ErrScheduleLimitReached, count, m.maxPerMember)
	}
	return nil
}
