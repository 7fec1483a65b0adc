package schedule

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/commutealarm/commutealarm/pkg/clock"
)

const QuickScheduleRequestedType = "QUICK_SCHEDULE_REQUESTED"

var dedupNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://commutealarm/quick-schedules"))

var ErrInvalidEvent = errors.New("invalid quick schedule event")

// QuickScheduleRequestedEvent is recorded once both places of a quick
// schedule request are saved.
type QuickScheduleRequestedEvent struct {
	MemberID         int64               `json:"memberId"`
	DeparturePlaceID int64               `json:"departurePlaceId"`
	ArrivalPlaceID   int64               `json:"arrivalPlaceId"`
	AppointmentAt    clock.LocalDateTime `json:"appointmentAt"`
}

func (QuickScheduleRequestedEvent) EventType() string {
	return QuickScheduleRequestedType
}

func (e QuickScheduleRequestedEvent) Validate() error {
	if e.MemberID <= 0 || e.DeparturePlaceID <= 0 || e.ArrivalPlaceID <= 0 {
		return fmt.Errorf("%w: ids must be positive", ErrInvalidEvent)
	}
	if e.AppointmentAt.IsZero() {
		return fmt.Errorf("%w: appointmentAt is required", ErrInvalidEvent)
	}
	return nil
}

// DedupKey is derived from the event content, so every delivery of the same
// request maps to the same schedule.
func (e QuickScheduleRequestedEvent) DedupKey() string {
	name := fmt.Sprintf("%d:%d:%d:%s", e.MemberID, e.DeparturePlaceID, e.ArrivalPlaceID, e.AppointmentAt)
	return uuid.NewSHA1(dedupNamespace, []byte(name)).String()
}
