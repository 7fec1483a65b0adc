package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/commutealarm/commutealarm/pkg/alarm"
	"github.com/commutealarm/commutealarm/pkg/clock"
	"github.com/commutealarm/commutealarm/pkg/model"
	"github.com/commutealarm/commutealarm/pkg/outbox"
)

var ErrInvalidRequest = errors.New("invalid quick schedule request")

type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type PlaceStore interface {
	Create(ctx context.Context, place *model.Place) error
}

type EventPublisher interface {
	RecordAndPublish(ctx context.Context, event outbox.Event) (*model.OutboxMessage, error)
}

type ScheduleRepository interface {
	ListByMember(ctx context.Context, memberID int64) ([]model.Schedule, error)
	GetForMember(ctx context.Context, memberID, id int64) (*model.Schedule, error)
	UpdateAlarms(ctx context.Context, schedule *model.Schedule) error
	UpdateNextAlarmAt(ctx context.Context, id int64, at time.Time) error
}

type PlaceInput struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

func (p PlaceInput) validate(field string) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: %s.name is required", ErrInvalidRequest, field)
	}
	if p.Longitude < -180 || p.Longitude > 180 || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: %s coordinates out of range", ErrInvalidRequest, field)
	}
	return nil
}

func (p PlaceInput) toModel(memberID int64) *model.Place {
	return &model.Place{
		MemberID:  memberID,
		Name:      strings.TrimSpace(p.Name),
		Address:   p.Address,
		Longitude: p.Longitude,
		Latitude:  p.Latitude,
	}
}

type QuickScheduleRequest struct {
	Departure     PlaceInput          `json:"departure"`
	Arrival       PlaceInput          `json:"arrival"`
	AppointmentAt clock.LocalDateTime `json:"appointmentAt"`
}

func (r QuickScheduleRequest) Validate() error {
	if err := r.Departure.validate("departure"); err != nil {
		return err
	}
	if err := r.Arrival.validate("arrival"); err != nil {
		return err
	}
	if r.AppointmentAt.IsZero() {
		return fmt.Errorf("%w: appointmentAt is required", ErrInvalidRequest)
	}
	return nil
}

// QuickScheduleReceipt acknowledges an accepted request. The schedule itself
// is created asynchronously.
type QuickScheduleReceipt struct {
	DeparturePlaceID int64 `json:"departurePlaceId"`
	ArrivalPlaceID   int64 `json:"arrivalPlaceId"`
	MessageID        int64 `json:"messageId"`
}

type Service struct {
	tx        UnitOfWork
	members   MemberLookup
	places    PlaceStore
	schedules ScheduleRepository
	publisher EventPublisher
	engine    *alarm.Engine
	clock     clock.Clock
	logger    *zap.Logger
}

func NewService(
	tx UnitOfWork,
	members MemberLookup,
	places PlaceStore,
	schedules ScheduleRepository,
	publisher EventPublisher,
	engine *alarm.Engine,
	clk clock.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		tx:        tx,
		members:   members,
		places:    places,
		schedules: schedules,
		publisher: publisher,
		engine:    engine,
		clock:     clk,
		logger:    logger.Named("schedule-service"),
	}
}

// RequestQuickSchedule saves both places and records the request event in
// one transaction.
func (s *Service) RequestQuickSchedule(ctx context.Context, memberID int64, req QuickScheduleRequest) (*QuickScheduleReceipt, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var receipt *QuickScheduleReceipt
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.members.GetIfExists(ctx, memberID); err != nil {
			return err
		}

		departure := req.Departure.toModel(memberID)
		if err := s.places.Create(ctx, departure); err != nil {
			return fmt.Errorf("save departure place: %w", err)
		}
		arrival := req.Arrival.toModel(memberID)
		if err := s.places.Create(ctx, arrival); err != nil {
			return fmt.Errorf("save arrival place: %w", err)
		}

		msg, err := s.publisher.RecordAndPublish(ctx, QuickScheduleRequestedEvent{
			MemberID:         memberID,
			DeparturePlaceID: departure.ID,
			ArrivalPlaceID:   arrival.ID,
			AppointmentAt:    req.AppointmentAt,
		})
		if err != nil {
			return err
		}

		receipt = &QuickScheduleReceipt{
			DeparturePlaceID: departure.ID,
			ArrivalPlaceID:   arrival.ID,
			MessageID:        msg.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// List returns the member's schedules with NextAlarmAt refreshed against the
// current time. Refreshed values are written back best effort.
func (s *Service) List(ctx context.Context, memberID int64) ([]model.Schedule, error) {
	schedules, err := s.schedules.ListByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	for i := range schedules {
		if !schedules[i].RecomputeNextAlarm(s.engine, now) {
			continue
		}
		if err := s.schedules.UpdateNextAlarmAt(ctx, schedules[i].ID, schedules[i].NextAlarmAt); err != nil {
			s.logger.Warn("failed to persist next alarm",
				zap.Error(err),
				zap.Int64("schedule_id", schedules[i].ID),
			)
		}
	}
	return schedules, nil
}

func (s *Service) SwitchAlarm(ctx context.Context, memberID, scheduleID int64, kind model.AlarmKind, enabled bool) (*model.Schedule, error) {
	return s.update(ctx, memberID, scheduleID, func(schedule *model.Schedule) error {
		return schedule.SwitchAlarm(kind, enabled, s.engine, s.clock.Now())
	})
}

// UpdateRepeat makes the schedule weekly on days, or one-time when days is
// empty.
func (s *Service) UpdateRepeat(ctx context.Context, memberID, scheduleID int64, days []alarm.Weekday) (*model.Schedule, error) {
	return s.update(ctx, memberID, scheduleID, func(schedule *model.Schedule) error {
		if err := schedule.SetRepeat(days); err != nil {
			return err
		}
		schedule.RecomputeNextAlarm(s.engine, s.clock.Now())
		return nil
	})
}

func (s *Service) update(ctx context.Context, memberID, scheduleID int64, mutate func(*model.Schedule) error) (*model.Schedule, error) {
	var schedule *model.Schedule
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		loaded, err := s.schedules.GetForMember(ctx, memberID, scheduleID)
		if err != nil {
			return err
		}
		if err := mutate(loaded); err != nil {
			return err
		}
		if err := s.schedules.UpdateAlarms(ctx, loaded); err != nil {
			return fmt.Errorf("update schedule %d: %w", scheduleID, err)
		}
		schedule = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return schedule, nil
}
