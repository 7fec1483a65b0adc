package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/commutealarm/commutealarm/pkg/alarm"
	"github.com/commutealarm/commutealarm/pkg/clock"
	"github.com/commutealarm/commutealarm/pkg/metrics"
	"github.com/commutealarm/commutealarm/pkg/model"
	"github.com/commutealarm/commutealarm/pkg/outbox"
	"github.com/commutealarm/commutealarm/pkg/route"
	"github.com/commutealarm/commutealarm/pkg/store/postgres"
)

type MemberLookup interface {
	GetIfExists(ctx context.Context, id int64) (*model.Member, error)
}

type PlaceLookup interface {
	GetByID(ctx context.Context, id int64) (*model.Place, error)
}

type RouteEstimator interface {
	EstimateMinutes(ctx context.Context, startLon, startLat, endLon, endLat float64) (int, error)
}

type ScheduleStore interface {
	Save(ctx context.Context, schedule *model.Schedule) (*model.Schedule, error)
	FindByDedupKey(ctx context.Context, key string) (*model.Schedule, error)
}

type Admission interface {
	AdmitSchedule(ctx context.Context, memberID int64) error
}

var ErrPlaceNotOwned = errors.New("place does not belong to member")

// QuickScheduleHandler turns a QuickScheduleRequestedEvent into a schedule.
// Replays of the same event are no-ops.
type QuickScheduleHandler struct {
	members   MemberLookup
	places    PlaceLookup
	routes    RouteEstimator
	schedules ScheduleStore
	admission Admission
	engine    *alarm.Engine
	clock     clock.Clock
	logger    *zap.Logger
}

func NewQuickScheduleHandler(
	members MemberLookup,
	places PlaceLookup,
	routes RouteEstimator,
	schedules ScheduleStore,
	admission Admission,
	engine *alarm.Engine,
	clk clock.Clock,
	logger *zap.Logger,
) *QuickScheduleHandler {
	return &QuickScheduleHandler{
		members:   members,
		places:    places,
		routes:    routes,
		schedules: schedules,
		admission: admission,
		engine:    engine,
		clock:     clk,
		logger:    logger.Named("quick-schedule"),
	}
}

// Register binds the handler to its event type.
func (h *QuickScheduleHandler) Register(router *outbox.Router) {
	outbox.Register(router, QuickScheduleRequestedType, h.Handle)
}

func (h *QuickScheduleHandler) Handle(ctx context.Context, event QuickScheduleRequestedEvent) error {
	if err := event.Validate(); err != nil {
		return outbox.Malformed(err)
	}

	key := event.DedupKey()
	existing, err := h.schedules.FindByDedupKey(ctx, key)
	switch {
	case err == nil:
		metrics.SchedulesMaterializedTotal.WithLabelValues("duplicate").Inc()
		h.logger.Info("quick schedule already materialized",
			zap.Int64("schedule_id", existing.ID),
			zap.String("dedup_key", key),
		)
		return nil
	case !errors.Is(err, postgres.ErrScheduleNotFound):
		return fmt.Errorf("find schedule by dedup key: %w", err)
	}

	member, err := h.members.GetIfExists(ctx, event.MemberID)
	if err != nil {
		return lookupError("member", event.MemberID, err)
	}
	departure, err := h.places.GetByID(ctx, event.DeparturePlaceID)
	if err != nil {
		return lookupError("departure place", event.DeparturePlaceID, err)
	}
	arrival, err := h.places.GetByID(ctx, event.ArrivalPlaceID)
	if err != nil {
		return lookupError("arrival place", event.ArrivalPlaceID, err)
	}
	if departure.MemberID != member.ID || arrival.MemberID != member.ID {
		return outbox.Permanent(ErrPlaceNotOwned)
	}

	if err := h.admission.AdmitSchedule(ctx, member.ID); err != nil {
		metrics.SchedulesMaterializedTotal.WithLabelValues("limited").Inc()
		return err
	}

	minutes, err := h.routes.EstimateMinutes(ctx, departure.Longitude, departure.Latitude, arrival.Longitude, arrival.Latitude)
	if err != nil {
		err = fmt.Errorf("estimate travel time: %w", err)
		if route.IsTransient(err) {
			return outbox.Transient(err)
		}
		return outbox.Permanent(err)
	}

	schedule := h.build(member, departure, arrival, event, minutes)
	schedule.DedupKey = key
	schedule.RecomputeNextAlarm(h.engine, h.clock.Now())

	saved, err := h.schedules.Save(ctx, schedule)
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}

	metrics.SchedulesMaterializedTotal.WithLabelValues("created").Inc()
	h.logger.Info("quick schedule materialized",
		zap.Int64("schedule_id", saved.ID),
		zap.Int64("member_id", member.ID),
		zap.Int("travel_minutes", minutes),
		zap.Time("next_alarm_at", saved.NextAlarmAt),
	)
	return nil
}

func (h *QuickScheduleHandler) build(member *model.Member, departure, arrival *model.Place, event QuickScheduleRequestedEvent, travelMinutes int) *model.Schedule {
	appointment := h.engine.Zone().Instant(event.AppointmentAt)
	departAt := appointment.Add(-time.Duration(travelMinutes) * time.Minute)
	prepareAt := departAt.Add(-time.Duration(member.PreparationMinutes) * time.Minute)

	defaults := member.AlarmDefaults
	if !defaults.Mode.Valid() {
		defaults.Mode = alarm.ModeSound
	}

	return &model.Schedule{
		MemberID:         member.ID,
		Title:            departure.Name + " - " + arrival.Name,
		DeparturePlaceID: departure.ID,
		DeparturePlace:   departure,
		ArrivalPlaceID:   arrival.ID,
		ArrivalPlace:     arrival,
		PreparationAlarm: defaults.NewAlarm(true, prepareAt.UTC()),
		DepartureAlarm:   defaults.NewAlarm(true, departAt.UTC()),
		AppointmentAt:    appointment.UTC(),
		TravelMinutes:    travelMinutes,
	}
}

func lookupError(what string, id int64, err error) error {
	wrapped := fmt.Errorf("load %s %d: %w", what, id, err)
	if errors.Is(err, postgres.ErrMemberNotFound) || errors.Is(err, postgres.ErrPlaceNotFound) {
		return outbox.Permanent(wrapped)
	}
	return wrapped
}
