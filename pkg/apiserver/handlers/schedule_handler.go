package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/commutealarm/commutealarm/pkg/alarm"
	"github.com/commutealarm/commutealarm/pkg/apiserver/middleware"
	"github.com/commutealarm/commutealarm/pkg/clock"
	"github.com/commutealarm/commutealarm/pkg/model"
	"github.com/commutealarm/commutealarm/pkg/schedule"
	"github.com/commutealarm/commutealarm/pkg/store/postgres"
)

type ScheduleService interface {
	RequestQuickSchedule(ctx context.Context, memberID int64, req schedule.QuickScheduleRequest) (*schedule.QuickScheduleReceipt, error)
	List(ctx context.Context, memberID int64) ([]model.Schedule, error)
	SwitchAlarm(ctx context.Context, memberID, scheduleID int64, kind model.AlarmKind, enabled bool) (*model.Schedule, error)
	UpdateRepeat(ctx context.Context, memberID, scheduleID int64, days []alarm.Weekday) (*model.Schedule, error)
}

type ScheduleHandler struct {
	service ScheduleService
	zone    clock.Zone
	logger  *zap.Logger
}

func NewScheduleHandler(service ScheduleService, zone clock.Zone, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{service: service, zone: zone, logger: logger}
}

type placeResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address,omitempty"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

type alarmResponse struct {
	Enabled       bool       `json:"enabled"`
	Mode          alarm.Mode `json:"mode"`
	SnoozeMinutes int        `json:"snoozeMinutes"`
	SnoozeCount   int        `json:"snoozeCount"`
	Sound         string     `json:"sound,omitempty"`
	TriggeredAt   string     `json:"triggeredAt"`
}

type scheduleResponse struct {
	ID               int64           `json:"id"`
	Title            string          `json:"title"`
	DeparturePlace   *placeResponse  `json:"departurePlace,omitempty"`
	ArrivalPlace     *placeResponse  `json:"arrivalPlace,omitempty"`
	AppointmentAt    string          `json:"appointmentAt"`
	TravelMinutes    int             `json:"travelMinutes"`
	PreparationAlarm alarmResponse   `json:"preparationAlarm"`
	DepartureAlarm   alarmResponse   `json:"departureAlarm"`
	IsRepeat         bool            `json:"isRepeat"`
	RepeatDays       []alarm.Weekday `json:"repeatDays"`
	NextAlarmAt      string          `json:"nextAlarmAt"`
}

type switchAlarmRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type updateRepeatRequest struct {
	Days []alarm.Weekday `json:"days"`
}

// Create accepts a quick schedule request. The schedule appears once the
// dispatcher has handled the recorded event.
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req schedule.QuickScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	receipt, err := h.service.RequestQuickSchedule(c.Request.Context(), middleware.MemberID(c), req)
	if err != nil {
		h.fail(c, "failed to request quick schedule", err)
		return
	}

	c.JSON(http.StatusAccepted, receipt)
}

func (h *ScheduleHandler) List(c *gin.Context) {
	schedules, err := h.service.List(c.Request.Context(), middleware.MemberID(c))
	if err != nil {
		h.fail(c, "failed to list schedules", err)
		return
	}

	response := make([]scheduleResponse, 0, len(schedules))
	for i := range schedules {
		response = append(response, h.mapSchedule(&schedules[i]))
	}

	c.JSON(http.StatusOK, gin.H{"schedules": response})
}

func (h *ScheduleHandler) SwitchAlarm(c *gin.Context) {
	scheduleID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return
	}
	kind, err := model.ParseAlarmKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alarm kind"})
		return
	}
	var req switchAlarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	updated, err := h.service.SwitchAlarm(c.Request.Context(), middleware.MemberID(c), scheduleID, kind, *req.Enabled)
	if err != nil {
		h.fail(c, "failed to switch alarm", err)
		return
	}

	c.JSON(http.StatusOK, h.mapSchedule(updated))
}

func (h *ScheduleHandler) UpdateRepeat(c *gin.Context) {
	scheduleID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return
	}
	var req updateRepeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	updated, err := h.service.UpdateRepeat(c.Request.Context(), middleware.MemberID(c), scheduleID, req.Days)
	if err != nil {
		h.fail(c, "failed to update repeat", err)
		return
	}

	c.JSON(http.StatusOK, h.mapSchedule(updated))
}

func (h *ScheduleHandler) fail(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidRequest),
		errors.Is(err, alarm.ErrEmptyRepeatDays),
		errors.Is(err, alarm.ErrInvalidWeekday),
		errors.Is(err, alarm.ErrDuplicateWeekday),
		errors.Is(err, alarm.ErrUnexpectedRepeat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, postgres.ErrMemberNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
	case errors.Is(err, postgres.ErrScheduleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
	default:
		h.logger.Error(msg, zap.Error(err), zap.Int64("member_id", middleware.MemberID(c)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func (h *ScheduleHandler) mapSchedule(s *model.Schedule) scheduleResponse {
	days := make([]alarm.Weekday, 0, len(s.RepeatDays))
	days = append(days, s.RepeatDays...)

	return scheduleResponse{
		ID:               s.ID,
		Title:            s.Title,
		DeparturePlace:   mapPlace(s.DeparturePlace),
		ArrivalPlace:     mapPlace(s.ArrivalPlace),
		AppointmentAt:    localTime(h.zone, s.AppointmentAt),
		TravelMinutes:    s.TravelMinutes,
		PreparationAlarm: h.mapAlarm(s.PreparationAlarm),
		DepartureAlarm:   h.mapAlarm(s.DepartureAlarm),
		IsRepeat:         s.IsRepeat,
		RepeatDays:       days,
		NextAlarmAt:      localTime(h.zone, s.NextAlarmAt),
	}
}

func (h *ScheduleHandler) mapAlarm(a alarm.Alarm) alarmResponse {
	return alarmResponse{
		Enabled:       a.Enabled,
		Mode:          a.Mode,
		SnoozeMinutes: a.SnoozeMinutes,
		SnoozeCount:   a.SnoozeCount,
		Sound:         a.Sound,
		TriggeredAt:   localTime(h.zone, a.TriggeredAt),
	}
}

func mapPlace(p *model.Place) *placeResponse {
	if p == nil {
		return nil
	}
	return &placeResponse{
		ID:        p.ID,
		Name:      p.Name,
		Address:   p.Address,
		Longitude: p.Longitude,
		Latitude:  p.Latitude,
	}
}
