package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/commutealarm/commutealarm/pkg/model"
)

var ErrScheduleNotFound = errors.New("schedule not found")

type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Save inserts the schedule unless one with the same dedup key exists, in
// which case the stored schedule is returned.
func (r *ScheduleRepository) Save(ctx context.Context, schedule *model.Schedule) (*model.Schedule, error) {
	result := conn(ctx, r.db).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}},
			DoNothing: true,
		}).
		Create(schedule)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return r.FindByDedupKey(ctx, schedule.DedupKey)
	}
	return schedule, nil
}

func (r *ScheduleRepository) FindByDedupKey(ctx context.Context, key string) (*model.Schedule, error) {
	var schedule model.Schedule
	err := conn(ctx, r.db).First(&schedule, "dedup_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (r *ScheduleRepository) GetForMember(ctx context.Context, memberID, id int64) (*model.Schedule, error) {
	var schedule model.Schedule
	err := conn(ctx, r.db).
		Preload("DeparturePlace").
		Preload("ArrivalPlace").
		First(&schedule, "id = ? AND member_id = ?", id, memberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (r *ScheduleRepository) ListByMember(ctx context.Context, memberID int64) ([]model.Schedule, error) {
	var schedules []model.Schedule
	err := conn(ctx, r.db).
		Preload("DeparturePlace").
		Preload("ArrivalPlace").
		Where("member_id = ?", memberID).
		Order("id ASC").
		Find(&schedules).Error
	return schedules, err
}

func (r *ScheduleRepository) CountByMember(ctx context.Context, memberID int64) (int64, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&model.Schedule{}).
		Where("member_id = ?", memberID).
		Count(&count).Error
	return count, err
}

// UpdateAlarms writes the alarm switches, the repeat setting and the
// recomputed next alarm.
func (r *ScheduleRepository) UpdateAlarms(ctx context.Context, schedule *model.Schedule) error {
	updates := map[string]interface{}{
		"preparation_enabled": schedule.PreparationAlarm.Enabled,
		"departure_enabled":   schedule.DepartureAlarm.Enabled,
		"is_repeat":           schedule.IsRepeat,
		"repeat_days":         schedule.RepeatDays,
		"next_alarm_at":       schedule.NextAlarmAt,
	}
	return conn(ctx, r.db).
		Model(&model.Schedule{}).
		Where("id = ?", schedule.ID).
		Updates(updates).Error
}

func (r *ScheduleRepository) UpdateNextAlarmAt(ctx context.Context, id int64, at time.Time) error {
	return conn(ctx, r.db).
		Model(&model.Schedule{}).
		Where("id = ?", id).
		Update("next_alarm_at", at.UTC()).Error
}
