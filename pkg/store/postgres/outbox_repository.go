package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/commutealarm/commutealarm/pkg/model"
	"github.com/commutealarm/commutealarm/pkg/outbox"
)

var (
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
	ErrInvalidTransition     = errors.New("invalid outbox status transition")
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Insert(ctx context.Context, msg *model.OutboxMessage) error {
	if msg.Status == "" {
		msg.Status = model.OutboxInit
	}
	return conn(ctx, r.db).Create(msg).Error
}

func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var messages []model.OutboxMessage
	err := conn(ctx, r.db).
		Where("status = ?", model.OutboxInit).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) ListRetryable(ctx context.Context, now time.Time, limit int) ([]model.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var messages []model.OutboxMessage
	err := conn(ctx, r.db).
		Where("status = ? AND next_try_at <= ?", model.OutboxSendFail, now.UTC()).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) GetByID(ctx context.Context, id int64) (*model.OutboxMessage, error) {
	var msg model.OutboxMessage
	err := conn(ctx, r.db).First(&msg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOutboxMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *OutboxRepository) List(ctx context.Context, status *model.OutboxStatus, limit, offset int) ([]model.OutboxMessage, int64, error) {
	var messages []model.OutboxMessage
	var total int64

	query := conn(ctx, r.db).Model(&model.OutboxMessage{})

	if status != nil {
		query = query.Where("status = ?", *status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error

	return messages, total, err
}

// Transition persists the attempt outcome held in msg, but only if the row is
// still in the state it was read in. A racing pass that already moved the row
// gets outbox.ErrConcurrentUpdate.
func (r *OutboxRepository) Transition(ctx context.Context, msg *model.OutboxMessage, prevStatus model.OutboxStatus, prevTryCount int) error {
	if !prevStatus.CanTransitionTo(msg.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prevStatus, msg.Status)
	}

	updates := map[string]interface{}{
		"status":      msg.Status,
		"try_count":   msg.TryCount,
		"next_try_at": msg.NextTryAt,
		"last_error":  msg.LastError,
		"updated_at":  msg.UpdatedAt,
	}

	result := conn(ctx, r.db).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ? AND try_count = ?", msg.ID, prevStatus, prevTryCount).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return outbox.ErrConcurrentUpdate
	}
	return nil
}
