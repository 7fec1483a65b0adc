package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/commutealarm/commutealarm/pkg/clock"
	"github.com/commutealarm/commutealarm/pkg/metrics"
	"github.com/commutealarm/commutealarm/pkg/model"
)

// MessageStore persists outbox rows. Writes join the transaction carried by
// ctx when there is one.
type MessageStore interface {
	Insert(ctx context.Context, msg *model.OutboxMessage) error
	ListPending(ctx context.Context, limit int) ([]model.OutboxMessage, error)
	ListRetryable(ctx context.Context, now time.Time, limit int) ([]model.OutboxMessage, error)
	Transition(ctx context.Context, msg *model.OutboxMessage, prevStatus model.OutboxStatus, prevTryCount int) error
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	AfterCommit(ctx context.Context, fn func())
}

// Notifier wakes the dispatcher. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context) error
}

// Event is a domain event that can be recorded in the outbox.
type Event interface {
	EventType() string
}

// Recorder writes INIT messages inside the caller's transaction.
type Recorder struct {
	store MessageStore
	clock clock.Clock
}

func NewRecorder(store MessageStore, clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.System{}
	}
	return &Recorder{store: store, clock: clk}
}

func (r *Recorder) Record(ctx context.Context, eventType string, payload []byte) (*model.OutboxMessage, error) {
	if eventType == "" {
		return nil, ErrEventTypeRequired
	}
	if !json.Valid(payload) {
		return nil, ErrInvalidPayload
	}

	now := r.clock.Now()
	msg := &model.OutboxMessage{
		EventType: eventType,
		Payload:   datatypes.JSON(payload),
		Status:    model.OutboxInit,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("record outbox message: %w", err)
	}
	metrics.OutboxRecordedTotal.WithLabelValues(eventType).Inc()
	return msg, nil
}

// Publisher records events and wakes the dispatcher once the surrounding
// transaction commits.
type Publisher struct {
	recorder *Recorder
	tx       Transactor
	notifier Notifier
	logger   *zap.Logger
}

func NewPublisher(recorder *Recorder, tx Transactor, notifier Notifier, logger *zap.Logger) *Publisher {
	return &Publisher{
		recorder: recorder,
		tx:       tx,
		notifier: notifier,
		logger:   logger.Named("outbox-publisher"),
	}
}

func (p *Publisher) RecordAndPublish(ctx context.Context, event Event) (*model.OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event.EventType(), err)
	}

	var msg *model.OutboxMessage
	err = p.tx.WithinTx(ctx, func(ctx context.Context) error {
		recorded, err := p.recorder.Record(ctx, event.EventType(), payload)
		if err != nil {
			return err
		}
		msg = recorded
		p.tx.AfterCommit(ctx, func() {
			p.wake(context.WithoutCancel(ctx), recorded)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (p *Publisher) wake(ctx context.Context, msg *model.OutboxMessage) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx); err != nil {
		p.logger.Warn("failed to wake outbox dispatcher",
			zap.Error(err),
			zap.Int64("message_id", msg.ID),
		)
	}
}
