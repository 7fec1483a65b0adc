package outbox

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/commutealarm/commutealarm/pkg/clock"
	"github.com/commutealarm/commutealarm/pkg/model"
)

type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRetry    Outcome = "retry"
	OutcomeDead     Outcome = "dead"
	OutcomeConflict Outcome = "conflict"
	OutcomeError    Outcome = "error"
)

// Processor handles one message: it routes the message to its domain
// handler and persists the attempt outcome. It never returns an error; every
// failure becomes a status update on the message.
type Processor struct {
	store  MessageStore
	tx     Transactor
	router *Router
	policy RetryPolicy
	clock  clock.Clock
	logger *zap.Logger
}

func NewProcessor(store MessageStore, tx Transactor, router *Router, policy RetryPolicy, clk clock.Clock, logger *zap.Logger) *Processor {
	if clk == nil {
		clk = clock.System{}
	}
	return &Processor{
		store:  store,
		tx:     tx,
		router: router,
		policy: policy.withDefaults(),
		clock:  clk,
		logger: logger.Named("outbox-processor"),
	}
}

func (p *Processor) Process(ctx context.Context, msg model.OutboxMessage) Outcome {
	prevStatus, prevTryCount := msg.Status, msg.TryCount

	// Handler writes and SEND_SUCCESS commit together.
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := p.invoke(ctx, &msg); err != nil {
			return err
		}
		done := msg
		p.policy.Succeed(&done, p.clock.Now())
		return p.store.Transition(ctx, &done, prevStatus, prevTryCount)
	})
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, ErrConcurrentUpdate) {
		p.logger.Debug("outbox message already handled by another pass",
			zap.Int64("message_id", msg.ID),
			zap.String("event_type", msg.EventType),
		)
		return OutcomeConflict
	}

	failed := msg
	p.policy.Fail(&failed, err, p.clock.Now())
	if terr := p.store.Transition(ctx, &failed, prevStatus, prevTryCount); terr != nil {
		if errors.Is(terr, ErrConcurrentUpdate) {
			return OutcomeConflict
		}
		p.logger.Error("failed to persist outbox attempt",
			zap.Error(terr),
			zap.NamedError("handler_error", err),
			zap.Int64("message_id", msg.ID),
			zap.String("event_type", msg.EventType),
		)
		return OutcomeError
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.Int64("message_id", failed.ID),
		zap.String("event_type", failed.EventType),
		zap.Int("try_count", failed.TryCount),
		zap.Stringer("error_kind", KindOf(err)),
	}
	if failed.Status == model.OutboxDead {
		p.logger.Error("outbox message dead-lettered", fields...)
		return OutcomeDead
	}
	p.logger.Warn("outbox message failed, will retry", append(fields, zap.Timep("next_try_at", failed.NextTryAt))...)
	return OutcomeRetry
}

func (p *Processor) invoke(ctx context.Context, msg *model.OutboxMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()
	return p.router.Route(ctx, msg)
}
