package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/commutealarm/commutealarm/pkg/clock"
	"github.com/commutealarm/commutealarm/pkg/metrics"
	"github.com/commutealarm/commutealarm/pkg/model"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = 60 * time.Second
	defaultWorkers      = 2
)

type DispatcherConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// Workers bounds concurrent wake-triggered batches.
	Workers int
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	return c
}

// Dispatcher selects due messages and hands each one to the Processor in its
// own transaction. The periodic tick alone keeps the pipeline correct; wake
// signals only shorten latency.
type Dispatcher struct {
	store     MessageStore
	processor *Processor
	clock     clock.Clock
	logger    *zap.Logger
	cfg       DispatcherConfig

	slots chan struct{}
	wg    sync.WaitGroup
}

func NewDispatcher(store MessageStore, processor *Processor, clk clock.Clock, logger *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	if clk == nil {
		clk = clock.System{}
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		store:     store,
		processor: processor,
		clock:     clk,
		logger:    logger.Named("outbox-dispatcher"),
		cfg:       cfg,
		slots:     make(chan struct{}, cfg.Workers),
	}
}

// DispatchPendingBatch handles up to BatchSize INIT messages in id order.
func (d *Dispatcher) DispatchPendingBatch(ctx context.Context) (int, error) {
	messages, err := d.store.ListPending(ctx, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending outbox messages: %w", err)
	}
	d.dispatch(ctx, "pending", messages)
	return len(messages), nil
}

// DispatchRetryBatch handles up to BatchSize SEND_FAIL messages whose
// backoff has elapsed.
func (d *Dispatcher) DispatchRetryBatch(ctx context.Context) (int, error) {
	messages, err := d.store.ListRetryable(ctx, d.clock.Now(), d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list retryable outbox messages: %w", err)
	}
	d.dispatch(ctx, "retry", messages)
	return len(messages), nil
}

// Tick runs the retry batch, then the pending batch.
func (d *Dispatcher) Tick(ctx context.Context) {
	if _, err := d.DispatchRetryBatch(ctx); err != nil {
		d.logger.Warn("outbox retry batch failed", zap.Error(err))
	}
	if _, err := d.DispatchPendingBatch(ctx); err != nil {
		d.logger.Warn("outbox pending batch failed", zap.Error(err))
	}
}

// TryDispatchAsync starts a pending batch on the worker pool. It reports
// false and drops the request when every worker is busy or ctx is done.
func (d *Dispatcher) TryDispatchAsync(ctx context.Context) bool {
	if ctx.Err() != nil {
		metrics.WakeSignalsTotal.WithLabelValues("stopped").Inc()
		return false
	}
	select {
	case d.slots <- struct{}{}:
	default:
		metrics.WakeSignalsTotal.WithLabelValues("dropped").Inc()
		return false
	}
	metrics.WakeSignalsTotal.WithLabelValues("accepted").Inc()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()
		if _, err := d.DispatchPendingBatch(ctx); err != nil {
			d.logger.Warn("outbox wake batch failed", zap.Error(err))
		}
	}()
	return true
}

// Run ticks every PollInterval and dispatches on each wake-up until ctx is
// done. A nil wakeups channel leaves only the timer.
func (d *Dispatcher) Run(ctx context.Context, wakeups <-chan struct{}) error {
	d.logger.Info("outbox dispatcher starting",
		zap.Duration("poll_interval", d.cfg.PollInterval),
		zap.Int("batch_size", d.cfg.BatchSize),
		zap.Int("workers", d.cfg.Workers),
	)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher shutting down")
			d.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			d.Tick(ctx)
		case _, ok := <-wakeups:
			if !ok {
				wakeups = nil
				continue
			}
			d.TryDispatchAsync(ctx)
		}
	}
}

// Wait blocks until in-flight async batches finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, batch string, messages []model.OutboxMessage) {
	start := time.Now()
	metrics.OutboxBatchSize.WithLabelValues(batch).Observe(float64(len(messages)))

	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		d.dispatchOne(ctx, msg)
	}

	metrics.OutboxBatchDuration.WithLabelValues(batch).Observe(time.Since(start).Seconds())
}

func (d *Dispatcher) dispatchOne(ctx context.Context, msg model.OutboxMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("outbox dispatch panic",
				zap.Any("panic", rec),
				zap.Int64("message_id", msg.ID),
				zap.String("event_type", msg.EventType),
			)
		}
	}()

	outcome := d.processor.Process(ctx, msg)
	metrics.OutboxMessagesTotal.WithLabelValues(msg.EventType, string(outcome)).Inc()
}
