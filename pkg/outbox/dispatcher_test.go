package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/commutealarm/commutealarm/pkg/clock"
	"github.com/commutealarm/commutealarm/pkg/model"
	"github.com/commutealarm/commutealarm/pkg/outbox"
	"github.com/commutealarm/commutealarm/pkg/store/postgres"
	"github.com/commutealarm/commutealarm/pkg/store/storetest"
)

const pingType = "PING"

type ping struct {
	Seq int `json:"seq"`
}

func (ping) EventType() string { return pingType }

type countingNotifier struct {
	calls atomic.Int32
}

func (n *countingNotifier) Notify(context.Context) error {
	n.calls.Add(1)
	return nil
}

type pipeline struct {
	store      *postgres.Store
	repo       *postgres.OutboxRepository
	tx         *postgres.Transactor
	router     *outbox.Router
	clock      *clock.Fake
	notifier   *countingNotifier
	publisher  *outbox.Publisher
	dispatcher *outbox.Dispatcher
}

func newPipeline(t *testing.T, handle func(ctx context.Context, event ping) error) *pipeline {
	t.Helper()
	store := storetest.Open(t)
	p := &pipeline{
		store:    store,
		repo:     postgres.NewOutboxRepository(store.DB()),
		tx:       postgres.NewTransactor(store.DB()),
		router:   outbox.NewRouter(),
		clock:    clock.NewFake(time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC)),
		notifier: &countingNotifier{},
	}
	if handle != nil {
		outbox.Register(p.router, pingType, handle)
	}

	logger := zap.NewNop()
	processor := outbox.NewProcessor(p.repo, p.tx, p.router, outbox.DefaultRetryPolicy(), p.clock, logger)
	p.publisher = outbox.NewPublisher(outbox.NewRecorder(p.repo, p.clock), p.tx, p.notifier, logger)
	p.dispatcher = outbox.NewDispatcher(p.repo, processor, p.clock, logger, outbox.DispatcherConfig{
		PollInterval: 10 * time.Millisecond,
	})
	return p
}

func (p *pipeline) publish(t *testing.T, event outbox.Event) *model.OutboxMessage {
	t.Helper()
	msg, err := p.publisher.RecordAndPublish(context.Background(), event)
	require.NoError(t, err)
	return msg
}

func (p *pipeline) reload(t *testing.T, id int64) *model.OutboxMessage {
	t.Helper()
	msg, err := p.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return msg
}

func TestPublisherWakesAfterCommit(t *testing.T) {
	p := newPipeline(t, nil)

	msg := p.publish(t, ping{Seq: 1})

	stored := p.reload(t, msg.ID)
	assert.Equal(t, model.OutboxInit, stored.Status)
	assert.Equal(t, 0, stored.TryCount)
	assert.Nil(t, stored.NextTryAt)
	assert.JSONEq(t, `{"seq":1}`, string(stored.Payload))
	assert.EqualValues(t, 1, p.notifier.calls.Load())
}

func TestPublisherRollbackLeavesNoMessage(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()
	boom := errors.New("place insert failed")

	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := p.publisher.RecordAndPublish(ctx, ping{Seq: 1}); err != nil {
			return err
		}
		return boom
	})

	require.ErrorIs(t, err, boom)
	messages, total, err := p.repo.List(ctx, nil, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, messages)
	assert.Zero(t, p.notifier.calls.Load())
}

func TestDispatchPendingSucceeds(t *testing.T) {
	var handled []int
	p := newPipeline(t, func(_ context.Context, event ping) error {
		handled = append(handled, event.Seq)
		return nil
	})
	first := p.publish(t, ping{Seq: 1})
	second := p.publish(t, ping{Seq: 2})

	n, err := p.dispatcher.DispatchPendingBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1, 2}, handled)
	assert.Equal(t, model.OutboxSendSuccess, p.reload(t, first.ID).Status)
	assert.Equal(t, model.OutboxSendSuccess, p.reload(t, second.ID).Status)

	n, err = p.dispatcher.DispatchPendingBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatchBatchIsolation(t *testing.T) {
	p := newPipeline(t, func(_ context.Context, event ping) error {
		switch event.Seq {
		case 2:
			return errors.New("route api timeout")
		case 4:
			panic("nil place")
		}
		return nil
	})
	var ids []int64
	for seq := 1; seq <= 5; seq++ {
		ids = append(ids, p.publish(t, ping{Seq: seq}).ID)
	}

	_, err := p.dispatcher.DispatchPendingBatch(context.Background())
	require.NoError(t, err)

	for i, id := range ids {
		msg := p.reload(t, id)
		switch i + 1 {
		case 2, 4:
			assert.Equal(t, model.OutboxSendFail, msg.Status, "seq %d", i+1)
			assert.Equal(t, 1, msg.TryCount)
			assert.NotEmpty(t, msg.LastError)
		default:
			assert.Equal(t, model.OutboxSendSuccess, msg.Status, "seq %d", i+1)
			assert.Zero(t, msg.TryCount)
		}
	}
	assert.Contains(t, p.reload(t, ids[3]).LastError, "outbox handler panic")
}

func TestRetryBackoffUntilDead(t *testing.T) {
	var attempts atomic.Int32
	p := newPipeline(t, func(context.Context, ping) error {
		attempts.Add(1)
		return errors.New("route api unavailable")
	})
	ctx := context.Background()
	id := p.publish(t, ping{Seq: 1}).ID

	_, err := p.dispatcher.DispatchPendingBatch(ctx)
	require.NoError(t, err)

	for try := 1; try <= 4; try++ {
		msg := p.reload(t, id)
		require.Equal(t, model.OutboxSendFail, msg.Status, "try %d", try)
		require.Equal(t, try, msg.TryCount)
		require.NotNil(t, msg.NextTryAt)
		wait := time.Duration(try) * 5 * time.Minute
		assert.True(t, msg.NextTryAt.Equal(p.clock.Now().Add(wait)), "try %d next %s", try, msg.NextTryAt)

		p.clock.Advance(wait - time.Second)
		n, err := p.dispatcher.DispatchRetryBatch(ctx)
		require.NoError(t, err)
		require.Zero(t, n, "retried before backoff elapsed")

		p.clock.Advance(time.Second)
		n, err = p.dispatcher.DispatchRetryBatch(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	msg := p.reload(t, id)
	assert.Equal(t, model.OutboxDead, msg.Status)
	assert.Equal(t, 5, msg.TryCount)
	assert.Nil(t, msg.NextTryAt)
	assert.EqualValues(t, 5, attempts.Load())

	p.clock.Advance(time.Hour)
	n, err := p.dispatcher.DispatchRetryBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNonRetryableFailuresGoStraightToDead(t *testing.T) {
	p := newPipeline(t, func(_ context.Context, event ping) error {
		return outbox.Permanent(errors.New("member not found"))
	})
	ctx := context.Background()
	permanent := p.publish(t, ping{Seq: 1}).ID

	recorder := outbox.NewRecorder(p.repo, p.clock)
	unknown, err := recorder.Record(ctx, "SOMETHING_ELSE", []byte(`{}`))
	require.NoError(t, err)
	malformed, err := recorder.Record(ctx, pingType, []byte(`{"seq":"one"}`))
	require.NoError(t, err)

	_, err = p.dispatcher.DispatchPendingBatch(ctx)
	require.NoError(t, err)

	for _, id := range []int64{permanent, unknown.ID, malformed.ID} {
		msg := p.reload(t, id)
		assert.Equal(t, model.OutboxDead, msg.Status, "message %d", id)
		assert.Equal(t, 1, msg.TryCount)
	}
	assert.Contains(t, p.reload(t, unknown.ID).LastError, "not registered")
}

func TestStaleTransitionRollsBackHandlerWrites(t *testing.T) {
	var p *pipeline
	members := func() *postgres.MemberRepository { return postgres.NewMemberRepository(p.store.DB()) }
	p = newPipeline(t, func(ctx context.Context, event ping) error {
		if err := members().Create(ctx, &model.Member{Nickname: "side effect"}); err != nil {
			return err
		}
		// Another pass finishes the message first.
		msgs, err := p.repo.ListPending(ctx, 1)
		if err != nil || len(msgs) != 1 {
			return errors.New("message not visible")
		}
		racer := msgs[0]
		racer.Status = model.OutboxSendFail
		racer.TryCount = 1
		return p.repo.Transition(ctx, &racer, model.OutboxInit, 0)
	})
	ctx := context.Background()
	id := p.publish(t, ping{Seq: 1}).ID

	_, err := p.dispatcher.DispatchPendingBatch(ctx)
	require.NoError(t, err)

	msg := p.reload(t, id)
	assert.Equal(t, model.OutboxInit, msg.Status)
	assert.Zero(t, msg.TryCount)
	_, err = members().GetIfExists(ctx, 1)
	assert.ErrorIs(t, err, postgres.ErrMemberNotFound)
}

func TestTimerAloneDeliversEverything(t *testing.T) {
	var handled atomic.Int32
	p := newPipeline(t, func(context.Context, ping) error {
		handled.Add(1)
		return nil
	})
	for seq := 1; seq <= 3; seq++ {
		p.publish(t, ping{Seq: seq})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.dispatcher.Run(ctx, nil) }()

	require.Eventually(t, func() bool { return handled.Load() == 3 }, 2*time.Second, 10*time.Millisecond)

	// Recorded after the startup pass, so only a later tick can pick it up.
	late := p.publish(t, ping{Seq: 4})
	require.Eventually(t, func() bool { return handled.Load() == 4 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, model.OutboxSendSuccess, p.reload(t, late.ID).Status)
	status := model.OutboxSendSuccess
	_, total, err := p.repo.List(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
}

func TestTryDispatchAsyncRefusesAfterShutdown(t *testing.T) {
	var handled atomic.Int32
	p := newPipeline(t, func(context.Context, ping) error {
		handled.Add(1)
		return nil
	})
	msg := p.publish(t, ping{Seq: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, p.dispatcher.TryDispatchAsync(ctx))
	p.dispatcher.Wait()
	assert.Zero(t, handled.Load())
	assert.Equal(t, model.OutboxInit, p.reload(t, msg.ID).Status)
}

func TestTryDispatchAsyncDropsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var handled atomic.Int32
	p := newPipeline(t, func(context.Context, ping) error {
		started <- struct{}{}
		<-release
		handled.Add(1)
		return nil
	})
	p.dispatcher = outbox.NewDispatcher(p.repo,
		outbox.NewProcessor(p.repo, p.tx, p.router, outbox.DefaultRetryPolicy(), p.clock, zap.NewNop()),
		p.clock, zap.NewNop(), outbox.DispatcherConfig{Workers: 1})
	p.publish(t, ping{Seq: 1})
	ctx := context.Background()

	require.True(t, p.dispatcher.TryDispatchAsync(ctx))
	<-started
	assert.False(t, p.dispatcher.TryDispatchAsync(ctx), "wake accepted while the only worker is busy")

	close(release)
	p.dispatcher.Wait()
	assert.EqualValues(t, 1, handled.Load())

	require.True(t, p.dispatcher.TryDispatchAsync(ctx))
	p.dispatcher.Wait()
	assert.EqualValues(t, 1, handled.Load())
}

func TestRecordRejectsInvalidPayload(t *testing.T) {
	p := newPipeline(t, nil)
	recorder := outbox.NewRecorder(p.repo, p.clock)

	_, err := recorder.Record(context.Background(), pingType, []byte("not json"))
	assert.ErrorIs(t, err, outbox.ErrInvalidPayload)

	_, err = recorder.Record(context.Background(), "", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, outbox.ErrEventTypeRequired)
}
