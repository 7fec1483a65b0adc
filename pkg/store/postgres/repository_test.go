package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutealarm/commutealarm/pkg/alarm"
	"github.com/commutealarm/commutealarm/pkg/model"
	"github.com/commutealarm/commutealarm/pkg/outbox"
	"github.com/commutealarm/commutealarm/pkg/store/postgres"
	"github.com/commutealarm/commutealarm/pkg/store/storetest"
)

var base = time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC)

func insertMessage(ctx context.Context, t *testing.T, repo *postgres.OutboxRepository, eventType string) *model.OutboxMessage {
	t.Helper()
	msg := &model.OutboxMessage{
		EventType: eventType,
		Payload:   []byte(`{}`),
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, repo.Insert(ctx, msg))
	require.NotZero(t, msg.ID)
	return msg
}

func TestOutboxInsertDefaultsToInit(t *testing.T) {
	repo := postgres.NewOutboxRepository(storetest.Open(t).DB())
	ctx := context.Background()
	msg := insertMessage(ctx, t, repo, "A")

	stored, err := repo.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutboxInit, stored.Status)
	assert.Zero(t, stored.TryCount)
	assert.Nil(t, stored.NextTryAt)

	_, err = repo.GetByID(ctx, msg.ID+1)
	assert.ErrorIs(t, err, postgres.ErrOutboxMessageNotFound)
}

func TestOutboxListPendingOrdersByID(t *testing.T) {
	repo := postgres.NewOutboxRepository(storetest.Open(t).DB())
	ctx := context.Background()
	for _, eventType := range []string{"A", "B", "C"} {
		insertMessage(ctx, t, repo, eventType)
	}

	pending, err := repo.ListPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "A", pending[0].EventType)
	assert.Equal(t, "B", pending[1].EventType)
}

func TestOutboxListRetryableHonoursNextTryAt(t *testing.T) {
	repo := postgres.NewOutboxRepository(storetest.Open(t).DB())
	ctx := context.Background()

	due := insertMessage(ctx, t, repo, "due")
	later := insertMessage(ctx, t, repo, "later")
	for msg, wait := range map[*model.OutboxMessage]time.Duration{due: 5 * time.Minute, later: 10 * time.Minute} {
		next := base.Add(wait)
		msg.Status = model.OutboxSendFail
		msg.TryCount = 1
		msg.NextTryAt = &next
		require.NoError(t, repo.Transition(ctx, msg, model.OutboxInit, 0))
	}

	retryable, err := repo.ListRetryable(ctx, base.Add(5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, due.ID, retryable[0].ID)

	pending, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxTransitionIsConditional(t *testing.T) {
	repo := postgres.NewOutboxRepository(storetest.Open(t).DB())
	ctx := context.Background()
	msg := insertMessage(ctx, t, repo, "A")

	first := *msg
	first.Status = model.OutboxSendSuccess
	require.NoError(t, repo.Transition(ctx, &first, model.OutboxInit, 0))

	second := *msg
	second.Status = model.OutboxSendFail
	second.TryCount = 1
	err := repo.Transition(ctx, &second, model.OutboxInit, 0)
	assert.ErrorIs(t, err, outbox.ErrConcurrentUpdate)

	stored, err := repo.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutboxSendSuccess, stored.Status)
}

func TestOutboxTransitionRejectsInvalidMoves(t *testing.T) {
	repo := postgres.NewOutboxRepository(storetest.Open(t).DB())
	ctx := context.Background()
	msg := insertMessage(ctx, t, repo, "A")

	msg.Status = model.OutboxInit
	err := repo.Transition(ctx, msg, model.OutboxSendSuccess, 0)
	assert.ErrorIs(t, err, postgres.ErrInvalidTransition)
}

func TestOutboxListFiltersByStatus(t *testing.T) {
	repo := postgres.NewOutboxRepository(storetest.Open(t).DB())
	ctx := context.Background()
	a := insertMessage(ctx, t, repo, "A")
	insertMessage(ctx, t, repo, "B")
	a.Status = model.OutboxDead
	a.TryCount = 1
	require.NoError(t, repo.Transition(ctx, a, model.OutboxInit, 0))

	all, total, err := repo.List(ctx, nil, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "B", all[0].EventType)

	dead := model.OutboxDead
	deadOnly, total, err := repo.List(ctx, &dead, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, deadOnly, 1)
	assert.Equal(t, a.ID, deadOnly[0].ID)
}

func TestTransactorAfterCommit(t *testing.T) {
	store := storetest.Open(t)
	tx := postgres.NewTransactor(store.DB())
	repo := postgres.NewOutboxRepository(store.DB())
	ctx := context.Background()

	var fired int
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		assert.True(t, postgres.InTx(ctx))
		insertMessage(ctx, t, repo, "committed")
		tx.AfterCommit(ctx, func() { fired++ })
		assert.Zero(t, fired)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	boom := errors.New("boom")
	err = tx.WithinTx(ctx, func(ctx context.Context) error {
		insertMessage(ctx, t, repo, "rolled back")
		tx.AfterCommit(ctx, func() { fired++ })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, fired)

	_, total, err := repo.List(ctx, nil, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	tx.AfterCommit(ctx, func() { fired++ })
	assert.Equal(t, 2, fired)
}

func TestTransactorNestedJoinsOuter(t *testing.T) {
	store := storetest.Open(t)
	tx := postgres.NewTransactor(store.DB())
	repo := postgres.NewOutboxRepository(store.DB())
	ctx := context.Background()

	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := tx.WithinTx(ctx, func(ctx context.Context) error {
			insertMessage(ctx, t, repo, "inner")
			return nil
		}); err != nil {
			return err
		}
		return errors.New("outer fails")
	})
	require.Error(t, err)

	_, total, err := repo.List(ctx, nil, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func newSchedule(memberID int64, key string) *model.Schedule {
	at := base.Add(8 * time.Hour)
	return &model.Schedule{
		MemberID:         memberID,
		DedupKey:         key,
		Title:            "home - office",
		PreparationAlarm: alarm.Settings{Mode: alarm.ModeSound}.NewAlarm(true, at.Add(-20*time.Minute)),
		DepartureAlarm:   alarm.Settings{Mode: alarm.ModeSound}.NewAlarm(true, at),
		AppointmentAt:    at.Add(40 * time.Minute),
		TravelMinutes:    40,
		NextAlarmAt:      at.Add(-20 * time.Minute),
	}
}

func TestScheduleSaveIsInsertIfAbsent(t *testing.T) {
	repo := postgres.NewScheduleRepository(storetest.Open(t).DB())
	ctx := context.Background()

	first, err := repo.Save(ctx, newSchedule(1, "key-1"))
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	duplicate := newSchedule(1, "key-1")
	duplicate.Title = "other"
	second, err := repo.Save(ctx, duplicate)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "home - office", second.Title)

	count, err := repo.CountByMember(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	_, err = repo.FindByDedupKey(ctx, "missing")
	assert.ErrorIs(t, err, postgres.ErrScheduleNotFound)
}

func TestScheduleUpdateAlarms(t *testing.T) {
	repo := postgres.NewScheduleRepository(storetest.Open(t).DB())
	ctx := context.Background()

	saved, err := repo.Save(ctx, newSchedule(7, "key-7"))
	require.NoError(t, err)

	saved.DepartureAlarm.Enabled = false
	require.NoError(t, saved.SetRepeat([]alarm.Weekday{alarm.Monday, alarm.Friday}))
	saved.NextAlarmAt = base.Add(24 * time.Hour)
	require.NoError(t, repo.UpdateAlarms(ctx, saved))

	reloaded, err := repo.GetForMember(ctx, 7, saved.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.DepartureAlarm.Enabled)
	assert.True(t, reloaded.PreparationAlarm.Enabled)
	assert.True(t, reloaded.IsRepeat)
	assert.Equal(t, model.RepeatDays{alarm.Monday, alarm.Friday}, reloaded.RepeatDays)
	assert.True(t, reloaded.NextAlarmAt.Equal(base.Add(24*time.Hour)))

	_, err = repo.GetForMember(ctx, 8, saved.ID)
	assert.ErrorIs(t, err, postgres.ErrScheduleNotFound)
}

func TestMemberAndPlaceLookups(t *testing.T) {
	db := storetest.Open(t).DB()
	members := postgres.NewMemberRepository(db)
	places := postgres.NewPlaceRepository(db)
	ctx := context.Background()

	member := &model.Member{Nickname: "commuter", PreparationMinutes: 15}
	require.NoError(t, members.Create(ctx, member))

	loaded, err := members.GetIfExists(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, alarm.ModeSound, loaded.AlarmDefaults.Mode)

	_, err = members.GetIfExists(ctx, member.ID+1)
	assert.ErrorIs(t, err, postgres.ErrMemberNotFound)

	place := &model.Place{MemberID: member.ID, Name: "home", Longitude: 127, Latitude: 37.5}
	require.NoError(t, places.Create(ctx, place))
	require.NoError(t, places.Delete(ctx, place.ID))
	_, err = places.GetByID(ctx, place.ID)
	assert.ErrorIs(t, err, postgres.ErrPlaceNotFound)
}
