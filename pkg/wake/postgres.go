package wake

import (
	"context"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
)

// Postgres uses LISTEN/NOTIFY on the outbox database itself, so no extra
// infrastructure is needed.
type Postgres struct {
	db      *gorm.DB
	dsn     string
	channel string
	logger  *zap.Logger
}

func NewPostgres(db *gorm.DB, dsn, channel string, logger *zap.Logger) *Postgres {
	return &Postgres{
		db:      db,
		dsn:     dsn,
		channel: channel,
		logger:  logger.Named("wake-postgres"),
	}
}

func (p *Postgres) Notify(ctx context.Context) error {
	return p.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", p.channel, "").Error
}

func (p *Postgres) Subscribe(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)

	listener := pq.NewListener(p.dsn, minReconnectInterval, maxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			p.logger.Warn("listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(p.channel); err != nil {
		p.logger.Error("failed to listen for wake-ups, relying on the periodic tick",
			zap.Error(err),
			zap.String("channel", p.channel),
		)
		_ = listener.Close()
		close(out)
		return out
	}

	go func() {
		defer close(out)
		defer listener.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Notify:
				// A nil notification follows a reconnect; anything may have
				// been missed, so it wakes the dispatcher too.
				offer(out)
			}
		}
	}()
	return out
}
