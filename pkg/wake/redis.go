package wake

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/commutealarm/commutealarm/pkg/eventbus"
)

// Redis broadcasts wake-ups over redis pub/sub so that dispatchers in other
// processes pick up work recorded by the API server.
type Redis struct {
	bus     *eventbus.Bus
	channel string
	source  string
	logger  *zap.Logger
}

func NewRedis(bus *eventbus.Bus, channel string, logger *zap.Logger) *Redis {
	if channel == "" {
		channel = eventbus.ChannelOutboxWake
	}
	source, _ := os.Hostname()
	return &Redis{
		bus:     bus,
		channel: channel,
		source:  source,
		logger:  logger.Named("wake-redis"),
	}
}

func (r *Redis) Notify(ctx context.Context) error {
	event, err := eventbus.NewEvent(eventbus.EventOutboxWake, eventbus.WakeEvent{Source: r.source})
	if err != nil {
		return err
	}
	return r.bus.Publish(ctx, r.channel, event)
}

func (r *Redis) Subscribe(ctx context.Context) <-chan struct{} {
	events := r.bus.Subscribe(ctx, r.channel)
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		for event := range events {
			if event.Type != eventbus.EventOutboxWake {
				r.logger.Debug("ignoring event", zap.String("type", event.Type))
				continue
			}
			offer(out)
		}
	}()
	return out
}
