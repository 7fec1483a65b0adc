// Package wake delivers best-effort "outbox has new work" signals from the
// request path to dispatchers. Lost signals only delay dispatch until the
// next periodic tick.
package wake

import (
	"context"
	"errors"
	"sync"
)

type Signal interface {
	Notify(ctx context.Context) error
	// Subscribe returns a channel that receives coalesced wake-ups until ctx
	// is done, after which it is closed.
	Subscribe(ctx context.Context) <-chan struct{}
}

const (
	DriverLocal    = "local"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

var ErrUnknownDriver = errors.New("unknown wake driver")

// offer performs a non-blocking send; a pending wake-up already covers this one.
func offer(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Local fans wake-ups out to subscribers in the same process.
type Local struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func NewLocal() *Local {
	return &Local{subs: make(map[chan struct{}]struct{})}
}

func (l *Local) Notify(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subs {
		offer(ch)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, ch)
		close(ch)
		l.mu.Unlock()
	}()
	return ch
}
