package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/commutealarm/commutealarm/pkg/model"
)

type handlerFunc func(ctx context.Context, payload []byte) error

// Router maps event types to typed domain handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]handlerFunc
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]handlerFunc)}
}

// Register binds eventType to handle. Payloads that do not decode into E are
// reported as malformed.
func Register[E any](r *Router, eventType string, handle func(ctx context.Context, event E) error) {
	if handle == nil {
		panic("outbox: nil handler for " + eventType)
	}
	r.add(eventType, func(ctx context.Context, payload []byte) error {
		var event E
		if err := json.Unmarshal(payload, &event); err != nil {
			return Malformed(fmt.Errorf("decode %s payload: %w", eventType, err))
		}
		return handle(ctx, event)
	})
}

func (r *Router) add(eventType string, h handlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[eventType]; exists {
		panic("outbox: duplicate handler for " + eventType)
	}
	r.handlers[eventType] = h
}

func (r *Router) Route(ctx context.Context, msg *model.OutboxMessage) error {
	r.mu.RLock()
	h, ok := r.handlers[msg.EventType]
	r.mu.RUnlock()
	if !ok {
		return Malformed(fmt.Errorf("%w: %q", ErrUnknownEventType, msg.EventType))
	}
	return h(ctx, msg.Payload)
}

func (r *Router) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for eventType := range r.handlers {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}
