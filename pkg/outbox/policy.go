package outbox

import (
	"time"

	"github.com/commutealarm/commutealarm/pkg/model"
)

const maxLastErrorLen = 1024

// RetryPolicy backs off linearly: the n-th failure waits n*Step, and the
// MaxAttempts-th failure dead-letters the message.
type RetryPolicy struct {
	MaxAttempts int
	Step        time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Step: 5 * time.Minute}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Step <= 0 {
		p.Step = def.Step
	}
	return p
}

// Backoff is the delay after the given number of failed attempts.
func (p RetryPolicy) Backoff(tryCount int) time.Duration {
	return time.Duration(tryCount) * p.Step
}

func (p RetryPolicy) Succeed(msg *model.OutboxMessage, now time.Time) {
	msg.Status = model.OutboxSendSuccess
	msg.NextTryAt = nil
	msg.LastError = ""
	msg.UpdatedAt = now
}

// Fail records one failed attempt. Permanent and malformed failures
// dead-letter immediately.
func (p RetryPolicy) Fail(msg *model.OutboxMessage, err error, now time.Time) {
	msg.TryCount++
	msg.LastError = truncate(err.Error(), maxLastErrorLen)
	msg.UpdatedAt = now

	if KindOf(err) != KindTransient || msg.TryCount >= p.MaxAttempts {
		msg.Status = model.OutboxDead
		msg.NextTryAt = nil
		return
	}

	next := now.Add(p.Backoff(msg.TryCount))
	msg.Status = model.OutboxSendFail
	msg.NextTryAt = &next
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
