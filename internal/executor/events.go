package executor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type EventKind string

const (
	EventAttempt EventKind = "attempt" // a response (or network failure) for one send
	EventRefresh EventKind = "refresh" // a token refresh finished
	EventBackoff EventKind = "backoff" // about to sleep after a 429
	EventDone    EventKind = "done"    // terminal outcome
)

// Event is a progress notification from Execute. Fields not relevant to Kind are zero.
type Event struct {
	Kind      EventKind
	Tenant    string
	Operation string
	Method    string
	Path      string
	Attempt   int // sends so far
	Status    int
	Reason    string // refresh: "missing" or "auth"
	Wait      time.Duration
	Outcome   Outcome
	Refreshes int
	Duration  time.Duration
	Err       error
}

// Observer receives progress events synchronously; implementations must not block.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans out to every non-nil observer in order.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, ev)
		}
	}
}

type logObserver struct {
	log *zap.SugaredLogger
}

// NewLogObserver writes attempts and refreshes at debug, backoffs at info,
// and failures at warn.
func NewLogObserver(log *zap.SugaredLogger) Observer { return logObserver{log: log} }

func (l logObserver) Observe(_ context.Context, ev Event) {
	base := []any{"tenant", ev.Tenant, "op", ev.Operation, "attempt", ev.Attempt}
	switch ev.Kind {
	case EventAttempt:
		l.log.Debugw("api attempt", append(base, "method", ev.Method, "path", ev.Path, "status", ev.Status)...)
	case EventRefresh:
		if ev.Err != nil {
			l.log.Warnw("token refresh failed", append(base, "reason", ev.Reason, "err", ev.Err)...)
			return
		}
		l.log.Debugw("token refreshed", append(base, "reason", ev.Reason)...)
	case EventBackoff:
		l.log.Infow("rate limited, backing off", append(base, "wait", ev.Wait)...)
	case EventDone:
		fields := append(base, "outcome", string(ev.Outcome), "status", ev.Status, "refreshes", ev.Refreshes, "duration", ev.Duration)
		if ev.Err != nil {
			l.log.Warnw("api call failed", append(fields, "err", ev.Err)...)
			return
		}
		l.log.Infow("api call done", fields...)
	}
}
