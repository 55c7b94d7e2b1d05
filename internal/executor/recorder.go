package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"opsbridge/pkg/db"
)

const recorderQueueSize = 256

// Recorder persists one api_executions row per terminal event, inside a
// tenant-scoped transaction. Writes happen on a background worker; Observe
// only enqueues and drops the event when the queue is full.
type Recorder struct {
	pool  db.TxBeginner
	log   *zap.SugaredLogger
	queue chan Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(pool db.TxBeginner, log *zap.SugaredLogger) *Recorder {
	r := &Recorder{
		pool:  pool,
		log:   log,
		queue: make(chan Event, recorderQueueSize),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Recorder) Observe(_ context.Context, ev Event) {
	if ev.Kind != EventDone || ev.Outcome == OutcomeUnknownTenant {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.log.Warnw("record execution: queue full, dropped", "tenant", ev.Tenant, "operation", ev.Operation)
	}
}

// Close stops accepting events and waits for queued rows to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)
	for ev := range r.queue {
		r.write(ev)
	}
}

func (r *Recorder) write(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errText *string
	if ev.Err != nil {
		s := ev.Err.Error()
		errText = &s
	}
	tx, err := db.BeginTxWithTenant(ctx, r.pool, ev.Tenant)
	if err != nil {
		r.log.Warnw("record execution: begin", "tenant", ev.Tenant, "err", err)
		return
	}
	if _, err := tx.Exec(ctx, `INSERT INTO api_executions(id,tenant_id,operation,method,path,outcome,status_code,attempts,refreshes,error,duration_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		uuid.New(), ev.Tenant, ev.Operation, ev.Method, ev.Path, string(ev.Outcome), ev.Status,
		ev.Attempt, ev.Refreshes, errText, int(ev.Duration.Milliseconds())); err != nil {
		_ = tx.Rollback(ctx)
		r.log.Warnw("record execution: insert", "tenant", ev.Tenant, "err", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		r.log.Warnw("record execution: commit", "tenant", ev.Tenant, "err", err)
	}
}
