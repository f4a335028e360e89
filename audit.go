package accessctl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/propsight/accessctl/logger"
)

// AuditStore persists denied attempts. Implementations own the append-only
// trail; the sink never reads it on the decision path.
type AuditStore interface {
	Append(ctx context.Context, rec *AuditRecord) error
	Denials(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error)
}

// AuditFilter narrows a Denials query. Zero-valued fields are ignored.
type AuditFilter struct {
	IdentityID string
	Kind       ResourceKind
	Action     Action
	Start      time.Time
	End        time.Time
	Limit      int
}

// Escalator is the fire-and-forget suspicious-activity transport. Dedup of
// repeated identical attempts, if wanted, belongs to the transport: the sink
// raises exactly one escalation per denied attempt.
type Escalator interface {
	Escalate(ctx context.Context, rec *AuditRecord) error
}

// NopEscalator drops escalations. Useful when no transport is wired.
type NopEscalator struct{}

func (NopEscalator) Escalate(context.Context, *AuditRecord) error { return nil }

// IsSuspicious flags a denial that warrants escalation: a non-admin identity
// probing the privileged administrative kind.
func IsSuspicious(rec *AuditRecord) bool {
	return rec != nil && rec.Kind == KindAdmin && rec.Role != RoleAdmin
}

const defaultAuditBuffer = 1024

type auditMsg struct {
	rec   *AuditRecord
	flush chan struct{}
}

// AuditSink records denied decisions off the critical path. Store writes go
// through a buffered channel drained by a background worker; when the buffer
// is full the record is dropped and counted rather than blocking the caller.
// Escalations are raised inline (the transport is the asynchronous boundary)
// so a drop can never swallow one.
//
// Sink failures are logged and swallowed: a broken audit path must never flip
// a decision.
type AuditSink struct {
	store     AuditStore
	escalator Escalator
	log       logger.Logger

	ch      chan auditMsg
	wg      sync.WaitGroup
	dropped atomic.Uint64

	closeOnce sync.Once
}

// NewAuditSink starts the background writer. A nil store disables
// persistence (denials are still logged and escalated); a nil escalator
// defaults to NopEscalator; a nil log defaults to logger.NewPhusluLogger().
// bufferSize <= 0 selects the default.
func NewAuditSink(store AuditStore, escalator Escalator, log logger.Logger, bufferSize int) *AuditSink {
	if escalator == nil {
		escalator = NopEscalator{}
	}
	if log == nil {
		log = logger.NewPhusluLogger()
	}
	if bufferSize <= 0 {
		bufferSize = defaultAuditBuffer
	}
	s := &AuditSink{
		store:     store,
		escalator: escalator,
		log:       log,
		ch:        make(chan auditMsg, bufferSize),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *AuditSink) run() {
	defer s.wg.Done()
	bg := context.Background()
	for msg := range s.ch {
		if msg.flush != nil {
			close(msg.flush)
			continue
		}
		if s.store == nil {
			continue
		}
		if err := s.store.Append(bg, msg.rec); err != nil {
			s.log.Error("audit append failed", "record", msg.rec.ID, "error", err.Error())
		}
	}
}

// RecordDenial queues the record for persistence and, for suspicious
// attempts, escalates once. It never blocks and never returns an error to
// the decision path.
func (s *AuditSink) RecordDenial(ctx context.Context, rec *AuditRecord) {
	if s == nil || rec == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = newAuditID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Allowed = false

	s.log.Info("access denied",
		"identity", rec.IdentityID,
		"role", string(rec.Role),
		"kind", string(rec.Kind),
		"action", string(rec.Action),
		"resource", rec.ResourceID,
		"reason", rec.Reason,
	)

	if IsSuspicious(rec) {
		if err := s.escalator.Escalate(ctx, rec); err != nil {
			s.log.Error("escalation failed", "record", rec.ID, "error", err.Error())
		}
	}

	select {
	case s.ch <- auditMsg{rec: rec}:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many records were discarded because the buffer was
// full.
func (s *AuditSink) Dropped() uint64 { return s.dropped.Load() }

// Flush blocks until every record queued before the call has been handed to
// the store.
func (s *AuditSink) Flush() {
	done := make(chan struct{})
	s.ch <- auditMsg{flush: done}
	<-done
}

// Close drains the queue and stops the worker. The sink must not be used
// afterwards.
func (s *AuditSink) Close() {
	s.closeOnce.Do(func() {
		close(s.ch)
		s.wg.Wait()
	})
}
