package accessctl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/propsight/accessctl/logger"
)

// MetadataProvider is the external collaborator that resolves a resource's
// scope snapshot. Timeout and cancellation policy belong to the caller's
// context; any error (including ErrMetadataNotFound) becomes a deny with
// ReasonMetadataUnavailable, never a skipped check.
type MetadataProvider interface {
	FetchMetadata(ctx context.Context, kind ResourceKind, resourceID string) (*ResourceMetadata, error)
}

// Engine ties the rule table, decision cache and audit sink together behind
// the three entry points request middleware and the query layer use:
// Authorize, DeriveFilter and InvalidateIdentity.
type Engine struct {
	rules    *RuleSet
	cache    DecisionCache
	metadata MetadataProvider
	audit    *AuditSink
	log      logger.Logger
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine) error

// WithLogger installs a structured logger. Default is the phuslu-backed one.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		e.log = l
		return nil
	}
}

// WithDecisionCache substitutes the decision cache implementation.
func WithDecisionCache(c DecisionCache) EngineOption {
	return func(e *Engine) error {
		e.cache = c
		return nil
	}
}

// WithAuditSink installs the denial recorder.
func WithAuditSink(s *AuditSink) EngineOption {
	return func(e *Engine) error {
		e.audit = s
		return nil
	}
}

// NewEngine builds an engine over an immutable rule table. metadata may be
// nil when callers always pass kind-level attempts (no resource IDs); any
// attempt that would need metadata then denies fail-closed.
func NewEngine(rules *RuleSet, metadata MetadataProvider, opts ...EngineOption) (*Engine, error) {
	if rules == nil {
		return nil, errors.New("accessctl: rule set is required")
	}
	e := &Engine{
		rules:    rules,
		metadata: metadata,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.log == nil {
		e.log = logger.NewPhusluLogger()
	}
	if e.cache == nil {
		e.cache = NewMemoryDecisionCache(DefaultDecisionTTL)
	}
	return e, nil
}

// Authorize decides one access attempt: cache lookup, then metadata fetch
// and rule evaluation on a miss, then cache insert. Every denied attempt is
// recorded on the audit side channel, whether the deny was computed or served
// from the cache. It returns a decision for every well-formed input and never
// propagates cache or audit failures.
func (e *Engine) Authorize(ctx context.Context, id *Identity, kind ResourceKind, action Action, resourceID string) (*Decision, error) {
	if id == nil {
		return &Decision{Allowed: false, Reason: ReasonNoIdentity, ComputedAt: time.Now()}, nil
	}

	key := DecisionKey{IdentityID: id.ID, Kind: kind, Action: action, ResourceID: resourceID}
	if dec, ok := e.cache.Get(key); ok {
		if !dec.Allowed {
			// The cache memoizes the decision, not the side channel: every
			// denied attempt is audited and escalated, cache hits included.
			e.recordDenial(ctx, id, kind, action, resourceID, nil, dec)
		}
		return dec, nil
	}

	// Metadata fetch and evaluation happen outside any cache lock; the
	// cache's own exclusive section covers only the insert.
	computedAt := time.Now()
	var md *ResourceMetadata
	if resourceID != "" && e.metadata != nil {
		var err error
		md, err = e.metadata.FetchMetadata(ctx, kind, resourceID)
		if err != nil {
			dec := &Decision{Allowed: false, Reason: ReasonMetadataUnavailable, ComputedAt: computedAt}
			e.log.Debug("metadata fetch failed",
				"identity", id.ID, "kind", string(kind), "resource", resourceID, "error", err.Error())
			// Not cached: a transient fetch failure should not pin a deny
			// for a full TTL.
			e.recordDenial(ctx, id, kind, action, resourceID, nil, dec)
			return dec, nil
		}
	}

	dec := &Decision{ComputedAt: computedAt}
	if Evaluate(e.rules, id, kind, action, resourceID, md) {
		dec.Allowed = true
		dec.Reason = ReasonRuleMatch
	} else {
		dec.Reason = ReasonDefaultDeny
	}

	if err := e.cache.Put(key, dec); err != nil {
		// Degrade to uncached evaluation.
		e.log.Error("decision cache put failed", "identity", id.ID, "error", err.Error())
	}
	if !dec.Allowed {
		e.recordDenial(ctx, id, kind, action, resourceID, md, dec)
	}
	return dec, nil
}

// Evaluate runs the pure rule evaluation with caller-supplied metadata,
// bypassing cache and audit. See the package-level Evaluate.
func (e *Engine) Evaluate(id *Identity, kind ResourceKind, action Action, resourceID string, md *ResourceMetadata) bool {
	return Evaluate(e.rules, id, kind, action, resourceID, md)
}

// DeriveFilter exposes the scope-filter derivation for the data query layer.
func (e *Engine) DeriveFilter(id *Identity, kind ResourceKind) ScopeFilter {
	return DeriveFilter(id, kind)
}

// InvalidateIdentity purges every cached decision for the identity. Call it
// whenever a role, scope or assignment changes, before trusting any further
// Authorize result for that identity.
func (e *Engine) InvalidateIdentity(identityID string) {
	e.cache.InvalidateIdentity(identityID)
	e.log.Debug("identity invalidated", "identity", identityID)
}

// SweepExpired evicts expired cache entries eagerly.
func (e *Engine) SweepExpired() int {
	return e.cache.SweepExpired()
}

// StartSweeper runs SweepExpired on the given interval until the returned
// stop function is called.
func (e *Engine) StartSweeper(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.cache.SweepExpired()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// AccessRequest is one element of a BatchAuthorize call.
type AccessRequest struct {
	Identity   *Identity
	Kind       ResourceKind
	Action     Action
	ResourceID string
}

// BatchAuthorize evaluates requests in order and returns one decision per
// request.
func (e *Engine) BatchAuthorize(ctx context.Context, reqs []AccessRequest) ([]*Decision, error) {
	out := make([]*Decision, len(reqs))
	for i, req := range reqs {
		dec, err := e.Authorize(ctx, req.Identity, req.Kind, req.Action, req.ResourceID)
		if err != nil {
			return nil, err
		}
		out[i] = dec
	}
	return out, nil
}

func (e *Engine) recordDenial(ctx context.Context, id *Identity, kind ResourceKind, action Action, resourceID string, md *ResourceMetadata, dec *Decision) {
	if e.audit == nil {
		return
	}
	// The timestamp is left for the sink to stamp: it marks the attempt, not
	// the (possibly cached) computation.
	e.audit.RecordDenial(ctx, &AuditRecord{
		IdentityID:    id.ID,
		IdentityLabel: id.Label,
		Role:          id.Role,
		Action:        action,
		Kind:          kind,
		ResourceID:    resourceID,
		Reason:        dec.Reason,
		Metadata:      md,
	})
}
