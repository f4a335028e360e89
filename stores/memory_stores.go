// Package stores provides the collaborator implementations the engine is
// wired with: metadata providers, audit stores, escalation transports and
// the redis invalidation bus. Memory variants back tests and single-node
// deployments; SQL variants persist through squealx.
package stores

import (
	"context"
	"sync"

	"github.com/propsight/accessctl"
)

// MemoryMetadataProvider serves resource metadata from an in-process map.
type MemoryMetadataProvider struct {
	mu    sync.RWMutex
	byKey map[string]accessctl.ResourceMetadata
}

func NewMemoryMetadataProvider() *MemoryMetadataProvider {
	return &MemoryMetadataProvider{byKey: make(map[string]accessctl.ResourceMetadata)}
}

func metadataKey(kind accessctl.ResourceKind, resourceID string) string {
	return string(kind) + ":" + resourceID
}

// Set registers or replaces the metadata snapshot for a resource.
func (m *MemoryMetadataProvider) Set(kind accessctl.ResourceKind, resourceID string, md accessctl.ResourceMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[metadataKey(kind, resourceID)] = md
}

// Delete removes a resource's metadata; later fetches return
// ErrMetadataNotFound.
func (m *MemoryMetadataProvider) Delete(kind accessctl.ResourceKind, resourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byKey, metadataKey(kind, resourceID))
}

func (m *MemoryMetadataProvider) FetchMetadata(_ context.Context, kind accessctl.ResourceKind, resourceID string) (*accessctl.ResourceMetadata, error) {
	m.mu.RLock()
	md, ok := m.byKey[metadataKey(kind, resourceID)]
	m.mu.RUnlock()
	if !ok {
		return nil, accessctl.ErrMetadataNotFound
	}
	// Copy so one evaluation's snapshot cannot be mutated under it.
	dup := md
	return &dup, nil
}

// MemoryAuditStore keeps the denial trail in process.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	records []*accessctl.AuditRecord
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{records: make([]*accessctl.AuditRecord, 0)}
}

func (s *MemoryAuditStore) Append(_ context.Context, rec *accessctl.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryAuditStore) Denials(_ context.Context, filter accessctl.AuditFilter) ([]*accessctl.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accessctl.AuditRecord, 0)
	for _, rec := range s.records {
		if filter.IdentityID != "" && rec.IdentityID != filter.IdentityID {
			continue
		}
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if filter.Action != "" && rec.Action != filter.Action {
			continue
		}
		if !filter.Start.IsZero() && rec.Timestamp.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && rec.Timestamp.After(filter.End) {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Len reports the number of stored records.
func (s *MemoryAuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// MemoryEscalator records escalations for inspection in tests and local
// runs. Production deployments swap in a real transport.
type MemoryEscalator struct {
	mu      sync.Mutex
	records []*accessctl.AuditRecord
	err     error
}

func NewMemoryEscalator() *MemoryEscalator { return &MemoryEscalator{} }

// Fail makes subsequent Escalate calls return err (still recording them),
// for exercising the swallow-and-log path.
func (m *MemoryEscalator) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryEscalator) Escalate(_ context.Context, rec *accessctl.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

// Count reports how many escalations were raised.
func (m *MemoryEscalator) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Records returns a snapshot of the raised escalations.
func (m *MemoryEscalator) Records() []*accessctl.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*accessctl.AuditRecord, len(m.records))
	copy(out, m.records)
	return out
}
