package stores

import (
	"context"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/propsight/accessctl"
)

// SQLAuditStore persists the denial trail through squealx named queries.
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) *SQLAuditStore {
	return &SQLAuditStore{db: db}
}

func (s *SQLAuditStore) Append(ctx context.Context, rec *accessctl.AuditRecord) error {
	region, propertyType := "", ""
	if rec.Metadata != nil {
		region = rec.Metadata.Region
		propertyType = rec.Metadata.PropertyType
	}
	q := `INSERT INTO denial_log(id, timestamp, identity_id, identity_label, role, action, kind, resource_id, reason, region, property_type)
	      VALUES(:id, :timestamp, :identity_id, :identity_label, :role, :action, :kind, :resource_id, :reason, :region, :property_type)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":             rec.ID,
		"timestamp":      rec.Timestamp,
		"identity_id":    rec.IdentityID,
		"identity_label": rec.IdentityLabel,
		"role":           string(rec.Role),
		"action":         string(rec.Action),
		"kind":           string(rec.Kind),
		"resource_id":    rec.ResourceID,
		"reason":         rec.Reason,
		"region":         region,
		"property_type":  propertyType,
	})
	return err
}

func (s *SQLAuditStore) Denials(ctx context.Context, filter accessctl.AuditFilter) ([]*accessctl.AuditRecord, error) {
	q := `SELECT id, timestamp, identity_id, identity_label, role, action, kind, resource_id, reason, region, property_type FROM denial_log WHERE 1=1`
	params := map[string]any{}
	if filter.IdentityID != "" {
		q += " AND identity_id = :identity_id"
		params["identity_id"] = filter.IdentityID
	}
	if filter.Kind != "" {
		q += " AND kind = :kind"
		params["kind"] = string(filter.Kind)
	}
	if filter.Action != "" {
		q += " AND action = :action"
		params["action"] = string(filter.Action)
	}
	if !filter.Start.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.Start
	}
	if !filter.End.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.End
	}
	q += " ORDER BY timestamp"
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*accessctl.AuditRecord, 0)
	for r.Next() {
		var id, identityID, identityLabel, role, action, kind, resourceID, reason, region, propertyType string
		var timestampRaw interface{}
		if err := r.Scan(&id, &timestampRaw, &identityID, &identityLabel, &role, &action, &kind, &resourceID, &reason, &region, &propertyType); err != nil {
			return nil, err
		}
		rec := &accessctl.AuditRecord{
			ID:            id,
			IdentityID:    identityID,
			IdentityLabel: identityLabel,
			Role:          accessctl.Role(role),
			Action:        accessctl.Action(action),
			Kind:          accessctl.ResourceKind(kind),
			ResourceID:    resourceID,
			Reason:        reason,
		}
		switch v := timestampRaw.(type) {
		case time.Time:
			rec.Timestamp = v
		case string:
			if t, err := parseFlexibleTime(v); err == nil {
				rec.Timestamp = t
			}
		case []byte:
			if t, err := parseFlexibleTime(string(v)); err == nil {
				rec.Timestamp = t
			}
		}
		if region != "" || propertyType != "" {
			rec.Metadata = &accessctl.ResourceMetadata{Region: region, PropertyType: propertyType}
		}
		out = append(out, rec)
	}
	return out, nil
}
