// Package accessctl decides whether an identity may perform an action on a
// commercial-property resource. Access is scoped along three independent
// dimensions (market region, property-type category, explicit per-resource
// assignment) on top of a role capability table, with a TTL decision cache in
// front of evaluation and a best-effort audit/escalation side channel for
// denials.
package accessctl

import (
	"errors"
	"time"
)

// Role names a capability tier in the rule table.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleResearcher Role = "researcher"
	RoleBroker     Role = "broker"
	RoleViewer     Role = "viewer"
)

// Action represents how a resource is being accessed.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionExport Action = "export"

	// ActionAny matches every action in a rule's action set.
	ActionAny Action = "*"
)

// ResourceKind identifies a class of resources the rule table knows about.
type ResourceKind string

const (
	KindBuilding     ResourceKind = "building"
	KindTenantRecord ResourceKind = "tenant_record"
	KindMarketReport ResourceKind = "market_report"
	KindComparable   ResourceKind = "comparable"

	// KindAdmin is the privileged administrative kind; non-admin attempts
	// against it are escalated as suspicious.
	KindAdmin ResourceKind = "admin"

	// KindAny matches every resource kind in the rule table.
	KindAny ResourceKind = "*"
)

// Wildcard scope tags. Holding one of these is honored as a synonym of
// UniversalAccess along that dimension.
const (
	TagAllRegions       = "all_regions"
	TagAllPropertyTypes = "all_types"
)

// Identity is an already-authenticated principal. It is produced by the
// session layer and trusted as-is; permission changes must be followed by an
// InvalidateIdentity call so cached decisions are not served stale.
type Identity struct {
	ID                  string    `json:"id"`
	Label               string    `json:"label"`
	Role                Role      `json:"role"`
	Regions             []string  `json:"regions"`
	PropertyTypes       []string  `json:"property_types"`
	AssignedResourceIDs []string  `json:"assigned_resource_ids"`
	UniversalAccess     bool      `json:"universal_access"`
	LastActivityAt      time.Time `json:"last_activity_at"`
}

// ResourceMetadata is the per-resource scope snapshot supplied by the
// metadata collaborator. It is immutable for the duration of one evaluation.
// An empty Region or PropertyType fails the corresponding scope check.
type ResourceMetadata struct {
	Region       string `json:"region"`
	PropertyType string `json:"property_type"`
}

// Decision is the immutable outcome of one access evaluation. The only way
// to change a decision is to evict it from the cache and recompute.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	Reason     string    `json:"reason"`
	ComputedAt time.Time `json:"computed_at"`
}

// Decision reasons. Reasons are internal diagnostics: callers surface a
// denial to end users as a generic insufficient-permissions outcome.
const (
	ReasonRuleMatch           = "rule allow"
	ReasonDefaultDeny         = "default deny"
	ReasonMetadataUnavailable = "metadata unavailable"
	ReasonNoIdentity          = "no identity"
)

// AuditRecord captures one denied attempt for the audit trail.
type AuditRecord struct {
	ID            string            `json:"id"`
	IdentityID    string            `json:"identity_id"`
	IdentityLabel string            `json:"identity_label"`
	Role          Role              `json:"role"`
	Action        Action            `json:"action"`
	Kind          ResourceKind      `json:"kind"`
	ResourceID    string            `json:"resource_id,omitempty"`
	Allowed       bool              `json:"allowed"`
	Reason        string            `json:"reason"`
	Metadata      *ResourceMetadata `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// ErrMetadataNotFound is returned by MetadataProvider implementations when
// the resource does not exist. The engine maps it, like any other fetch
// failure, to a deny with ReasonMetadataUnavailable.
var ErrMetadataNotFound = errors.New("resource metadata not found")

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
