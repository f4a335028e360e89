package accessctl

// ScopeFilter is a declarative constraint set derived from an identity's
// scope, meant to be pushed down into bulk listing queries so the data layer
// never has to run per-row evaluation. A nil constraint slice means "no
// restriction on this dimension"; an empty non-nil slice means "matches
// nothing". A filter is not a decision: single, already-identified resources
// still go through Evaluate when strict guarantees are needed.
type ScopeFilter struct {
	RegionIn       []string `json:"region_in,omitempty"`
	PropertyTypeIn []string `json:"property_type_in,omitempty"`
	ResourceIDIn   []string `json:"resource_id_in,omitempty"`
}

// Unrestricted reports whether the filter constrains nothing.
func (f ScopeFilter) Unrestricted() bool {
	return f.RegionIn == nil && f.PropertyTypeIn == nil && f.ResourceIDIn == nil
}

// MatchesNothing reports whether any dimension is an empty constraint set.
func (f ScopeFilter) MatchesNothing() bool {
	return (f.RegionIn != nil && len(f.RegionIn) == 0) ||
		(f.PropertyTypeIn != nil && len(f.PropertyTypeIn) == 0) ||
		(f.ResourceIDIn != nil && len(f.ResourceIDIn) == 0)
}

// DeriveFilter converts an identity's scope into a ScopeFilter for bulk
// reads of the given kind. Admin and universal identities get an
// unrestricted filter; wildcard tags drop their dimension; ResourceIDIn is
// populated only when the explicit allow-list is non-empty, mirroring
// HasResourceAccess so filtered listings agree with per-item evaluation.
//
// A nil identity yields a filter that matches nothing.
func DeriveFilter(id *Identity, kind ResourceKind) ScopeFilter {
	if id == nil {
		return ScopeFilter{RegionIn: []string{}}
	}
	if id.Role == RoleAdmin || id.UniversalAccess {
		return ScopeFilter{}
	}
	var f ScopeFilter
	if !containsString(id.Regions, TagAllRegions) {
		f.RegionIn = append([]string{}, id.Regions...)
	}
	if !containsString(id.PropertyTypes, TagAllPropertyTypes) {
		f.PropertyTypeIn = append([]string{}, id.PropertyTypes...)
	}
	if len(id.AssignedResourceIDs) > 0 {
		f.ResourceIDIn = append([]string{}, id.AssignedResourceIDs...)
	}
	return f
}
