package accessctl

// Scope predicates. All three are pure functions over an identity and a
// resource-metadata snapshot and fail closed: a nil identity, nil metadata or
// an empty metadata field denies unless the identity is universally scoped.

// HasRegionAccess reports whether the identity's region scope covers the
// resource's region. UniversalAccess and the all_regions wildcard tag are
// honored as synonyms and succeed even without metadata.
func HasRegionAccess(id *Identity, md *ResourceMetadata) bool {
	if id == nil {
		return false
	}
	if id.UniversalAccess || containsString(id.Regions, TagAllRegions) {
		return true
	}
	if md == nil || md.Region == "" {
		return false
	}
	return containsString(id.Regions, md.Region)
}

// HasPropertyTypeAccess is the property-type counterpart of HasRegionAccess.
func HasPropertyTypeAccess(id *Identity, md *ResourceMetadata) bool {
	if id == nil {
		return false
	}
	if id.UniversalAccess || containsString(id.PropertyTypes, TagAllPropertyTypes) {
		return true
	}
	if md == nil || md.PropertyType == "" {
		return false
	}
	return containsString(id.PropertyTypes, md.PropertyType)
}

// HasResourceAccess is the compound per-resource check: Admin and universal
// identities pass outright; everyone else needs region and property-type
// scope, and membership in the explicit allow-list when one is set.
//
// An empty allow-list skips the membership check entirely. That is the
// deliberate "unassigned means broadly scoped" policy: an identity with no
// explicit assignments is constrained by region and property type only.
// DeriveFilter applies the same policy so bulk listings and per-item checks
// cannot diverge. Tightening this to deny-on-empty is a behavioral change
// that must be made in both places at once.
func HasResourceAccess(id *Identity, resourceID string, md *ResourceMetadata) bool {
	if id == nil {
		return false
	}
	if id.Role == RoleAdmin || id.UniversalAccess {
		return true
	}
	if !HasRegionAccess(id, md) || !HasPropertyTypeAccess(id, md) {
		return false
	}
	if resourceID != "" && len(id.AssignedResourceIDs) > 0 {
		return containsString(id.AssignedResourceIDs, resourceID)
	}
	return true
}
