package accessctl

import "testing"

func TestRuleSetSelect(t *testing.T) {
	rs := DefaultRuleSet()

	if got := rs.Select(RoleBroker, KindBuilding); len(got) != 1 {
		t.Fatalf("expected one broker building rule, got %d", len(got))
	}
	// KindAny rules apply to every kind queried.
	if got := rs.Select(RoleAdmin, ResourceKind("lease_contract")); len(got) != 1 {
		t.Fatalf("expected the admin blanket rule for an unknown kind, got %d", len(got))
	}
	if got := rs.Select(Role("auditor"), KindBuilding); got != nil {
		t.Fatalf("expected no rules for an unknown role")
	}
	if got := rs.Select(RoleViewer, KindTenantRecord); len(got) != 0 {
		t.Fatalf("expected no viewer rules for tenant records, got %d", len(got))
	}
}

func TestEvaluateDefaultDeny(t *testing.T) {
	rs := DefaultRuleSet()
	viewer := &Identity{ID: "v1", Role: RoleViewer, UniversalAccess: true}

	// No rule for the (role, kind) pair: deny even for a universal identity.
	if Evaluate(rs, viewer, KindTenantRecord, ActionRead, "T1", &ResourceMetadata{Region: "r", PropertyType: "p"}) {
		t.Fatalf("expected default deny without an applicable rule")
	}
	// Rule exists but the action is not granted.
	if Evaluate(rs, viewer, KindBuilding, ActionDelete, "B1", &ResourceMetadata{Region: "r", PropertyType: "p"}) {
		t.Fatalf("expected deny for an ungranted action")
	}
	if Evaluate(rs, nil, KindBuilding, ActionRead, "", nil) {
		t.Fatalf("expected deny for nil identity")
	}
	if Evaluate(nil, viewer, KindBuilding, ActionRead, "", nil) {
		t.Fatalf("expected deny for nil rule set")
	}
}

func TestEvaluateAnyRuleSuffices(t *testing.T) {
	// Two rules for the same (role, kind): one gated on a scope the identity
	// lacks, one unconditional. Any matching rule allows.
	rs := NewRuleSet([]Rule{
		{Role: RoleViewer, Kind: KindMarketReport, Actions: []Action{ActionRead}, Condition: CondRegionScope},
		{Role: RoleViewer, Kind: KindMarketReport, Actions: []Action{ActionRead}, Condition: CondNone},
	})
	viewer := &Identity{ID: "v1", Role: RoleViewer}
	if !Evaluate(rs, viewer, KindMarketReport, ActionRead, "R1", nil) {
		t.Fatalf("expected allow via the unconditional rule")
	}
}

func TestConditionNames(t *testing.T) {
	for _, c := range []Condition{CondNone, CondRegionScope, CondPropertyTypeScope, CondResourceScope} {
		got, err := ConditionFromName(c.String())
		if err != nil {
			t.Fatalf("round-trip %s: %v", c, err)
		}
		if got != c {
			t.Fatalf("round-trip %s: got %s", c, got)
		}
	}
	if _, err := ConditionFromName("owner_only"); err == nil {
		t.Fatalf("expected error for an unknown condition name")
	}
}

func TestDefaultRuleSetShape(t *testing.T) {
	rs := DefaultRuleSet()
	md := &ResourceMetadata{Region: "south_florida", PropertyType: "office"}

	// Nobody below admin touches the admin kind.
	for _, role := range []Role{RoleResearcher, RoleBroker, RoleViewer} {
		id := &Identity{ID: "x", Role: role, UniversalAccess: true}
		if Evaluate(rs, id, KindAdmin, ActionRead, "", md) {
			t.Fatalf("role %s must not reach the admin kind", role)
		}
	}
	// Researchers export, brokers update, viewers only read.
	researcher := &Identity{ID: "r", Role: RoleResearcher, UniversalAccess: true}
	if !Evaluate(rs, researcher, KindBuilding, ActionExport, "B1", md) {
		t.Fatalf("researcher export should be granted")
	}
	if Evaluate(rs, researcher, KindBuilding, ActionUpdate, "B1", md) {
		t.Fatalf("researcher update should be denied")
	}
	viewer := &Identity{ID: "v", Role: RoleViewer, UniversalAccess: true}
	if Evaluate(rs, viewer, KindBuilding, ActionUpdate, "B1", md) {
		t.Fatalf("viewer update should be denied")
	}
}
