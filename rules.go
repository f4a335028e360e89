package accessctl

import "fmt"

// Condition tags the optional scope predicate guarding a rule. Modeling the
// predicate as a constant (rather than a function reference) keeps the rule
// table serializable and trivially comparable in tests.
type Condition uint8

const (
	// CondNone makes a rule unconditional: the action grant applies to
	// every resource of the rule's kind.
	CondNone Condition = iota

	// CondRegionScope requires the identity's region set to cover the
	// resource's region.
	CondRegionScope

	// CondPropertyTypeScope requires the identity's property-type set to
	// cover the resource's property type.
	CondPropertyTypeScope

	// CondResourceScope is the compound check: region and property-type
	// scope plus the explicit per-resource allow-list when one is set.
	CondResourceScope
)

var conditionNames = map[Condition]string{
	CondNone:              "none",
	CondRegionScope:       "region_scope",
	CondPropertyTypeScope: "property_type_scope",
	CondResourceScope:     "resource_scope",
}

func (c Condition) String() string {
	if n, ok := conditionNames[c]; ok {
		return n
	}
	return fmt.Sprintf("condition(%d)", uint8(c))
}

// ConditionFromName resolves a config-file condition name. Unknown names are
// an error: silently treating them as unconditional would loosen a rule.
func ConditionFromName(name string) (Condition, error) {
	for c, n := range conditionNames {
		if n == name {
			return c, nil
		}
	}
	return CondNone, fmt.Errorf("unknown condition name: %q", name)
}

// Rule grants a set of actions on a resource kind to a role, optionally
// gated by a scope condition. There are no deny rules: anything not granted
// is denied.
type Rule struct {
	Role      Role         `json:"role" yaml:"role"`
	Kind      ResourceKind `json:"kind" yaml:"kind"`
	Actions   []Action     `json:"actions" yaml:"actions"`
	Condition Condition    `json:"condition" yaml:"condition"`
}

func (r Rule) allowsAction(a Action) bool {
	for _, ra := range r.Actions {
		if ra == ActionAny || ra == a {
			return true
		}
	}
	return false
}

// RuleSet is the process-wide capability table. It is built once at startup
// and never mutated afterwards, so it needs no synchronization.
type RuleSet struct {
	byRole map[Role][]Rule
}

// NewRuleSet indexes the given rules by role. The input slice is copied; the
// caller may discard it.
func NewRuleSet(rules []Rule) *RuleSet {
	byRole := make(map[Role][]Rule, 8)
	for _, r := range rules {
		byRole[r.Role] = append(byRole[r.Role], r)
	}
	return &RuleSet{byRole: byRole}
}

// Select returns the rules applicable to (role, kind), including rules
// declared for KindAny. An empty result means default deny: roles and kinds
// absent from the table deny by construction, which holds for resource kinds
// added after the table was written.
func (rs *RuleSet) Select(role Role, kind ResourceKind) []Rule {
	candidates := rs.byRole[role]
	if len(candidates) == 0 {
		return nil
	}
	out := make([]Rule, 0, len(candidates))
	for _, r := range candidates {
		if r.Kind == kind || r.Kind == KindAny {
			out = append(out, r)
		}
	}
	return out
}

// Len reports the total number of rules in the table.
func (rs *RuleSet) Len() int {
	n := 0
	for _, rules := range rs.byRole {
		n += len(rules)
	}
	return n
}

// DefaultRuleSet is the shipped capability table for the four roles over the
// commercial-property resource kinds. Admin holds a blanket unconditional
// grant; every other role is scoped. Nobody below Admin touches the admin
// kind or deletes anything.
func DefaultRuleSet() *RuleSet {
	return NewRuleSet([]Rule{
		{Role: RoleAdmin, Kind: KindAny, Actions: []Action{ActionAny}, Condition: CondNone},

		{Role: RoleResearcher, Kind: KindBuilding, Actions: []Action{ActionRead, ActionExport}, Condition: CondResourceScope},
		{Role: RoleResearcher, Kind: KindTenantRecord, Actions: []Action{ActionRead}, Condition: CondResourceScope},
		{Role: RoleResearcher, Kind: KindComparable, Actions: []Action{ActionRead, ActionExport}, Condition: CondResourceScope},
		{Role: RoleResearcher, Kind: KindMarketReport, Actions: []Action{ActionRead, ActionCreate, ActionExport}, Condition: CondRegionScope},

		{Role: RoleBroker, Kind: KindBuilding, Actions: []Action{ActionRead, ActionUpdate}, Condition: CondResourceScope},
		{Role: RoleBroker, Kind: KindTenantRecord, Actions: []Action{ActionRead, ActionCreate, ActionUpdate}, Condition: CondResourceScope},
		{Role: RoleBroker, Kind: KindComparable, Actions: []Action{ActionRead}, Condition: CondResourceScope},
		{Role: RoleBroker, Kind: KindMarketReport, Actions: []Action{ActionRead}, Condition: CondRegionScope},

		{Role: RoleViewer, Kind: KindBuilding, Actions: []Action{ActionRead}, Condition: CondResourceScope},
		{Role: RoleViewer, Kind: KindMarketReport, Actions: []Action{ActionRead}, Condition: CondRegionScope},
	})
}

// Evaluate decides one (identity, kind, action, resource) attempt against the
// rule table. The decision is true iff any applicable rule grants the action
// and its condition (if any) holds; otherwise deny.
//
// Evaluate is pure and never fails for well-formed input. Missing metadata is
// not an allow: scoped conditions fail closed on a nil or partial snapshot.
// Callers whose metadata fetch errored must map that to a deny before ever
// reaching this function.
func Evaluate(rs *RuleSet, id *Identity, kind ResourceKind, action Action, resourceID string, md *ResourceMetadata) bool {
	if rs == nil || id == nil {
		return false
	}
	for _, r := range rs.Select(id.Role, kind) {
		if !r.allowsAction(action) {
			continue
		}
		if evalCondition(r.Condition, id, resourceID, md) {
			return true
		}
	}
	return false
}

func evalCondition(c Condition, id *Identity, resourceID string, md *ResourceMetadata) bool {
	switch c {
	case CondNone:
		return true
	case CondRegionScope:
		return HasRegionAccess(id, md)
	case CondPropertyTypeScope:
		return HasPropertyTypeAccess(id, md)
	case CondResourceScope:
		return HasResourceAccess(id, resourceID, md)
	default:
		// Unknown condition tags deny rather than grant.
		return false
	}
}
