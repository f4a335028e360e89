package accessctl

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative form of the rule table plus engine tuning. It is
// read once at startup; there is no runtime reload path because the rule
// table is immutable by design.
type Config struct {
	Version int          `json:"version" yaml:"version"`
	Rules   []RuleConfig `json:"rules" yaml:"rules"`
	Engine  EngineConfig `json:"engine" yaml:"engine"`
}

// RuleConfig is one rule in config-file form.
type RuleConfig struct {
	Role      string   `json:"role" yaml:"role"`
	Kind      string   `json:"kind" yaml:"kind"`
	Actions   []string `json:"actions" yaml:"actions"`
	Condition string   `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// EngineConfig tunes the cache and audit sink.
type EngineConfig struct {
	DecisionCacheTTL    int64 `json:"decision_cache_ttl_ms" yaml:"decision_cache_ttl_ms"`
	AuditBufferSize     int   `json:"audit_buffer_size" yaml:"audit_buffer_size"`
	RistrettoNumCounter int64 `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost    int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer     int64 `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

// CacheTTL returns the configured TTL, or DefaultDecisionTTL when unset.
func (c EngineConfig) CacheTTL() time.Duration {
	if c.DecisionCacheTTL > 0 {
		return time.Duration(c.DecisionCacheTTL) * time.Millisecond
	}
	return DefaultDecisionTTL
}

// ConfigLoader parses configuration from YAML or JSON bytes.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader { return &ConfigLoader{} }

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToYAML exports the config.
func (c *Config) ToYAML() ([]byte, error) { return yaml.Marshal(c) }

// ToJSON exports the config.
func (c *Config) ToJSON() ([]byte, error) { return json.MarshalIndent(c, "", "  ") }

// RuleSet materializes the configured rule table. Unknown condition names or
// empty action lists are rejected rather than silently loosened.
func (c *Config) RuleSet() (*RuleSet, error) {
	rules := make([]Rule, 0, len(c.Rules))
	for i, rc := range c.Rules {
		if rc.Role == "" {
			return nil, fmt.Errorf("rule %d: role is required", i)
		}
		if rc.Kind == "" {
			return nil, fmt.Errorf("rule %d: kind is required", i)
		}
		if len(rc.Actions) == 0 {
			return nil, fmt.Errorf("rule %d: at least one action is required", i)
		}
		cond := CondNone
		if rc.Condition != "" {
			var err error
			cond, err = ConditionFromName(rc.Condition)
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
		}
		actions := make([]Action, 0, len(rc.Actions))
		for _, a := range rc.Actions {
			actions = append(actions, Action(a))
		}
		rules = append(rules, Rule{
			Role:      Role(rc.Role),
			Kind:      ResourceKind(rc.Kind),
			Actions:   actions,
			Condition: cond,
		})
	}
	return NewRuleSet(rules), nil
}

// NewEngineFromConfig builds an engine from a parsed config: the configured
// rule table, a ristretto cache when sizing is given (memory cache
// otherwise), and any extra options on top.
func NewEngineFromConfig(cfg *Config, metadata MetadataProvider, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	rules, err := cfg.RuleSet()
	if err != nil {
		return nil, err
	}
	var cache DecisionCache
	if cfg.Engine.RistrettoNumCounter > 0 {
		cache, err = NewRistrettoDecisionCache(cfg.Engine.CacheTTL(),
			cfg.Engine.RistrettoNumCounter, cfg.Engine.RistrettoMaxCost, cfg.Engine.RistrettoBuffer)
		if err != nil {
			return nil, fmt.Errorf("ristretto cache: %w", err)
		}
	} else {
		cache = NewMemoryDecisionCache(cfg.Engine.CacheTTL())
	}
	all := append([]EngineOption{WithDecisionCache(cache)}, opts...)
	return NewEngine(rules, metadata, all...)
}
