package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlanDefinition is one entry of the configured plans mapping.
type PlanDefinition struct {
	Key             string `yaml:"-"`
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	Price           int64  `yaml:"price" validate:"gte=0"`
	Currency        string `yaml:"currency" validate:"omitempty,len=3,lowercase"`
	Interval        string `yaml:"interval" validate:"omitempty,oneof=day week month year"`
	IntervalCount   int64  `yaml:"interval_count" validate:"gte=0"`
	TrialPeriodDays int64  `yaml:"trial_period_days" validate:"gte=0"`
	StripePlanID    string `yaml:"stripe_plan_id"`
}

// PlanDefinitions is the plans mapping (plan key -> definition) in the order
// it was written. Both YAML mappings and JSON objects keep their source order.
type PlanDefinitions struct {
	items []PlanDefinition
}

// NewPlanDefinitions builds an ordered plans mapping. Later duplicates of a
// key replace the earlier definition in place.
func NewPlanDefinitions(defs ...PlanDefinition) PlanDefinitions {
	var p PlanDefinitions
	for _, def := range defs {
		p.put(def)
	}
	return p
}

// All returns a copy of the definitions in configured order.
func (p PlanDefinitions) All() []PlanDefinition {
	out := make([]PlanDefinition, len(p.items))
	copy(out, p.items)
	return out
}

// Len reports the number of configured plans.
func (p PlanDefinitions) Len() int {
	return len(p.items)
}

func (p *PlanDefinitions) put(def PlanDefinition) {
	for i := range p.items {
		if p.items[i].Key == def.Key {
			p.items[i] = def
			return
		}
	}
	p.items = append(p.items, def)
}

// UnmarshalYAML decodes a mapping node while preserving key order.
func (p *PlanDefinitions) UnmarshalYAML(node *yaml.Node) error {
	p.items = nil
	if node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: plans must be a mapping of plan key to plan definition", node.Line)
	}

	seen := make(map[string]struct{}, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		key := strings.TrimSpace(keyNode.Value)
		if key == "" {
			return fmt.Errorf("line %d: plan key must not be empty", keyNode.Line)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("line %d: duplicate plan key %q", keyNode.Line, key)
		}
		seen[key] = struct{}{}

		var def PlanDefinition
		if err := valueNode.Decode(&def); err != nil {
			return fmt.Errorf("plan %q: %w", key, err)
		}
		def.Key = key
		p.items = append(p.items, def)
	}
	return nil
}

// Decode implements envconfig.Decoder. The value is a JSON object, which is
// parsed as YAML so key order survives.
func (p *PlanDefinitions) Decode(value string) error {
	if strings.TrimSpace(value) == "" {
		p.items = nil
		return nil
	}
	if err := yaml.Unmarshal([]byte(value), p); err != nil {
		return fmt.Errorf("parse plans: %w", err)
	}
	return nil
}

// Currency is a (code, label) choice offered to customers.
type Currency struct {
	Code  string `json:"code" yaml:"code" validate:"required,len=3,lowercase"`
	Label string `json:"label" yaml:"label" validate:"required"`
}

// Currencies is an ordered list of currency choices.
type Currencies []Currency

// Decode implements envconfig.Decoder for values such as
// "usd:U.S. Dollars,eur:Euros".
func (c *Currencies) Decode(value string) error {
	parts := strings.Split(value, ",")
	out := make(Currencies, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, label, ok := strings.Cut(part, ":")
		if !ok {
			return fmt.Errorf("invalid currency %q, expected code:label", part)
		}
		out = append(out, Currency{
			Code:  strings.ToLower(strings.TrimSpace(code)),
			Label: strings.TrimSpace(label),
		})
	}
	if len(out) == 0 {
		return fmt.Errorf("no currencies provided")
	}
	*c = out
	return nil
}

const redactedPlaceholder = "***REDACTED***"

// SecretString keeps credentials out of logs and JSON output. Use Unmask to
// obtain the raw value.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	if s == "" {
		return ""
	}
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Unmask returns the raw secret.
func (s SecretString) Unmask() string {
	return string(s)
}
