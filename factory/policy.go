/*
Package factory converts charge policy definitions into workload.ChargePolicy values.

PURPOSE:
  The charge policy is chosen at configuration time. This package turns the
  "charge" section of the config file (or a standalone JSON/YAML document)
  into the single ChargePolicy the whole process shares.

SCHEMA (YAML):
  policy: weights          # "hours" (default) or "weights"
  require_capacity: false  # hours policy: refuse work for a zero-capacity team
  weights:                 # weights policy only; missing entries use defaults
    light: 15
    medium: 40
    heavy: 60

SCHEMA (JSON):
  {"policy": "hours"}
  {"policy": "weights", "weights": {"heavy": 70}}

KEY FEATURES:
  - Unknown policy names and difficulties are rejected, not defaulted
  - Weights outside [0, 100] are rejected
  - ToConfig round-trips a policy back into its definition

USAGE:
  policy, err := factory.ParseChargePolicy([]byte("policy: weights"))
  controller := factory.NewAdmission(cfg)

SEE ALSO:
  - workload/charge.go: HourPolicy and WeightPolicy
  - config/config.go: where the charge section is loaded
*/
package factory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/warp/workload-engine/workload"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// ChargePolicyConfig is the serialized form of a charge policy.
type ChargePolicyConfig struct {
	Policy          string         `json:"policy" yaml:"policy"`
	RequireCapacity bool           `json:"require_capacity,omitempty" yaml:"require_capacity"`
	Weights         map[string]int `json:"weights,omitempty" yaml:"weights"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// NewChargePolicy builds the policy named by cfg. An empty name means hours.
func NewChargePolicy(cfg ChargePolicyConfig) (workload.ChargePolicy, error) {
	switch kind := workload.PolicyKind(strings.ToLower(strings.TrimSpace(cfg.Policy))); kind {
	case "", workload.PolicyHours:
		if len(cfg.Weights) > 0 {
			return nil, fmt.Errorf("charge policy %q does not take weights", workload.PolicyHours)
		}
		return workload.HourPolicy{}, nil

	case workload.PolicyWeights:
		weights, err := parseWeights(cfg.Weights)
		if err != nil {
			return nil, err
		}
		return workload.NewWeightPolicy(weights)

	default:
		return nil, fmt.Errorf("unknown charge policy %q (want %q or %q)",
			cfg.Policy, workload.PolicyHours, workload.PolicyWeights)
	}
}

// NewAdmission builds the admission controller for cfg.
func NewAdmission(cfg ChargePolicyConfig) (*workload.AdmissionController, error) {
	policy, err := NewChargePolicy(cfg)
	if err != nil {
		return nil, err
	}
	controller := workload.NewAdmissionController(policy)
	controller.RequireCapacity = cfg.RequireCapacity
	return controller, nil
}

// ParseChargePolicy accepts a YAML or JSON document. JSON is valid YAML, so
// a single decoder covers both.
func ParseChargePolicy(data []byte) (workload.ChargePolicy, error) {
	var cfg ChargePolicyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse charge policy: %w", err)
	}
	return NewChargePolicy(cfg)
}

// ToConfig converts a policy back to its serialized form.
func ToConfig(p workload.ChargePolicy) ChargePolicyConfig {
	cfg := ChargePolicyConfig{Policy: string(p.Kind())}
	if wp, ok := p.(*workload.WeightPolicy); ok {
		cfg.Weights = make(map[string]int, len(wp.Weights))
		for d, w := range wp.Weights {
			cfg.Weights[string(d)] = w
		}
	}
	return cfg
}

// ToJSON renders the policy definition.
func ToJSON(p workload.ChargePolicy) (string, error) {
	b, err := json.Marshal(ToConfig(p))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseWeights(raw map[string]int) (map[workload.Difficulty]int, error) {
	out := make(map[workload.Difficulty]int, len(raw))
	// Sorted so the first reported error is stable.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("weight table: empty difficulty name")
		}
		d, err := workload.ParseDifficulty(k)
		if err != nil {
			return nil, fmt.Errorf("weight table: %w", err)
		}
		out[d] = raw[k]
	}
	return out, nil
}
