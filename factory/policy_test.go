package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/workload-engine/factory"
	"github.com/warp/workload-engine/workload"
)

func TestNewChargePolicy(t *testing.T) {
	tests := []struct {
		name    string
		cfg     factory.ChargePolicyConfig
		kind    workload.PolicyKind
		wantErr bool
	}{
		{"empty defaults to hours", factory.ChargePolicyConfig{}, workload.PolicyHours, false},
		{"hours", factory.ChargePolicyConfig{Policy: "hours"}, workload.PolicyHours, false},
		{"case insensitive", factory.ChargePolicyConfig{Policy: " Weights "}, workload.PolicyWeights, false},
		{"weights with overrides", factory.ChargePolicyConfig{Policy: "weights", Weights: map[string]int{"heavy": 70}}, workload.PolicyWeights, false},
		{"hours rejects weights", factory.ChargePolicyConfig{Policy: "hours", Weights: map[string]int{"heavy": 70}}, "", true},
		{"unknown policy", factory.ChargePolicyConfig{Policy: "tshirt"}, "", true},
		{"unknown difficulty", factory.ChargePolicyConfig{Policy: "weights", Weights: map[string]int{"epic": 90}}, "", true},
		{"weight out of range", factory.ChargePolicyConfig{Policy: "weights", Weights: map[string]int{"light": -1}}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := factory.NewChargePolicy(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Kind())
		})
	}
}

func TestParseChargePolicy_YAMLAndJSON(t *testing.T) {
	// GIVEN: The same weight table as YAML and as JSON
	// WHEN: Parsing both
	// THEN: Both give a weight policy with heavy overridden and the rest defaulted

	docs := map[string]string{
		"yaml": "policy: weights\nweights:\n  heavy: 70\n",
		"json": `{"policy": "weights", "weights": {"heavy": 70}}`,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			p, err := factory.ParseChargePolicy([]byte(doc))
			require.NoError(t, err)

			wp, ok := p.(*workload.WeightPolicy)
			require.True(t, ok, "expected *WeightPolicy, got %T", p)
			assert.Equal(t, 70, wp.Weights[workload.DifficultyHeavy])
			assert.Equal(t, 40, wp.Weights[workload.DifficultyMedium])
		})
	}
}

func TestParseChargePolicy_Malformed(t *testing.T) {
	_, err := factory.ParseChargePolicy([]byte("policy: [unclosed"))
	assert.Error(t, err)
}

func TestNewAdmission_CarriesRequireCapacity(t *testing.T) {
	ac, err := factory.NewAdmission(factory.ChargePolicyConfig{Policy: "hours", RequireCapacity: true})
	require.NoError(t, err)
	assert.True(t, ac.RequireCapacity)
	assert.Equal(t, workload.PolicyHours, ac.Policy.Kind())
}

func TestToJSON(t *testing.T) {
	s, err := factory.ToJSON(workload.HourPolicy{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"policy":"hours"}`, s)

	wp, err := workload.NewWeightPolicy(nil)
	require.NoError(t, err)
	s, err = factory.ToJSON(wp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"policy":"weights","weights":{"light":15,"medium":40,"heavy":60}}`, s)

	// The serialized form builds the same policy again.
	back, err := factory.NewChargePolicy(factory.ToConfig(wp))
	require.NoError(t, err)
	assert.Equal(t, wp, back)
}
