package enrichment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateResponse_Valid(t *testing.T) {
	raw := `{
		"risk_level": "High",
		"explanation": "Repeated deposits just under the reporting threshold.",
		"suggested_action": "escalate",
		"confidence_score": 0.92,
		"risk_factors": ["structuring", "velocity"],
		"compliance_notes": "Consider filing a SAR."
	}`

	a, err := ValidateResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, a.RiskLevel)
	assert.Equal(t, ActionEscalate, a.SuggestedAction)
	assert.InDelta(t, 0.92, a.ConfidenceScore, 1e-9)
	assert.Equal(t, []string{"structuring", "velocity"}, a.RiskFactors)
	assert.Equal(t, "Consider filing a SAR.", a.ComplianceNotes)
}

func TestValidateResponse_OptionalFieldsMayBeAbsent(t *testing.T) {
	a, err := ValidateResponse(`{"risk_level":"Low","explanation":"Routine payroll.","suggested_action":"ignore","confidence_score":1}`)
	require.NoError(t, err)
	assert.Nil(t, a.RiskFactors)
	assert.Empty(t, a.ComplianceNotes)
}

func TestValidateResponse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"not json", `the transaction looks fine`, "not a JSON object"},
		{"array", `[1, 2]`, "not a JSON object"},
		{"missing confidence", `{"risk_level":"High","explanation":"x","suggested_action":"escalate"}`, "missing required field: confidence_score"},
		{"missing risk level", `{"explanation":"x","suggested_action":"escalate","confidence_score":0.5}`, "missing required field: risk_level"},
		{"lowercase risk level", `{"risk_level":"high","explanation":"x","suggested_action":"escalate","confidence_score":0.5}`, "invalid risk_level"},
		{"unknown action", `{"risk_level":"High","explanation":"x","suggested_action":"freeze","confidence_score":0.5}`, "invalid suggested_action"},
		{"confidence above range", `{"risk_level":"High","explanation":"x","suggested_action":"escalate","confidence_score":1.5}`, "between 0.0 and 1.0"},
		{"confidence below range", `{"risk_level":"High","explanation":"x","suggested_action":"escalate","confidence_score":-0.1}`, "between 0.0 and 1.0"},
		{"confidence as string", `{"risk_level":"High","explanation":"x","suggested_action":"escalate","confidence_score":"0.5"}`, "must be a number"},
		{"confidence null", `{"risk_level":"High","explanation":"x","suggested_action":"escalate","confidence_score":null}`, "must be a number"},
		{"empty explanation", `{"risk_level":"High","explanation":"  ","suggested_action":"escalate","confidence_score":0.5}`, "explanation is empty"},
		{"unknown field", `{"risk_level":"High","explanation":"x","suggested_action":"escalate","confidence_score":0.5,"bogus":1}`, "unexpected field: bogus"},
		{"risk factors not strings", `{"risk_level":"High","explanation":"x","suggested_action":"escalate","confidence_score":0.5,"risk_factors":[1]}`, "risk_factors"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateResponse(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidResponse)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
