package enrichment

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Assessment risk levels
const (
	RiskHigh    = "High"
	RiskMedium  = "Medium"
	RiskLow     = "Low"
	RiskUnknown = "Unknown"
)

// Suggested actions
const (
	ActionEscalate     = "escalate"
	ActionMonitor      = "monitor"
	ActionIgnore       = "ignore"
	ActionInvestigate  = "investigate"
	ActionManualReview = "manual_review"
)

var (
	riskLevels       = []string{RiskHigh, RiskMedium, RiskLow}
	suggestedActions = []string{ActionEscalate, ActionMonitor, ActionIgnore, ActionInvestigate}
)

// ErrInvalidResponse is wrapped by every validation failure
var ErrInvalidResponse = errors.New("invalid assessment")

// ResponseSchema is the JSON Schema the reasoning service must answer with
var ResponseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"risk_level": map[string]any{
			"type":        "string",
			"enum":        riskLevels,
			"description": "Overall risk level assessment",
		},
		"explanation": map[string]any{
			"type":        "string",
			"description": "Detailed explanation of the risk assessment reasoning",
		},
		"suggested_action": map[string]any{
			"type":        "string",
			"enum":        suggestedActions,
			"description": "Recommended action based on the analysis",
		},
		"confidence_score": map[string]any{
			"type":        "number",
			"minimum":     0.0,
			"maximum":     1.0,
			"description": "Confidence level in the assessment (0.0-1.0)",
		},
		"risk_factors": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Key risk factors identified",
		},
		"compliance_notes": map[string]any{
			"type":        "string",
			"description": "Additional compliance and regulatory considerations",
		},
	},
	"required":             []string{"risk_level", "explanation", "suggested_action", "confidence_score"},
	"additionalProperties": false,
}

// Assessment is a validated reply from the reasoning service
type Assessment struct {
	RiskLevel       string   `json:"risk_level"`
	Explanation     string   `json:"explanation"`
	SuggestedAction string   `json:"suggested_action"`
	ConfidenceScore float64  `json:"confidence_score"`
	RiskFactors     []string `json:"risk_factors,omitempty"`
	ComplianceNotes string   `json:"compliance_notes,omitempty"`
}

// ValidateResponse decodes raw as a JSON object and checks every field
// against ResponseSchema. Values are never coerced between types.
func ValidateResponse(raw string) (*Assessment, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: response is not a JSON object: %v", ErrInvalidResponse, err)
	}
	if err := rejectUnknownFields(fields); err != nil {
		return nil, err
	}

	a := &Assessment{}
	if err := requiredEnum(fields, "risk_level", riskLevels, &a.RiskLevel); err != nil {
		return nil, err
	}
	if err := requiredString(fields, "explanation", &a.Explanation); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Explanation) == "" {
		return nil, fmt.Errorf("%w: explanation is empty", ErrInvalidResponse)
	}
	if err := requiredEnum(fields, "suggested_action", suggestedActions, &a.SuggestedAction); err != nil {
		return nil, err
	}

	confidence, ok := fields["confidence_score"]
	if !ok {
		return nil, fmt.Errorf("%w: missing required field: confidence_score", ErrInvalidResponse)
	}
	if err := json.Unmarshal(confidence, &a.ConfidenceScore); err != nil || string(confidence) == "null" {
		return nil, fmt.Errorf("%w: confidence_score must be a number", ErrInvalidResponse)
	}
	if a.ConfidenceScore < 0 || a.ConfidenceScore > 1 {
		return nil, fmt.Errorf("%w: confidence_score must be between 0.0 and 1.0, got: %v", ErrInvalidResponse, a.ConfidenceScore)
	}

	if factors, ok := fields["risk_factors"]; ok && string(factors) != "null" {
		if err := json.Unmarshal(factors, &a.RiskFactors); err != nil {
			return nil, fmt.Errorf("%w: risk_factors must be a list of strings", ErrInvalidResponse)
		}
	}
	if notes, ok := fields["compliance_notes"]; ok && string(notes) != "null" {
		if err := json.Unmarshal(notes, &a.ComplianceNotes); err != nil {
			return nil, fmt.Errorf("%w: compliance_notes must be a string", ErrInvalidResponse)
		}
	}

	return a, nil
}

// rejectUnknownFields enforces additionalProperties: false
func rejectUnknownFields(fields map[string]json.RawMessage) error {
	known := ResponseSchema["properties"].(map[string]any)
	var unknown []string
	for name := range fields {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w: unexpected field: %s", ErrInvalidResponse, strings.Join(unknown, ", "))
}

func requiredString(fields map[string]json.RawMessage, name string, dest *string) error {
	value, ok := fields[name]
	if !ok {
		return fmt.Errorf("%w: missing required field: %s", ErrInvalidResponse, name)
	}
	if err := json.Unmarshal(value, dest); err != nil || string(value) == "null" {
		return fmt.Errorf("%w: %s must be a string", ErrInvalidResponse, name)
	}
	return nil
}

func requiredEnum(fields map[string]json.RawMessage, name string, allowed []string, dest *string) error {
	if err := requiredString(fields, name, dest); err != nil {
		return err
	}
	for _, v := range allowed {
		if *dest == v {
			return nil
		}
	}
	return fmt.Errorf("%w: invalid %s: %q", ErrInvalidResponse, name, *dest)
}
