package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() JSONSchema {
	return JSONSchema{
		Type:     "object",
		Required: []string{"planId", "action"},
		Properties: map[string]Property{
			"planId":  {Type: "string", MinLength: IntPtr(1), MaxLength: IntPtr(64)},
			"action":  {Type: "string", Enum: []string{"APPROVE", "REJECT"}},
			"comment": {Type: "string", MaxLength: IntPtr(10)},
			"chunks":  {Type: "integer", Minimum: FloatPtr(2)},
			"planIds": {Type: "array", MinItems: IntPtr(1), Items: &Property{Type: "string", Pattern: StringPtr(`^plan-`)}},
		},
		AdditionalProperties: false,
	}
}

func TestValidator(t *testing.T) {
	v, err := Compile(testSchema())
	require.NoError(t, err)

	tests := []struct {
		name       string
		doc        string
		wantValid  bool
		wantFields []string
	}{
		{"valid", `{"planId":"plan-1","action":"APPROVE","comment":"ok"}`, true, nil},
		{"missing required", `{"action":"APPROVE"}`, false, []string{"planId"}},
		{"bad enum", `{"planId":"plan-1","action":"LOCK"}`, false, []string{"action"}},
		{"comment too long", `{"planId":"plan-1","action":"REJECT","comment":"01234567890"}`, false, []string{"comment"}},
		{"extra field", `{"planId":"plan-1","action":"APPROVE","foo":1}`, false, []string{"(root)"}},
		{"chunks below minimum", `{"planId":"plan-1","action":"APPROVE","chunks":1}`, false, []string{"chunks"}},
		{"array item pattern", `{"planId":"plan-1","action":"APPROVE","planIds":["plan-1","x"]}`, false, []string{"planIds.1"}},
		{"empty array", `{"planId":"plan-1","action":"APPROVE","planIds":[]}`, false, []string{"planIds"}},
		{"malformed", `{"planId":`, false, []string{"(root)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate([]byte(tt.doc))
			assert.Equal(t, tt.wantValid, res.Valid, res.GetErrorMessages())
			for _, f := range tt.wantFields {
				assert.True(t, res.HasErrors(f), "expected error on %s, got %v", f, res.GetErrorMessages())
			}
		})
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(JSONSchema{Type: "object", Properties: map[string]Property{
		"x": {Type: "string", Pattern: StringPtr("(")},
	}})
	assert.Error(t, err)
	assert.Panics(t, func() {
		MustCompile(JSONSchema{Type: "object", Properties: map[string]Property{"x": {Type: "nope"}}})
	})
}
