package submitplanaction

import "payplan-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"planId", "action", "accessToken"},
		Properties: map[string]validation.Property{
			"planId": {
				Type:        "string",
				Description: "Payment plan identifier",
				MinLength:   validation.IntPtr(1),
				MaxLength:   validation.IntPtr(64),
			},
			"action": {
				Type:        "string",
				Description: "Action to apply, e.g. APPROVE, setFsp or markReleased",
				MinLength:   validation.IntPtr(1),
			},
			"comment": {
				Type:        "string",
				Description: "Free-text comment recorded with sign-offs and rejections",
			},
			"chunks": {
				Type:        "integer",
				Description: "Number of plans to split into",
				Minimum:     validation.FloatPtr(0),
			},
			"accessToken": {
				Type:        "string",
				Description: "Bearer token of the submitting user",
				MinLength:   validation.IntPtr(1),
			},
		},
		// process scope carries unrelated variables
		AdditionalProperties: true,
	}
}

var inputValidator = validation.MustCompile(GetInputSchema())
