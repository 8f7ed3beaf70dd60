package submitbulkplanaction

import "payplan-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"planIds", "action", "accessToken"},
		Properties: map[string]validation.Property{
			"planIds": {
				Type:        "array",
				Description: "Plans to act on",
				MinItems:    validation.IntPtr(1),
				MaxItems:    validation.IntPtr(500),
				Items: &validation.Property{
					Type:      "string",
					MinLength: validation.IntPtr(1),
				},
			},
			"action": {
				Type:        "string",
				Description: "APPROVE, AUTHORIZE or REVIEW",
				MinLength:   validation.IntPtr(1),
			},
			"comment": {
				Type:        "string",
				Description: "Shared comment recorded on every plan",
			},
			"accessToken": {
				Type:      "string",
				MinLength: validation.IntPtr(1),
			},
		},
		AdditionalProperties: true,
	}
}

var inputValidator = validation.MustCompile(GetInputSchema())
