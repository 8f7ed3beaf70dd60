package finishpaymentplan

import "payplan-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"planId"},
		Properties: map[string]validation.Property{
			"planId": {
				Type:        "string",
				Description: "Accepted plan whose reconciliation completed",
				MinLength:   validation.IntPtr(1),
			},
		},
		AdditionalProperties: true,
	}
}

var inputValidator = validation.MustCompile(GetInputSchema())
