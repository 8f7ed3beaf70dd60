package setbackgroundaction

import "payplan-workers/internal/common/validation"

var backgroundStatuses = []string{
	"",
	"RULE_ENGINE_RUNNING", "RULE_ENGINE_ERROR",
	"XLSX_EXPORTING", "XLSX_EXPORT_ERROR",
	"XLSX_IMPORTING_ENTITLEMENTS", "XLSX_IMPORT_ERROR",
	"EXCLUDE_BENEFICIARIES", "EXCLUDE_BENEFICIARIES_ERROR",
	"SEND_TO_PAYMENT_GATEWAY", "SEND_TO_PAYMENT_GATEWAY_ERROR",
}

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"planId"},
		Properties: map[string]validation.Property{
			"planId": {
				Type:      "string",
				MinLength: validation.IntPtr(1),
			},
			"backgroundActionStatus": {
				Type:        "string",
				Description: "Empty string clears the marker",
				Enum:        backgroundStatuses,
			},
			"action": {
				Type: "string",
				Enum: []string{"PREPARE", "PREPARED"},
			},
		},
		AdditionalProperties: true,
	}
}

var inputValidator = validation.MustCompile(GetInputSchema())
