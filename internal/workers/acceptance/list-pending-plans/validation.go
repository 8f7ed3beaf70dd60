package listpendingplans

import "payplan-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"queue"},
		Properties: map[string]validation.Property{
			"queue": {
				Type: "string",
				Enum: []string{"pending-approval", "pending-authorization", "pending-review", "released"},
			},
			"filters": {
				Type: "object",
				Properties: map[string]validation.Property{
					"programId":    {Type: "string"},
					"businessArea": {Type: "string"},
					"search":       {Type: "string", MaxLength: validation.IntPtr(200)},
					"offset":       {Type: "integer", Minimum: validation.FloatPtr(0)},
					"limit":        {Type: "integer", Minimum: validation.FloatPtr(0), Maximum: validation.FloatPtr(200)},
				},
			},
			"includeCounts": {Type: "boolean"},
		},
		AdditionalProperties: true,
	}
}

var inputValidator = validation.MustCompile(GetInputSchema())
