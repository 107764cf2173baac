package gateway

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// paymentRequestSchema constrains /verify and /settle bodies, which share
// one wire shape. Structural checks only; semantic checks (amount parsing,
// header shape, asset support) belong to the verifier so that they surface
// as isValid:false rather than 400.
var paymentRequestSchema = gojsonschema.NewBytesLoader([]byte(`{
	"type": "object",
	"required": ["paymentRequirements"],
	"properties": {
		"x402Version": {"type": "integer"},
		"paymentHeader": {"type": ["string", "object", "null"]},
		"agentId": {"type": "string"},
		"paymentRequirements": {
			"type": "object",
			"required": ["network", "payTo", "maxAmountRequired"],
			"properties": {
				"scheme": {"type": "string"},
				"network": {"type": "string", "minLength": 1},
				"asset": {"type": "string"},
				"payTo": {"type": "string", "minLength": 1},
				"maxAmountRequired": {"type": "string"},
				"resource": {"type": "string"},
				"description": {"type": "string"},
				"mimeType": {"type": "string"},
				"maxTimeoutSeconds": {"type": "integer", "minimum": 0}
			}
		}
	}
}`))

// validateBody checks a request body against the payment request schema
// and returns human-readable violations, nil when the body passes.
func validateBody(body []byte) []string {
	result, err := gojsonschema.Validate(paymentRequestSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return []string{fmt.Sprintf("Schema validation failed: %v", err)}
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return violations
}
