package handler

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Os nomes em camelCase são o contrato; os em snake_case continuam aceitos como alias.
const schemaCreatePayment = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["amount", "currency"],
  "allOf": [
    { "anyOf": [ { "required": ["sourceAccount"] }, { "required": ["source_account"] } ] },
    { "anyOf": [ { "required": ["destAccount"] }, { "required": ["dest_account"] } ] }
  ],
  "properties": {
    "idempotencyKey": { "type": "string", "minLength": 1, "maxLength": 256 },
    "idempotency_key": { "type": "string", "minLength": 1, "maxLength": 256 },
    "sourceAccount": { "type": "string", "minLength": 1 },
    "source_account": { "type": "string", "minLength": 1 },
    "destAccount": { "type": "string", "minLength": 1 },
    "dest_account": { "type": "string", "minLength": 1 },
    "amount": { "type": "integer", "minimum": 1 },
    "currency": { "type": "string", "pattern": "^[A-Za-z]{3}$" }
  },
  "additionalProperties": false
}`

const schemaRegisterAccount = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "balance"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "balance": { "type": "integer", "minimum": 0 },
    "per_transaction_limit": { "type": "integer", "minimum": 0 },
    "frozen": { "type": "boolean" }
  },
  "additionalProperties": false
}`

var (
	createPaymentLoader   = gojsonschema.NewStringLoader(schemaCreatePayment)
	registerAccountLoader = gojsonschema.NewStringLoader(schemaRegisterAccount)
)

func validateJSONSchema(schemaLoader gojsonschema.JSONLoader, body []byte) error {
	loader := gojsonschema.NewBytesLoader(body)
	result, err := gojsonschema.Validate(schemaLoader, loader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var sb strings.Builder
		for i, e := range result.Errors() {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(e.String())
		}
		return fmt.Errorf("request does not conform to schema: %s", sb.String())
	}
	return nil
}
