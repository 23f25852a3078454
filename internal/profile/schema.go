package profile

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// strategySchema constrains a single profile entry. Validation happens at
// load and on every hot reload, so a bad edit never reaches the live loops.
const strategySchema = `{
  "type": "object",
  "required": ["magic", "instruments", "stop_distance_points"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "magic": {"type": "integer", "minimum": 1, "maximum": 2147483647},
    "instruments": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "pattern": "^[A-Z0-9._]{3,16}$"}
    },
    "expected_hold_minutes": {"type": "integer", "minimum": 1},
    "trailing_stop_points": {"type": "number", "minimum": 0},
    "stop_distance_points": {"type": "number", "exclusiveMinimum": 0},
    "target_distance_points": {"type": "number", "minimum": 0},
    "min_confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "risk_per_trade": {"type": "number", "minimum": 0, "maximum": 0.1},
    "signal": {
      "type": "object",
      "properties": {
        "fast_period": {"type": "integer", "minimum": 1},
        "slow_period": {"type": "integer", "minimum": 2}
      }
    },
    "enabled": {"type": "boolean"}
  }
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("strategy.json", strings.NewReader(strategySchema)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("strategy.json")
	})
	return schemaCompiled, schemaErr
}

func validateAgainstSchema(s Strategy) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("schema compile failed: %w", err)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
