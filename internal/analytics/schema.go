package analytics

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const eventSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "version", "timestamp"],
  "properties": {
    "name": {
      "enum": [
        "ocr.success.original",
        "ocr.success.compressed",
        "ocr.failure.original",
        "ocr.failure.compressed",
        "ocr.failure.all_retries_exhausted"
      ]
    },
    "version": {"const": 1},
    "timestamp": {"type": "string", "format": "date-time"},
    "document_id": {"type": "string"},
    "user_id": {"type": "string"},
    "attempt": {
      "type": "object",
      "required": ["attempt_number", "success", "input_size_bytes", "duration_ms"],
      "properties": {
        "attempt_number": {"type": "integer", "minimum": 1},
        "compression_level": {"type": ["integer", "null"], "minimum": 1},
        "input_size_bytes": {"type": "integer", "minimum": 0},
        "output_size_bytes": {"type": "integer", "minimum": 0},
        "heap_usage_percent": {"type": "number", "minimum": 0},
        "success": {"type": "boolean"},
        "error": {"type": "string"},
        "duration_ms": {"type": "integer", "minimum": 0},
        "confidence": {"type": "number", "minimum": 0, "maximum": 100}
      }
    },
    "exhausted": {
      "type": "object",
      "required": ["attempts", "original_size_bytes", "last_error"],
      "properties": {
        "attempts": {"type": "integer", "minimum": 1},
        "original_size_bytes": {"type": "integer", "minimum": 0},
        "last_error": {"type": "string"}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource("event.json", strings.NewReader(eventSchema)); err != nil {
			schemaErr = fmt.Errorf("failed to load event schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("event.json")
	})
	return schema, schemaErr
}

// Validate checks e against the versioned event schema. Exhaustion events
// must carry an exhausted payload and attempt events an attempt payload.
func Validate(e Event) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode event for validation: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("event %q does not match schema: %w", e.Name, err)
	}

	if e.Name == EventFailureExhausted {
		if e.Exhausted == nil {
			return fmt.Errorf("event %q missing exhausted payload", e.Name)
		}
	} else if e.Attempt == nil {
		return fmt.Errorf("event %q missing attempt payload", e.Name)
	}
	return nil
}
