package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
)

// FieldError is a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult reports the outcome of validating a property bag.
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Validator validates property bags against one compiled schema.
type Validator struct {
	schema EntityTypeSchema
}

// NewValidator compiles a validator from a JSON schema document.
func NewValidator(schemaJSON json.RawMessage) (*Validator, error) {
	var schema EntityTypeSchema
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks required fields and per-field type/format constraints.
// Fields not named by the schema are allowed.
func (v *Validator) Validate(properties map[string]any) ValidationResult {
	result := ValidationResult{Valid: true}

	for _, required := range v.schema.Required {
		if _, exists := properties[required]; !exists {
			result.Valid = false
			result.Errors = append(result.Errors, FieldError{
				Field:   required,
				Message: "required field is missing",
			})
		}
	}

	for name, def := range v.schema.Properties {
		value, exists := properties[name]
		if !exists || value == nil {
			continue
		}
		if errs := validateField(name, value, def); len(errs) > 0 {
			result.Valid = false
			result.Errors = append(result.Errors, errs...)
		}
	}

	return result
}

func validateField(name string, value any, def PropertyDefinition) []FieldError {
	if !matchesType(value, def.Type) {
		return []FieldError{{
			Field:   name,
			Message: fmt.Sprintf("expected type %s, got %s", def.Type, jsonTypeName(value)),
		}}
	}

	var errs []FieldError

	if def.Format != "" {
		if str, ok := value.(string); ok && !matchesFormat(str, def.Format) {
			errs = append(errs, FieldError{
				Field:   name,
				Message: fmt.Sprintf("invalid %s format", def.Format),
			})
		}
	}

	if def.Type == "object" && def.Properties != nil {
		if obj, ok := value.(map[string]any); ok {
			for nestedName, nestedDef := range def.Properties {
				if nested, exists := obj[nestedName]; exists && nested != nil {
					errs = append(errs, validateField(name+"."+nestedName, nested, nestedDef)...)
				}
			}
		}
	}

	if def.Type == "array" && def.Items != nil {
		if arr, ok := value.([]any); ok {
			for i, item := range arr {
				errs = append(errs, validateField(fmt.Sprintf("%s[%d]", name, i), item, *def.Items)...)
			}
		}
	}

	return errs
}

func matchesType(value any, expected string) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case float64:
			return v == float64(int64(v))
		case int, int32, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		rv := reflect.ValueOf(value)
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	default:
		// Unknown types pass.
		return true
	}
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case float64, float32, int, int32, int64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			return "array"
		}
		return fmt.Sprintf("%T", value)
	}
}

var formatPatterns = map[string]*regexp.Regexp{
	"email":     regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`),
	"date":      regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
	"date-time": regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`),
	"uri":       regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`),
	"uuid":      regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`),
}

func matchesFormat(value, format string) bool {
	pattern, ok := formatPatterns[format]
	if !ok {
		// Unknown formats pass.
		return true
	}
	return pattern.MatchString(value)
}
