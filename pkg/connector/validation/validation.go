// Package validation checks connection factory configuration against the
// property schema its adapter declares.
package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

// Violation describes one property that does not satisfy the schema.
type Violation struct {
	Property string
	Reason   string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Property, v.Reason)
}

// Error reports every violation found on a factory.
type Error struct {
	Schema     string
	Violations []Violation
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("factory for %s failed validation: %s", e.Schema, strings.Join(parts, "; "))
}

// ValidateFactory reads every schema field from the factory and checks that
// required fields are set and values parse as the declared type. A nil
// schema accepts any factory.
func ValidateFactory(schema *core.Schema, f core.Factory) error {
	if schema == nil {
		return nil
	}

	var violations []Violation
	for _, field := range schema.Fields {
		value, ok := f.Property(field.Name)
		if !ok || value == "" {
			if field.Required {
				violations = append(violations, Violation{Property: field.Name, Reason: "required property is not set"})
			}
			continue
		}
		if reason := checkType(field.Type, value); reason != "" {
			violations = append(violations, Violation{Property: field.Name, Reason: reason})
		}
	}

	if len(violations) > 0 {
		return &Error{Schema: schema.Name, Violations: violations}
	}
	return nil
}

// ValidateProperties checks configured properties against the schema types
// before a factory exists. Unknown properties are allowed.
func ValidateProperties(schema *core.Schema, props core.Properties) error {
	if schema == nil {
		return nil
	}

	var violations []Violation
	for _, p := range props {
		field, ok := schema.Field(p.Name)
		if !ok || p.Value == "" {
			continue
		}
		if reason := checkType(field.Type, p.Value); reason != "" {
			violations = append(violations, Violation{Property: p.Name, Reason: reason})
		}
	}

	if len(violations) > 0 {
		return &Error{Schema: schema.Name, Violations: violations}
	}
	return nil
}

func checkType(t core.FieldType, value string) string {
	switch t {
	case core.FieldTypeInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Sprintf("%q is not an integer", value)
		}
	case core.FieldTypeBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Sprintf("%q is not a boolean", value)
		}
	case core.FieldTypeDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Sprintf("%q is not a duration", value)
		}
	}
	return ""
}
