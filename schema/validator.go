// Package schema validates OCPP payloads against their declared message
// structs. Every payload is checked twice per round trip: once leaving the
// process and once entering it, in either direction.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	validatorv9 "gopkg.in/go-playground/validator.v9"
)

// Violation names one failed constraint on one field.
type Violation struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Param      string `json:"param,omitempty"`
}

// ValidationError carries every violated field and constraint, so callers can
// both log and branch on the failure.
type ValidationError struct {
	Action     string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		if v.Param != "" {
			parts[i] = fmt.Sprintf("%s: %s=%s", v.Field, v.Constraint, v.Param)
		} else {
			parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Constraint)
		}
	}
	return fmt.Sprintf("schema: invalid %s payload: %s", e.Action, strings.Join(parts, "; "))
}

// StructValidator is the slice of a validator instance payload checking
// needs. Both validator majors in the dependency graph satisfy it: the v10
// instances this module constructs and the v9 instance ocpp-go's 1.6 types
// register their custom tag validations on.
type StructValidator interface {
	Struct(s interface{}) error
}

// Validator wraps the payload struct type of one direction of one action.
type Validator struct {
	action      string
	payloadType reflect.Type
	validate    StructValidator
}

// New builds a Validator from a prototype payload value. The validate
// instance must carry any custom tag validations the prototype's struct tags
// reference (ocpp1.6/types.Validate for the 1.6 catalog).
func New(action string, prototype interface{}, validate StructValidator) *Validator {
	t := reflect.TypeOf(prototype)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return &Validator{action: action, payloadType: t, validate: validate}
}

// PayloadType returns the struct type payloads decode into.
func (s *Validator) PayloadType() reflect.Type { return s.payloadType }

// Unmarshal decodes raw JSON into a fresh payload struct and validates it.
func (s *Validator) Unmarshal(raw json.RawMessage) (interface{}, error) {
	payload := reflect.New(s.payloadType).Interface()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, &ValidationError{
				Action:     s.action,
				Violations: []Violation{{Field: s.action, Constraint: "json", Param: err.Error()}},
			}
		}
	}
	if err := s.check(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Check validates an in-process payload. Values that are not already of the
// declared struct type (maps from admin commands, for instance) are coerced
// through JSON first, which also normalizes field defaults.
func (s *Validator) Check(payload interface{}) (interface{}, error) {
	t := reflect.TypeOf(payload)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t != s.payloadType {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, &ValidationError{
				Action:     s.action,
				Violations: []Violation{{Field: s.action, Constraint: "json", Param: err.Error()}},
			}
		}
		return s.Unmarshal(raw)
	}
	if err := s.check(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// fieldError is the per-field error surface shared by both validator majors.
type fieldError interface {
	Namespace() string
	Tag() string
	Param() string
}

func (s *Validator) check(payload interface{}) error {
	err := s.validate.Struct(payload)
	if err == nil {
		return nil
	}
	var violations []Violation
	switch fieldErrs := err.(type) {
	case validator.ValidationErrors:
		for _, fe := range fieldErrs {
			violations = append(violations, violationFor(fe))
		}
	case validatorv9.ValidationErrors:
		for _, fe := range fieldErrs {
			violations = append(violations, violationFor(fe))
		}
	default:
		violations = []Violation{{Field: s.action, Constraint: "struct", Param: err.Error()}}
	}
	return &ValidationError{Action: s.action, Violations: violations}
}

func violationFor(fe fieldError) Violation {
	return Violation{Field: fe.Namespace(), Constraint: fe.Tag(), Param: fe.Param()}
}
