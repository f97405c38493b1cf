package nql

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidationError signals a malformed or invariant-violating NQL payload.
// It is a client error; resubmitting the same payload will fail again
type ValidationError struct {
	msg string
}

// Error implements the error interface
func (e *ValidationError) Error() string { return e.msg }

func validationErrf(format string, a ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, a...)}
}

var fieldValidate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses raw JSON into a Query with the strict_json guarantee: unknown
// fields anywhere in the payload are rejected, absent fields take the schema
// defaults, field constraints are checked, and every closed variant set is
// verified before the query is handed to the critic
func Decode(raw []byte) (*Query, error) {
	q := DefaultQuery()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(q); err != nil {
		return nil, validationErrf("malformed NQL payload: %v", err)
	}
	if dec.More() {
		return nil, validationErrf("trailing data after NQL payload")
	}
	if err := fieldValidate.Struct(q); err != nil {
		return nil, validationErrf("invalid NQL payload: %v", err)
	}
	if err := q.checkEnums(); err != nil {
		return nil, err
	}
	return q, nil
}
