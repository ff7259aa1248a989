package validation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kbukum/whisperd/errors"
)

// detailFields is the AppError detail key holding []FieldError.
const detailFields = "fields"

// FieldError is one failed rule. Field is a dotted config or request path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string { return f.Field + ": " + f.Message }

// Validator accumulates FieldErrors so a caller can report every problem at
// once. Rule methods chain.
type Validator struct {
	errs []FieldError
}

func New() *Validator { return &Validator{} }

func (v *Validator) AddError(field, message string) {
	v.errs = append(v.errs, FieldError{Field: field, Message: message})
}

func (v *Validator) HasErrors() bool { return len(v.errs) > 0 }

// Errors returns a copy of the collected errors in insertion order.
func (v *Validator) Errors() []FieldError { return slices.Clone(v.errs) }

// Validate returns nil or an INVALID_INPUT AppError whose message lists
// every field and whose "fields" detail carries them.
func (v *Validator) Validate() error {
	if len(v.errs) == 0 {
		return nil
	}
	parts := make([]string, len(v.errs))
	for i, e := range v.errs {
		parts[i] = e.String()
	}
	return errors.Validation(strings.Join(parts, "; ")).WithDetail(detailFields, v.Errors())
}

// Custom records message for field unless ok holds.
func (v *Validator) Custom(ok bool, field, message string) *Validator {
	if !ok {
		v.AddError(field, message)
	}
	return v
}

func (v *Validator) Required(field, value string) *Validator {
	return v.Custom(strings.TrimSpace(value) != "", field, "is required")
}

func (v *Validator) Range(field string, value, lo, hi int) *Validator {
	return v.Custom(value >= lo && value <= hi, field, fmt.Sprintf("must be between %d and %d", lo, hi))
}

// OneOf accepts an empty value; pair it with Required when the field is
// mandatory.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	return v.Custom(value == "" || slices.Contains(allowed, value), field,
		"must be one of: "+strings.Join(allowed, ", "))
}

// Merge folds err into v. Field errors from another Validator keep their
// own paths; any other error is recorded under field.
func (v *Validator) Merge(field string, err error) *Validator {
	if err == nil {
		return v
	}
	if appErr, ok := errors.AsAppError(err); ok {
		if fields, ok := appErr.Details[detailFields].([]FieldError); ok {
			v.errs = append(v.errs, fields...)
			return v
		}
	}
	v.AddError(field, err.Error())
	return v
}
