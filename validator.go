package conduit

import (
	"reflect"

	"github.com/go-playground/validator/v10"
)

// Validator checks arguments passed to the command API before any state is
// touched. Applications may supply their own via WithValidator, for example
// to restrict which methods may be sent.
type Validator interface {
	ValidateID(id string) error
	ValidateMethod(method string) error
	ValidateData(data any) error
}

type defaultValidator struct {
	validate *validator.Validate
}

var _ Validator = &defaultValidator{}

// NewValidator returns the default Validator. Ids and methods must be
// non-empty printable strings. Struct payloads, or pointers to them, are
// checked against their `validate` struct tags.
func NewValidator() Validator {
	return &defaultValidator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (v *defaultValidator) ValidateID(id string) error {
	if err := v.validate.Var(id, "required,printascii"); err != nil {
		return &ValidationError{Field: "id", Reason: "must be a non-empty printable string", Err: err}
	}
	return nil
}

func (v *defaultValidator) ValidateMethod(method string) error {
	if err := v.validate.Var(method, "required,printascii"); err != nil {
		return &ValidationError{Field: "method", Reason: "must be a non-empty printable string", Err: err}
	}
	return nil
}

func (v *defaultValidator) ValidateData(data any) error {
	if data == nil {
		return nil
	}
	t := reflect.TypeOf(data)
	if t.Kind() == reflect.Pointer {
		if reflect.ValueOf(data).IsNil() {
			return nil
		}
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	if err := v.validate.Struct(data); err != nil {
		return &ValidationError{Field: "data", Reason: "failed struct validation", Err: err}
	}
	return nil
}
