package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"starblog/internal/common"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct runs the struct's `validate` tags and reports violations as
// a *common.ValidationError keyed by JSON field name.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return &common.ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "alphanum":
		return "must contain only letters and digits"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// validPostID accepts only the lowercase hyphenated form storage issues.
// uuid.Parse also takes urn:uuid: and braced forms, which Postgres rejects.
func validPostID(id string) bool {
	return validate.Var(id, "required,uuid") == nil
}
