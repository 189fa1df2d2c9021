// Package validation wraps go-playground/validator for component
// configurations and job definitions.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"analysis-engine/internal/common/errors"

	"github.com/go-playground/validator/v10"
)

var (
	identifierPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)
	sqlIdentifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// CentralizedValidator validates structs through their `validate` tags and
// reports field names by their json tag.
type CentralizedValidator struct {
	validator *validator.Validate
}

// FieldError is a single failed rule
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// NewCentralizedValidator creates a validator with the engine's custom tags
// registered:
//
//	identifier      component and column identifiers
//	sql_identifier  table and column names interpolated into SQL
//	duration        strings accepted by time.ParseDuration
func NewCentralizedValidator() *CentralizedValidator {
	v := validator.New()
	registerEngineValidators(v)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &CentralizedValidator{validator: v}
}

// ValidateStruct validates s and returns an *errors.AppError of type
// validation listing every failed field.
func (cv *CentralizedValidator) ValidateStruct(s interface{}) error {
	if err := cv.validator.Struct(s); err != nil {
		return cv.format(err)
	}
	return nil
}

// ValidateVar validates a single value against tag
func (cv *CentralizedValidator) ValidateVar(field interface{}, tag string) error {
	if err := cv.validator.Var(field, tag); err != nil {
		return cv.format(err)
	}
	return nil
}

// FieldErrors returns the structured failures of s, or nil when valid
func (cv *CentralizedValidator) FieldErrors(s interface{}) []FieldError {
	err := cv.validator.Struct(s)
	if err == nil {
		return nil
	}
	return extractFieldErrors(err)
}

func (cv *CentralizedValidator) format(err error) error {
	fieldErrors := extractFieldErrors(err)
	if len(fieldErrors) == 1 {
		return errors.ValidationError(fieldErrors[0].Message)
	}

	messages := make([]string, len(fieldErrors))
	for i, e := range fieldErrors {
		messages[i] = e.Message
	}
	return errors.ValidationError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")))
}

func extractFieldErrors(err error) []FieldError {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "unknown", Tag: "error", Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		out = append(out, FieldError{
			Field:   fe.Namespace(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: formatFieldError(fe),
		})
	}
	return out
}

func formatFieldError(err validator.FieldError) string {
	field := err.Field()
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", field)
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", field, err.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", field, err.Param())
	case "gte":
		return fmt.Sprintf("field '%s' must be greater than or equal to %s", field, err.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, err.Param())
	case "required_if":
		return fmt.Sprintf("field '%s' is required when %s", field, err.Param())
	case "unique":
		return fmt.Sprintf("field '%s' must not contain duplicates", field)
	case "identifier":
		return fmt.Sprintf("field '%s' must be an identifier (letters, digits, '_' or '-')", field)
	case "sql_identifier":
		return fmt.Sprintf("field '%s' must be a plain SQL identifier", field)
	case "duration":
		return fmt.Sprintf("field '%s' must be a valid duration", field)
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", field, err.Tag())
	}
}

func registerEngineValidators(v *validator.Validate) {
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})

	_ = v.RegisterValidation("sql_identifier", func(fl validator.FieldLevel) bool {
		return sqlIdentifierPattern.MatchString(fl.Field().String())
	})

	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := time.ParseDuration(s)
		return err == nil
	})
}
