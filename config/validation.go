package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// report fields by their json name
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidationError is one rejected field.
type ValidationError struct {
	Field   string // dot path, e.g. "tun.mtu"
	Message string
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d error(s):", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("\n  %d. %s: %s", i+1, err.Field, err.Message))
	}
	return sb.String()
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "url":
		return "must be a valid URL"
	case "ipv4":
		return "must be a valid IPv4 address"
	case "hostname_port":
		return "must be host:port"
	case "startswith":
		return fmt.Sprintf("must start with %s", e.Param())
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

// Validate checks every field and reports all failures at once.
func (o *Option) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	var out ValidationErrors
	for _, e := range fieldErrs {
		// drop the root struct name
		path := e.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		out = append(out, ValidationError{Field: path, Message: message(e)})
	}
	return out
}
