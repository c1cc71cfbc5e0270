// Package validation checks request structs against their `validate` tags.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"pasar/internal/apperror"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		// Report fields by their json name so messages match request bodies.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Struct validates v and returns an apperror Validation error whose detail maps
// each failing field to the rule it broke.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation("invalid input").Wrap(err)
	}

	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		rule := e.Tag()
		if e.Param() != "" {
			rule = fmt.Sprintf("%s=%s", e.Tag(), e.Param())
		}
		fields[e.Field()] = rule
	}
	return apperror.Validation("validation failed").WithDetail(fields)
}

// Var validates a single value against a tag expression such as "required,uuid".
func Var(field string, value any, tag string) error {
	if err := instance().Var(value, tag); err != nil {
		return apperror.Validation("invalid %s", field).WithDetail(map[string]string{field: tag})
	}
	return nil
}
