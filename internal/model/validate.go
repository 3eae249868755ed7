package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError lists every failed field of a struct.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid " + strings.Join(e.Fields, ", ")
}

// Validate checks the `validate` tags of v.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		if fe.Param() != "" {
			out.Fields = append(out.Fields, fmt.Sprintf("%s (%s=%s)", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			out.Fields = append(out.Fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
	}
	return out
}
