package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New()

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

func init() {
	// phone expects an already-normalized E.164 number (see pkg/phone).
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return e164.MatchString(fl.Field().String())
	})
}

// Struct validates the given struct using its validate tags.
// Returns a human-readable error string or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// Var validates a single value against tag, e.g. "required,email".
func Var(field interface{}, tag string) error {
	if err := v.Var(field, tag); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok || len(ve) == 0 {
			return err
		}
		return fmt.Errorf("failed '%s'", ve[0].Tag())
	}
	return nil
}
