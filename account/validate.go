package account

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ochinchina/stackpanel/faults"
)

var (
	// usernames must not start with '-' so they can never be read as an option
	usernameRegex = regexp.MustCompile(`^[a-z0-9_][a-z0-9_-]*$`)

	validate *validator.Validate
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRegex.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("chpasswd", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), ":\r\n\x00")
	})
}

type credentials struct {
	Username string `validate:"required,max=32,username"`
	Password string `validate:"min=8,max=128,chpasswd"`
}

type identity struct {
	Username string `validate:"required,max=32,username"`
}

type membership struct {
	Username string `validate:"required,max=32,username"`
	Group    string `validate:"required,max=32,username"`
}

// ValidateUsername checks a username without touching the system
func ValidateUsername(username string) error {
	return check(identity{Username: username})
}

// ValidateCredentials checks a username and password pair without touching the system
func ValidateCredentials(username, password string) error {
	return check(credentials{Username: username, Password: password})
}

func check(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return faults.ValidationError("%v", err)
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return faults.ValidationError("%s is required", field)
	case "min":
		return faults.ValidationError("%s must be at least %s characters", field, fe.Param())
	case "max":
		return faults.ValidationError("%s must be at most %s characters", field, fe.Param())
	case "username":
		return faults.ValidationError("%s %q must match [a-z0-9_-]+ and not start with '-'", field, fe.Value())
	case "chpasswd":
		return faults.ValidationError("%s must not contain ':' or line breaks", field)
	}
	return faults.ValidationError("%s is invalid (%s)", field, fe.Tag())
}
