package server

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"regexp"
	"sync"
)

var (
	emailRegex        = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	passwordCharset   = regexp.MustCompile(`^[a-zA-Z\d!@#$%^&*]+$`)
	passwordLetter    = regexp.MustCompile(`[a-zA-Z]`)
	passwordDigit     = regexp.MustCompile(`\d`)
	passwordSpecial   = regexp.MustCompile(`[!@#$%^&*]`)
	registerRulesOnce sync.Once
)

// strongPassword requires a letter, a digit and one of !@#$%^&* out of that alphabet only
func strongPassword(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	return passwordCharset.MatchString(p) &&
		passwordLetter.MatchString(p) &&
		passwordDigit.MatchString(p) &&
		passwordSpecial.MatchString(p)
}

func emailAddress(fl validator.FieldLevel) bool {
	return emailRegex.MatchString(fl.Field().String())
}

// registerRules adds the custom rules to the validator used by gin binding
func registerRules() {
	registerRulesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("password", strongPassword)
		_ = v.RegisterValidation("emailaddr", emailAddress)
	})
}

// validationMessage renders the first failed rule of a request
func validationMessage(fe validator.FieldError) string {
	switch fe.Field() + "." + fe.Tag() {
	case "Name.required":
		return "Name is required"
	case "Email.required":
		return "Email is required"
	case "Email.emailaddr":
		return "Invalid email!"
	case "Password.required":
		return "Password is required"
	case "Password.min":
		return "Password should be at least 8 chars long!"
	case "Password.password":
		return "Password is too simple."
	case "ID.required":
		return "Invalid user id"
	case "Token.required":
		return "Token is required"
	case "Text.required":
		return "Message cannot be empty"
	case "Description.required":
		return "Description is required!"
	case "Category.required":
		return "Category is required!"
	case "Price.required", "Price.gte":
		return "Price is required!"
	case "PurchasingDate.required":
		return "Purchasing date is required!"
	}
	return "Invalid " + fe.Field()
}
