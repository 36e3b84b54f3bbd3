package services

import (
	"github.com/dmitrijs2005/ticketdesk/internal/client/client"
	"github.com/dmitrijs2005/ticketdesk/internal/client/models"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// MinPasswordLength matches the backend's password reset rule.
const MinPasswordLength = 8

// toValidationError turns field errors into the error the backend would
// have returned, so callers render both the same way.
func toValidationError(errs validation.Errors) error {
	if err := errs.Filter(); err == nil {
		return nil
	}
	fields := make(map[string][]string, len(errs))
	for k, e := range errs {
		if e != nil {
			fields[k] = []string{e.Error()}
		}
	}
	return &client.ValidationError{Fields: fields}
}

var emailRules = []validation.Rule{validation.Required, is.Email}

func validateEmail(email string) error {
	return toValidationError(validation.Errors{
		"email": validation.Validate(email, emailRules...),
	})
}

func validateLogin(email, password string) error {
	return toValidationError(validation.Errors{
		"email":    validation.Validate(email, emailRules...),
		"password": validation.Validate(password, validation.Required),
	})
}

func validateRegister(name, email, password string) error {
	return toValidationError(validation.Errors{
		"name":      validation.Validate(name, validation.Required, validation.Length(1, 255)),
		"email":     validation.Validate(email, emailRules...),
		"password1": validation.Validate(password, validation.Required),
	})
}

func validateResetConfirm(uid, token, newPassword string) error {
	return toValidationError(validation.Errors{
		"uid":          validation.Validate(uid, validation.Required),
		"token":        validation.Validate(token, validation.Required),
		"new_password": validation.Validate(newPassword, validation.Required, validation.Length(MinPasswordLength, 0)),
	})
}

func validateCompany(upd models.CompanyUpdate) error {
	return toValidationError(validation.Errors{
		"name": validation.Validate(upd.Name, validation.Length(0, 255)),
	})
}
