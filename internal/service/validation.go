package service

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/teresa-solution/leadforge-service/internal/model"
)

// validateApplication checks the applicant fields of a submission
func validateApplication(app *model.Application, sin string) error {
	if strings.TrimSpace(app.FirstName) == "" {
		return errors.New("first name is required")
	}
	if strings.TrimSpace(app.LastName) == "" {
		return errors.New("last name is required")
	}
	if strings.TrimSpace(app.Email) == "" && model.NormalizePhone(app.Phone) == "" {
		return errors.New("email or phone is required")
	}
	if app.Email != "" && !isValidEmail(app.Email) {
		return errors.New("invalid email format")
	}
	if app.Phone != "" && !isValidPhone(app.Phone) {
		return errors.New("invalid phone format")
	}
	if sin != "" && !isValidSIN(sin) {
		return errors.New("SIN must be 9 digits")
	}
	if isNegative(app.MonthlyIncome) {
		return errors.New("monthly income must not be negative")
	}
	if outOfRange(app.MonthlyIncome) {
		return errors.New("monthly income is out of range")
	}
	if isNegative(app.AmountRequested) {
		return errors.New("amount requested must not be negative")
	}
	if outOfRange(app.AmountRequested) {
		return errors.New("amount requested is out of range")
	}
	return nil
}

// isValidEmail performs a basic email validation
func isValidEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if len(email) < 3 || at < 1 || !strings.Contains(email[at+1:], ".") {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n")
}

// isValidPhone accepts any punctuation as long as there are 10 or 11 digits
func isValidPhone(phone string) bool {
	n := len(model.NormalizePhone(phone))
	return n == 10 || n == 11
}

func isValidSIN(sin string) bool {
	return len(model.NormalizePhone(sin)) == 9 && len(strings.Trim(sin, " -0123456789")) == 0
}

func isNegative(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsNegative()
}

// maxAmount is the largest value a NUMERIC(14,2) money column holds.
var maxAmount = decimal.RequireFromString("999999999999.99")

const (
	maxAmountExponent = 12
	minAmountExponent = -20
)

// outOfRange reports whether d does not fit a money column. The exponent is
// checked before comparing so extreme values are never rescaled.
func outOfRange(d decimal.NullDecimal) bool {
	if !d.Valid {
		return false
	}
	if e := d.Decimal.Exponent(); e > maxAmountExponent || e < minAmountExponent {
		return true
	}
	return d.Decimal.Abs().GreaterThan(maxAmount)
}

// normalizeApplication trims the free-text fields before they are stored
func normalizeApplication(app model.Application) model.Application {
	app.FirstName = strings.TrimSpace(app.FirstName)
	app.LastName = strings.TrimSpace(app.LastName)
	app.Email = model.NormalizeEmail(app.Email)
	app.Phone = strings.TrimSpace(app.Phone)
	app.Address = strings.TrimSpace(app.Address)
	app.City = strings.TrimSpace(app.City)
	app.Province = strings.TrimSpace(app.Province)
	app.PostalCode = strings.ToUpper(strings.TrimSpace(app.PostalCode))
	return app
}
