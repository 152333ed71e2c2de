package utils

import (
	"fmt"
	"regexp"
)

var (
	roleRegex       = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,63}$`)
	entityTypeRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)
	currencyRegex   = regexp.MustCompile(`^[A-Z]{3}$`)
)

// ValidateRole validates a role name (upper snake case, e.g. DEPARTMENT_COORDINATOR)
func ValidateRole(role string) error {
	if !roleRegex.MatchString(role) {
		return fmt.Errorf("invalid role name: %q", role)
	}
	return nil
}

// ValidateEntityType validates an entity type (lower snake case, e.g. leave_request)
func ValidateEntityType(entityType string) error {
	if !entityTypeRegex.MatchString(entityType) {
		return fmt.Errorf("invalid entity type: %q", entityType)
	}
	return nil
}

// ValidateAmountCents validates a payment amount in minor units
func ValidateAmountCents(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive: %d", amount)
	}

	if amount > 100_000_000 {
		return fmt.Errorf("amount exceeds maximum limit: %d", amount)
	}

	return nil
}

// ValidateCurrency validates an ISO 4217 currency code
func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("invalid currency code: %q", currency)
	}
	return nil
}
