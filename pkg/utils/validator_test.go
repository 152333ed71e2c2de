package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRole(t *testing.T) {
	assert.NoError(t, ValidateRole("DEAN"))
	assert.NoError(t, ValidateRole("DEPARTMENT_COORDINATOR"))
	assert.Error(t, ValidateRole(""))
	assert.Error(t, ValidateRole("dean"))
	assert.Error(t, ValidateRole("HEAD OF DEPT"))
}

func TestValidateEntityType(t *testing.T) {
	assert.NoError(t, ValidateEntityType("admission_application"))
	assert.Error(t, ValidateEntityType("AdmissionApplication"))
	assert.Error(t, ValidateEntityType("1leave"))
}

func TestValidateAmountCents(t *testing.T) {
	assert.NoError(t, ValidateAmountCents(150000))
	assert.Error(t, ValidateAmountCents(0))
	assert.Error(t, ValidateAmountCents(-5))
	assert.Error(t, ValidateAmountCents(100_000_001))
}

func TestValidateCurrency(t *testing.T) {
	assert.NoError(t, ValidateCurrency("INR"))
	assert.Error(t, ValidateCurrency("inr"))
	assert.Error(t, ValidateCurrency("RUPEE"))
}
