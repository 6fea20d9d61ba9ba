package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest_ReportsFirstFieldError(t *testing.T) {
	err := ValidateRequest(LoginRequest{Email: "not-an-email", Password: "pw"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Email")
	assert.Contains(t, err.Error(), "valid email address")
}

func TestValidateRequest_IPTag(t *testing.T) {
	req := BlockIPRequest{IPAddress: "not-an-ip", Reason: "manual review"}
	err := ValidateRequest(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid IP address")

	req.IPAddress = "203.0.113.9"
	assert.NoError(t, ValidateRequest(req))
}

func TestValidateRequest_CountryCodeShape(t *testing.T) {
	// Two letters exactly, nothing else.
	for _, code := range []string{"D", "DEU", "1A"} {
		err := ValidateRequest(CountryBlockRequest{CountryCode: code, Reason: "sanctions"})
		assert.Error(t, err, "code %q should fail", code)
	}
	assert.NoError(t, ValidateRequest(CountryBlockRequest{CountryCode: "DE", Reason: "sanctions"}))
}

func TestValidateRequest_NumericMFACode(t *testing.T) {
	err := ValidateRequest(ConfirmMFARequest{Code: "12345a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only digits")

	assert.NoError(t, ValidateRequest(ConfirmMFARequest{Code: "123456"}))
}
