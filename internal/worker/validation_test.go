package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/fibreflow/internal/models"
)

func TestNormalizeParameters_EvotelSerialAlias(t *testing.T) {
	params := NormalizeParameters(models.ProviderEvotel, map[string]interface{}{
		"serial_number": "EV-123",
	})
	assert.Equal(t, "EV-123", params["circuit_number"])
}

func TestNormalizeParameters_ExplicitCircuitWins(t *testing.T) {
	params := NormalizeParameters(models.ProviderEvotel, map[string]interface{}{
		"circuit_number": "CCT-1",
		"serial_number":  "EV-123",
	})
	assert.Equal(t, "CCT-1", params["circuit_number"])
}

func TestNormalizeParameters_AliasIsEvotelOnly(t *testing.T) {
	params := NormalizeParameters(models.ProviderMFN, map[string]interface{}{
		"serial_number": "EV-123",
	})
	_, ok := params["circuit_number"]
	assert.False(t, ok)
}

func TestNormalizeParameters_NilParams(t *testing.T) {
	params := NormalizeParameters(models.ProviderOSN, nil)
	assert.NotNil(t, params)
	assert.Empty(t, params)
}

func TestRequiredParameters(t *testing.T) {
	tests := []struct {
		provider models.Provider
		action   models.Action
		want     []string
	}{
		{models.ProviderMFN, models.ActionValidation, []string{"circuit_number"}},
		{models.ProviderMFN, models.ActionCancellation, []string{"circuit_number"}},
		{models.ProviderOSN, models.ActionValidation, []string{"circuit_number"}},
		{models.ProviderOSN, models.ActionCancellation, []string{"circuit_number", "solution_id"}},
		{models.ProviderOctotel, models.ActionCancellation, []string{"circuit_number", "solution_id"}},
		{models.ProviderEvotel, models.ActionCancellation, []string{"circuit_number"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider)+"_"+string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, RequiredParameters(tt.provider, tt.action))
		})
	}
}

func TestValidateParameters(t *testing.T) {
	err := ValidateParameters(models.ProviderMFN, models.ActionValidation, map[string]interface{}{
		"circuit_number": "CCT-1",
	})
	assert.NoError(t, err)
}

func TestValidateParameters_MissingNamed(t *testing.T) {
	err := ValidateParameters(models.ProviderOSN, models.ActionCancellation, map[string]interface{}{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "circuit_number, solution_id")
	assert.Contains(t, err.Error(), "osn cancellation")
}

func TestValidateParameters_BlankValues(t *testing.T) {
	// Whitespace-only strings and nils do not satisfy a requirement
	err := ValidateParameters(models.ProviderMFN, models.ActionValidation, map[string]interface{}{
		"circuit_number": "   ",
	})
	assert.Error(t, err)

	err = ValidateParameters(models.ProviderMFN, models.ActionValidation, map[string]interface{}{
		"circuit_number": nil,
	})
	assert.Error(t, err)

	// Non-string values count as present
	err = ValidateParameters(models.ProviderOSN, models.ActionCancellation, map[string]interface{}{
		"circuit_number": "CCT-1",
		"solution_id":    42,
	})
	assert.NoError(t, err)
}
