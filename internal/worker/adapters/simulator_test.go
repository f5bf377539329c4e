package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/fibreflow/internal/models"
)

// Circuit numbers chosen so their hash lands in a known outcome bucket.
const (
	simActive    = "CCT-3"  // hash%10 = 7
	simNotFound  = "CCT-20" // hash%10 = 0
	simCancelled = "CCT-23" // hash%10 = 1
)

func simParams(circuit string) map[string]interface{} {
	return map[string]interface{}{"circuit_number": circuit}
}

func TestSimulator_Deterministic(t *testing.T) {
	sim := NewSimulator(models.ProviderOctotel, ProviderSettings{})
	ctx := context.Background()

	first, err := sim.Execute(ctx, models.ActionValidation, simParams(simActive))
	require.NoError(t, err)
	second, err := sim.Execute(ctx, models.ActionValidation, simParams(simActive))
	require.NoError(t, err)

	assert.Equal(t, first, second, "the same circuit must always produce the same result")
}

func TestSimulator_OctotelOutcomes(t *testing.T) {
	sim := NewSimulator(models.ProviderOctotel, ProviderSettings{})
	ctx := context.Background()

	result, err := sim.Execute(ctx, models.ActionValidation, simParams(simNotFound))
	require.NoError(t, err)
	assert.Equal(t, false, result["found"])

	result, err = sim.Execute(ctx, models.ActionValidation, simParams(simCancelled))
	require.NoError(t, err)
	assert.Equal(t, true, result["found"])
	assert.Equal(t, "Cancelled", result["service_status"])

	result, err = sim.Execute(ctx, models.ActionValidation, simParams(simActive))
	require.NoError(t, err)
	assert.Equal(t, "Active", result["service_status"])
	assert.Equal(t, "LN-34017", result["line_reference"])
}

func TestSimulator_OctotelCancellationSubmits(t *testing.T) {
	sim := NewSimulator(models.ProviderOctotel, ProviderSettings{})

	result, err := sim.Execute(context.Background(), models.ActionCancellation, simParams(simActive))
	require.NoError(t, err)
	assert.Equal(t, true, result["cancellation_submitted"])
	assert.Equal(t, "REL-34017", result["release_reference"])
}

func TestSimulator_MFNShapes(t *testing.T) {
	sim := NewSimulator(models.ProviderMFN, ProviderSettings{})
	ctx := context.Background()

	result, err := sim.Execute(ctx, models.ActionValidation, simParams(simActive))
	require.NoError(t, err)
	details := result["details"].(map[string]interface{})
	customer := details["customer_data"].(map[string]interface{})
	assert.Equal(t, "Simulated Customer 17", customer["customer"])

	result, err = sim.Execute(ctx, models.ActionValidation, simParams(simCancelled))
	require.NoError(t, err)
	details = result["details"].(map[string]interface{})
	cancellation := details["cancellation_data"].(map[string]interface{})
	assert.Equal(t, "MFN-C-83431", cancellation["cancellation_captured_id"])
	assert.Equal(t, "2025-07-16", cancellation["implementation_date"])
}

func TestSimulator_FailCircuit(t *testing.T) {
	sim := NewSimulator(models.ProviderEvotel, ProviderSettings{})

	result, err := sim.Execute(context.Background(), models.ActionValidation, simParams("CCT-FAIL-9"))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "simulated portal failure")
}

func TestSimulator_RejectCircuit(t *testing.T) {
	sim := NewSimulator(models.ProviderOSN, ProviderSettings{})

	result, err := sim.Execute(context.Background(), models.ActionCancellation, simParams("CCT-REJECT-9"))
	require.NoError(t, err)
	assert.Equal(t, "failure", result["status"])
	assert.Contains(t, result["error"], "cancellation")
	assert.Contains(t, result["error"], "CCT-REJECT-9")
}

func TestSimulator_EvidenceAttached(t *testing.T) {
	sim := NewSimulator(models.ProviderOctotel, ProviderSettings{PortalURL: "https://octotel.example"})

	result, err := sim.Execute(context.Background(), models.ActionValidation, simParams(simActive))
	require.NoError(t, err)

	assert.Equal(t, "https://octotel.example", result["portal_url"])

	shots := result["screenshot_data"].([]interface{})
	require.Len(t, shots, 1)
	shot := shots[0].(map[string]interface{})
	assert.Equal(t, "octotel_validation_result", shot["name"])
	assert.Equal(t, "image/png", shot["mime_type"])
	assert.Equal(t, simPNG, shot["base64_data"])
}

func TestSimulator_ContextCancelled(t *testing.T) {
	sim := NewSimulator(models.ProviderMFN, ProviderSettings{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// simActive's hash gives a nonzero simulated latency, so the
	// cancelled context always wins the wait
	_, err := sim.Execute(ctx, models.ActionValidation, simParams(simActive))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
