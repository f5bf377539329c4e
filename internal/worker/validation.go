package worker

import (
	"fmt"
	"strings"

	"github.com/ternarybob/fibreflow/internal/models"
)

// NormalizeParameters applies provider-specific parameter aliases before
// validation. Evotel clients historically submitted serial_number where
// every other provider uses circuit_number.
func NormalizeParameters(provider models.Provider, params map[string]interface{}) map[string]interface{} {
	if params == nil {
		params = map[string]interface{}{}
	}

	if provider == models.ProviderEvotel {
		if _, ok := params["circuit_number"]; !ok {
			if serial, ok := params["serial_number"]; ok {
				params["circuit_number"] = serial
			}
		}
	}

	return params
}

// RequiredParameters returns the parameter names a (provider, action)
// pair must carry.
func RequiredParameters(provider models.Provider, action models.Action) []string {
	if action == models.ActionCancellation {
		switch provider {
		case models.ProviderOSN, models.ProviderOctotel:
			return []string{"circuit_number", "solution_id"}
		}
	}
	return []string{"circuit_number"}
}

// ValidateParameters enforces the per-(provider, action) parameter table.
func ValidateParameters(provider models.Provider, action models.Action, params map[string]interface{}) error {
	var missing []string
	for _, name := range RequiredParameters(provider, action) {
		if !hasValue(params, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required parameters for %s %s: %s",
			provider, action, strings.Join(missing, ", "))
	}
	return nil
}

func hasValue(params map[string]interface{}, name string) bool {
	value, ok := params[name]
	if !ok || value == nil {
		return false
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}
