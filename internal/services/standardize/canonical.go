// -----------------------------------------------------------------------
// Result Standardizer - Canonical view over per-provider result shapes
// -----------------------------------------------------------------------

package standardize

import (
	"github.com/ternarybob/fibreflow/internal/models"
)

// Canonical is the provider-independent view of an automation result.
// The status mapper operates on this struct only; raw provider shapes
// never leak past the extractors.
type Canonical struct {
	ServiceFound                   bool   `json:"service_found"`
	CustomerFound                  bool   `json:"customer_found"`
	IsActive                       bool   `json:"is_active"`
	PendingCeaseOrder              bool   `json:"pending_cease_order"`
	PendingRequests                bool   `json:"pending_requests"`
	CancellationImplementationDate string `json:"cancellation_implementation_date,omitempty"`
	CancellationCapturedID         string `json:"cancellation_captured_id,omitempty"`
	CancellationSubmitted          bool   `json:"cancellation_submitted"`

	// Evotel portals expose two extra provisioning signals the status
	// mapper consults directly
	VerificationStatus string `json:"verification_status,omitempty"`
	ISPProvisioned     string `json:"isp_provisioned,omitempty"`

	// Extras carry provider-prefixed report fields (octotel_*,
	// evotel_*, customer_*) straight into the evidence bag
	Extras map[string]string `json:"extras,omitempty"`
}

// NewCanonical returns an empty canonical view with an allocated
// extras map
func NewCanonical() *Canonical {
	return &Canonical{Extras: map[string]string{}}
}

// AddExtra records one provider-specific report field
func (c *Canonical) AddExtra(key, value string) {
	if value == "" {
		return
	}
	if c.Extras == nil {
		c.Extras = map[string]string{}
	}
	c.Extras[key] = value
}

// Standardize converts a raw worker result into the canonical view
// using the provider's extraction rules. Unknown providers yield an
// empty canonical (service not found).
func Standardize(provider models.Provider, result map[string]interface{}) *Canonical {
	if result == nil {
		return NewCanonical()
	}

	switch provider {
	case models.ProviderMFN:
		return extractMFN(result)
	case models.ProviderOSN:
		return extractOSN(result)
	case models.ProviderOctotel:
		return extractOctotel(result)
	case models.ProviderEvotel:
		return extractEvotel(result)
	default:
		return NewCanonical()
	}
}
