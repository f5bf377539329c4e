// -----------------------------------------------------------------------
// Status mapper - canonical result fields to external status string
// -----------------------------------------------------------------------

package status

import (
	"strings"

	"github.com/ternarybob/fibreflow/internal/models"
	"github.com/ternarybob/fibreflow/internal/services/standardize"
)

// External status values reported to the upstream system.
const (
	Validated              = "Bitstream Validated"
	NotFound               = "Bitstream Not Found"
	AlreadyCancelled       = "Bitstream Already Cancelled"
	CancellationPending    = "Bitstream Cancellation Pending"
	VerificationPending    = "Bitstream Verification Pending"
	ISPProvisioningPending = "Bitstream ISP Provisioning Pending"
	Unknown                = "Bitstream Status Unknown"
	ValidationError        = "Bitstream Validation Error"
	DeleteError            = "Bitstream Delete Error"
	ProcessingError        = "Bitstream Processing Error"
)

// Map converts a standardized result into exactly one external status.
// The rules are ordered; the first match wins. completed reports whether
// the job itself reached the completed state, c describes what the
// automation found on the portal.
func Map(completed bool, action models.Action, c *standardize.Canonical) string {
	if !completed {
		switch {
		case action == models.ActionValidation:
			return ValidationError
		case isCancelAction(action):
			return DeleteError
		default:
			return ProcessingError
		}
	}

	if c == nil {
		c = standardize.NewCanonical()
	}

	switch {
	case !c.ServiceFound:
		return NotFound
	case c.PendingCeaseOrder || c.PendingRequests:
		return CancellationPending
	case c.CancellationImplementationDate != "":
		return AlreadyCancelled
	case c.CancellationCapturedID != "" && !c.IsActive:
		return AlreadyCancelled
	case c.CancellationSubmitted && c.CancellationCapturedID != "":
		return CancellationPending
	case c.IsActive:
		return Validated
	case c.CancellationCapturedID != "":
		return AlreadyCancelled
	case strings.EqualFold(c.VerificationStatus, "unverified"):
		return VerificationPending
	case strings.EqualFold(c.ISPProvisioned, "no"):
		return ISPProvisioningPending
	case c.ServiceFound:
		return Validated
	}

	// Only reachable if the not-found rule above stops gating on
	// service_found.
	return Unknown
}

func isCancelAction(action models.Action) bool {
	return strings.Contains(strings.ToLower(string(action)), "cancel")
}
