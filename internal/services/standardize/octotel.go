package standardize

import "strings"

// extractOctotel reads the service detail mapping produced by the
// Octotel portal automation. Pending cancellations surface in three
// places depending on which page the automation scraped, so all three
// are checked.
func extractOctotel(result map[string]interface{}) *Canonical {
	c := NewCanonical()

	c.ServiceFound = boolValue(result, "found")

	if boolValue(result, "pending_requests_detected") {
		c.PendingCeaseOrder = true
		c.PendingRequests = true
	}

	serviceStatus := stringValue(result, "service_status")
	for _, item := range sliceValue(result, "services") {
		svc, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if info := mapValue(svc, "status_information"); info != nil {
			if boolValue(info, "has_pending_cancellation") || boolValue(info, "pending_cancellation_requests") {
				c.PendingCeaseOrder = true
			}
		}
		if boolValue(svc, "pending_cancellation_requests") {
			c.PendingCeaseOrder = true
		}
		if serviceStatus == "" {
			serviceStatus = stringValue(svc, "service_status")
		}
	}

	if strings.EqualFold(serviceStatus, "cancelled") {
		// The portal shows no implementation date once a service is
		// cancelled, only the status itself.
		c.IsActive = false
		c.CancellationImplementationDate = "auto-detected"
	} else if c.ServiceFound {
		c.IsActive = true
	}

	if boolValue(result, "cancellation_submitted") {
		c.CancellationSubmitted = true
		c.CancellationCapturedID = stringValue(result, "release_reference")
	}

	c.AddExtra("octotel_service_status", serviceStatus)
	c.AddExtra("octotel_release_reference", stringValue(result, "release_reference"))
	c.AddExtra("octotel_line_reference", stringValue(result, "line_reference"))

	return c
}
