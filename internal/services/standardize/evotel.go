package standardize

// Status keyword classes for the Evotel portal. Service and work-order
// status fields are free text, so matching is by substring.
var (
	evotelActiveWords    = []string{"active", "provisioned", "completed", "accepted"}
	evotelCancelledWords = []string{"cancelled", "inactive", "failed"}
	evotelPendingWords   = []string{"pending", "in progress", "provisioning"}
)

// extractEvotel interprets the service summary and work-order blocks
// scraped from the Evotel portal.
func extractEvotel(result map[string]interface{}) *Canonical {
	c := NewCanonical()

	summary := mapValue(result, "service_summary")
	extraction := mapValue(result, "comprehensive_extraction")
	if summary != nil || extraction != nil {
		c.ServiceFound = true
	}

	statusText := stringValue(summary, "status")
	if statusText == "" {
		statusText = stringValue(result, "service_status")
	}

	workOrder := mapValue(result, "work_order")
	if workOrder == nil && extraction != nil {
		workOrder = mapValue(extraction, "work_order")
	}
	workOrderStatus := stringValue(workOrder, "status")

	switch {
	case containsAny(statusText, evotelCancelledWords...) || containsAny(workOrderStatus, evotelCancelledWords...):
		c.IsActive = false
		c.CancellationImplementationDate = stringValue(workOrder, "scheduled_time")
		c.CancellationCapturedID = stringValue(workOrder, "reference")
	case containsAny(statusText, evotelPendingWords...) || containsAny(workOrderStatus, evotelPendingWords...):
		c.PendingCeaseOrder = true
		c.IsActive = true
	case containsAny(statusText, evotelActiveWords...) || containsAny(workOrderStatus, evotelActiveWords...):
		c.IsActive = true
	case c.ServiceFound:
		c.IsActive = true
	}

	c.VerificationStatus = stringValue(summary, "verification_status")
	if c.VerificationStatus == "" {
		c.VerificationStatus = stringValue(result, "verification_status")
	}
	c.ISPProvisioned = stringValue(summary, "isp_provisioned")
	if c.ISPProvisioned == "" {
		c.ISPProvisioned = stringValue(result, "isp_provisioned")
	}

	c.AddExtra("evotel_service_status", statusText)
	c.AddExtra("evotel_work_order_status", workOrderStatus)
	c.AddExtra("evotel_verification_status", c.VerificationStatus)
	c.AddExtra("evotel_isp_provisioned", c.ISPProvisioned)

	return c
}
