package standardize

// extractMFN handles both MFN result shapes. The enhanced shape
// carries a status_analysis block with the flags precomputed; the
// legacy shape signals state through the presence of customer or
// cancellation sub-mappings under details.
func extractMFN(result map[string]interface{}) *Canonical {
	c := NewCanonical()

	details := mapValue(result, "details")

	analysis := mapValue(result, "status_analysis")
	if analysis == nil && details != nil {
		analysis = mapValue(details, "status_analysis")
	}

	if analysis != nil {
		c.ServiceFound = boolValue(analysis, "service_found")
		c.IsActive = boolValue(analysis, "is_active")
		c.CustomerFound = boolValue(analysis, "customer_found")
		if _, ok := analysis["pending_cease_order"]; ok {
			c.PendingCeaseOrder = boolValue(analysis, "pending_cease_order")
		}
		c.CancellationImplementationDate = stringValue(analysis, "cancellation_implementation_date")
		c.CancellationCapturedID = stringValue(analysis, "cancellation_captured_id")
	} else if details != nil {
		if customer := mapValue(details, "customer_data"); customer != nil {
			c.ServiceFound = true
			c.IsActive = true
			c.CustomerFound = true
		}
		// A captured cancellation overrides the active flags
		if cancellation := mapValue(details, "cancellation_data"); cancellation != nil && boolValue(cancellation, "found") {
			c.ServiceFound = true
			c.IsActive = false
			c.CancellationCapturedID = stringValue(cancellation, "cancellation_captured_id")
			c.CancellationImplementationDate = stringValue(cancellation, "implementation_date")
		}
	}

	// Customer scalars feed the evidence bag
	if details != nil {
		if customer := mapValue(details, "customer_data"); customer != nil {
			for key := range customer {
				c.AddExtra("customer_"+key, stringValue(customer, key))
			}
		}
	}

	return c
}
