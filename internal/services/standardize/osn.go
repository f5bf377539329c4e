package standardize

// osnSettledStatuses are the order states that mark a cease order as
// carried out on the OSN side
var osnSettledStatuses = []string{"accepted", "completed", "implemented", "closed"}

// extractOSN walks the order_data sequence, classifying cease orders
// and picking the first implemented or pending one for the canonical
// cancellation fields.
func extractOSN(result map[string]interface{}) *Canonical {
	c := NewCanonical()

	orders := sliceValue(result, "order_data")

	var firstImplemented map[string]interface{}
	var firstPending map[string]interface{}
	orderCount := 0

	for _, item := range orders {
		order, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		orderCount++

		orderType := stringValue(order, "type")
		if !containsAny(orderType, "cease", "cancel") {
			continue
		}

		if equalsAny(stringValue(order, "orderStatus"), osnSettledStatuses...) {
			if firstImplemented == nil {
				firstImplemented = order
			}
		} else if firstPending == nil {
			firstPending = order
		}
	}

	switch {
	case firstImplemented != nil:
		c.IsActive = false
		c.CancellationImplementationDate = stringValue(firstImplemented, "dateImplemented")
		c.CancellationCapturedID = stringValue(firstImplemented, "orderNumber")
	case firstPending != nil:
		c.IsActive = true
		c.PendingCeaseOrder = true
		c.CancellationCapturedID = stringValue(firstPending, "orderNumber")
	default:
		c.IsActive = true
	}

	if orderCount > 0 || stringValue(result, "service_address") != "" {
		c.ServiceFound = true
	}
	if address := stringValue(result, "service_address"); address != "" {
		c.AddExtra("customer_service_address", address)
	}

	return c
}
