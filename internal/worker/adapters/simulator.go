package adapters

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/ternarybob/fibreflow/internal/models"
)

// simPNG is a 1x1 transparent PNG, enough to exercise the evidence path.
const simPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="

// Simulator produces deterministic provider-shaped results without
// touching a portal. The circuit number alone decides the outcome, so
// repeated executions of the same job agree with each other:
//
//	hash%10 == 0  -> service not found
//	hash%10 == 1  -> service already cancelled
//	otherwise     -> service active
//
// Circuit numbers containing FAIL raise an execution error and ones
// containing REJECT return an inner failure result.
type Simulator struct {
	provider models.Provider
	settings ProviderSettings
}

// NewSimulator creates a simulator adapter for one provider.
func NewSimulator(provider models.Provider, settings ProviderSettings) *Simulator {
	return &Simulator{provider: provider, settings: settings}
}

// Execute returns the deterministic result for the action and circuit.
func (s *Simulator) Execute(ctx context.Context, action models.Action, params map[string]interface{}) (map[string]interface{}, error) {
	circuit, _ := params["circuit_number"].(string)
	h := circuitHash(circuit)

	// A short pseudo-latency keeps timing behavior honest in tests
	delay := time.Duration(h%200) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	upper := strings.ToUpper(circuit)
	if strings.Contains(upper, "FAIL") {
		return nil, fmt.Errorf("simulated portal failure for circuit %s", circuit)
	}

	var result map[string]interface{}
	if strings.Contains(upper, "REJECT") {
		result = map[string]interface{}{
			"status": "failure",
			"error":  fmt.Sprintf("portal rejected %s request for circuit %s", action, circuit),
		}
	} else {
		switch s.provider {
		case models.ProviderMFN:
			result = s.mfnResult(action, h)
		case models.ProviderOSN:
			result = s.osnResult(action, h)
		case models.ProviderOctotel:
			result = s.octotelResult(action, h)
		case models.ProviderEvotel:
			result = s.evotelResult(action, h)
		default:
			return nil, fmt.Errorf("simulator has no shapes for provider %s", s.provider)
		}
	}

	if s.settings.PortalURL != "" {
		result["portal_url"] = s.settings.PortalURL
	}
	result["screenshot_data"] = []interface{}{
		map[string]interface{}{
			"name":        fmt.Sprintf("%s_%s_result", s.provider, action),
			"base64_data": simPNG,
			"mime_type":   "image/png",
			"description": "Final portal state",
		},
	}

	return result, nil
}

// outcome buckets derived from the circuit hash
const (
	outcomeNotFound  = 0
	outcomeCancelled = 1
)

func circuitHash(circuit string) uint32 {
	f := fnv.New32a()
	f.Write([]byte(circuit))
	return f.Sum32()
}

func simDate(h uint32) string {
	return fmt.Sprintf("2025-07-%02d", h%28+1)
}

func (s *Simulator) mfnResult(action models.Action, h uint32) map[string]interface{} {
	switch {
	case h%10 == outcomeNotFound:
		return map[string]interface{}{"details": map[string]interface{}{}}
	case h%10 == outcomeCancelled, action == models.ActionCancellation:
		return map[string]interface{}{
			"details": map[string]interface{}{
				"cancellation_data": map[string]interface{}{
					"found":                    true,
					"cancellation_captured_id": fmt.Sprintf("MFN-C-%d", h%100000),
					"implementation_date":      simDate(h),
				},
			},
		}
	default:
		return map[string]interface{}{
			"details": map[string]interface{}{
				"customer_data": map[string]interface{}{
					"customer":    fmt.Sprintf("Simulated Customer %d", h%1000),
					"package":     "100/100 Mbps",
					"expiry_date": "2030-01-01",
				},
			},
		}
	}
}

func (s *Simulator) osnResult(action models.Action, h uint32) map[string]interface{} {
	address := fmt.Sprintf("%d Simulation Street", h%200+1)

	switch {
	case h%10 == outcomeNotFound:
		return map[string]interface{}{"order_data": []interface{}{}}
	case h%10 == outcomeCancelled:
		return map[string]interface{}{
			"order_data": []interface{}{
				map[string]interface{}{
					"type":            "Cease Active Service",
					"orderStatus":     "Implemented",
					"orderNumber":     fmt.Sprintf("OSN-C-%d", h%100000),
					"dateImplemented": simDate(h),
				},
			},
			"service_address": address,
		}
	case action == models.ActionCancellation:
		return map[string]interface{}{
			"order_data": []interface{}{
				map[string]interface{}{
					"type":        "Cease Active Service",
					"orderStatus": "Pending",
					"orderNumber": fmt.Sprintf("OSN-C-%d", h%100000),
				},
			},
			"service_address": address,
		}
	default:
		return map[string]interface{}{
			"order_data": []interface{}{
				map[string]interface{}{
					"type":        "New Installation",
					"orderStatus": "Completed",
					"orderNumber": fmt.Sprintf("OSN-N-%d", h%100000),
				},
			},
			"service_address": address,
		}
	}
}

func (s *Simulator) octotelResult(action models.Action, h uint32) map[string]interface{} {
	lineRef := fmt.Sprintf("LN-%d", h%100000)

	switch {
	case h%10 == outcomeNotFound:
		return map[string]interface{}{"found": false}
	case h%10 == outcomeCancelled:
		return map[string]interface{}{
			"found":          true,
			"service_status": "Cancelled",
			"line_reference": lineRef,
		}
	case action == models.ActionCancellation:
		return map[string]interface{}{
			"found":                  true,
			"service_status":         "Active",
			"cancellation_submitted": true,
			"release_reference":      fmt.Sprintf("REL-%d", h%100000),
			"line_reference":         lineRef,
		}
	default:
		return map[string]interface{}{
			"found":          true,
			"service_status": "Active",
			"line_reference": lineRef,
			"services": []interface{}{
				map[string]interface{}{
					"service_status": "Active",
					"status_information": map[string]interface{}{
						"has_pending_cancellation": false,
					},
				},
			},
		}
	}
}

func (s *Simulator) evotelResult(action models.Action, h uint32) map[string]interface{} {
	reference := fmt.Sprintf("EVO-WO-%d", h%100000)

	switch {
	case h%10 == outcomeNotFound:
		return map[string]interface{}{}
	case h%10 == outcomeCancelled:
		return map[string]interface{}{
			"service_summary": map[string]interface{}{
				"status": "Cancelled",
			},
			"work_order": map[string]interface{}{
				"status":         "Completed",
				"reference":      reference,
				"scheduled_time": simDate(h),
			},
		}
	case action == models.ActionCancellation:
		return map[string]interface{}{
			"service_summary": map[string]interface{}{
				"status": "Cancellation Pending",
			},
			"work_order": map[string]interface{}{
				"status":         "Pending",
				"reference":      reference,
				"scheduled_time": simDate(h),
			},
		}
	default:
		return map[string]interface{}{
			"service_summary": map[string]interface{}{
				"status":              "Active",
				"verification_status": "Verified",
				"isp_provisioned":     "Provisioned",
			},
		}
	}
}
