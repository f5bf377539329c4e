package reporter

import (
	"fmt"

	"github.com/ternarybob/fibreflow/internal/models"
	"github.com/ternarybob/fibreflow/internal/services/standardize"
)

// BuildEvidence assembles the flat string-to-string evidence bag posted
// in JOB_EVI. Canonical fields appear under their own names, raw worker
// output under raw_, evidence file paths under evidence_N and job
// parameters under job_param_. Screenshot payloads are dropped at every
// nesting level.
func BuildEvidence(job *models.Job, c *standardize.Canonical, result map[string]interface{}) map[string]string {
	evidence := make(map[string]string)

	if c != nil {
		evidence["service_found"] = boolString(c.ServiceFound)
		evidence["customer_found"] = boolString(c.CustomerFound)
		evidence["is_active"] = boolString(c.IsActive)
		evidence["pending_cease_order"] = boolString(c.PendingCeaseOrder)
		evidence["cancellation_submitted"] = boolString(c.CancellationSubmitted)
		if c.CancellationImplementationDate != "" {
			evidence["cancellation_implementation_date"] = c.CancellationImplementationDate
		}
		if c.CancellationCapturedID != "" {
			evidence["cancellation_captured_id"] = c.CancellationCapturedID
		}
		for k, v := range c.Extras {
			evidence[k] = v
		}
	}

	evidence["automation_status"] = automationStatus(result)

	for k, v := range result {
		if k == models.ScreenshotDataKey || k == "automation_status" {
			continue
		}
		flattenValue(evidence, "raw_"+k, v)
	}

	for i, path := range job.Evidence {
		evidence[fmt.Sprintf("evidence_%d", i)] = path
	}
	for k, v := range job.Parameters {
		flattenValue(evidence, "job_param_"+k, v)
	}

	return evidence
}

// automationStatus reads the error/failure marker the dispatcher writes
// into failed results. Its absence means the worker reported success.
func automationStatus(result map[string]interface{}) string {
	if v, ok := result["automation_status"].(string); ok && v != "" {
		return v
	}
	return "success"
}

// flattenValue writes v under key, descending into nested maps and
// sequences with underscore-joined path segments.
func flattenValue(out map[string]string, key string, v interface{}) {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, nested := range t {
			if k == models.ScreenshotDataKey {
				continue
			}
			flattenValue(out, key+"_"+k, nested)
		}
	case []interface{}:
		for i, item := range t {
			flattenValue(out, fmt.Sprintf("%s_%d", key, i), item)
		}
	case nil:
	default:
		out[key] = scalarString(t)
	}
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return boolString(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
