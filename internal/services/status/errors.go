package status

import (
	"strings"

	"github.com/ternarybob/fibreflow/internal/models"
)

// Failure keyword classes, checked in order. A timeout wording wins over
// an auth wording, an auth wording over a network one, and so on.
var failureKinds = []struct {
	suffix   string
	keywords []string
}{
	{" Timeout", []string{"timeout", "timed out", "deadline exceeded"}},
	{" Auth Error", []string{"login", "auth", "credential", "password", "unauthorized"}},
	{" Network Error", []string{"connection refused", "no such host", "dns", "connection reset", "network", "unreachable"}},
	{" Portal Error", []string{"portal", "unresponsive", "element not found", "page load"}},
	{" System Error", []string{"driver", "browser", "session"}},
}

// FailureStatus classifies a failure message into the external status
// for the given action. Unrecognized messages fall back to the plain
// error status for the action.
func FailureStatus(action models.Action, message string) string {
	prefix := "Bitstream Validation"
	if isCancelAction(action) {
		prefix = "Bitstream Delete"
	}

	lower := strings.ToLower(message)
	for _, kind := range failureKinds {
		for _, kw := range kind.keywords {
			if strings.Contains(lower, kw) {
				return prefix + kind.suffix
			}
		}
	}
	return prefix + " Error"
}
