// -----------------------------------------------------------------------
// Adapters - provider portal automation behind a uniform interface
// -----------------------------------------------------------------------

package adapters

import (
	"context"

	"github.com/ternarybob/fibreflow/internal/models"
)

// Adapter executes one automation action against a provider portal and
// returns the provider-shaped result mapping. Implementations own their
// portal session handling; callers own parameter validation.
type Adapter interface {
	Execute(ctx context.Context, action models.Action, params map[string]interface{}) (map[string]interface{}, error)
}
