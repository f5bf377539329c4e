package adapters

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/models"
)

// Registry builds adapters lazily on first use per provider. Portal
// sessions are expensive, so nothing is constructed for providers a
// worker never executes against.
type Registry struct {
	manifest    *Manifest
	development bool
	logger      arbor.ILogger

	mu    sync.Mutex
	built map[models.Provider]Adapter
}

// NewRegistry creates an adapter registry from a provider manifest. In
// development mode every provider resolves to the simulator regardless
// of the manifest's adapter names.
func NewRegistry(manifest *Manifest, development bool, logger arbor.ILogger) *Registry {
	if manifest == nil {
		manifest = DefaultManifest()
	}
	return &Registry{
		manifest:    manifest,
		development: development,
		logger:      logger,
		built:       make(map[models.Provider]Adapter),
	}
}

// Get returns the adapter for a provider, constructing it on first use.
func (r *Registry) Get(provider models.Provider) (Adapter, error) {
	if !provider.IsValid() {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter, ok := r.built[provider]; ok {
		return adapter, nil
	}

	settings, ok := r.manifest.Providers[string(provider)]
	if !ok {
		if !r.development {
			return nil, fmt.Errorf("no adapter configured for provider %s", provider)
		}
		settings = ProviderSettings{Adapter: "simulator"}
	}

	adapter, err := r.construct(provider, settings)
	if err != nil {
		return nil, err
	}
	r.built[provider] = adapter

	r.logger.Info().
		Str("provider", string(provider)).
		Str("adapter", adapterName(settings, r.development)).
		Msg("Portal adapter constructed")

	return adapter, nil
}

func (r *Registry) construct(provider models.Provider, settings ProviderSettings) (Adapter, error) {
	name := adapterName(settings, r.development)
	switch name {
	case "simulator":
		return NewSimulator(provider, settings), nil
	default:
		// Real portal adapters ship out of tree and register here by name
		return nil, fmt.Errorf("adapter %q for provider %s is not available in this build", name, provider)
	}
}

func adapterName(settings ProviderSettings, development bool) string {
	if development {
		return "simulator"
	}
	if settings.Adapter == "" {
		return "simulator"
	}
	return settings.Adapter
}
