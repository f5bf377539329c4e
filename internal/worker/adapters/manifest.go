package adapters

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderSettings is one provider block of the YAML manifest. Credential
// values never appear in the manifest, only the names of the environment
// variables that hold them.
type ProviderSettings struct {
	Adapter        string `yaml:"adapter"`
	PortalURL      string `yaml:"portal_url"`
	UsernameEnv    string `yaml:"username_env"`
	PasswordEnv    string `yaml:"password_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PortalTimeout returns the per-portal execution budget, defaulting to
// 60 seconds when the manifest leaves it unset.
func (s ProviderSettings) PortalTimeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Manifest declares the portal adapters a worker can build, keyed by
// provider name.
type Manifest struct {
	Providers map[string]ProviderSettings `yaml:"providers"`
}

// DefaultManifest returns a manifest wiring every supported provider to
// the simulator adapter. Used when no providers.yaml is present.
func DefaultManifest() *Manifest {
	settings := func(provider string) ProviderSettings {
		prefix := strings.ToUpper(provider)
		return ProviderSettings{
			Adapter:        "simulator",
			PortalURL:      fmt.Sprintf("https://portal.%s.example.net", provider),
			UsernameEnv:    prefix + "_PORTAL_USERNAME",
			PasswordEnv:    prefix + "_PORTAL_PASSWORD",
			TimeoutSeconds: 60,
		}
	}
	return &Manifest{
		Providers: map[string]ProviderSettings{
			"mfn":     settings("mfn"),
			"osn":     settings("osn"),
			"octotel": settings("octotel"),
			"evotel":  settings("evotel"),
		},
	}
}

// LoadManifest reads a providers.yaml file. A missing file is not an
// error; the default manifest is returned instead so a bare worker can
// still run in simulator mode.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultManifest(), nil
		}
		return nil, fmt.Errorf("failed to read provider manifest %s: %w", path, err)
	}

	manifest := &Manifest{}
	if err := yaml.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("failed to parse provider manifest %s: %w", path, err)
	}
	if len(manifest.Providers) == 0 {
		return nil, fmt.Errorf("provider manifest %s declares no providers", path)
	}

	return manifest, nil
}
