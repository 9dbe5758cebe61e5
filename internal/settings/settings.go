package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const schemaVersion = 1

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-sonnet-latest"
)

type ProviderSettings struct {
	Enabled bool   `json:"enabled"`
	Model   string `json:"model,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

type Settings struct {
	SchemaVersion  int                         `json:"schema_version"`
	ActiveProvider string                      `json:"active_provider"`
	Providers      map[string]ProviderSettings `json:"providers"`
}

type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultSettings(), nil
		}
		return nil, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	backfillSettings(&settings)
	return &settings, nil
}

func (s *Store) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backfillSettings(settings)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *Store) Update(fn func(*Settings)) (*Settings, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}
	fn(settings)
	return settings, s.Save(settings)
}

// Active resolves the enabled provider the engine should talk to.
func (settings *Settings) Active() (string, ProviderSettings) {
	provider := settings.ActiveProvider
	entry, ok := settings.Providers[provider]
	if !ok || !entry.Enabled {
		return "", ProviderSettings{}
	}
	return provider, entry
}

func KnownProvider(providerID string) bool {
	switch providerID {
	case ProviderOpenAI, ProviderAnthropic:
		return true
	default:
		return false
	}
}

func defaultSettings() *Settings {
	return &Settings{
		SchemaVersion:  schemaVersion,
		ActiveProvider: ProviderOpenAI,
		Providers: map[string]ProviderSettings{
			ProviderOpenAI:    defaultProviderSettings(ProviderOpenAI),
			ProviderAnthropic: defaultProviderSettings(ProviderAnthropic),
		},
	}
}

func backfillSettings(settings *Settings) {
	if settings.SchemaVersion == 0 {
		settings.SchemaVersion = schemaVersion
	}
	if settings.Providers == nil {
		settings.Providers = map[string]ProviderSettings{}
	}
	backfillProvider(settings.Providers, ProviderOpenAI)
	backfillProvider(settings.Providers, ProviderAnthropic)
	if !KnownProvider(strings.TrimSpace(settings.ActiveProvider)) {
		settings.ActiveProvider = ProviderOpenAI
	}
}

func backfillProvider(providers map[string]ProviderSettings, providerID string) {
	entry, ok := providers[providerID]
	if !ok {
		providers[providerID] = defaultProviderSettings(providerID)
		return
	}
	if strings.TrimSpace(entry.Model) == "" {
		entry.Model = defaultModel(providerID)
	}
	providers[providerID] = entry
}

func defaultProviderSettings(providerID string) ProviderSettings {
	return ProviderSettings{Enabled: true, Model: defaultModel(providerID)}
}

func defaultModel(providerID string) string {
	switch providerID {
	case ProviderAnthropic:
		return defaultAnthropicModel
	default:
		return defaultOpenAIModel
	}
}
