package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/storage"
)

// Manager selects and configures classification providers and runs
// classifications through them.
type Manager struct {
	store      SettingsStore
	local      LanguageModel
	categories []string
	httpClient *http.Client
	log        logger.Logger
}

// NewManager creates a provider manager. local backs the prompt-api provider
// and may be nil; categories constrains every provider's answer.
func NewManager(store SettingsStore, local LanguageModel, categories []string, httpClient *http.Client, log logger.Logger) *Manager {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Manager{
		store:      store,
		local:      local,
		categories: categories,
		httpClient: httpClient,
		log:        log,
	}
}

// ActiveProvider returns the selected provider, defaulting to prompt-api.
func (m *Manager) ActiveProvider(ctx context.Context) (string, error) {
	var name string
	err := m.store.GetSetting(ctx, model.SettingAIProvider, &name)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && name == "") {
		return DefaultProvider, nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

func (m *Manager) SetActiveProvider(ctx context.Context, name string) error {
	if !IsProvider(name) {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return m.store.SetSetting(ctx, model.SettingAIProvider, name)
}

// ProviderConfig returns the stored configuration of a provider, or its
// defaults when none was stored.
func (m *Manager) ProviderConfig(ctx context.Context, name string) (Config, error) {
	if !IsProvider(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	var raw json.RawMessage
	err := m.store.GetSetting(ctx, model.ProviderConfigKey(name), &raw)
	if errors.Is(err, storage.ErrNotFound) {
		return DefaultConfig(name)
	}
	if err != nil {
		return nil, err
	}
	return DecodeConfig(name, raw)
}

// SetProviderConfig validates and stores a provider configuration.
func (m *Manager) SetProviderConfig(ctx context.Context, name string, raw json.RawMessage) (Config, error) {
	if !IsProvider(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	cfg, err := DecodeConfig(name, raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := m.store.SetSetting(ctx, model.ProviderConfigKey(name), cfg); err != nil {
		return nil, err
	}
	m.log.Info("provider config saved", logger.String("provider", name))
	return cfg, nil
}

// backendFor resolves a provider to a configured backend.
func (m *Manager) backendFor(ctx context.Context, name string) (backend, error) {
	cfg, err := m.ProviderConfig(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch c := cfg.(type) {
	case SessionConfig:
		return &sessionBackend{model: m.local}, nil
	case LocalServerConfig:
		if c.Type == ProviderOllama {
			return &ollamaBackend{cfg: c, httpClient: m.httpClient}, nil
		}
		return &lmStudioBackend{cfg: c, httpClient: m.httpClient}, nil
	case HostedConfig:
		if c.Type == ProviderAnthropic {
			return &anthropicBackend{cfg: c, categories: m.categories, httpClient: m.httpClient}, nil
		}
		return &openAIBackend{cfg: c, httpClient: m.httpClient}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
}

// CheckAvailability probes a provider. An empty name checks the active one.
func (m *Manager) CheckAvailability(ctx context.Context, name string) Availability {
	name, err := m.resolve(ctx, name)
	if err != nil {
		return Availability{Error: err.Error()}
	}

	b, err := m.backendFor(ctx, name)
	if err != nil {
		return Availability{Error: err.Error(), Help: configHelp(name)}
	}

	avail := b.check(ctx)
	m.log.Debug("provider availability",
		logger.String("provider", name),
		logger.Bool("available", avail.Available))
	return avail
}

// ClassifyWithProvider classifies item with the named provider, or the active
// one when name is empty. It never panics: an unknown or misconfigured
// provider yields Available=false, a failing backend a nil Result.
func (m *Manager) ClassifyWithProvider(ctx context.Context, name string, item model.Item) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Provider: name, Available: true, Error: fmt.Sprintf("provider panic: %v", r)}
		}
	}()

	name, err := m.resolve(ctx, name)
	if err != nil {
		return Outcome{Provider: name, Error: err.Error()}
	}

	b, err := m.backendFor(ctx, name)
	if err != nil {
		return Outcome{Provider: name, Error: err.Error()}
	}

	text, err := b.complete(ctx, BuildPrompt(item, m.categories))
	if err != nil {
		m.log.Warn("provider classification failed", logger.String("provider", name), logger.Error(err))
		return Outcome{Provider: name, Available: true, Error: err.Error()}
	}

	result, err := ParseResult(text, m.categories)
	if err != nil {
		m.log.Warn("provider returned unusable answer", logger.String("provider", name), logger.Error(err))
		return Outcome{Provider: name, Available: true, Error: err.Error()}
	}

	return Outcome{Provider: name, Available: true, Result: result}
}

func (m *Manager) resolve(ctx context.Context, name string) (string, error) {
	if name == "" {
		return m.ActiveProvider(ctx)
	}
	if !IsProvider(name) {
		return name, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return name, nil
}

func configHelp(name string) string {
	switch providerKinds[name] {
	case kindHosted:
		return fmt.Sprintf("Set an API key: gmark provider set %s --api-key <key>", name)
	case kindLocalServer:
		return fmt.Sprintf("Set the server url and model: gmark provider set %s --url <url> --model <model>", name)
	default:
		return ""
	}
}
