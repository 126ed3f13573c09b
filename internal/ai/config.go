package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
)

// Provider names.
const (
	ProviderPromptAPI = "prompt-api"
	ProviderOllama    = "ollama"
	ProviderLMStudio  = "lm-studio"
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderGemini    = "gemini"
	ProviderMistral   = "mistral"
	ProviderLlama     = "llama"
	ProviderAnthropic = "anthropic"
)

// DefaultProvider is used when no active provider has been set.
const DefaultProvider = ProviderPromptAPI

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrInvalidConfig   = errors.New("invalid provider config")
)

type configKind int

const (
	kindSession configKind = iota
	kindLocalServer
	kindHosted
)

var providerKinds = map[string]configKind{
	ProviderPromptAPI: kindSession,
	ProviderOllama:    kindLocalServer,
	ProviderLMStudio:  kindLocalServer,
	ProviderOpenAI:    kindHosted,
	ProviderDeepSeek:  kindHosted,
	ProviderGemini:    kindHosted,
	ProviderMistral:   kindHosted,
	ProviderLlama:     kindHosted,
	ProviderAnthropic: kindHosted,
}

// Providers returns every known provider name in display order.
func Providers() []string {
	return []string{
		ProviderPromptAPI, ProviderOllama, ProviderLMStudio,
		ProviderOpenAI, ProviderDeepSeek, ProviderGemini,
		ProviderMistral, ProviderLlama, ProviderAnthropic,
	}
}

// IsProvider reports whether name is a known provider.
func IsProvider(name string) bool {
	return slices.Contains(Providers(), name)
}

// Config is one variant of the per-provider configuration union.
type Config interface {
	ProviderName() string
	Validate() error
}

// SessionConfig configures the on-device language model session.
type SessionConfig struct {
	Type string `json:"type"`
}

// LocalServerConfig configures a model server reachable by URL (Ollama, LM Studio).
type LocalServerConfig struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Model string `json:"model"`
}

// HostedConfig configures an API-key authenticated hosted provider.
type HostedConfig struct {
	Type    string `json:"type"`
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseURL"`
	Model   string `json:"model"`
}

func (c SessionConfig) ProviderName() string     { return c.Type }
func (c LocalServerConfig) ProviderName() string { return c.Type }
func (c HostedConfig) ProviderName() string      { return c.Type }

func (c SessionConfig) Validate() error {
	if c.Type != ProviderPromptAPI {
		return fmt.Errorf("%w: type %q is not a session provider", ErrInvalidConfig, c.Type)
	}
	return nil
}

func (c LocalServerConfig) Validate() error {
	if providerKinds[c.Type] != kindLocalServer {
		return fmt.Errorf("%w: type %q is not a local server provider", ErrInvalidConfig, c.Type)
	}
	if err := validateHTTPURL(c.URL); err != nil {
		return fmt.Errorf("%w: %s url: %v", ErrInvalidConfig, c.Type, err)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: %s model is required", ErrInvalidConfig, c.Type)
	}
	return nil
}

func (c HostedConfig) Validate() error {
	if kind, ok := providerKinds[c.Type]; !ok || kind != kindHosted {
		return fmt.Errorf("%w: type %q is not a hosted provider", ErrInvalidConfig, c.Type)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: %s apiKey is required", ErrInvalidConfig, c.Type)
	}
	if err := validateHTTPURL(c.BaseURL); err != nil {
		return fmt.Errorf("%w: %s baseURL: %v", ErrInvalidConfig, c.Type, err)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: %s model is required", ErrInvalidConfig, c.Type)
	}
	return nil
}

// Redacted returns a copy safe for display.
func (c HostedConfig) Redacted() HostedConfig {
	if len(c.APIKey) > 4 {
		c.APIKey = "****" + c.APIKey[len(c.APIKey)-4:]
	} else if c.APIKey != "" {
		c.APIKey = "****"
	}
	return c
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an http(s) URL", raw)
	}
	return nil
}

// DefaultConfig returns the built-in configuration for a provider. Hosted
// defaults carry no API key and so do not validate.
func DefaultConfig(provider string) (Config, error) {
	switch provider {
	case ProviderPromptAPI:
		return SessionConfig{Type: provider}, nil
	case ProviderOllama:
		return LocalServerConfig{Type: provider, URL: "http://localhost:11434", Model: "llama2"}, nil
	case ProviderLMStudio:
		return LocalServerConfig{Type: provider, URL: "http://localhost:1234", Model: "default"}, nil
	case ProviderOpenAI:
		return HostedConfig{Type: provider, BaseURL: "https://api.openai.com/v1", Model: "gpt-3.5-turbo"}, nil
	case ProviderDeepSeek:
		return HostedConfig{Type: provider, BaseURL: "https://api.deepseek.com/v1", Model: "deepseek-chat"}, nil
	case ProviderGemini:
		return HostedConfig{Type: provider, BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/", Model: "gemini-2.0-flash"}, nil
	case ProviderMistral:
		return HostedConfig{Type: provider, BaseURL: "https://api.mistral.ai/v1", Model: "mistral-small-latest"}, nil
	case ProviderLlama:
		return HostedConfig{Type: provider, BaseURL: "https://api.together.xyz/v1", Model: "meta-llama/Meta-Llama-3.1-70B-Instruct-Turbo"}, nil
	case ProviderAnthropic:
		return HostedConfig{Type: provider, BaseURL: anthropicBaseURL, Model: haikuModel}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// DecodeConfig decodes a stored or user-supplied config into the variant the
// provider requires. Missing fields are filled from the provider defaults and
// a mismatching "type" discriminator is rejected.
func DecodeConfig(provider string, data []byte) (Config, error) {
	def, err := DefaultConfig(provider)
	if err != nil {
		return nil, err
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if probe.Type != "" && probe.Type != provider {
		return nil, fmt.Errorf("%w: type %q does not match provider %q", ErrInvalidConfig, probe.Type, provider)
	}

	switch d := def.(type) {
	case SessionConfig:
		return d, nil
	case LocalServerConfig:
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		d.Type = provider
		return d, nil
	case HostedConfig:
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		d.Type = provider
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
}
