package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

var ErrSessionUnavailable = errors.New("language model session unavailable")

// LanguageModel is the on-device model collaborator.
type LanguageModel interface {
	// Available reports whether sessions can currently be created.
	Available(ctx context.Context) bool
	NewSession(ctx context.Context) (Session, error)
}

// Session is a conversation with a LanguageModel. Destroy must be called
// once the session is no longer needed.
type Session interface {
	Prompt(ctx context.Context, text string) (string, error)
	Destroy() error
}

// PromptOnce opens a session, sends one prompt and always destroys the
// session afterwards. Destroy errors and panics are swallowed.
func PromptOnce(ctx context.Context, lm LanguageModel, prompt string) (string, error) {
	session, err := lm.NewSession(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	if session == nil {
		return "", ErrSessionUnavailable
	}
	defer SafeDestroy(session)

	return session.Prompt(ctx, prompt)
}

// SafeDestroy destroys s, ignoring any error or panic it raises.
func SafeDestroy(s Session) {
	if s == nil {
		return
	}
	defer func() { _ = recover() }()
	_ = s.Destroy()
}

// OllamaModel is a LanguageModel backed by an Ollama server's chat API.
type OllamaModel struct {
	url        string
	model      string
	httpClient *http.Client
}

// NewOllamaModel creates a local model for the given server and model name.
func NewOllamaModel(url, model string, httpClient *http.Client) *OllamaModel {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &OllamaModel{url: url, model: model, httpClient: httpClient}
}

// Available reports whether the server answers and serves the configured model.
func (m *OllamaModel) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var tags ollamaTags
	if err := getJSON(ctx, m.httpClient, joinURL(m.url, "api/tags"), nil, &tags); err != nil {
		return false
	}
	for _, t := range tags.Models {
		if t.Name == m.model || t.Name == m.model+":latest" {
			return true
		}
	}
	return false
}

func (m *OllamaModel) NewSession(ctx context.Context) (Session, error) {
	if !m.Available(ctx) {
		return nil, ErrSessionUnavailable
	}
	return &ollamaSession{model: m}, nil
}

// ollamaSession keeps the message history of one conversation.
type ollamaSession struct {
	model *OllamaModel

	mu        sync.Mutex
	messages  []apiMessage
	destroyed bool
}

func (s *ollamaSession) Prompt(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return "", errors.New("session destroyed")
	}

	messages := append(s.messages, apiMessage{Role: "user", Content: text})
	reqBody := ollamaChatRequest{Model: s.model.model, Messages: messages, Stream: false}

	var resp ollamaChatResponse
	if err := postJSON(ctx, s.model.httpClient, joinURL(s.model.url, "api/chat"), nil, reqBody, &resp); err != nil {
		return "", err
	}

	s.messages = append(messages, resp.Message)
	return resp.Message.Content, nil
}

func (s *ollamaSession) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	s.messages = nil
	return nil
}
