package ai

import (
	"context"
	"fmt"
	"net/http"
)

// openAIBackend serves every provider speaking the OpenAI chat completions API.
type openAIBackend struct {
	cfg        HostedConfig
	httpClient *http.Client
}

func (b *openAIBackend) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + b.cfg.APIKey}
}

func (b *openAIBackend) check(ctx context.Context) Availability {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var list modelList
	if err := getJSON(ctx, b.httpClient, joinURL(b.cfg.BaseURL, "models"), b.headers(), &list); err != nil {
		return Availability{Error: err.Error(), Help: fmt.Sprintf("Check your %s API key and network connection", b.cfg.Type)}
	}

	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}
	return Availability{Available: true, Models: models}
}

func (b *openAIBackend) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:       b.cfg.Model,
		Messages:    []apiMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	var resp chatResponse
	if err := postJSON(ctx, b.httpClient, joinURL(b.cfg.BaseURL, "chat/completions"), b.headers(), reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

type ollamaBackend struct {
	cfg        LocalServerConfig
	httpClient *http.Client
}

func (b *ollamaBackend) check(ctx context.Context) Availability {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var tags ollamaTags
	if err := getJSON(ctx, b.httpClient, joinURL(b.cfg.URL, "api/tags"), nil, &tags); err != nil {
		return Availability{Error: err.Error(), Help: "Start Ollama: ollama serve"}
	}

	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return Availability{Available: true, Models: models}
}

func (b *ollamaBackend) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := ollamaGenerateRequest{Model: b.cfg.Model, Prompt: prompt, Stream: false}

	var resp ollamaGenerateResponse
	if err := postJSON(ctx, b.httpClient, joinURL(b.cfg.URL, "api/generate"), nil, reqBody, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

type lmStudioBackend struct {
	cfg        LocalServerConfig
	httpClient *http.Client
}

func (b *lmStudioBackend) check(ctx context.Context) Availability {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var list modelList
	if err := getJSON(ctx, b.httpClient, joinURL(b.cfg.URL, "v1/models"), nil, &list); err != nil {
		return Availability{Error: err.Error(), Help: "Start LM Studio and enable the local server"}
	}

	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}
	return Availability{Available: true, Models: models}
}

func (b *lmStudioBackend) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := completionRequest{
		Model:       b.cfg.Model,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	var resp completionResponse
	if err := postJSON(ctx, b.httpClient, joinURL(b.cfg.URL, "v1/completions"), nil, reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	return resp.Choices[0].Text, nil
}

// sessionBackend runs a prompt through a one-shot local model session.
type sessionBackend struct {
	model LanguageModel
}

func (b *sessionBackend) check(ctx context.Context) Availability {
	if b.model == nil || !b.model.Available(ctx) {
		return Availability{
			Error: "local language model is not available",
			Help:  "Start the local model server configured under localModel in config.yaml",
		}
	}
	return Availability{Available: true}
}

func (b *sessionBackend) complete(ctx context.Context, prompt string) (string, error) {
	if b.model == nil {
		return "", ErrSessionUnavailable
	}
	return PromptOnce(ctx, b.model, prompt)
}
