package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	apiVersion       = "2023-06-01"
	betaHeader       = "structured-outputs-2025-11-13"
	haikuModel       = "claude-haiku-4-5-20251001"

	checkTimeout = 10 * time.Second
	maxTokens    = 300
	temperature  = 0.7
)

var (
	ErrAPIRequest      = errors.New("API request failed")
	ErrInvalidResponse = errors.New("invalid API response")
)

// backend is the transport for one provider.
type backend interface {
	check(ctx context.Context) Availability
	complete(ctx context.Context, prompt string) (string, error)
}

// NewHTTPClient returns the client used for provider requests.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return doJSON(client, req, headers, out)
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in, out any) error {
	jsonData, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(client, req, headers, out)
}

func doJSON(client *http.Client, req *http.Request, headers map[string]string, out any) error {
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAPIRequest, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return fmt.Errorf("%w: status %d: %s", ErrAPIRequest, resp.StatusCode, msg)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// anthropicBackend talks to the Messages API with structured JSON output.
type anthropicBackend struct {
	cfg        HostedConfig
	categories []string
	httpClient *http.Client
}

func (b *anthropicBackend) headers() map[string]string {
	return map[string]string{
		"x-api-key":         b.cfg.APIKey,
		"anthropic-version": apiVersion,
		"anthropic-beta":    betaHeader,
	}
}

func (b *anthropicBackend) check(ctx context.Context) Availability {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var list modelList
	if err := getJSON(ctx, b.httpClient, joinURL(b.cfg.BaseURL, "models"), b.headers(), &list); err != nil {
		return Availability{Error: err.Error(), Help: "Check your Anthropic API key and network connection"}
	}

	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}
	return Availability{Available: true, Models: models}
}

func (b *anthropicBackend) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := apiRequest{
		Model:     b.cfg.Model,
		MaxTokens: maxTokens,
		Messages: []apiMessage{
			{Role: "user", Content: prompt},
		},
		OutputFormat: &outputFormat{
			Type: "json_schema",
			Schema: jsonSchema{
				Type: "object",
				Properties: map[string]schemaProp{
					"category":   {Type: "string", Enum: b.categories},
					"confidence": {Type: "number"},
					"tags":       {Type: "array", Items: &schemaProp{Type: "string"}},
					"summary":    {Type: "string"},
				},
				Required:             []string{"category", "confidence", "tags", "summary"},
				AdditionalProperties: false,
			},
		},
	}

	var apiResp apiResponse
	if err := postJSON(ctx, b.httpClient, joinURL(b.cfg.BaseURL, "messages"), b.headers(), reqBody, &apiResp); err != nil {
		return "", err
	}

	if len(apiResp.Content) == 0 || apiResp.Content[0].Type != "text" {
		return "", ErrInvalidResponse
	}
	return apiResp.Content[0].Text, nil
}
