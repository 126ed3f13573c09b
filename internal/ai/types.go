package ai

// Result is the four-field classification every backend must produce.
type Result struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
	Summary    string   `json:"summary"`
}

// Availability describes whether a provider can currently be used.
type Availability struct {
	Available bool     `json:"available"`
	Models    []string `json:"models,omitempty"`
	Error     string   `json:"error,omitempty"`
	Help      string   `json:"help,omitempty"`
}

// Outcome is the result of ClassifyWithProvider. Result is nil whenever the
// provider was unavailable or its backend failed.
type Outcome struct {
	Provider  string  `json:"provider"`
	Available bool    `json:"available"`
	Result    *Result `json:"result"`
	Error     string  `json:"error,omitempty"`
}

// apiRequest represents the Anthropic API request body.
type apiRequest struct {
	Model        string        `json:"model"`
	MaxTokens    int           `json:"max_tokens"`
	Messages     []apiMessage  `json:"messages"`
	OutputFormat *outputFormat `json:"output_format,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type outputFormat struct {
	Type   string     `json:"type"`
	Schema jsonSchema `json:"schema"`
}

type jsonSchema struct {
	Type                 string                `json:"type"`
	Properties           map[string]schemaProp `json:"properties"`
	Required             []string              `json:"required"`
	AdditionalProperties bool                  `json:"additionalProperties"`
}

type schemaProp struct {
	Type  string      `json:"type"`
	Enum  []string    `json:"enum,omitempty"`
	Items *schemaProp `json:"items,omitempty"`
}

// apiResponse represents the Anthropic API response body.
type apiResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// OpenAI-compatible chat completions.
type chatRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message apiMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// LM Studio text completions.
type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// Ollama native API.
type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

type ollamaChatRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
	Stream   bool         `json:"stream"`
}

type ollamaChatResponse struct {
	Message apiMessage `json:"message"`
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}
