package vlm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	openRouterDefaultTimeout = 120 * time.Second
	openRouterDefaultBaseURL = "https://openrouter.ai/api/v1"
)

// OpenRouterOptions controls how the OpenRouter VLM is configured.
type OpenRouterOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenRouterVLM talks to the OpenRouter chat completions API. Vision input
// is delivered as data-URI image parts.
type OpenRouterVLM struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type openRouterChatRequest struct {
	Model    string              `json:"model"`
	Messages []openRouterMessage `json:"messages"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openRouterContentPart struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	ImageURL *openRouterImageURL `json:"image_url,omitempty"`
}

type openRouterImageURL struct {
	URL string `json:"url"`
}

type openRouterChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *openRouterError `json:"error,omitempty"`
}

type openRouterError struct {
	Code    any    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewOpenRouter constructs an OpenRouter-backed VLM provider.
func NewOpenRouter(opts OpenRouterOptions) (*OpenRouterVLM, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openrouter api key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("openrouter model is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = openRouterDefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openRouterDefaultTimeout}
	}
	return &OpenRouterVLM{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   strings.TrimSpace(opts.Model),
		baseURL: baseURL,
		client:  client,
	}, nil
}

// Complete sends the request as a chat completion and returns the first
// choice's message content.
func (o *OpenRouterVLM) Complete(ctx context.Context, req Request) (string, error) {
	var messages []openRouterMessage
	if req.System != "" {
		messages = append(messages, openRouterMessage{Role: "system", Content: req.System})
	}

	if len(req.Images) == 0 {
		messages = append(messages, openRouterMessage{Role: "user", Content: req.Prompt})
	} else {
		parts := []openRouterContentPart{{Type: "text", Text: req.Prompt}}
		for _, img := range req.Images {
			parts = append(parts, openRouterContentPart{
				Type: "image_url",
				ImageURL: &openRouterImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
				},
			})
		}
		messages = append(messages, openRouterMessage{Role: "user", Content: parts})
	}

	payload := openRouterChatRequest{Model: o.model, Messages: messages}
	var response openRouterChatResponse
	if err := o.invoke(ctx, "/chat/completions", payload, &response); err != nil {
		return "", err
	}
	if response.Error != nil && response.Error.Message != "" {
		return "", fmt.Errorf("openrouter: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("openrouter returned no choices")
	}
	text := strings.TrimSpace(response.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("openrouter returned empty content")
	}
	return text, nil
}

func (o *OpenRouterVLM) invoke(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("invoke openrouter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("openrouter status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("openrouter status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode openrouter response: %w", err)
	}
	return nil
}

var _ Provider = (*OpenRouterVLM)(nil)
