package imagegen

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
	openRouterDefaultTimeout = 180 * time.Second
	openRouterDefaultBaseURL = "https://openrouter.ai/api/v1"
)

// OpenRouterOptions controls how the OpenRouter image generator is configured.
type OpenRouterOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenRouterImagen requests image output through the OpenRouter chat
// completions API and decodes the returned data URI.
type OpenRouterImagen struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type openRouterImageRequest struct {
	Model      string              `json:"model"`
	Messages   []openRouterMessage `json:"messages"`
	Modalities []string            `json:"modalities"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterImageResponse struct {
	Choices []struct {
		Message struct {
			Images []struct {
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

// NewOpenRouterImagen constructs an OpenRouter-backed image generator.
func NewOpenRouterImagen(opts OpenRouterOptions) (*OpenRouterImagen, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openrouter api key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("openrouter image model is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = openRouterDefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openRouterDefaultTimeout}
	}
	return &OpenRouterImagen{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   strings.TrimSpace(opts.Model),
		baseURL: baseURL,
		client:  client,
	}, nil
}

// Generate synthesizes one image for the prompt.
func (o *OpenRouterImagen) Generate(ctx context.Context, req Request) (*Image, error) {
	payload := openRouterImageRequest{
		Model:      o.model,
		Messages:   []openRouterMessage{{Role: "user", Content: req.Prompt}},
		Modalities: []string{"image", "text"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("invoke openrouter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return nil, fmt.Errorf("openrouter status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return nil, fmt.Errorf("openrouter status %d", resp.StatusCode)
	}

	var response openRouterImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode openrouter response: %w", err)
	}
	if response.Error != nil && response.Error.Message != "" {
		return nil, fmt.Errorf("openrouter: %s", response.Error.Message)
	}

	for _, choice := range response.Choices {
		for _, img := range choice.Message.Images {
			data, mime, err := decodeDataURI(img.ImageURL.URL)
			if err != nil {
				continue
			}
			return &Image{Data: data, MIME: mime}, nil
		}
	}
	return nil, errors.New("openrouter returned no image")
}

// decodeDataURI splits a data:<mime>;base64,<payload> URI into its parts.
func decodeDataURI(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", errors.New("not a data uri")
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errors.New("malformed data uri")
	}
	mime := strings.TrimSuffix(meta, ";base64")
	if mime == "" {
		mime = "image/png"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data uri: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty data uri payload")
	}
	return data, mime, nil
}

var _ Generator = (*OpenRouterImagen)(nil)
