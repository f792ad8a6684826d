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
	"net/url"
	"strings"
	"time"
)

const (
	imagenDefaultTimeout = 180 * time.Second
	imagenDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	imagenDefaultModel   = "imagen-3.0-generate-002"
)

// GoogleImagenOptions controls how the Imagen generator is configured.
type GoogleImagenOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GoogleImagen calls the Imagen predict API and decodes base64 predictions.
type GoogleImagen struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type imagenPredictRequest struct {
	Instances  []imagenInstance  `json:"instances"`
	Parameters *imagenParameters `json:"parameters,omitempty"`
}

type imagenInstance struct {
	Prompt string `json:"prompt"`
}

type imagenParameters struct {
	SampleCount int `json:"sampleCount,omitempty"`
}

type imagenPredictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
	Error *struct {
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

// NewGoogleImagen constructs an Imagen-backed generator.
func NewGoogleImagen(opts GoogleImagenOptions) (*GoogleImagen, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("imagen api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = imagenDefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = imagenDefaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: imagenDefaultTimeout}
	}
	return &GoogleImagen{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

// Generate synthesizes one image for the prompt.
func (g *GoogleImagen) Generate(ctx context.Context, req Request) (*Image, error) {
	payload := imagenPredictRequest{
		Instances:  []imagenInstance{{Prompt: req.Prompt}},
		Parameters: &imagenParameters{SampleCount: 1},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:predict", g.baseURL, url.PathEscape(g.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := httpReq.URL.Query()
	q.Set("key", g.apiKey)
	httpReq.URL.RawQuery = q.Encode()
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("invoke imagen: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return nil, fmt.Errorf("imagen status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return nil, fmt.Errorf("imagen status %d", resp.StatusCode)
	}

	var response imagenPredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode imagen response: %w", err)
	}
	if response.Error != nil && response.Error.Message != "" {
		return nil, fmt.Errorf("imagen: %s", response.Error.Message)
	}
	if len(response.Predictions) == 0 {
		return nil, errors.New("imagen returned no predictions")
	}

	prediction := response.Predictions[0]
	data, err := base64.StdEncoding.DecodeString(prediction.BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("decode image data: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("imagen returned empty image data")
	}
	mime := prediction.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return &Image{Data: data, MIME: mime}, nil
}

var _ Generator = (*GoogleImagen)(nil)
