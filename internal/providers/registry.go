// Package providers maps configuration onto concrete VLM and image
// generation backends.
package providers

import (
	"fmt"
	"strings"

	"diagramd/internal/domain"
	"diagramd/internal/infra"
	"diagramd/internal/providers/imagegen"
	"diagramd/internal/providers/vlm"
)

// CreateVLM builds a fresh VLM provider from the configured provider name.
// No caching: every call constructs a new instance from the settings'
// credential and model fields.
func CreateVLM(cfg *infra.Config, logger infra.Logger) (vlm.Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.VLMProvider))
	logger.Info().
		Str("provider", name).
		Str("model", cfg.VLMModel).
		Msg("providers: creating vlm provider")

	switch name {
	case "gemini":
		return vlm.NewGemini(vlm.GeminiOptions{
			APIKey:  cfg.GoogleAPIKey,
			Model:   cfg.VLMModel,
			BaseURL: cfg.GeminiBaseURL,
		})
	case "openrouter":
		return vlm.NewOpenRouter(vlm.OpenRouterOptions{
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.VLMModel,
			BaseURL: cfg.OpenRouterBaseURL,
		})
	default:
		return nil, fmt.Errorf("%w: unknown vlm provider %q (available: gemini, openrouter)",
			domain.ErrConfiguration, cfg.VLMProvider)
	}
}

// CreateImageGen builds a fresh image generation provider from the
// configured provider name.
func CreateImageGen(cfg *infra.Config, logger infra.Logger) (imagegen.Generator, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.ImageProvider))
	logger.Info().
		Str("provider", name).
		Str("model", cfg.ImageModel).
		Msg("providers: creating image gen provider")

	switch name {
	case "google_imagen":
		return imagegen.NewGoogleImagen(imagegen.GoogleImagenOptions{
			APIKey:  cfg.GoogleAPIKey,
			Model:   cfg.ImageModel,
			BaseURL: cfg.GeminiBaseURL,
		})
	case "openrouter_imagen":
		return imagegen.NewOpenRouterImagen(imagegen.OpenRouterOptions{
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.ImageModel,
			BaseURL: cfg.OpenRouterBaseURL,
		})
	default:
		return nil, fmt.Errorf("%w: unknown image provider %q (available: google_imagen, openrouter_imagen)",
			domain.ErrConfiguration, cfg.ImageProvider)
	}
}
