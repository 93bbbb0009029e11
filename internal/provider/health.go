package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HealthChecker probes a backend without spending tokens.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// httpHealthCheck issues a GET against a model-listing endpoint and expects
// a 2xx response.
type httpHealthCheck struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// HealthCheck implements HealthChecker.
func (h *httpHealthCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("provider: health check request: %w", err)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider: health check: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// NewHealthChecker returns a zero-cost probe for cfg's backend, or nil when
// the backend exposes no listing endpoint worth probing (Ark). Callers fall
// back to a real Generate call in that case.
func NewHealthChecker(cfg *Config) HealthChecker {
	client := &http.Client{Timeout: 10 * time.Second}
	check := func(url string, headers map[string]string) HealthChecker {
		return &httpHealthCheck{url: url, headers: headers, client: client}
	}

	switch cfg.Backend {
	case BackendOllama:
		return check(strings.TrimRight(cfg.Ollama.Host, "/")+"/api/tags", nil)
	case BackendOpenAI:
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return check(strings.TrimRight(base, "/")+"/models", map[string]string{
			"Authorization": "Bearer " + cfg.OpenAI.APIKey,
		})
	case BackendAzure:
		return check(fmt.Sprintf("%s/openai/models?api-version=%s",
			strings.TrimRight(cfg.AzureOpenAI.Endpoint, "/"), cfg.AzureOpenAI.APIVersion),
			map[string]string{"api-key": cfg.AzureOpenAI.APIKey})
	case BackendGemini:
		return check("https://generativelanguage.googleapis.com/v1beta/models", map[string]string{
			"x-goog-api-key": cfg.Gemini.APIKey,
		})
	case BackendAnthropic:
		base := cfg.Anthropic.BaseURL
		if base == "" {
			base = "https://api.anthropic.com"
		}
		return check(strings.TrimRight(base, "/")+"/v1/models", map[string]string{
			"x-api-key":         cfg.Anthropic.APIKey,
			"anthropic-version": "2023-06-01",
		})
	default:
		return nil
	}
}
