package provider

import (
	"fmt"
	"strings"
	"time"

	"cryptoprinter/internal/logger"
)

type ModelCfg struct {
	ID, Provider, APIURL, APIKey, Model string
	Temperature                         float64
	MaxRetries                          int
	Headers                             map[string]string
}

// BuildProvider turns config into an OpenAI-compatible provider.
func BuildProvider(m ModelCfg, timeout time.Duration) (ModelProvider, error) {
	if strings.TrimSpace(m.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	switch strings.ToLower(strings.TrimSpace(m.Provider)) {
	case "", "openai", "deepseek", "qwen", "openrouter":
	default:
		return nil, fmt.Errorf("unsupported provider %q", m.Provider)
	}
	id := strings.TrimSpace(m.ID)
	if id == "" {
		base := strings.TrimSpace(m.Provider)
		if base == "" {
			base = "openai"
		}
		id = fmt.Sprintf("%s:%s", base, strings.TrimSpace(m.Model))
		logger.Debugf("provider id not configured, using %s", id)
	}
	client := &OpenAIChatClient{
		BaseURL:      m.APIURL,
		APIKey:       m.APIKey,
		Model:        m.Model,
		Temperature:  m.Temperature,
		MaxRetries:   m.MaxRetries,
		ExtraHeaders: m.Headers,
		Timeout:      timeout,
	}
	return NewOpenAIModelProvider(id, client), nil
}
