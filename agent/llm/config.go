package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
	openrouterx "github.com/tanpawarit/claims-orchestrator/pkg/openrouter"
)

// Config is loaded with the OPENROUTER prefix. Per-agent fields fall back to
// Model and Temperature when unset (a negative temperature means unset).
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	ClaimReviewerModel       string  `split_words:"true"`
	PolicyCheckerModel       string  `split_words:"true"`
	RiskAnalyzerModel        string  `split_words:"true"`
	ClaimReviewerTemperature float32 `split_words:"true" default:"-1"`
	PolicyCheckerTemperature float32 `split_words:"true" default:"-1"`
	RiskAnalyzerTemperature  float32 `split_words:"true" default:"-1"`

	EmbeddingBaseURL string `split_words:"true"`
	EmbeddingAPIKey  string `split_words:"true"`
	EmbeddingModel   string `split_words:"true" default:"openai/text-embedding-3-small"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		return fmt.Errorf("%w: embedding model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouterFor(agent contractx.AgentName) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	var override string
	overrideTemp := float32(-1)
	switch agent {
	case contractx.AgentClaimReviewer:
		override, overrideTemp = c.ClaimReviewerModel, c.ClaimReviewerTemperature
	case contractx.AgentPolicyChecker:
		override, overrideTemp = c.PolicyCheckerModel, c.PolicyCheckerTemperature
	case contractx.AgentRiskAnalyzer:
		override, overrideTemp = c.RiskAnalyzerModel, c.RiskAnalyzerTemperature
	}
	if v := strings.TrimSpace(override); v != "" {
		modelName = v
	}
	if overrideTemp >= 0 {
		temp = overrideTemp
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

// Embedding returns the endpoint used for memory embeddings. Base URL and key
// default to the chat endpoint.
func (c Config) Embedding() openrouterx.Config {
	cfg := openrouterx.Config{
		BaseURL:  strings.TrimSpace(c.BaseURL),
		APIKey:   strings.TrimSpace(c.APIKey),
		Model:    strings.TrimSpace(c.EmbeddingModel),
		Timeout:  c.Timeout,
		SiteURL:  strings.TrimSpace(c.SiteURL),
		SiteName: strings.TrimSpace(c.SiteName),
	}
	if v := strings.TrimSpace(c.EmbeddingBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(c.EmbeddingAPIKey); v != "" {
		cfg.APIKey = v
	}
	return cfg
}
