package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultTimeout = 60 * time.Second

var (
	errNoModel  = errors.New("openrouter: model name is empty")
	errNoAPIKey = errors.New("openrouter: api key is empty")
)

// reasoningOptOut lists models whose hidden reasoning is switched off so the
// reply body stays machine-parseable JSON.
var reasoningOptOut = map[string]bool{
	"x-ai/grok-4.1-fast": true,
}

// Config describes one model reachable through an OpenAI-compatible endpoint.
// The same shape serves chat models and the embeddings client.
type Config struct {
	BaseURL            string
	APIKey             string
	Model              string
	MaxCompletionToken *int
	Temperature        float32
	Timeout            time.Duration
	SiteURL            string
	SiteName           string
}

func (c Config) normalized() (Config, error) {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.Model = strings.TrimSpace(c.Model)
	if c.Model == "" {
		return c, errNoModel
	}
	if c.APIKey == "" {
		return c, errNoAPIKey
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c, nil
}

// attribution returns the OpenRouter app attribution headers.
func (c Config) attribution() http.Header {
	h := http.Header{}
	if v := strings.TrimSpace(c.SiteURL); v != "" {
		h.Set("HTTP-Referer", v)
	}
	if v := strings.TrimSpace(c.SiteName); v != "" {
		h.Set("X-Title", v)
	}
	return h
}

// headerTransport stamps fixed headers on every outgoing request.
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		req = req.Clone(req.Context())
		for k, vs := range t.headers {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func (c Config) chatModelConfig() (*openaimodel.ChatModelConfig, error) {
	n, err := c.normalized()
	if err != nil {
		return nil, err
	}

	temp := n.Temperature
	conf := &openaimodel.ChatModelConfig{
		BaseURL:     n.BaseURL,
		APIKey:      n.APIKey,
		Model:       n.Model,
		MaxTokens:   n.MaxCompletionToken,
		Temperature: &temp,
		HTTPClient: &http.Client{
			Timeout:   n.Timeout,
			Transport: headerTransport{headers: n.attribution()},
		},
	}
	if reasoningOptOut[n.Model] {
		conf.ExtraFields = map[string]any{
			"reasoning": map[string]any{"exclude": true, "effort": "none"},
		}
	}
	return conf, nil
}

// New builds the eino chat model for one agent.
func (c *Config) New(ctx context.Context) (model.ToolCallingChatModel, error) {
	conf, err := c.chatModelConfig()
	if err != nil {
		return nil, err
	}
	m, err := openaimodel.NewChatModel(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("openrouter: create chat model %s: %w", conf.Model, err)
	}
	return m, nil
}

// NewClient creates an OpenAI SDK client for the configured endpoint, or nil
// when no api key is set.
func NewClient(cfg Config) *openaisdk.Client {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	headers := cfg.attribution()
	for k := range headers {
		opts = append(opts, option.WithHeader(k, headers.Get(k)))
	}

	client := openaisdk.NewClient(opts...)
	return &client
}
