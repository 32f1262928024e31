package openrouter

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestChatModelConfig(t *testing.T) {
	t.Parallel()

	conf, err := Config{
		BaseURL:     " https://openrouter.ai/api/v1/ ",
		APIKey:      " key ",
		Model:       "x-ai/grok-4.1-fast",
		Temperature: 0.2,
	}.chatModelConfig()
	if err != nil {
		t.Fatalf("chatModelConfig() error = %v", err)
	}
	if conf.BaseURL != "https://openrouter.ai/api/v1" || conf.APIKey != "key" {
		t.Fatalf("endpoint = %q key = %q", conf.BaseURL, conf.APIKey)
	}
	if conf.Temperature == nil || *conf.Temperature != 0.2 {
		t.Fatalf("temperature = %v", conf.Temperature)
	}
	if conf.HTTPClient == nil || conf.HTTPClient.Timeout != defaultTimeout {
		t.Fatalf("http client = %+v, want default timeout", conf.HTTPClient)
	}
	if _, ok := conf.ExtraFields["reasoning"]; !ok {
		t.Fatalf("reasoning opt-out missing for %s", conf.Model)
	}
}

func TestChatModelConfigRequiresModelAndKey(t *testing.T) {
	t.Parallel()

	if _, err := (Config{APIKey: "key"}).chatModelConfig(); !errors.Is(err, errNoModel) {
		t.Fatalf("error = %v, want errNoModel", err)
	}
	if _, err := (Config{Model: "m"}).chatModelConfig(); !errors.Is(err, errNoAPIKey) {
		t.Fatalf("error = %v, want errNoAPIKey", err)
	}
}

func TestHeaderTransportAddsAttribution(t *testing.T) {
	t.Parallel()

	var referer, title string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("HTTP-Referer")
		title = r.Header.Get("X-Title")
	}))
	t.Cleanup(server.Close)

	cfg := Config{SiteURL: "https://claims.example.com", SiteName: "Claims"}
	client := &http.Client{
		Timeout:   time.Second,
		Transport: headerTransport{headers: cfg.attribution()},
	}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if referer != "https://claims.example.com" || title != "Claims" {
		t.Fatalf("headers = %q %q", referer, title)
	}
}
