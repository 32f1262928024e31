package qstash

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSignature = errors.New("qstash signature invalid")
	ErrNoSigningKeys    = errors.New("qstash signing keys are not configured")
)

type Config struct {
	URL               string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token             string        `split_words:"true"`
	CurrentSigningKey string        `split_words:"true"`
	NextSigningKey    string        `split_words:"true"`
	Timeout           time.Duration `split_words:"true" default:"10s"`
}

type Client struct {
	baseURL           string
	token             string
	currentSigningKey string
	nextSigningKey    string
	httpClient        *http.Client
	now               func() time.Time
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		token:             strings.TrimSpace(cfg.Token),
		currentSigningKey: strings.TrimSpace(cfg.CurrentSigningKey),
		nextSigningKey:    strings.TrimSpace(cfg.NextSigningKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}

	return client, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// CanVerify reports whether at least one signing key is configured.
func (c *Client) CanVerify() bool {
	return c != nil && (c.currentSigningKey != "" || c.nextSigningKey != "")
}

type scheduleResponse struct {
	ScheduleID string `json:"scheduleId"`
}

// Schedule registers a cron schedule that POSTs to destination and returns its id.
func (c *Client) Schedule(ctx context.Context, destination, cron string) (string, error) {
	if c.token == "" {
		return "", errors.New("qstash token is required to create schedules")
	}
	if _, err := url.ParseRequestURI(destination); err != nil {
		return "", fmt.Errorf("invalid schedule destination: %w", err)
	}
	if strings.TrimSpace(cron) == "" {
		return "", errors.New("schedule cron is required")
	}

	endpoint := c.baseURL + "/v2/schedules/" + destination
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Upstash-Cron", cron)
	req.Header.Set("Upstash-Method", http.MethodPost)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("qstash schedule request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("qstash schedule status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out scheduleResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode qstash schedule response: %w", err)
	}
	return out.ScheduleID, nil
}

type signatureClaims struct {
	Body string `json:"body"`
	jwt.RegisteredClaims
}

// Verify checks an Upstash-Signature header against the raw request body.
// The next key is tried when the current one fails, so key rotation never
// drops a delivery. An empty requestURL skips the subject check.
func (c *Client) Verify(signature string, body []byte, requestURL string) error {
	if !c.CanVerify() {
		return ErrNoSigningKeys
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}

	var lastErr error
	for _, key := range []string{c.currentSigningKey, c.nextSigningKey} {
		if key == "" {
			continue
		}
		if lastErr = c.verifyWithKey(signature, body, requestURL, key); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *Client) verifyWithKey(signature string, body []byte, requestURL, key string) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer("Upstash"),
		jwt.WithTimeFunc(c.now),
		jwt.WithLeeway(time.Second),
	)

	claims := &signatureClaims{}
	if _, err := parser.ParseWithClaims(signature, claims, func(*jwt.Token) (any, error) {
		return []byte(key), nil
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if requestURL != "" && claims.Subject != requestURL {
		return fmt.Errorf("%w: subject %q does not match %q", ErrInvalidSignature, claims.Subject, requestURL)
	}

	sum := sha256.Sum256(body)
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if strings.TrimRight(claims.Body, "=") != want {
		return fmt.Errorf("%w: body hash mismatch", ErrInvalidSignature)
	}
	return nil
}
