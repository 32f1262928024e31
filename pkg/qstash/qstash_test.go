package qstash

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	currentKey = "sig_current"
	nextKey    = "sig_next"
	hookURL    = "https://claims.example.com/index-conversations"
)

func sign(t *testing.T, key string, body []byte, subject string, issuedAt time.Time) string {
	t.Helper()

	sum := sha256.Sum256(body)
	claims := signatureClaims{
		Body: base64.URLEncoding.EncodeToString(sum[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "Upstash",
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(5 * time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	c, err := NewClient(Config{
		URL:               baseURL,
		Token:             "qstash-token",
		CurrentSigningKey: currentKey,
		NextSigningKey:    nextKey,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestVerifyAcceptsCurrentAndNextKeys(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "https://qstash.upstash.io")
	body := []byte(`{"trigger":"cron"}`)
	now := time.Now()

	for _, key := range []string{currentKey, nextKey} {
		if err := c.Verify(sign(t, key, body, hookURL, now), body, hookURL); err != nil {
			t.Fatalf("Verify() with %s error = %v", key, err)
		}
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "https://qstash.upstash.io")
	body := []byte(`{"trigger":"cron"}`)
	now := time.Now()

	tests := []struct {
		name      string
		signature string
		body      []byte
		url       string
	}{
		{name: "wrong key", signature: sign(t, "other", body, hookURL, now), body: body, url: hookURL},
		{name: "body changed", signature: sign(t, currentKey, body, hookURL, now), body: []byte(`{}`), url: hookURL},
		{name: "other url", signature: sign(t, currentKey, body, "https://evil.example.com", now), body: body, url: hookURL},
		{name: "expired", signature: sign(t, currentKey, body, hookURL, now.Add(-time.Hour)), body: body, url: hookURL},
		{name: "empty", signature: "", body: body, url: hookURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := c.Verify(tt.signature, tt.body, tt.url)
			if !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("Verify() error = %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestVerifyWithoutKeys(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{URL: "https://qstash.upstash.io"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.CanVerify() {
		t.Fatalf("CanVerify() = true without keys")
	}
	if err := c.Verify("x", nil, ""); !errors.Is(err, ErrNoSigningKeys) {
		t.Fatalf("Verify() error = %v, want ErrNoSigningKeys", err)
	}
}

func TestSchedule(t *testing.T) {
	t.Parallel()

	var gotPath, gotCron, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCron = r.Header.Get("Upstash-Cron")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"scheduleId":"scd_123"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := c.Schedule(context.Background(), hookURL, "*/30 * * * *")
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if id != "scd_123" {
		t.Fatalf("schedule id = %q", id)
	}
	if gotPath != "/v2/schedules/"+hookURL {
		t.Fatalf("path = %q", gotPath)
	}
	if gotCron != "*/30 * * * *" {
		t.Fatalf("cron header = %q", gotCron)
	}
	if gotAuth != "Bearer qstash-token" {
		t.Fatalf("auth header = %q", gotAuth)
	}
}

func TestScheduleSurfacesStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.Schedule(context.Background(), hookURL, "0 * * * *"); err == nil {
		t.Fatalf("Schedule() error = nil, want status error")
	}
}
