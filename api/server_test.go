package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
	indexerx "github.com/tanpawarit/claims-orchestrator/agent/indexer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeClaims struct {
	decision contractx.ClaimDecision
	err      error
	got      contractx.ClaimRequest
}

func (f *fakeClaims) ProcessClaim(ctx context.Context, req contractx.ClaimRequest) (contractx.ClaimDecision, error) {
	f.got = req
	if f.err != nil {
		return contractx.ClaimDecision{}, f.err
	}
	if err := req.Validate(); err != nil {
		return contractx.ClaimDecision{}, err
	}
	return f.decision, nil
}

type fakeIndexer struct {
	report indexerx.Report
	err    error
	calls  int
}

func (f *fakeIndexer) Run(ctx context.Context) (indexerx.Report, error) {
	f.calls++
	return f.report, f.err
}

type fakeVerifier struct {
	enabled bool
	wantURL string
}

func (f fakeVerifier) CanVerify() bool { return f.enabled }

func (f fakeVerifier) Verify(signature string, body []byte, requestURL string) error {
	if signature != "good" || requestURL != f.wantURL {
		return errors.New("bad signature")
	}
	return nil
}

func newTestServer(t *testing.T, claims ClaimProcessor, ix BatchIndexer, v SignatureVerifier, cfg Config) http.Handler {
	t.Helper()

	s, err := New(claims, ix, v, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s.Handler()
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProcessClaimReturnsDecision(t *testing.T) {
	t.Parallel()

	claims := &fakeClaims{decision: contractx.ClaimDecision{
		Decision:      contractx.DecisionApproved,
		Justification: "Claim Reviewer: ok\n\nPolicy Checker: ok\n\nRisk Analyzer: ok",
	}}
	h := newTestServer(t, claims, &fakeIndexer{}, nil, Config{})

	rec := do(h, http.MethodPost, "/process-claim", `{"claimId":" C-1 ","policyNumber":"P-9"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got contractx.ClaimDecision
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got != claims.decision {
		t.Fatalf("decision = %+v", got)
	}
	if claims.got.ClaimID != "C-1" {
		t.Fatalf("claim id = %q, want trimmed", claims.got.ClaimID)
	}
}

func TestProcessClaimErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "malformed", body: `{`, want: http.StatusBadRequest},
		{name: "missing policy", body: `{"claimId":"C-1"}`, want: http.StatusBadRequest},
		{name: "agent failure", body: `{"claimId":"C-1","policyNumber":"P"}`, err: fmt.Errorf("%w: %w", contractx.ErrSynthesisUnavailable, contractx.ErrAgentUnavailable), want: http.StatusBadGateway},
		{name: "timeout", body: `{"claimId":"C-1","policyNumber":"P"}`, err: contractx.ErrOrchestrationTimeout, want: http.StatusGatewayTimeout},
		{name: "other", body: `{"claimId":"C-1","policyNumber":"P"}`, err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newTestServer(t, &fakeClaims{err: tt.err}, &fakeIndexer{}, nil, Config{})
			rec := do(h, http.MethodPost, "/process-claim", tt.body, nil)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestIndexConversations(t *testing.T) {
	t.Parallel()

	ix := &fakeIndexer{report: indexerx.Report{Candidates: 2, Indexed: 2}}
	h := newTestServer(t, &fakeClaims{}, ix, nil, Config{})

	rec := do(h, http.MethodPost, "/index-conversations", `{}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got indexerx.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Indexed != 2 || ix.calls != 1 {
		t.Fatalf("report = %+v, calls = %d", got, ix.calls)
	}
}

func TestIndexConversationsConflict(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, &fakeClaims{}, &fakeIndexer{err: contractx.ErrBatchInProgress}, nil, Config{})
	if rec := do(h, http.MethodPost, "/index-conversations", ``, nil); rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestIndexConversationsSignature(t *testing.T) {
	t.Parallel()

	v := fakeVerifier{enabled: true, wantURL: "https://claims.example.com/index-conversations"}
	ix := &fakeIndexer{}
	h := newTestServer(t, &fakeClaims{}, ix, v, Config{PublicURL: "https://claims.example.com/"})

	if rec := do(h, http.MethodPost, "/index-conversations", `{}`, map[string]string{"Upstash-Signature": "bad"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if ix.calls != 0 {
		t.Fatalf("indexer ran on a rejected request")
	}
	if rec := do(h, http.MethodPost, "/index-conversations", `{}`, map[string]string{"Upstash-Signature": "good"}); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, &fakeClaims{}, &fakeIndexer{}, nil, Config{})
	if rec := do(h, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
