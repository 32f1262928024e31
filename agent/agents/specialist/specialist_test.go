package specialist

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
	"github.com/tanpawarit/claims-orchestrator/pkg/retryx"
)

type fakeGateway struct {
	mu      sync.Mutex
	name    contractx.AgentName
	replies []string
	errs    []error
	calls   int
	threads []string
	tasks   []string
	block   bool
}

func (f *fakeGateway) Name() contractx.AgentName { return f.name }

func (f *fakeGateway) FetchHistory(ctx context.Context, threadID string) ([]contractx.Message, error) {
	return nil, nil
}

func (f *fakeGateway) Send(ctx context.Context, threadID, message string) (contractx.Reply, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.threads = append(f.threads, threadID)
	f.tasks = append(f.tasks, message)
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return contractx.Reply{}, ctx.Err()
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return contractx.Reply{}, f.errs[i]
	}
	if i < len(f.replies) {
		return contractx.Reply{Text: f.replies[i], Timestamp: time.Now()}, nil
	}
	return contractx.Reply{}, errors.New("no fake reply left")
}

func testOptions() Options {
	return Options{
		Retry:          retryx.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
		AttemptTimeout: time.Second,
	}
}

var claim = contractx.ClaimRequest{ClaimID: "CL-1", PolicyNumber: "POL-9"}

func TestSpecialistAssessClaimReviewer(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		name:    contractx.AgentClaimReviewer,
		replies: []string{"```json\n{\"fraud_flag\":false,\"inconsistencies\":[\" \"],\"summary\":\"rear-end collision\",\"rationale\":\"Documents are consistent.\"}\n```"},
	}
	sp, err := newSpecialist(context.Background(), gw, testOptions())
	if err != nil {
		t.Fatalf("newSpecialist() error = %v", err)
	}

	finding, err := sp.Assess(context.Background(), claim)
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if finding.Agent != contractx.AgentClaimReviewer || finding.ClaimReview == nil {
		t.Fatalf("finding = %#v", finding)
	}
	if finding.ClaimReview.FraudFlag || len(finding.ClaimReview.Inconsistencies) != 0 {
		t.Fatalf("claim review = %#v", finding.ClaimReview)
	}
	if finding.Justification != "Documents are consistent." {
		t.Fatalf("justification = %q", finding.Justification)
	}
	if finding.ThreadID == "" || finding.ThreadID != gw.threads[0] {
		t.Fatalf("thread id = %q, sent on %v", finding.ThreadID, gw.threads)
	}

	var task map[string]string
	if err := json.Unmarshal([]byte(gw.tasks[0]), &task); err != nil {
		t.Fatalf("task is not JSON: %v", err)
	}
	if task["claim_id"] != "CL-1" || task["policy_number"] != "POL-9" || task["instructions"] == "" {
		t.Fatalf("task = %#v", task)
	}
}

func TestSpecialistRetriesOnAgentUnavailableSameThread(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		name:    contractx.AgentPolicyChecker,
		errs:    []error{contractx.ErrAgentUnavailable, nil},
		replies: []string{"", `{"coverage_valid":true,"notes":"collision covered","rationale":"Policy active."}`},
	}
	sp, err := newSpecialist(context.Background(), gw, testOptions())
	if err != nil {
		t.Fatalf("newSpecialist() error = %v", err)
	}

	finding, err := sp.Assess(context.Background(), claim)
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if finding.PolicyCheck == nil || !finding.PolicyCheck.CoverageValid {
		t.Fatalf("policy check = %#v", finding.PolicyCheck)
	}
	if gw.calls != 2 || gw.threads[0] != gw.threads[1] {
		t.Fatalf("calls = %d threads = %v", gw.calls, gw.threads)
	}
}

func TestSpecialistDoesNotRetryInvalidThread(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		name: contractx.AgentRiskAnalyzer,
		errs: []error{contractx.ErrInvalidThread},
	}
	sp, err := newSpecialist(context.Background(), gw, testOptions())
	if err != nil {
		t.Fatalf("newSpecialist() error = %v", err)
	}

	_, err = sp.Assess(context.Background(), claim)
	if !errors.Is(err, contractx.ErrInvalidThread) {
		t.Fatalf("Assess() error = %v, want ErrInvalidThread", err)
	}
	if gw.calls != 1 {
		t.Fatalf("calls = %d, want 1", gw.calls)
	}
}

func TestSpecialistRetriesAttemptTimeout(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{name: contractx.AgentRiskAnalyzer, block: true}
	opts := testOptions()
	opts.AttemptTimeout = 5 * time.Millisecond
	sp, err := newSpecialist(context.Background(), gw, opts)
	if err != nil {
		t.Fatalf("newSpecialist() error = %v", err)
	}

	_, err = sp.Assess(context.Background(), claim)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Assess() error = %v, want DeadlineExceeded", err)
	}
	if gw.calls != 3 {
		t.Fatalf("calls = %d, want 3", gw.calls)
	}
}

func TestSpecialistSchemaViolation(t *testing.T) {
	t.Parallel()

	cases := map[contractx.AgentName]string{
		contractx.AgentClaimReviewer: `{"summary":"x","rationale":"y"}`,
		contractx.AgentPolicyChecker: `{"coverage_valid":true,"rationale":""}`,
		contractx.AgentRiskAnalyzer:  `{"risk_score":140,"rationale":"too high"}`,
	}
	for agent, reply := range cases {
		gw := &fakeGateway{name: agent, replies: []string{reply}}
		sp, err := newSpecialist(context.Background(), gw, testOptions())
		if err != nil {
			t.Fatalf("newSpecialist(%s) error = %v", agent, err)
		}
		if _, err := sp.Assess(context.Background(), claim); !errors.Is(err, contractx.ErrSchemaViolation) {
			t.Fatalf("Assess(%s) error = %v, want ErrSchemaViolation", agent, err)
		}
	}
}

func TestSpecialistNotJSON(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{name: contractx.AgentRiskAnalyzer, replies: []string{"I think the risk is low."}}
	sp, err := newSpecialist(context.Background(), gw, testOptions())
	if err != nil {
		t.Fatalf("newSpecialist() error = %v", err)
	}
	if _, err := sp.Assess(context.Background(), claim); !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("Assess() error = %v, want ErrSchemaViolation", err)
	}
}

func TestSpecialistRejectsInvalidRequest(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{name: contractx.AgentRiskAnalyzer}
	sp, err := newSpecialist(context.Background(), gw, testOptions())
	if err != nil {
		t.Fatalf("newSpecialist() error = %v", err)
	}
	_, err = sp.Assess(context.Background(), contractx.ClaimRequest{ClaimID: "CL-1"})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Assess() error = %v, want ErrValidation", err)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called %d times for an invalid request", gw.calls)
	}
}

func TestNewRegistryFromGatewaysRequiresAllAgents(t *testing.T) {
	t.Parallel()

	_, err := NewRegistryFromGateways(context.Background(), testOptions(),
		&fakeGateway{name: contractx.AgentClaimReviewer},
		&fakeGateway{name: contractx.AgentPolicyChecker},
	)
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("NewRegistryFromGateways() error = %v, want ErrValidation", err)
	}

	reg, err := NewRegistryFromGateways(context.Background(), testOptions(),
		&fakeGateway{name: contractx.AgentClaimReviewer},
		&fakeGateway{name: contractx.AgentPolicyChecker},
		&fakeGateway{name: contractx.AgentRiskAnalyzer},
	)
	if err != nil {
		t.Fatalf("NewRegistryFromGateways() error = %v", err)
	}
	if reg.RiskAnalyzer().Name() != contractx.AgentRiskAnalyzer {
		t.Fatalf("RiskAnalyzer() = %s", reg.RiskAnalyzer().Name())
	}
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"{\"a\":1}":               "{\"a\":1}",
		"```json\n{\"a\":1}\n```": "{\"a\":1}",
		"```\n{\"a\":1}\n```\n":   "{\"a\":1}",
		"  {\"a\":1}  ":           "{\"a\":1}",
	}
	for in, want := range cases {
		if got := stripCodeFence(in); got != want {
			t.Fatalf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
