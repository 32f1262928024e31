package thread

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

const (
	defaultStoreKeyPrefix = "claims:"
	pendingKeySuffix      = "pending"
	// Thread hashes and transcripts live under their own infixes so no thread
	// id can collide with the pending set or another key type.
	threadKeyInfix       = "thread:"
	transcriptKeyInfix   = "transcript:"
	maxResponseSizeBytes = 2 << 20
)

// createScript inserts the thread hash only when absent and queues it as pending.
// HSETNX on the id field is the uniqueness guard.
const createScript = `
if redis.call('HSETNX', KEYS[1], 'id', ARGV[1]) == 1 then
  redis.call('HSET', KEYS[1], 'processed', '0', 'created_at', ARGV[2])
  redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
  return 1
end
return 0`

const markProcessedScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('HGET', KEYS[1], 'processed') == '1' then
  return 0
end
redis.call('HSET', KEYS[1], 'processed', '1', 'processed_at', ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[1])
return 1`

// StoreOption customizes UpstashStore.
type StoreOption func(*UpstashStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *UpstashStore) {
		if now != nil {
			s.now = now
		}
	}
}

// UpstashStore persists thread lifecycle records in Upstash Redis via REST.
// Each thread is a hash; unprocessed ids live in a sorted set scored by creation time.
type UpstashStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	now        func() time.Time
}

var (
	_ Store      = (*UpstashStore)(nil)
	_ Transcript = (*UpstashStore)(nil)
)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL       string        `envconfig:"URL" split_words:"true" required:"true"`
	Token     string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout   time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	KeyPrefix string        `envconfig:"KEY_PREFIX" split_words:"true" default:"claims:"`
}

func NewUpstashStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashStore{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		keyPrefix: defaultStoreKeyPrefix,
		now:       time.Now,
	}
	WithKeyPrefix(cfg.KeyPrefix)(store)

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	return store, nil
}

func (s *UpstashStore) CreateIfAbsent(ctx context.Context, threadID string) error {
	id, err := normalizeID(threadID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	_, err = s.exec(ctx, []any{
		"EVAL", createScript, "2", s.threadKey(id), s.pendingKey(),
		id, now.Format(time.RFC3339Nano), strconv.FormatInt(now.UnixMilli(), 10),
	})
	return err
}

func (s *UpstashStore) MarkProcessed(ctx context.Context, threadID string) error {
	id, err := normalizeID(threadID)
	if err != nil {
		return err
	}
	resp, err := s.exec(ctx, []any{
		"EVAL", markProcessedScript, "2", s.threadKey(id), s.pendingKey(),
		id, s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	var code int
	if err := json.Unmarshal(resp.Result, &code); err != nil {
		return fmt.Errorf("decode mark processed result: %w", err)
	}
	if code < 0 {
		return notFound(id)
	}
	return nil
}

func (s *UpstashStore) ListUnprocessed(ctx context.Context) ([]string, error) {
	resp, err := s.exec(ctx, []any{"ZRANGE", s.pendingKey(), "0", "-1"})
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(resp.Result, &ids); err != nil {
		return nil, fmt.Errorf("decode pending threads: %w", err)
	}
	return ids, nil
}

func (s *UpstashStore) Get(ctx context.Context, threadID string) (Thread, error) {
	id, err := normalizeID(threadID)
	if err != nil {
		return Thread{}, err
	}
	resp, err := s.exec(ctx, []any{"HGETALL", s.threadKey(id)})
	if err != nil {
		return Thread{}, err
	}

	var flat []string
	if err := json.Unmarshal(resp.Result, &flat); err != nil {
		return Thread{}, fmt.Errorf("decode thread hash: %w", err)
	}
	if len(flat) == 0 {
		return Thread{}, notFound(id)
	}

	th := Thread{ID: id}
	for i := 0; i+1 < len(flat); i += 2 {
		switch flat[i] {
		case "processed":
			th.Processed = flat[i+1] == "1"
		case "created_at":
			th.CreatedAt, _ = time.Parse(time.RFC3339Nano, flat[i+1])
		case "processed_at":
			th.ProcessedAt, _ = time.Parse(time.RFC3339Nano, flat[i+1])
		}
	}
	return th, nil
}

// Append pushes messages onto the thread's transcript list in one RPUSH.
func (s *UpstashStore) Append(ctx context.Context, msgs ...contractx.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	byThread := make(map[string][]any, 1)
	order := make([]string, 0, 1)
	for _, m := range msgs {
		id, err := normalizeID(m.ThreadID)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		if _, ok := byThread[id]; !ok {
			order = append(order, id)
		}
		byThread[id] = append(byThread[id], string(raw))
	}

	for _, id := range order {
		command := append([]any{"RPUSH", s.transcriptKey(id)}, byThread[id]...)
		if _, err := s.exec(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

func (s *UpstashStore) List(ctx context.Context, threadID string) ([]contractx.Message, error) {
	id, err := normalizeID(threadID)
	if err != nil {
		return nil, err
	}
	resp, err := s.exec(ctx, []any{"LRANGE", s.transcriptKey(id), "0", "-1"})
	if err != nil {
		return nil, err
	}

	var items []string
	if err := json.Unmarshal(resp.Result, &items); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	msgs := make([]contractx.Message, 0, len(items))
	for _, item := range items {
		var m contractx.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decode transcript message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *UpstashStore) transcriptKey(threadID string) string {
	return strings.TrimSpace(s.keyPrefix) + transcriptKeyInfix + threadID
}

func (s *UpstashStore) threadKey(threadID string) string {
	return strings.TrimSpace(s.keyPrefix) + threadKeyInfix + threadID
}

func (s *UpstashStore) pendingKey() string {
	return strings.TrimSpace(s.keyPrefix) + pendingKeySuffix
}

func (s *UpstashStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}
