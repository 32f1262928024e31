package thread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

type PostgresConfig struct {
	DSN          string        `envconfig:"DSN" required:"true"`
	DialTimeout  time.Duration `split_words:"true" default:"5s"`
	ReadTimeout  time.Duration `split_words:"true" default:"10s"`
	WriteTimeout time.Duration `split_words:"true" default:"10s"`
	AutoMigrate  bool          `split_words:"true" default:"true"`
}

// OpenPostgres returns a bun handle. The pool connects lazily on first query.
func OpenPostgres(cfg PostgresConfig) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
		pgdriver.WithReadTimeout(cfg.ReadTimeout),
		pgdriver.WithWriteTimeout(cfg.WriteTimeout),
	))
	return bun.NewDB(sqldb, pgdialect.New())
}

type threadRow struct {
	bun.BaseModel `bun:"table:conversation_threads,alias:ct"`

	ID          string       `bun:"id,pk"`
	Processed   bool         `bun:"processed,notnull,default:false"`
	CreatedAt   time.Time    `bun:"created_at,notnull"`
	ProcessedAt bun.NullTime `bun:"processed_at"`
}

func (r threadRow) toThread() Thread {
	th := Thread{ID: r.ID, Processed: r.Processed, CreatedAt: r.CreatedAt.UTC()}
	if !r.ProcessedAt.IsZero() {
		th.ProcessedAt = r.ProcessedAt.Time.UTC()
	}
	return th
}

type messageRow struct {
	bun.BaseModel `bun:"table:thread_messages,alias:tm"`

	ID        int64     `bun:"id,pk,autoincrement"`
	ThreadID  string    `bun:"thread_id,notnull"`
	Role      string    `bun:"role,notnull"`
	Agent     string    `bun:"agent"`
	Content   string    `bun:"content,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// PostgresStore keeps thread lifecycle records and transcripts in Postgres.
type PostgresStore struct {
	db  bun.IDB
	now func() time.Time
}

var (
	_ Store      = (*PostgresStore)(nil)
	_ Transcript = (*PostgresStore)(nil)
)

func NewPostgresStore(db bun.IDB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate creates the tables and the pending-thread index when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	models := []any{(*threadRow)(nil), (*messageRow)(nil)}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	if _, err := s.pendingIndexQuery().Exec(ctx); err != nil {
		return fmt.Errorf("create pending index: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*messageRow)(nil)).
		Index("thread_messages_thread_idx").
		IfNotExists().
		Column("thread_id", "created_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("create transcript index: %w", err)
	}
	return nil
}

func (s *PostgresStore) pendingIndexQuery() *bun.CreateIndexQuery {
	return s.db.NewCreateIndex().
		Model((*threadRow)(nil)).
		Index("conversation_threads_pending_idx").
		IfNotExists().
		Column("created_at").
		Where("processed = FALSE")
}

func (s *PostgresStore) createQuery(id string, now time.Time) *bun.InsertQuery {
	row := &threadRow{ID: id, CreatedAt: now}
	return s.db.NewInsert().Model(row).On("CONFLICT (id) DO NOTHING")
}

func (s *PostgresStore) markQuery(id string, now time.Time) *bun.UpdateQuery {
	return s.db.NewUpdate().
		Model((*threadRow)(nil)).
		Set("processed = TRUE").
		Set("processed_at = COALESCE(processed_at, ?)", now).
		Where("id = ?", id)
}

func (s *PostgresStore) listQuery() *bun.SelectQuery {
	return s.db.NewSelect().
		Model((*threadRow)(nil)).
		Column("id").
		Where("processed = FALSE").
		Order("created_at ASC", "id ASC")
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, threadID string) error {
	id, err := normalizeID(threadID)
	if err != nil {
		return err
	}
	if _, err := s.createQuery(id, s.now().UTC()).Exec(ctx); err != nil {
		return fmt.Errorf("insert thread %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, threadID string) error {
	id, err := normalizeID(threadID)
	if err != nil {
		return err
	}
	res, err := s.markQuery(id, s.now().UTC()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark thread %s processed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark thread %s processed: %w", id, err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *PostgresStore) ListUnprocessed(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.listQuery().Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("list unprocessed threads: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Get(ctx context.Context, threadID string) (Thread, error) {
	id, err := normalizeID(threadID)
	if err != nil {
		return Thread{}, err
	}
	var row threadRow
	if err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Thread{}, notFound(id)
		}
		return Thread{}, fmt.Errorf("get thread %s: %w", id, err)
	}
	return row.toThread(), nil
}

func (s *PostgresStore) Append(ctx context.Context, msgs ...contractx.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]messageRow, 0, len(msgs))
	for _, m := range msgs {
		id, err := normalizeID(m.ThreadID)
		if err != nil {
			return err
		}
		rows = append(rows, messageRow{
			ThreadID:  id,
			Role:      string(m.Role),
			Agent:     string(m.Agent),
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC(),
		})
	}
	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, threadID string) ([]contractx.Message, error) {
	id, err := normalizeID(threadID)
	if err != nil {
		return nil, err
	}
	var rows []messageRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("thread_id = ?", id).
		Order("created_at ASC", "id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", id, err)
	}
	out := make([]contractx.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, contractx.Message{
			ThreadID:  r.ThreadID,
			Role:      contractx.Role(r.Role),
			Agent:     contractx.AgentName(r.Agent),
			Content:   r.Content,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return out, nil
}
