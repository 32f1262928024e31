package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	orchestratorx "github.com/tanpawarit/claims-orchestrator/agent/agents/orchestrator"
	specialistx "github.com/tanpawarit/claims-orchestrator/agent/agents/specialist"
	gatewayx "github.com/tanpawarit/claims-orchestrator/agent/gateway"
	indexerx "github.com/tanpawarit/claims-orchestrator/agent/indexer"
	llmx "github.com/tanpawarit/claims-orchestrator/agent/llm"
	memoryx "github.com/tanpawarit/claims-orchestrator/agent/memory"
	threadx "github.com/tanpawarit/claims-orchestrator/agent/thread"
	toolx "github.com/tanpawarit/claims-orchestrator/agent/tool"
	"github.com/tanpawarit/claims-orchestrator/api"
	configx "github.com/tanpawarit/claims-orchestrator/pkg/config"
	_ "github.com/tanpawarit/claims-orchestrator/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/claims-orchestrator/pkg/openrouter"
	qstashx "github.com/tanpawarit/claims-orchestrator/pkg/qstash"
	"github.com/tanpawarit/claims-orchestrator/pkg/retryx"
)

var mode = flag.String("mode", "serve", "serve | index | schedule")

type ThreadStoreConfig struct {
	Driver string `split_words:"true" default:"memory"`
}

type AgentConfig struct {
	MaxToolRounds  int           `split_words:"true" default:"4"`
	AttemptTimeout time.Duration `split_words:"true" default:"90s"`
}

// threadBackend is what both the gateways and the indexer need from storage.
type threadBackend interface {
	threadx.Store
	threadx.Transcript
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Str("mode", *mode).Msg("claims orchestrator stopped")
	}
}

func run(ctx context.Context) error {
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	indexerCfg := configx.MustNew[indexerx.Config]("INDEXER")
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
	httpCfg := configx.MustNew[api.Config]("HTTP")

	if *mode == "schedule" {
		return schedule(ctx, *qstashCfg, *httpCfg, *indexerCfg)
	}

	threads, closeThreads, err := openThreads(ctx)
	if err != nil {
		return err
	}
	defer closeThreads()

	embedder, err := openrouterx.NewEmbedder(llmCfg.Embedding())
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	memoryCfg := configx.MustNew[memoryx.Config]("MEMORY")
	index, err := memoryx.NewIndex(*memoryCfg, embedder.Embed)
	if err != nil {
		return fmt.Errorf("init memory index: %w", err)
	}

	lease, closeLease, err := openLease(*indexerCfg)
	if err != nil {
		return err
	}
	defer closeLease()

	history := gatewayx.History{Threads: threads, Transcript: threads}
	batch, err := indexerx.New(threads, history, index, lease, *indexerCfg)
	if err != nil {
		return err
	}

	if *mode == "index" {
		report, err := batch.Run(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("indexed", report.Indexed).Int("failed", report.Failed).Msg("batch complete")
		return nil
	}
	if *mode != "serve" {
		return fmt.Errorf("unknown mode %q", *mode)
	}

	agentCfg := configx.MustNew[AgentConfig]("AGENT")
	retryCfg := configx.MustNew[retryx.Policy]("AGENT_RETRY")
	catalog := toolx.NewCatalog(toolx.NewRecaller(index, index.TopK()))
	registry, err := specialistx.NewRegistry(ctx, *llmCfg, specialistx.Deps{
		Threads:       threads,
		Transcript:    threads,
		Catalog:       catalog,
		MaxToolRounds: agentCfg.MaxToolRounds,
		Options: specialistx.Options{
			Retry:          *retryCfg,
			AttemptTimeout: agentCfg.AttemptTimeout,
		},
	})
	if err != nil {
		return fmt.Errorf("init agents: %w", err)
	}

	orchestratorCfg := configx.MustNew[orchestratorx.Config]("ORCHESTRATOR")
	orchestrator, err := orchestratorx.New(registry, *orchestratorCfg)
	if err != nil {
		return err
	}

	var verifier api.SignatureVerifier
	if qstash, err := qstashx.NewClient(*qstashCfg); err == nil {
		verifier = qstash
	} else {
		log.Warn().Err(err).Msg("qstash disabled; indexing hook accepts unsigned requests")
	}

	server, err := api.New(orchestrator, batch, verifier, *httpCfg)
	if err != nil {
		return err
	}
	return server.ListenAndServe(ctx)
}

func openThreads(ctx context.Context) (threadBackend, func(), error) {
	storeCfg := configx.MustNew[ThreadStoreConfig]("THREAD_STORE")
	switch strings.ToLower(strings.TrimSpace(storeCfg.Driver)) {
	case "postgres":
		pgCfg := configx.MustNew[threadx.PostgresConfig]("POSTGRES")
		db := threadx.OpenPostgres(*pgCfg)
		store := threadx.NewPostgresStore(db)
		if pgCfg.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("migrate thread store: %w", err)
			}
		}
		return store, func() { _ = db.Close() }, nil
	case "upstash":
		upstashCfg := configx.MustNew[threadx.UpstashRedisConfig]("UPSTASH_REDIS")
		store, err := threadx.NewUpstashStore(*upstashCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("init thread store: %w", err)
		}
		return store, func() {}, nil
	case "memory", "":
		log.Warn().Msg("thread store is in-memory; conversations are lost on restart")
		return threadx.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown thread store driver %q", storeCfg.Driver)
	}
}

func openLease(cfg indexerx.Config) (indexerx.Lease, func(), error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return &indexerx.LocalLease{}, func() {}, nil
	}
	lease, err := indexerx.NewRedisLeaseFromURL(cfg.RedisURL, cfg.LeaseKey, cfg.LeaseTTL)
	if err != nil {
		return nil, nil, err
	}
	return lease, func() { _ = lease.Close() }, nil
}

func schedule(ctx context.Context, qstashCfg qstashx.Config, httpCfg api.Config, indexerCfg indexerx.Config) error {
	if strings.TrimSpace(httpCfg.PublicURL) == "" {
		return errors.New("HTTP_PUBLIC_URL is required to schedule indexing")
	}
	client, err := qstashx.NewClient(qstashCfg)
	if err != nil {
		return err
	}
	destination := strings.TrimRight(httpCfg.PublicURL, "/") + "/index-conversations"
	id, err := client.Schedule(ctx, destination, indexerCfg.ScheduleCron)
	if err != nil {
		return err
	}
	log.Info().Str("schedule_id", id).Str("destination", destination).Str("cron", indexerCfg.ScheduleCron).Msg("indexing scheduled")
	return nil
}
