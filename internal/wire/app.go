package wire

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/adapter/memory"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/adapter/notify"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/adapter/openai"
	pgdb "github.com/defenseunicorns/leapfrogai-sub001/internal/adapter/postgres"
	pgeventbus "github.com/defenseunicorns/leapfrogai-sub001/internal/adapter/postgres/eventbus"
	pgthread "github.com/defenseunicorns/leapfrogai-sub001/internal/adapter/postgres/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/config"
	porteventbus "github.com/defenseunicorns/leapfrogai-sub001/internal/port/eventbus"
	portstream "github.com/defenseunicorns/leapfrogai-sub001/internal/port/stream"
	portthread "github.com/defenseunicorns/leapfrogai-sub001/internal/port/thread"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/chat"
	protocolsvc "github.com/defenseunicorns/leapfrogai-sub001/internal/service/protocol"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/store"
	threadsvc "github.com/defenseunicorns/leapfrogai-sub001/internal/service/thread"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/transport"
	mcptransport "github.com/defenseunicorns/leapfrogai-sub001/internal/transport/mcp"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/transport/ws"
)

// App holds the top-level resources needed to run and gracefully stop the server.
type App struct {
	Pool      *pgxpool.Pool
	Server    *http.Server
	Store     *store.Store
	Threads   *threadsvc.Service
	Chat      *chat.Service
	Protocols *protocolsvc.Service
	Hub       *ws.Hub
	MCPServer *mcptransport.Server

	closers []func()
}

// Close stops listeners and releases the database pool, if any.
func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

type backend struct {
	pool     *pgxpool.Pool
	remote   portthread.Remote
	streamer portstream.Streamer
	bus      porteventbus.EventBus
	closers  []func()
}

func buildBackend(ctx context.Context, cfg config.Config) (backend, error) {
	var b backend
	switch cfg.Backend {
	case config.BackendMemory:
		remote := memory.NewRemote()
		b.remote = remote
		b.streamer = memory.NewStreamer(remote, cfg.StreamDelay)
		b.bus = memory.NewEventBus()

	case config.BackendOpenAI:
		b.remote = openai.NewRemote(openai.NewClient(openAIConfig(cfg)))
		b.bus = memory.NewEventBus()

	case config.BackendPostgres:
		pool, err := pgdb.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, fmt.Errorf("connecting to database: %w", err)
		}
		if cfg.AutoMigrate {
			if err := pgdb.Migrate(ctx, pool); err != nil {
				pool.Close()
				return backend{}, fmt.Errorf("migrating database: %w", err)
			}
		}
		b.pool = pool
		b.remote = pgthread.New(pool)
		bus := pgeventbus.New(pool)
		b.bus = bus
		b.closers = append(b.closers, bus.Close)
		if !cfg.UsesOpenAIStreamer() {
			b.streamer = memory.NewStreamer(b.remote, cfg.StreamDelay)
		}

	default:
		return backend{}, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if b.streamer == nil {
		oc := openAIConfig(cfg)
		b.streamer = openai.NewStreamer(openai.NewClient(oc), oc)
	}
	return b, nil
}

func openAIConfig(cfg config.Config) openai.Config {
	return openai.Config{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		Model:        cfg.OpenAI.Model,
		PollInterval: cfg.OpenAI.PollInterval,
	}
}

// Build is the composition root: the only place concrete types are wired to their
// interface dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	// ── Backend ──────────────────────────────────────────────────────────────
	b, err := buildBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// ── Services ─────────────────────────────────────────────────────────────

	// The sinks are completed once the MCP server exists; services only
	// notify after Build returns.
	hub := ws.NewHub()
	sinks := notify.Fanout{hub, notify.Log{}}

	st := store.New(b.bus, memory.NewScheduler(cfg.SendReleaseDelay), cfg.SendReleaseDelay)
	chatSvc := chat.NewService(st, b.remote, b.streamer, &sinks)
	threadSvc := threadsvc.NewService(st, b.remote, chatSvc, &sinks)
	protocolSvc := protocolsvc.NewService(st, b.remote, chatSvc, chatSvc, &sinks)

	app := &App{
		Pool:      b.pool,
		Store:     st,
		Threads:   threadSvc,
		Chat:      chatSvc,
		Protocols: protocolSvc,
		Hub:       hub,
		closers:   b.closers,
	}

	var mcpHandler http.Handler
	if cfg.MCPEnabled {
		app.MCPServer = mcptransport.New(mcptransport.Deps{
			Store:     st,
			Threads:   threadSvc,
			Chat:      chatSvc,
			Protocols: protocolSvc,
		})
		sinks = append(sinks, app.MCPServer)
		mcpHandler = app.MCPServer.Handler()
	}

	// ── Transport ─────────────────────────────────────────────────────────────
	router := transport.NewRouter(ctx, transport.Services{
		Store:     st,
		Threads:   threadSvc,
		Chat:      chatSvc,
		Protocols: protocolSvc,
	}, hub, b.bus, mcpHandler)

	app.Server = &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: router,
	}

	// ── Idle-Stream Reaper ────────────────────────────────────────────────────
	if cfg.StreamIdleTimeout > 0 {
		r := newReaper(st, chatSvc, protocolSvc, memory.TimerScheduler{}, cfg.StreamIdleTimeout)
		if _, err := startReaper(ctx, b.bus, r); err != nil {
			slog.Error("reaper: failed to subscribe to stream channel", "error", err)
		}
	}

	slog.Info("application wired", "port", cfg.Port, "backend", cfg.Backend, "mcp", cfg.MCPEnabled)
	return app, nil
}
