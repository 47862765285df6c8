// Package control assembles the application: storage, cache, the
// connection engine, the intake pipeline and the health surface.
package control

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/zapdesk/wabridge/internal/core/config"
	"github.com/zapdesk/wabridge/internal/health"
	"github.com/zapdesk/wabridge/internal/infra/storage"
	"github.com/zapdesk/wabridge/internal/infra/storage/memory"
	"github.com/zapdesk/wabridge/internal/infra/storage/postgres"
	"github.com/zapdesk/wabridge/internal/intake"
	"github.com/zapdesk/wabridge/internal/notify"
	"github.com/zapdesk/wabridge/internal/session"
	"github.com/zapdesk/wabridge/internal/wa"

	redisclient "github.com/zapdesk/wabridge/internal/infra/redis"
)

// Bridge is the main application struct that owns the session engine
// and its supporting services.
type Bridge struct {
	cfg          *config.AppConfig
	manager      *session.Manager
	registry     *session.Registry
	sessions     storage.SessionRepository
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewBridge creates a Bridge with all dependencies initialized.
func NewBridge(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*Bridge, error) {
	if log == nil {
		log = slog.Default()
	}

	// 1. Initialize Storage
	var (
		db          *postgres.DB
		sessionRepo storage.SessionRepository
		messageRepo storage.MessageRepository
		contactRepo storage.ContactRepository
		ticketRepo  storage.TicketRepository
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations. Goose needs the raw *sql.DB that sqlx wraps.
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		sessionRepo = postgres.NewSessionRepo(db)
		messageRepo = postgres.NewMessageRepo(db)
		contactRepo = postgres.NewContactRepo(db)
		ticketRepo = postgres.NewTicketRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		sessionRepo = memory.NewSessionRepo(store)
		messageRepo = memory.NewMessageRepo(store)
		contactRepo = memory.NewContactRepo(store)
		ticketRepo = memory.NewTicketRepo(store)
		log.Info("Using Memory storage")
	}

	// 2. Initialize Redis-backed services, with in-process fallbacks
	// when no Redis is configured.
	var (
		redisClient *redisclient.Client
		bus         notify.Bus
		ledger      session.ErrorLedger
		cache       intake.MessageCache
	)

	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		bus = redisclient.NewBus(redisClient)
		ledger = redisclient.NewLedger(redisClient)
		cache = redisclient.MessageCacheAdapter{Client: redisClient}
		log.Info("Using Redis for notifications, error ledger and message cache")
	} else {
		bus = logBus{log: log}
		ledger = session.NewMemoryLedger()
		cache = intake.NewMemoryCache()
		log.Info("Redis not configured, using in-process fallbacks")
	}

	// 3. Initialize the protocol layer. Pairing credentials live in
	// the application database; without one they fall back to a local
	// sqlite file so memory mode still pairs.
	var credsDB *sql.DB
	credsDriver := "postgres"
	if db != nil {
		credsDB = db.DB.DB
	} else {
		if err := os.MkdirAll(cfg.WhatsApp.StoragePath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage dir: %w", err)
		}
		var err error
		credsDB, err = sql.Open("sqlite3",
			fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(cfg.WhatsApp.StoragePath, "credentials.db")))
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		credsDriver = "sqlite3"
	}
	meow, err := wa.NewMeowDialer(ctx, credsDB, credsDriver, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init whatsapp dialer: %w", err)
	}
	// Retry requests for sent messages are answered from the payload
	// cache.
	meow.SetPayloadLookup(cache.Get)
	dialer := wa.Dialer(meow)
	creds := wa.NewMeowCredentialStore(meow, cfg.WhatsApp.StoragePath, log)

	// 4. Intake pipeline, gated on the session manager. The manager is
	// constructed below; no event flows before NewBridge returns.
	registry := session.NewRegistry()
	ticketer := intake.NewTicketer(contactRepo, ticketRepo)
	var manager *session.Manager
	connected := func(sessionID int64) bool {
		return manager != nil && manager.Connected(sessionID)
	}
	pipeline := intake.New(messageRepo, ticketer, cache, connected, log)

	// 5. Session engine
	manager = session.NewManager(cfg.WhatsApp.Engine, session.Deps{
		Dialer: dialer,
		Creds:  creds,
		Store:  sessionRepo,
		Bus:    bus,
		Ledger: ledger,
		Intake: pipeline,
		Log:    log,
	}, registry)

	// 6. Health surface
	healthMon := health.NewMonitor(registry, ledger)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &Bridge{
		cfg:          cfg,
		manager:      manager,
		registry:     registry,
		sessions:     sessionRepo,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          log,
	}, nil
}

// Manager exposes the session engine for command surfaces.
func (b *Bridge) Manager() *session.Manager {
	return b.manager
}

// Sessions exposes the session repository for command surfaces.
func (b *Bridge) Sessions() storage.SessionRepository {
	return b.sessions
}

// Start starts the health server and, when auto-start is enabled,
// connects every stored session.
func (b *Bridge) Start(ctx context.Context) error {
	go func() {
		if err := b.healthServer.Start(); err != nil {
			b.log.Error("Health server failed", "error", err)
		}
	}()

	if !b.cfg.WhatsApp.AutoStart {
		return nil
	}

	sessions, err := b.sessions.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.ReconnectBlocked {
			b.log.Info("Skipping blocked session", "session", sess.ID, "reason", sess.BlockReason)
			continue
		}
		b.log.Info("Starting session", "session", sess.ID, "name", sess.Name)
		if err := b.manager.StartSession(ctx, sess.ID); err != nil {
			b.log.Error("Session start failed", "session", sess.ID, "error", err)
		}
	}
	return nil
}

// Stop tears down all live sessions and supporting services.
func (b *Bridge) Stop(ctx context.Context) error {
	b.log.Info("Stopping Bridge...")

	b.manager.StopAll(ctx)

	if b.redisClient != nil {
		if err := b.redisClient.Close(); err != nil {
			b.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			b.log.Warn("Failed to close database", "error", err)
		}
	}

	return b.healthServer.Stop(ctx)
}

// logBus implements notify.Bus for deployments without Redis.
type logBus struct {
	log *slog.Logger
}

func (b logBus) Publish(ctx context.Context, channel, event string, payload any) error {
	b.log.Info("notify", "channel", channel, "event", event, "payload", payload)
	return nil
}
