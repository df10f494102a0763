package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rdxz2/t3dapi/internal/api"
	"github.com/rdxz2/t3dapi/internal/config"
	"github.com/rdxz2/t3dapi/internal/database"
	"github.com/rdxz2/t3dapi/internal/logging"
	"github.com/rdxz2/t3dapi/internal/relay"
	"github.com/rdxz2/t3dapi/internal/room"
	"github.com/rdxz2/t3dapi/internal/router"
	"github.com/rdxz2/t3dapi/internal/session"
	"github.com/rdxz2/t3dapi/internal/websocket"
	"github.com/rdxz2/t3dapi/migrations"
	pkgdatabase "github.com/rdxz2/t3dapi/pkg/database"
	"github.com/rdxz2/t3dapi/pkg/interfaces"
	"github.com/rdxz2/t3dapi/pkg/types"
)

// ErrNoProjectStore is returned by RegisterProject when projects live in MongoDB
var ErrNoProjectStore = errors.New("project registration requires the sqlite project store")

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config    *config.Config
	logger    *zap.Logger
	dbManager *database.Manager
	mongo     *database.MongoLookup
	redis     *redis.Client
	relay     *relay.Relay
	directory *room.Directory
	registry  *websocket.Registry
	router    *router.Router
	apiServer *api.Server

	httpServer *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewApplication creates a new application instance with all components initialized.
// A nil logger is built from cfg.Log.
// Component initialization follows strict dependency order:
// Logger → Project store → Directory → Relay → Sessions → Router → Registry → WebSocket → API → HTTP
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Logger
	if logger == nil {
		var err error
		if logger, err = logging.New(cfg.Log); err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	app := &Application{config: cfg, logger: logger}

	// STEP 2: Project store (Mongo when configured, SQLite otherwise)
	lookup, storeCheck, err := app.openProjectStore()
	if err != nil {
		return nil, err
	}

	// STEP 3: Room directory, the only process-wide broker state
	app.directory = room.NewDirectory(lookup,
		room.WithLogger(logger),
		room.WithLookupTimeout(cfg.Broker.LookupTimeout))

	checks := map[string]api.HealthChecker{"database": storeCheck}

	// STEP 4: Optional cross-instance relay
	var publisher session.Publisher
	if cfg.Redis.Enabled() {
		if err := app.openRelay(); err != nil {
			app.closeStores()
			return nil, err
		}
		publisher = app.relay
		checks["redis"] = api.HealthCheckFunc(func(ctx context.Context) error {
			return app.redis.Ping(ctx).Err()
		})
	}

	// STEP 5: Session factory and message router
	sessions := session.NewFactory(app.directory, publisher, session.Config{
		ExcludeSender: cfg.Broker.ExcludeSender,
	}, logger)
	app.router = router.NewRouter(cfg.Broker.RateLimitPerMinute, logger)

	// STEP 6: WebSocket registry and handler
	app.registry = websocket.NewRegistry()
	wsHandler := websocket.NewHandler(app.registry, sessions, app.router, websocket.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		ReadLimit:        cfg.WebSocket.ReadLimit,
		PingInterval:     cfg.WebSocket.PingInterval,
		PongTimeout:      cfg.WebSocket.ReadTimeout,
		WriteTimeout:     cfg.WebSocket.WriteTimeout,
		WriteBuffer:      cfg.WebSocket.BufferSize,
		HandshakeTimeout: 10 * time.Second,
	}, logger)

	// STEP 7: API server with the websocket endpoint mounted
	app.apiServer = api.NewServer(app.directory, app.registry, api.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		WebSocket:      http.HandlerFunc(wsHandler.HandleWebSocket),
		Checks:         checks,
	}, logger)

	// STEP 8: HTTP server
	app.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      app.apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return app, nil
}

func (app *Application) openProjectStore() (interfaces.ProjectLookup, api.HealthChecker, error) {
	cfg := app.config

	if cfg.Mongo.URI != "" {
		lookup, err := database.NewMongoLookup(context.Background(), cfg.Mongo, app.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize mongo project lookup: %w", err)
		}
		app.mongo = lookup
		app.logger.Info("using mongo project store",
			zap.String("database", cfg.Mongo.Database),
			zap.String("collection", cfg.Mongo.Collection))
		return lookup, lookup, nil
	}

	dbManager, err := database.NewManager(cfg.Database, app.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// Apply database migrations to ensure schema is up to date
	migrationManager := pkgdatabase.NewMigrationManagerFS(dbManager.GetDB(), migrationSource(cfg.Database.MigrationsPath))
	if err := migrationManager.ApplyMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := migrationManager.ValidateSchema(); err != nil {
		_ = dbManager.Close()
		return nil, nil, fmt.Errorf("database schema invalid: %w", err)
	}

	app.dbManager = dbManager
	app.logger.Info("using sqlite project store", zap.String("path", cfg.Database.DatabasePath))
	return dbManager, dbManager, nil
}

// migrationSource prefers the configured directory and falls back to the
// migrations compiled into the binary
func migrationSource(path string) fs.FS {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return os.DirFS(path)
	}
	return migrations.Files
}

func (app *Application) openRelay() error {
	cfg := app.config.Redis
	app.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.redis.Ping(ctx).Err(); err != nil {
		_ = app.redis.Close()
		app.redis = nil
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	app.relay = relay.New(app.redis, app.directory, app.logger)
	return nil
}

// RegisterProject inserts or updates a project in the SQLite store
func (app *Application) RegisterProject(ctx context.Context, project *types.Project) error {
	if app.dbManager == nil {
		return ErrNoProjectStore
	}
	return app.dbManager.CreateProject(ctx, project)
}

// Start begins application execution
// Startup coordination ensures all components ready before serving:
// relay first so no peer event is missed, then the HTTP listener
func (app *Application) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	app.cancel = cancel

	// STEP 1: Subscribe to other instances
	if app.relay != nil {
		if err := app.relay.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("failed to start relay: %w", err)
		}
	}

	// STEP 2: Rate limiter housekeeping
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.router.Run(runCtx)
	}()

	// STEP 3: Bind and serve HTTP
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		app.stopBackground()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	app.logger.Info("t3dstream started",
		zap.String("addr", listener.Addr().String()),
		zap.Strings("health_checks", app.apiServer.ComponentNames()),
		zap.Bool("relay", app.relay != nil))
	return nil
}

// Stop gracefully shuts down the application
// Shutdown coordination ensures proper resource cleanup
// Reverse dependency order: HTTP → Connections → Relay → Stores
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down t3dstream")

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// STEP 2: Close live sockets; each read pump runs its disconnect cleanup
	for _, r := range app.directory.Rooms() {
		app.logger.Info("closing room", zap.String("project", r.Code()), zap.Int("members", r.Len()))
	}
	closed := app.registry.CloseAll()
	app.waitForConnections(ctx)
	app.logger.Info("connections closed", zap.Int("count", closed))

	// STEP 3: Stop background work
	app.stopBackground()

	// STEP 4: Close stores
	app.closeStores()

	app.logger.Info("t3dstream shutdown complete")
	_ = app.logger.Sync()
	return nil
}

func (app *Application) waitForConnections(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for app.registry.Count() > 0 {
		select {
		case <-ctx.Done():
			app.logger.Warn("connections still open at shutdown deadline", zap.Int("count", app.registry.Count()))
			return
		case <-ticker.C:
		}
	}
}

func (app *Application) stopBackground() {
	if app.relay != nil {
		if err := app.relay.Stop(); err != nil && !errors.Is(err, relay.ErrRelayNotRunning) {
			app.logger.Warn("relay shutdown error", zap.Error(err))
		}
	}
	if app.cancel != nil {
		app.cancel()
	}
	app.wg.Wait()
}

func (app *Application) closeStores() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn("redis shutdown error", zap.Error(err))
		}
	}
	if app.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.mongo.Close(ctx); err != nil {
			app.logger.Warn("mongo shutdown error", zap.Error(err))
		}
	}
	if app.dbManager != nil {
		if err := app.dbManager.Close(); err != nil {
			app.logger.Warn("database shutdown error", zap.Error(err))
		}
	}
}

// GetAddr returns the bound address once started, the configured one before
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Directory exposes the room directory for inspection
func (app *Application) Directory() *room.Directory {
	return app.directory
}
