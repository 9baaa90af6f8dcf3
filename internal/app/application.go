package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatrelay/internal/api"
	"chatrelay/internal/broker"
	"chatrelay/internal/config"
	"chatrelay/internal/database"
	"chatrelay/internal/presence"
	"chatrelay/internal/router"
	"chatrelay/internal/session"
	"chatrelay/internal/websocket"
	pkgdatabase "chatrelay/pkg/database"
	"chatrelay/pkg/interfaces"
)

// Application coordinates all system components
// ARCHITECTURAL DISCOVERY: Every service is built once here and injected, in dependency order:
// Store → Registry → Broker → Bridge → Router → Sessions → WebSocket → API → HTTP
type Application struct {
	config     *config.Config
	log        *zap.Logger
	store      *database.Manager
	broker     interfaces.Broker
	registry   *presence.Registry
	bridge     *broker.Bridge
	limiter    *router.RateLimiter
	router     *router.Router
	sessions   *session.Manager
	wsHandler  *websocket.Handler
	apiServer  *api.Server
	httpServer *http.Server

	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

func NewApplication(cfg *config.Config, log *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	b, err := openBroker(cfg.Broker, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	registry := presence.NewRegistry(store, log.Named("presence"))
	bridge := broker.NewBridge(b, cfg.Broker.ChannelPrefix, log.Named("bridge"))
	limiter := router.NewRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateWindow)
	rtr := router.NewRouter(registry, bridge, store, limiter, log.Named("router"))
	sessions := session.NewManager(registry, bridge, rtr, log.Named("session"))

	wsHandler := websocket.NewHandler(sessions, websocket.Options{
		SendBuffer:     cfg.WebSocket.SendBuffer,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}, log.Named("websocket"))

	apiServer := api.NewServer(store, b, registry, bridge, log.Named("api"))
	apiServer.SetSessions(sessions)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		log:        log,
		store:      store,
		broker:     b,
		registry:   registry,
		bridge:     bridge,
		limiter:    limiter,
		router:     rtr,
		sessions:   sessions,
		wsHandler:  wsHandler,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

func openStore(cfg *config.DatabaseConfig, log *zap.Logger) (*database.Manager, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Path
	dbConfig.MaxConnections = cfg.MaxConnections
	dbConfig.WriteTimeout = cfg.WriteTimeout
	dbConfig.MigrationsPath = cfg.MigrationsPath

	store, err := database.NewManager(dbConfig, log.Named("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrations := pkgdatabase.NewMigrationManager(store.GetDB(), dbConfig.MigrationsPath)
	if err := migrations.ApplyMigrations(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("database schema is invalid: %w", err)
	}
	log.Info("database ready", zap.String("path", cfg.Path))
	return store, nil
}

func openBroker(cfg *config.BrokerConfig, log *zap.Logger) (interfaces.Broker, error) {
	switch cfg.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Protocol: 2,
		})
		rb := broker.NewRedisBroker(client, log.Named("redis"))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rb.Ping(ctx); err != nil {
			_ = rb.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		log.Info("using redis broker", zap.String("addr", cfg.RedisAddr))
		return rb, nil
	default:
		log.Info("using in-process broker")
		return broker.NewMemoryBroker(cfg.BufferSize, log.Named("memory-broker")), nil
	}
}

// Start binds the HTTP listener and serves in the background
func (app *Application) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	app.cancel = cancel

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.limiter.RunCleanup(bgCtx, app.config.Chat.CleanupInterval)
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.Error("HTTP server error", zap.Error(err))
		}
	}()

	app.log.Info("chatrelay started", zap.String("addr", app.Addr()))
	return nil
}

// Stop shuts down in reverse dependency order: HTTP → sockets → listeners → broker → store
func (app *Application) Stop(ctx context.Context) error {
	app.stopOnce.Do(func() {
		app.log.Info("shutting down chatrelay")
		var errs []error

		if err := app.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := app.wsHandler.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
		}
		if app.cancel != nil {
			app.cancel()
		}
		app.wg.Wait()

		if err := app.bridge.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bridge close: %w", err))
		}
		if err := app.broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("broker close: %w", err))
		}
		if err := app.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}

		app.stopErr = errors.Join(errs...)
		app.log.Info("chatrelay stopped")
	})
	return app.stopErr
}

// Addr is the bound listen address once started, otherwise the configured one
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
