package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"jwt-cookie-ws/internal/auth"
	"jwt-cookie-ws/internal/config"
	"jwt-cookie-ws/internal/database"
	"jwt-cookie-ws/internal/denylist"
	"jwt-cookie-ws/internal/handlers"
	"jwt-cookie-ws/internal/logging"
	"jwt-cookie-ws/internal/metrics"
	"jwt-cookie-ws/internal/middleware"
	"jwt-cookie-ws/internal/tracing"
	"jwt-cookie-ws/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const denylistPurgeInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	Long: `Run the server. Configuration is read from the environment; see
JWT_SECRET, DATABASE_PATH and BACKEND_ADDR (or PORT) for the required values.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Service: serviceName,
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName: serviceName,
		Environment: cfg.AppEnv,
		PrettyPrint: cfg.IsDev(),
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	db, err := database.OpenAndMigrate(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("db open/migrate: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("db close error", zap.Error(err))
		}
	}()

	settings := cfg.Settings()
	var store denylist.Store
	var authOpts []auth.Option
	if settings.DenylistEnabled {
		store, err = openDenylist(ctx, cfg, db, logger)
		if err != nil {
			return err
		}
		authOpts = append(authOpts, auth.WithDenylist(store))
	}
	authorizer, err := auth.NewAuthorizer(settings, authOpts...)
	if err != nil {
		return err
	}
	issuer, err := auth.NewIssuer(settings)
	if err != nil {
		return err
	}

	hubRef := websocket.NewHubRef(websocket.NewHub())
	go runHub(ctx, hubRef, logger)

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	handlers.RegisterRoutes(r, handlers.Deps{
		DB:         db,
		Config:     cfg,
		Authorizer: authorizer,
		Issuer:     issuer,
		Metrics:    metrics.New(),
		Denylist:   store,
		Hubs:       hubRef.Get,
	})

	// cfg.Addr is fully resolved by config.LoadFromEnv() (BACKEND_ADDR or PORT).
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	if h, ok := hubRef.Get(); ok && h != nil {
		h.Stop()
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// newEngine builds the gin engine with the shared middleware chain. Client IPs
// come from X-Forwarded-For only when the peer is one of cfg.TrustedProxies;
// otherwise the socket address is used, so per-IP rate limits cannot be
// sidestepped by a forged header.
func newEngine(cfg config.Config, logger *zap.Logger) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(logging.GinMiddleware(logger))
	r.Use(middleware.DevCORS(cfg))
	return r, nil
}

// runHub keeps a hub running, swapping in a fresh one if Run panics.
func runHub(ctx context.Context, hubRef *websocket.HubRef, logger *zap.Logger) {
	for {
		current, ok := hubRef.Get()
		if !ok || current == nil {
			current = hubRef.Replace()
		}

		panicked := false
		func() {
			defer func() {
				if r := recover(); r != nil {
					panicked = true
					logger.Error("hub.Run panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				}
			}()
			current.Run()
		}()

		// Run returns normally only after Stop.
		if !panicked {
			return
		}
		hubRef.Replace()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func openDenylist(ctx context.Context, cfg config.Config, db *sql.DB, logger *zap.Logger) (denylist.Store, error) {
	switch cfg.DenylistBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		go func() {
			<-ctx.Done()
			_ = rdb.Close()
		}()
		return denylist.NewRedisStore(rdb, ""), nil
	default:
		store := denylist.NewSQLiteStore(db)
		go purgeLoop(ctx, store, logger)
		return store, nil
	}
}

// purgeLoop drops revoked entries whose tokens have expired anyway.
func purgeLoop(ctx context.Context, store *denylist.SQLiteStore, logger *zap.Logger) {
	ticker := time.NewTicker(denylistPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Purge(ctx)
			if err != nil {
				logger.Warn("denylist purge", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("denylist purge", zap.Int64("removed", n))
			}
		}
	}
}
