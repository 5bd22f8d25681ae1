// authd is a reference deployment of the authcore engine: Redis-backed
// sessions and rate limits, the chi HTTP boundary, and an optional
// PostgreSQL audit trail. It runs with an in-memory user provider, which
// makes it suitable for development and integration testing; production
// embedders supply their own identity store through authcore.UserProvider.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/contractdesk/authcore"
	"github.com/contractdesk/authcore/auditpg"
	"github.com/contractdesk/authcore/httpapi"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("authd: configuration: %v", err)
	}

	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("authd: redis ping: %v", err)
	}

	engineCfg := authcore.DefaultConfig()
	engineCfg.Token.SigningKey = cfg.SigningKey
	engineCfg.CSRF.Secret = cfg.CSRFSecret

	builder := authcore.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserProvider(newMemoryProvider())

	if cfg.AuditDSN != "" {
		db, err := auditpg.Open(ctx, cfg.AuditDSN)
		if err != nil {
			log.Fatalf("authd: audit database: %v", err)
		}
		defer db.Close()
		if err := auditpg.Migrate(ctx, db); err != nil {
			log.Fatalf("authd: audit migrations: %v", err)
		}
		builder = builder.WithAuditSink(auditpg.NewSink(db))
		log.Print("authd: audit events -> postgres")
	} else {
		builder = builder.WithAuditSink(authcore.NewJSONWriterSink(os.Stdout))
		log.Print("authd: audit events -> stdout")
	}

	engine, err := builder.Build()
	if err != nil {
		log.Fatalf("authd: engine: %v", err)
	}
	defer engine.Close()

	handler := httpapi.NewHandler(engine, httpapi.Options{
		SecureCookies: cfg.SecureCookies,
		AccessTTL:     engineCfg.Token.AccessTTL,
		RefreshTTL:    engineCfg.Session.RefreshTTL,
		VerificationNotifier: func(email, token string) {
			// Stand-in for an email delivery integration.
			log.Printf("authd: verification token for %s: %s", email, token)
		},
		ResetNotifier: func(email, token string) {
			log.Printf("authd: reset token for %s: %s", email, token)
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("authd: listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("authd: server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Print("authd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("authd: forced shutdown: %v", err)
	}
	log.Print("authd: stopped")
}

type config struct {
	Addr          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SigningKey    []byte
	CSRFSecret    []byte
	AuditDSN      string
	SecureCookies bool
}

func loadConfig() (*config, error) {
	cfg := &config{
		Addr:          envOr("AUTHD_ADDR", ":8080"),
		RedisAddr:     envOr("AUTHD_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("AUTHD_REDIS_PASSWORD"),
		SigningKey:    []byte(os.Getenv("AUTHD_SIGNING_KEY")),
		CSRFSecret:    []byte(os.Getenv("AUTHD_CSRF_SECRET")),
		AuditDSN:      os.Getenv("AUTHD_AUDIT_PG_DSN"),
	}

	if raw := os.Getenv("AUTHD_REDIS_DB"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, err
		}
		cfg.RedisDB = n
	}
	cfg.SecureCookies = os.Getenv("AUTHD_INSECURE_COOKIES") != "true"

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
