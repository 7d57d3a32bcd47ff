// Command claimsd runs the EU261 claims engine: the HTTP API, the
// outbox-to-queue dispatcher, the notification worker pool, and the cron
// scheduler driving draft reminders, the draft-discard sweep, and the
// soft-deleted-file reaper.
package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/flightclaims/claims-engine/internal/auth"
	"github.com/flightclaims/claims-engine/internal/claims"
	"github.com/flightclaims/claims-engine/internal/documents"
	"github.com/flightclaims/claims-engine/internal/httpapi"
	"github.com/flightclaims/claims-engine/internal/notify"
	"github.com/flightclaims/claims-engine/internal/platform/config"
	"github.com/flightclaims/claims-engine/internal/platform/database"
	"github.com/flightclaims/claims-engine/internal/platform/logging"
	"github.com/flightclaims/claims-engine/internal/platform/metrics"
	"github.com/flightclaims/claims-engine/internal/platform/migrations"
	"github.com/flightclaims/claims-engine/internal/tasks"
	"github.com/flightclaims/claims-engine/internal/webdav"
)

// deriveMasterKey reduces an operator-supplied secret of any length to the
// 32 bytes fieldcrypto/streamcrypto require, via a single SHA-256 pass.
// Config.Validate already rejects secrets under 32 bytes in production, so
// this never silently weakens a short key — it only normalizes length.
func deriveMasterKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("claims-engine", cfg.Logging.Level, cfg.Logging.Format)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.ConnectionString(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, time.Duration(cfg.Database.ConnMaxLifetime)*time.Second)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := migrations.Apply(ctx, db.DB); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
	}

	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer redisClient.Close()

	dbMasterKey := deriveMasterKey(cfg.Encryption.MasterKey)
	fileMasterKey := deriveMasterKey(cfg.Encryption.FileKey)

	authStore := auth.NewStore(db, dbMasterKey)
	tokenIssuer := auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), "claims-engine", cfg.Auth.AccessTokenTTL)
	lockout := auth.NewLoginLockout(redisClient, 5, 15*time.Minute)
	authLimiter := auth.NewRateLimiter(redisClient, "auth:ip", 20, time.Minute)
	authCfg := auth.Config{
		RefreshTokenTTL:  cfg.Auth.RefreshTokenTTL,
		MagicLinkTTL:     cfg.Auth.MagicLinkTTL,
		PasswordResetTTL: cfg.Auth.PasswordResetTTL,
		MaxFailedLogins:  5,
		LockoutDuration:  15 * time.Minute,
	}
	authService := auth.NewService(db, authStore, tokenIssuer, lockout, authCfg)

	claimStore := claims.NewStore(db, dbMasterKey)
	claimGroupStore := claims.NewGroupStore(db)
	claimService := claims.NewService(claimStore, claimGroupStore)

	docStore := documents.NewStore(db)
	webdavClient := webdav.NewClient(webdav.DefaultClientConfig(cfg.WebDAV.BaseURL, cfg.WebDAV.Username, cfg.WebDAV.Password))
	scanner := documents.NewChainScanner(documents.PDFStructuralScanner{})
	pipeline := documents.NewPipeline(docStore, webdavClient, scanner, fileMasterKey, logger)

	metricsCollector := metrics.Init("claims-engine")

	router := httpapi.NewRouter(httpapi.Dependencies{
		DB:       db,
		Config:   cfg,
		Logger:   logger,
		Metrics:  metricsCollector,
		Issuer:   tokenIssuer,
		AuthSvc:  authService,
		ClaimSt:    claimStore,
		ClaimGrpSt: claimGroupStore,
		ClaimSvc:   claimService,
		DocSt:     docStore,
		Pipeline:  pipeline,
		AuthLimit: authLimiter,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	outbox := tasks.NewOutboxStore(db)
	queue := tasks.NewRedisQueue(redisClient)
	sentEvents := tasks.NewSentEvents(db)
	mailer := notify.NewMailer(cfg.SMTP, logger)

	registry := tasks.Registry{
		tasks.TaskDraftReminder:  tasks.NewDraftReminderHandler(claimStore, authStore, mailer),
		tasks.TaskDraftDiscarded: tasks.NewDraftDiscardedHandler(claimStore, authStore, mailer),
	}
	pool := tasks.NewPool(tasks.DefaultPoolConfig("notifications"), queue, sentEvents, registry, logger)
	dispatcher := tasks.NewDispatcher(outbox, queue, 50, time.Second, logger)
	scheduler := tasks.NewScheduler(claimStore, docStore, webdavClient, outbox, logger)

	cronRunner := cron.New()
	if err := scheduler.Register(cronRunner); err != nil {
		log.Fatalf("register scheduler jobs: %v", err)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	go dispatcher.Run(ctx)
	go pool.Run(ctx)

	go func() {
		logger.WithContext(ctx).WithField("addr", server.Addr).Info("claims-engine listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.WithContext(context.Background()).Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
}
