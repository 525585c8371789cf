package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stemsi/exstem-proctoring/internal/config"
	"github.com/stemsi/exstem-proctoring/internal/database"
	"github.com/stemsi/exstem-proctoring/internal/evidence"
	"github.com/stemsi/exstem-proctoring/internal/handler"
	"github.com/stemsi/exstem-proctoring/internal/logger"
	"github.com/stemsi/exstem-proctoring/internal/notify"
	"github.com/stemsi/exstem-proctoring/internal/repository"
	"github.com/stemsi/exstem-proctoring/internal/router"
	"github.com/stemsi/exstem-proctoring/internal/service"
	"github.com/stemsi/exstem-proctoring/internal/validator"
	"github.com/stemsi/exstem-proctoring/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, logger.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Int("escalation_threshold", cfg.AlertThreshold).
		Str("count_source", string(cfg.CountSource)).
		Msg("Starting ExStem Proctoring")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	studentRepo := repository.NewStudentRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)
	roleRepo := repository.NewRoleRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	sessionRepo := repository.NewProctoringSessionRepository(pool)
	alertRepo := repository.NewAlertRepository(pool)
	escalationRepo := repository.NewEscalationRepository(pool)

	// ─── Escalation Delivery ──────────────────────────────────────────
	var mailer notify.Mailer
	if cfg.SMTPHost != "" {
		smtpMailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to configure SMTP mailer")
		}
		mailer = smtpMailer
	} else {
		log.Warn().Msg("SMTP_HOST not set, escalation emails will only be logged")
		mailer = notify.NewLogMailer(log)
	}

	broadcaster := notify.NewRedisBroadcaster(rdb)
	notifier := notify.NewNotifier(escalationRepo, broadcaster, mailer, notify.Options{
		Threshold:    cfg.AlertThreshold,
		EmailTimeout: cfg.EmailTimeout,
		MaxParallel:  cfg.MaxParallelEmails,
		DashboardURL: cfg.DashboardURL,
	}, log)
	queue := notify.NewRedisQueue(rdb)

	evidenceStore := evidence.NewFileStore(cfg.EvidenceDir, cfg.MaxUploadBytes)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	studentService := service.NewStudentService(studentRepo)
	adminService := service.NewAdminService(adminRepo, roleRepo)
	proctoringService := service.NewProctoringService(sessionRepo, alertRepo, examRepo, studentRepo, broadcaster, log)
	alertService := service.NewAlertService(sessionRepo, alertRepo, evidenceStore, queue, notifier, service.AlertOptions{
		Threshold:   cfg.AlertThreshold,
		CountSource: cfg.CountSource,
	}, log)
	supervisorService := service.NewSupervisorService(examRepo, adminRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, studentService, adminService),
		Proctoring: handler.NewProctoringHandler(proctoringService, log),
		Alert:      handler.NewAlertHandler(alertService, log),
		Evidence:   handler.NewEvidenceHandler(evidenceStore),
		Supervisor: handler.NewSupervisorHandler(supervisorService, log),
		Monitor:    handler.NewMonitorHandler(broadcaster, proctoringService, log),
		WS:         handler.NewWSHandler(broadcaster, proctoringService, log, cfg.AllowedOrigins),
		System:     handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	escalationWorker := worker.NewEscalationWorker(rdb, notifier, log)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		escalationWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). SSE and WebSocket
	// feeds end with their request contexts.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the worker and let in-flight escalations finish.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(worker.DeliverTimeout):
		log.Warn().Msg("Escalation worker did not stop in time")
	}

	// 3. Wait for escalations started by requests that were still running.
	alertService.Wait()

	log.Info().Msg("Shutdown complete")
}
