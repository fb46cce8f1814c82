package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/formbridge-labs/formbridge-go/internal/action"
	"github.com/formbridge-labs/formbridge-go/internal/action/resource"
	"github.com/formbridge-labs/formbridge-go/internal/export"
	"github.com/formbridge-labs/formbridge-go/internal/formdef"
	"github.com/formbridge-labs/formbridge-go/internal/platform/auth"
	"github.com/formbridge-labs/formbridge-go/internal/platform/env"
	"github.com/formbridge-labs/formbridge-go/internal/platform/httpserver"
	"github.com/formbridge-labs/formbridge-go/internal/platform/postgres"
	repopg "github.com/formbridge-labs/formbridge-go/internal/repo/postgres"
	"github.com/formbridge-labs/formbridge-go/internal/sandbox"
	"github.com/formbridge-labs/formbridge-go/internal/submissions"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("FORMS_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("FORMS_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	transformTimeout, err := env.Duration("FORMS_TRANSFORM_TIMEOUT", sandbox.DefaultTimeout)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	maxDepth, err := env.Int("FORMS_MAX_DERIVED_DEPTH", resource.DefaultMaxDepth)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	formStore := repopg.NewFormStore(db)
	submissionStore := repopg.NewSubmissionStore(db)

	definitionDir := env.String("FORMS_DEFINITION_DIR", "")
	if definitionDir != "" {
		defs, err := formdef.LoadDir(definitionDir)
		if err != nil {
			logger.Error("load form definitions failed", "dir", definitionDir, "error", err)
			os.Exit(2)
		}
		seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = formdef.Seed(seedCtx, formStore, defs)
		cancel()
		if err != nil {
			logger.Error("seed form definitions failed", "error", err)
			os.Exit(1)
		}
		logger.Info("form definitions seeded", "dir", definitionDir, "count", len(defs))
	}

	archiveCfg, err := export.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid archive config", "error", err)
		os.Exit(2)
	}
	var archiver *export.Archiver
	if archiveCfg.Enabled {
		archiver, err = export.New(archiveCfg)
		if err != nil {
			logger.Error("archive client init failed", "error", err)
			os.Exit(2)
		}
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = archiver.EnsureBucket(startupCtx, archiveCfg.Region)
		cancel()
		if err != nil {
			logger.Error("archive bucket unavailable", "error", err)
			os.Exit(1)
		}
	}

	registry := action.NewRegistry()
	runner := action.NewRunner(logger)
	evaluator := sandbox.NewEvaluator(transformTimeout)
	err = runner.RegisterFactory(resource.ActionName, resource.NewFactory(resource.Deps{
		Logger:      logger,
		Forms:       formStore,
		Submissions: submissionStore,
		Registry:    registry,
		Evaluator:   evaluator,
		MaxDepth:    maxDepth,
	}))
	if err != nil {
		logger.Error("register resource action failed", "error", err)
		os.Exit(2)
	}

	opts := []submissions.Option{submissions.WithAudit(db)}
	if archiver != nil {
		opts = append(opts, submissions.WithArchiver(archiver))
	}
	service := submissions.New(logger, formStore, submissionStore, runner, opts...)
	if service == nil {
		logger.Error("submission service init failed")
		os.Exit(2)
	}
	if err := service.RegisterHandlers(registry); err != nil {
		logger.Error("register save handlers failed", "error", err)
		os.Exit(2)
	}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	var authenticator auth.Authenticator
	var oidcService *auth.OIDCService
	switch authCfg.Mode {
	case auth.ModeDev:
		authenticator = auth.NewDevAuthenticator(authCfg)
	case auth.ModeOIDC:
		oidcService, err = auth.NewOIDCService(ctx, authCfg)
		if err != nil {
			logger.Error("oidc init failed", "error", err)
			os.Exit(1)
		}
		authenticator = oidcService
	case auth.ModeDisabled:
		authenticator = nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("forms"))
	readiness := []httpserver.ReadinessCheck{
		{
			Name:  "postgres",
			Check: httpserver.WithTimeout(750*time.Millisecond, db.PingContext),
		},
	}
	if archiver != nil {
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name:  "archive",
			Check: httpserver.WithTimeout(750*time.Millisecond, archiver.Check),
		})
	}
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks("forms", readiness...))
	if oidcService != nil {
		mux.HandleFunc("GET /auth/login", oidcService.LoginHandler())
		mux.HandleFunc("GET /auth/callback", oidcService.CallbackHandler())
	}

	api := newFormsAPI(logger, formStore, submissionStore, registry)
	api.register(mux)

	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		SkipPrefixes:  []string{"/healthz", "/readyz", "/auth/"},
	}.Wrap(mux)

	cfg := httpserver.Config{
		Service:         "forms",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "forms", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
