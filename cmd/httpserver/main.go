package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ruteri/form-intake-backend/analytics"
	"github.com/ruteri/form-intake-backend/api/admin"
	"github.com/ruteri/form-intake-backend/api/intake"
	"github.com/ruteri/form-intake-backend/api/server"
	"github.com/ruteri/form-intake-backend/cmd/flags"
	"github.com/ruteri/form-intake-backend/common"
	"github.com/ruteri/form-intake-backend/freshness"
	"github.com/ruteri/form-intake-backend/ingest"
	"github.com/ruteri/form-intake-backend/interfaces"
	"github.com/ruteri/form-intake-backend/session"
	"github.com/ruteri/form-intake-backend/storage"
	"github.com/urfave/cli/v2"
)

// Used only when neither --jwt-secret nor JWT_SECRET is set.
const insecureDefaultSecret = "your-secret-key-change-in-production"

var serverFlags = append(append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.StoreURIFlag,
	flags.IngestRateLimitFlag,
	flags.IngestRateBurstFlag,
	flags.TrustedProxiesFlag,
	flags.LogServiceFlagFn("form-intake"),
}, flags.SessionFlags...), flags.CommonFlags...)

func main() {
	// A .env file in the working directory is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	app := &cli.App{
		Name:    "form-intake-server",
		Usage:   "Accept form submissions and serve the operator API",
		Version: common.Version,
		Flags:   serverFlags,
		Action:  runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))

	ctx, cancel := context.WithTimeout(cCtx.Context, 30*time.Second)
	defer cancel()

	// Storage
	loc, err := interfaces.NewStoreLocation(cCtx.String(flags.StoreURIFlag.Name))
	if err != nil {
		logger.Error("Invalid store URI", "err", err)
		return err
	}
	store, err := storage.NewStoreFactory(logger).StoreFor(ctx, loc)
	if err != nil {
		logger.Error("Failed to open store", "scheme", loc.Scheme, "err", err)
		return err
	}
	defer store.Close()
	logger.Info("Store ready", "scheme", loc.Scheme)

	// Sessions
	secret := cCtx.String(flags.JWTSecretFlag.Name)
	if secret == "" {
		logger.Warn("No JWT secret configured, using the insecure built-in default")
		secret = insecureDefaultSecret
	}
	sessionCfg := session.Config{
		Secret:       []byte(secret),
		Username:     cCtx.String(flags.AdminUsernameFlag.Name),
		Password:     cCtx.String(flags.AdminPasswordFlag.Name),
		PasswordHash: cCtx.String(flags.AdminPasswordHashFlag.Name),
		TTL:          cCtx.Duration(flags.SessionTTLFlag.Name),
	}
	if sessionCfg.PasswordHash == "" && sessionCfg.Password == flags.DefaultAdminPassword {
		logger.Warn("Using the default admin password, set --admin-password or --admin-password-hash")
	}
	gate := session.NewGate(sessionCfg, logger)

	if redisURL := cCtx.String(flags.RevocationRedisFlag.Name); redisURL != "" {
		revoker, err := session.NewRedisRevokerFromURL(ctx, redisURL)
		if err != nil {
			logger.Error("Failed to connect to revocation redis", "err", err)
			return err
		}
		defer revoker.Close()
		gate.WithRevoker(revoker)
		logger.Info("Session revocation enabled")
	}

	// Handlers
	intakeHandler := intake.NewHandler(ingest.NewService(ingest.NewValidator(), store, logger), logger)
	adminHandler := admin.NewHandler(
		store,
		gate,
		freshness.NewTracker(store, logger),
		analytics.NewEngine(store, logger),
		cfg.SecureCookies,
		logger,
	)

	srv, err := server.New(cfg, store, intakeHandler, adminHandler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting server")
	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	srv.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}
