// Quack relay server — agent-to-agent mailbox, real-time bridge, and
// flight recorder behind one HTTP surface.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quackhq/quack/pkg/api"
	"github.com/quackhq/quack/pkg/audit"
	"github.com/quackhq/quack/pkg/blob"
	"github.com/quackhq/quack/pkg/bridge"
	"github.com/quackhq/quack/pkg/cleanup"
	"github.com/quackhq/quack/pkg/config"
	"github.com/quackhq/quack/pkg/database"
	"github.com/quackhq/quack/pkg/dispatch"
	"github.com/quackhq/quack/pkg/keys"
	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/mcpserver"
	"github.com/quackhq/quack/pkg/recorder"
	"github.com/quackhq/quack/pkg/registry"
	"github.com/quackhq/quack/pkg/sessions"
	"github.com/quackhq/quack/pkg/version"
	"github.com/quackhq/quack/pkg/webhooks"
)

func main() {
	// Load .env if present; the environment wins over the file.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	cfg := config.Load()
	slog.Info("Starting Quack",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.Error("Failed to create data directory", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// 1. Database (audit, archive, registry, keys, flight recorder).
	dbClient, err := database.NewClient(ctx, database.DefaultConfig(cfg.DatabasePath))
	if err != nil {
		slog.Error("Failed to open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database", "error", err)
		}
	}()
	slog.Info("Database ready", "path", cfg.DatabasePath)

	// 2. Agent registry with first-start seeding.
	reg := registry.NewService(dbClient.DB())
	extraAgents, err := config.LoadAgentSeed(cfg.AgentSeedFile)
	if err != nil {
		slog.Error("Failed to load agent seed file", "path", cfg.AgentSeedFile, "error", err)
		os.Exit(1)
	}
	if err := reg.Seed(ctx, extraAgents); err != nil {
		slog.Error("Failed to seed agent registry", "error", err)
		os.Exit(1)
	}

	// 3. Audit log and thread archive.
	auditSvc := audit.NewService(dbClient.DB())
	archive := audit.NewArchive(dbClient.DB())

	// 4. Webhook fan-out, then the mailbox store that feeds it events.
	hooks, err := webhooks.NewService(cfg.WebhookSnapshotPath())
	if err != nil {
		slog.Error("Failed to open webhook registry", "error", err)
		os.Exit(1)
	}
	store, err := mailbox.NewStore(
		mailbox.WithSnapshot(cfg.MailboxSnapshotPath()),
		mailbox.WithPolicy(reg),
		mailbox.WithAuditor(auditSvc),
		mailbox.WithArchiver(archive),
		mailbox.WithNotifier(hooks),
	)
	if err != nil {
		slog.Error("Failed to open mailbox store", "error", err)
		os.Exit(1)
	}

	// 5. File blobs and conversation sessions.
	blobs, err := blob.NewStore(cfg.BlobDir())
	if err != nil {
		slog.Error("Failed to open blob store", "dir", cfg.BlobDir(), "error", err)
		os.Exit(1)
	}
	sessionReg, err := sessions.NewRegistry(cfg.SessionSnapshotPath())
	if err != nil {
		slog.Error("Failed to open session registry", "error", err)
		os.Exit(1)
	}

	// 6. Bridge, dispatcher, retention.
	validator := bridge.NewTokenValidator(cfg.BridgeSecret, cfg.BridgeDevBypass)
	bridgeMgr := bridge.NewConnectionManager(store, reg, validator)
	bridgeMgr.StartHeartbeat(ctx)

	dispatcher := dispatch.New(store, reg, dispatch.WithPollInterval(cfg.DispatchInterval))
	dispatcher.Start(ctx)

	retention := cleanup.NewService(store, blobs, sessionReg)
	retention.Start(ctx)

	// 7. HTTP server with the tool adapter mounted under /mcp.
	mcpSrv := mcpserver.New(store, version.Full())
	httpServer := api.NewServer(api.Deps{
		Store:         store,
		Registry:      reg,
		Keys:          keys.NewService(dbClient.DB()),
		Audit:         auditSvc,
		Archive:       archive,
		Blobs:         blobs,
		Webhooks:      hooks,
		Sessions:      sessionReg,
		Recorder:      recorder.NewService(dbClient.DB()),
		Bridge:        bridgeMgr,
		Dispatcher:    dispatcher,
		MCPHandler:    mcpSrv.Handler(),
		DBClient:      dbClient,
		Version:       version.Commit,
		AuthDevBypass: cfg.AuthDevBypass,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Quack started",
		"auth_dev_bypass", cfg.AuthDevBypass,
		"bridge_dev_bypass", cfg.BridgeDevBypass,
		"dispatch_interval", cfg.DispatchInterval)

	// Wait for shutdown signal or server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Graceful shutdown: stop intake first, then the background loops,
	// then close sockets. Snapshots are write-through, so nothing needs an
	// explicit flush.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	dispatcher.Stop()
	retention.Stop()
	bridgeMgr.Stop()

	slog.Info("Shutdown complete")
}
