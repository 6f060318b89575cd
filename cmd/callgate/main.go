package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/callgate/callgate/internal/access"
	"github.com/callgate/callgate/internal/agent"
	"github.com/callgate/callgate/internal/aisession"
	"github.com/callgate/callgate/internal/callsup"
	"github.com/callgate/callgate/internal/config"
	"github.com/callgate/callgate/internal/dashboard"
	"github.com/callgate/callgate/internal/dashboard/middleware"
	"github.com/callgate/callgate/internal/database"
	"github.com/callgate/callgate/internal/sip"
	"github.com/callgate/callgate/internal/toolset"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	logger.Info("starting callgate",
		"http_port", cfg.HTTPPort,
		"sip_port", cfg.SIPPort,
		"data_dir", cfg.DataDir,
		"sip_tls", cfg.TLSEnabled(),
	)

	db, err := database.Open(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	calls := database.NewCallRepository(db)
	blacklist := database.NewBlacklistRepository(db)
	whitelist := database.NewWhitelistRepository(db)
	failedUnlock := database.NewFailedUnlockRepository(db)

	accessStore := access.NewStore(blacklist, whitelist, failedUnlock, logger)

	prices, err := aisession.ParsePriceTable(cfg.AIPriceTable)
	if err != nil {
		logger.Error("failed to parse ai price table", "error", err)
		os.Exit(1)
	}

	tools := toolset.NewStub(logger)
	registry, err := agent.Bootstrap(cfg.AgentsFile, cfg.UnlockCode, accessStore, tools, logger)
	if err != nil {
		logger.Error("failed to bootstrap agent registry", "error", err)
		os.Exit(1)
	}

	hub := dashboard.NewHub(logger)
	hub.SetAvailableAgents(agentNames(registry))

	dashSrv := dashboard.NewServer(dashboard.Options{
		Hub:         hub,
		Registry:    registry,
		Access:      accessStore,
		Calls:       calls,
		CORSOrigins: middleware.ParseCORSOrigins(cfg.CORSOrigins),
		TLSEnabled:  cfg.TLSEnabled(),
	}, logger)

	gateway := callsup.NewGateway(cfg, registry, accessStore, calls, prices, hub, logger)

	adapter, err := sip.NewAdapter(cfg, gateway, logger)
	if err != nil {
		logger.Error("failed to create sip adapter", "error", err)
		os.Exit(1)
	}
	gateway.SetAdapter(adapter)

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	if err := adapter.Start(appCtx); err != nil {
		logger.Error("failed to start sip adapter", "error", err)
		os.Exit(1)
	}

	go pollRegistration(appCtx, adapter, hub, logger)

	httpSrv := &http.Server{
		Addr:         cfg.DashboardListenAddr(),
		Handler:      dashSrv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		logger.Error("dashboard http server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Info("shutting down")
	appCancel()
	adapter.Stop()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("dashboard http server shutdown error", "error", err)
	}

	logger.Info("callgate stopped")
}

// pollRegistration periodically republishes the upstream trunk's
// registration state to the dashboard. The registrar has no push
// notification of its own, only a point-in-time Status().
func pollRegistration(ctx context.Context, adapter *sip.Adapter, hub *dashboard.Hub, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	last := sip.RegStatusUnregistered
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, errMsg := adapter.RegistrationStatus()
			if status != last {
				logger.Info("sip trunk registration status changed", "status", status, "error", errMsg)
				last = status
			}
			hub.SetRegistered(status == sip.RegStatusRegistered)
		}
	}
}

// agentNames lists every non-gate agent name for the dashboard's initial
// available-agents snapshot.
func agentNames(registry *agent.Registry) []string {
	descs := registry.List()
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		if d.IsGate() {
			continue
		}
		names = append(names, d.Name)
	}
	return names
}
