package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	protocol "leasecore/config"
	"leasecore/native/lease"
	"leasecore/observability/logging"
	"leasecore/observability/metrics"
	"leasecore/services/leased/clients"
	"leasecore/services/leased/config"
	"leasecore/services/leased/server"
	"leasecore/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/leased/config.yaml", "path to leased config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LEASE_ENV"))
	logger := logging.Setup("leased", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	protoCfg, err := protocol.Load(cfg.ProtocolConfig)
	if err != nil {
		log.Fatalf("load protocol config: %v", err)
	}
	params, err := protoCfg.Params()
	if err != nil {
		log.Fatalf("protocol parameters: %v", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		log.Fatalf("open database at %s: %v", cfg.DataDir, err)
	}
	defer db.Close()

	engine, err := lease.NewEngine(params)
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}
	engine.SetState(lease.NewStore(db))
	engine.SetCollaborators(
		clients.NewPool(cfg.Collaborators.PoolURL),
		clients.NewCustody(cfg.Collaborators.CustodyURL),
		clients.NewTransfer(cfg.Collaborators.TransferURL),
		clients.NewSwap(cfg.Collaborators.SwapURL),
		clients.NewOracle(cfg.Collaborators.OracleURL),
		clients.NewBank(cfg.Collaborators.BankURL),
	)
	engine.SetEmitter(&daemonEmitter{logger: logger, metrics: metrics.Lease()})

	srv := server.New(server.Config{
		Service: engine,
		Logger:  logger,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("leased listening", "addr", cfg.ListenAddress)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("forcing server stop", "error", err)
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}
}
