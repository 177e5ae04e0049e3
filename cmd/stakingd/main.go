package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakingengine/internal/api"
	"stakingengine/internal/badge"
	"stakingengine/internal/config"
	"stakingengine/internal/guard"
	"stakingengine/internal/ledger"
	"stakingengine/internal/logging"
	"stakingengine/internal/neuron"
	"stakingengine/internal/orchestrator"
	"stakingengine/internal/paycenter"
	"stakingengine/internal/recovery"
	"stakingengine/internal/reward"
	"stakingengine/internal/scheduler"
	"stakingengine/internal/store"
	"stakingengine/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.SetupRotating("stakingd", cfg.Environment, cfg.LogFilePath, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "stakingd",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		Headers:     cfg.OTLPHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	entityStore, err := store.Open(cfg.DatabasePath, cfg.IndexDBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer entityStore.Close()

	canister := []byte(cfg.CanisterID)
	guardSet := guard.NewSet()
	ledgerGateway := ledger.NewRPCGateway(cfg.LedgerNodeURL, cfg.LedgerAuthToken)
	payCenterGateway := paycenter.NewRPCGateway(cfg.PayCenterURL, cfg.PayCenterAuthToken)

	var badges *badge.Queue
	if cfg.BadgeGatewayURL != "" {
		messenger := badge.NewRPCMessenger(cfg.BadgeGatewayURL, cfg.BadgeGatewayToken)
		badges = badge.NewQueue(messenger, logger, cfg.BadgeQueueWorkers)
		defer badges.Close()
	}

	orc := orchestrator.New(entityStore, guardSet, ledgerGateway, payCenterGateway, badges, canister, cfg.PayCenterAccount)
	rewardEngine := reward.NewEngine(entityStore, guardSet, payCenterGateway, cfg.RewardTxTag)

	var neuronService *neuron.Service
	if cfg.NeuronGatewayURL != "" {
		neuronGateway := neuron.NewRPCGateway(cfg.NeuronGatewayURL, cfg.NeuronGatewayToken)
		neuronService = neuron.NewService(entityStore, neuronGateway, canister)
	}

	sweeper := recovery.New(entityStore, orc.Resume, logger)
	sched := scheduler.New(entityStore, rewardEngine, orc, sweeper, neuronService, logger)

	schedCtx, cancelSched := context.WithCancel(context.Background())
	go sched.Run(schedCtx)
	defer cancelSched()

	auth := api.NewAuthenticator(cfg.JWTSigningKey)
	handler := api.NewServer(orc, entityStore, rewardEngine, neuronService, canister, auth, logger)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: otelhttp.NewHandler(handler, "stakingd"),
	}

	go func() {
		logger.Info("stakingd listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down stakingd")
	cancelSched()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "graceful shutdown failed: %v\n", err)
	}
}
