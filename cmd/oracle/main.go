// Package main is the dice oracle entry point. It polls the dice contract
// for a pending roll, draws quantum randomness with a local fallback and
// writes the result back on-chain.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/R3E-Network/dice-oracle/internal/chain"
	"github.com/R3E-Network/dice-oracle/internal/config"
	"github.com/R3E-Network/dice-oracle/internal/entropy"
	"github.com/R3E-Network/dice-oracle/internal/logging"
	"github.com/R3E-Network/dice-oracle/internal/metrics"
	"github.com/R3E-Network/dice-oracle/internal/relay"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (default $ORACLE_CONFIG_FILE)")
	envFile := flag.String("env", ".env", "path to .env file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	boot := logging.NewDefault("oracle")
	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		boot.WithError(err).Fatal("failed to load configuration")
	}

	logger := logging.New(logging.Config{
		Service: "oracle",
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})
	logger.Debugf("configuration loaded:\n%s", cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("oracle failed")
	}
}

func run(ctx context.Context, cfg config.Config, logger *logging.Logger) error {
	collector := metrics.NewCollector("oracle")

	client, err := chain.NewClient(ctx, chain.Config{RPCURL: cfg.Chain.RPCURL})
	if err != nil {
		return err
	}
	defer client.Close()

	signer, err := chain.NewKeySigner(cfg.Chain.PrivateKey)
	if err != nil {
		return err
	}

	contract := chain.NewDiceContract(client, cfg.ContractAddr())
	submitter, err := chain.NewSubmitter(chain.SubmitterConfig{
		Ledger:              client,
		Signer:              signer,
		Contract:            contract,
		ChainID:             cfg.ChainIDBig(),
		GasLimit:            cfg.Chain.GasLimit,
		GasPrice:            cfg.GasPriceWei(),
		ReceiptPollInterval: cfg.Chain.ReceiptPollInterval,
		ReceiptTimeout:      cfg.Chain.ReceiptTimeout,
		Logger:              logger,
	})
	if err != nil {
		return err
	}

	var limiter *rate.Limiter
	if cfg.Entropy.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Entropy.MinInterval), 1)
	}
	source := entropy.NewSource(entropy.Config{
		Remote: entropy.NewQRNGClient(entropy.QRNGConfig{
			URL:     cfg.Entropy.URL,
			Timeout: cfg.Entropy.Timeout,
		}),
		Limiter: limiter,
		Logger:  logger,
		Metrics: collector,
	})

	loop, err := relay.New(relay.Config{
		Contract:     contract,
		Entropy:      source,
		Submitter:    submitter,
		PollInterval: cfg.Relay.PollInterval,
		Logger:       logger,
		Metrics:      collector,
	})
	if err != nil {
		return err
	}

	relay.Preflight(ctx, relay.PreflightConfig{
		Node:            client,
		Contract:        contract,
		ContractAddress: contract.Address(),
		RelayAddress:    signer.Address(),
		ChainID:         cfg.ChainIDBig(),
		Logger:          logger,
	})

	var server *http.Server
	if cfg.HTTP.ListenAddr != "" {
		server = &http.Server{
			Addr: cfg.HTTP.ListenAddr,
			Handler: newRouter(statusInfo{
				loop:     loop,
				contract: contract.Address().Hex(),
				oracle:   signer.Address().Hex(),
			}, collector.Handler(), logger),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			logger.WithField("addr", cfg.HTTP.ListenAddr).Info("status server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("status server failed")
			}
		}()
	}

	if err := loop.Run(ctx); err != nil {
		return err
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("status server shutdown error")
		}
	}

	logger.Info("oracle stopped")
	return nil
}
