package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/chainscope/explorer-backend/internal/explorer/bitcoin"
	"github.com/chainscope/explorer-backend/internal/explorer/subsidy"
	"github.com/chainscope/explorer-backend/internal/explorer/unit"
	"github.com/chainscope/explorer-backend/internal/metrics"
	"github.com/chainscope/explorer-backend/internal/model"
	"github.com/chainscope/explorer-backend/internal/service"
	"github.com/chainscope/explorer-backend/internal/transport"
)

var config struct {
	Addr        string `long:"addr" env:"EXPLORER_ADDR" description:"http listen addr" default:":8000"`
	NodeAddr    string `long:"node-addr" env:"EXPLORER_NODE_ADDR" description:"bitcoin node rpc host:port" default:"localhost:8332"`
	NodeUser    string `long:"node-user" env:"EXPLORER_NODE_USER" description:"bitcoin node rpc user"`
	NodePass    string `long:"node-pass" env:"EXPLORER_NODE_PASS" description:"bitcoin node rpc password"`
	Network     string `long:"network" env:"EXPLORER_NETWORK" description:"chain network" default:"mainnet" choice:"mainnet" choice:"testnet" choice:"regtest" choice:"signet"`
	Workers     int    `long:"workers" env:"EXPLORER_WORKERS" description:"fan-out width for block scans" default:"8"`
	NodeRPS     int    `long:"node-rps" env:"EXPLORER_NODE_RPS" description:"node rpc requests per second cap" default:"50"`
	DisableCORS bool   `long:"disable-cors" env:"EXPLORER_DISABLE_CORS" description:"serve without CORS headers"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()
	if _, err := flags.ParseArgs(&config, os.Args); err != nil {
		logger.Fatal("Failed to parse arguments", zap.Error(err))
	}

	network := model.Network(config.Network)

	node, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         config.NodeAddr,
		User:         config.NodeUser,
		Pass:         config.NodePass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		logger.Fatal("Failed to connect to node", zap.Error(err))
	}
	defer node.Shutdown()

	units := unit.Bitcoin(nil)
	normalizer, err := bitcoin.NewNormalizer(network, units, subsidy.Bitcoin(), subsidy.BitcoinHalvingInterval)
	if err != nil {
		logger.Fatal("Failed to build normalizer", zap.Error(err))
	}

	rpc := bitcoin.NewRPCClient(node, metrics.NewRPCClient(network), config.NodeRPS)
	source := bitcoin.NewSource(rpc, normalizer, logger)

	explorer, err := service.NewExplorer(source, units, network, config.Workers, logger, metrics.NewScans(network))
	if err != nil {
		logger.Fatal("Failed to build explorer service", zap.Error(err))
	}

	mux := http.NewServeMux()
	transport.NewExplorerHandler(explorer, logger).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	handler := http.Handler(mux)
	if !config.DisableCORS {
		handler = cors.Default().Handler(mux)
	}

	s := &http.Server{
		Addr:              config.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down the http server")
		if err := s.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown http server", zap.Error(err))
		}
	}()

	logger.Info("Starting HTTP server",
		zap.String("addr", config.Addr),
		zap.String("network", config.Network))
	if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Failed to listen and serve", zap.Error(err))
	}
}
