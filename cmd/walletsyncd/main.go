// Command walletsyncd runs the wallet address synchronizer daemon: it
// connects to a remote Electrum-style index server, subscribes to every
// address in local storage, and keeps that storage's history and
// transaction records converged with the server (cmd/utils/flags.go's
// gopkg.in/urfave/cli.v1 App idiom, adapted from one node command to one
// daemon command).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/chainwallet/syncer/addr"
	"github.com/chainwallet/syncer/config"
	"github.com/chainwallet/syncer/internal/cache"
	"github.com/chainwallet/syncer/internal/metrics"
	"github.com/chainwallet/syncer/log"
	"github.com/chainwallet/syncer/storage"
	chainsync "github.com/chainwallet/syncer/sync"
	"github.com/chainwallet/syncer/transport"
)

var (
	ConfigFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file path",
		Value: "walletsyncd.toml",
	}
	ServerURLFlag = cli.StringFlag{
		Name:  "server",
		Usage: "Electrum-style index server websocket URL (overrides config)",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "walletsyncd"
	app.Usage = "synchronizes wallet address history against a remote index server"
	app.Flags = []cli.Flag{ConfigFileFlag, ServerURLFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	logger := log.NewModuleLogger(log.Cmd)

	var cfg config.Config
	if err := config.Load(ctx.String(ConfigFileFlag.Name), &cfg); err != nil {
		logger.Warn("failed to load config file, using defaults", "err", err)
		cfg = config.Default()
	}
	if url := ctx.String(ServerURLFlag.Name); url != "" {
		cfg.Server.URL = url
	}
	if cfg.Server.URL == "" {
		return cli.NewExitError("missing server URL: pass -server or set Server.URL in the config file", 1)
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("open wallet store: %v", err), 1)
	}

	events, err := openEventBus(cfg.EventBus)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("open event bus: %v", err), 1)
	}

	if cfg.Metrics.InfluxDBEnabled {
		metrics.Enabled = true
		stop, err := metrics.StartInfluxDBReporter(cfg.Metrics.ReportInterval, cfg.Metrics.InfluxDBURL,
			cfg.Metrics.InfluxDBName, cfg.Metrics.InfluxDBUser, cfg.Metrics.InfluxDBPass, "walletsyncd.")
		if err != nil {
			logger.Warn("failed to start influxdb reporter", "err", err)
		} else {
			defer stop()
		}
	}

	rootCtx, cancel := signalContext()
	defer cancel()

	client, err := transport.Dial(rootCtx, cfg.Server.URL)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("dial server: %v", err), 1)
	}

	memo := cache.NewScripthashMemo(1 << 20)
	rawScripthash := memo.Wrap(func(a string) [32]byte { return [32]byte(addr.Scripthash(a)) })
	scripthashOf := func(a string) chainsync.Scripthash { return chainsync.Scripthash(rawScripthash(a)) }
	synchronizer := chainsync.NewSynchronizer(
		client,
		store,
		events,
		addr.Valid,
		scripthashOf,
		addr.ParseTx,
		cfg.Server.TickInterval,
	)
	client.SetPushHandler(synchronizer.NotifyStatus)

	addresses, err := store.GetAddresses()
	if err != nil {
		logger.Error("failed to load persisted addresses", "err", err)
	}
	for _, a := range addresses {
		if err := synchronizer.Add(a); err != nil {
			logger.Warn("failed to subscribe persisted address", "addr", a, "err", err)
		}
	}

	logger.Info("walletsyncd starting", "server", cfg.Server.URL, "addresses", len(addresses))
	if err := synchronizer.Run(rootCtx); err != nil && rootCtx.Err() == nil {
		return cli.NewExitError(fmt.Sprintf("synchronizer stopped: %v", err), 1)
	}
	logger.Info("walletsyncd stopped")
	return nil
}

func openStore(cfg config.StorageConfig) (*storage.Store, error) {
	switch cfg.Backend {
	case "leveldb", "":
		return storage.NewLevelDBStore(cfg.Path, cfg.CacheMB, cfg.Handles)
	case "badger":
		return storage.NewBadgerStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func openEventBus(cfg config.EventBusConfig) (chainsync.EventBus, error) {
	if cfg.KafkaEnabled {
		return chainsync.NewKafkaEventBus(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	return chainsync.NewLocalEventBus(), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		cancel()
	}()
	return ctx, cancel
}
