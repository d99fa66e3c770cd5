// Command notifierd runs the webhook notifier daemon: it watches addresses
// on behalf of registered webhook URLs and POSTs a payload to each URL
// whenever that address's status changes, reusing the same subscription
// engine walletsyncd drives (cmd/utils/flags.go's gopkg.in/urfave/cli.v1 App
// idiom, adapted from one node command to one daemon command).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v7"
	"github.com/jinzhu/gorm"
	_ "github.com/go-sql-driver/mysql"
	"gopkg.in/urfave/cli.v1"

	"github.com/chainwallet/syncer/addr"
	"github.com/chainwallet/syncer/config"
	"github.com/chainwallet/syncer/internal/cache"
	"github.com/chainwallet/syncer/log"
	"github.com/chainwallet/syncer/notify"
	chainsync "github.com/chainwallet/syncer/sync"
	"github.com/chainwallet/syncer/transport"
)

var ConfigFileFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML configuration file path",
	Value: "notifierd.toml",
}

func main() {
	app := cli.NewApp()
	app.Name = "notifierd"
	app.Usage = "dispatches webhook notifications on wallet address status changes"
	app.Flags = []cli.Flag{ConfigFileFlag}
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
	if cfg.Server.URL == "" {
		return cli.NewExitError("missing server URL: set Server.URL in the config file", 1)
	}

	watchStore, err := openWatchStore(cfg.Notifier)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("open watch store: %v", err), 1)
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

	dispatcher := notify.NewDispatcher(client, addr.Valid, scripthashOf, watchStore, notify.NewFastHTTPPoster())
	client.SetPushHandler(dispatcher.NotifyStatus)

	if cfg.Notifier.MappingFile != "" {
		watcher := notify.NewConfigWatcher(cfg.Notifier.MappingFile, dispatcher)
		go func() {
			if err := watcher.Run(rootCtx); err != nil {
				logger.Warn("config watcher stopped", "err", err)
			}
		}()
	}

	logger.Info("notifierd starting", "server", cfg.Server.URL)
	if err := dispatcher.RunStandalone(rootCtx); err != nil && rootCtx.Err() == nil {
		return cli.NewExitError(fmt.Sprintf("dispatcher stopped: %v", err), 1)
	}
	logger.Info("notifierd stopped")
	return nil
}

func openWatchStore(cfg config.NotifierConfig) (notify.WatchStore, error) {
	switch cfg.WatchStore {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return notify.NewRedisStore(client, "notifierd:watch:"), nil
	case "sql", "":
		db, err := gorm.Open("mysql", cfg.SQLDataSource)
		if err != nil {
			return nil, fmt.Errorf("open sql watch store: %w", err)
		}
		return notify.NewSQLStore(db)
	default:
		return nil, fmt.Errorf("unknown watch store backend %q", cfg.WatchStore)
	}
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
