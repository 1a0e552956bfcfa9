// Command emberchaind runs a single peer-to-peer emberchain node: it
// mines blocks on request, gossips them to peers over libp2p, and at
// startup asks one of the peers it has discovered by then for its chain.
//
// Usage:
//
//	emberchaind [options]
//	emberchaind --help
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/emberchain/emberchain/config"
	"github.com/emberchain/emberchain/internal/chain"
	klog "github.com/emberchain/emberchain/internal/log"
	"github.com/emberchain/emberchain/internal/node"
	"github.com/emberchain/emberchain/internal/p2p"
	"github.com/emberchain/emberchain/internal/storage"
)

func main() {
	cfg := config.Load()

	klog.Init(cfg.LogLevel, cfg.LogJSON)
	logger := klog.WithComponent("main")

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			logger.Fatal().Err(err).Str("data_dir", cfg.DataDir).Msg("create data directory")
		}
	}

	var db storage.DB
	if cfg.DataDir != "" {
		bdb, err := storage.NewBadger(cfg.DataDir + "/db")
		if err != nil {
			logger.Fatal().Err(err).Msg("open node database")
		}
		defer bdb.Close()
		db = storage.NewPrefixDB(bdb, []byte("peers/"))
	}

	host := p2p.New(p2p.Config{
		ListenAddr: cfg.ListenAddr,
		NetworkID:  cfg.NetworkID,
		DataDir:    cfg.DataDir,
		NoDiscover: cfg.NoDiscover,
		DB:         db,
	})
	if err := host.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start p2p host")
	}
	defer host.Stop()

	logger.Info().Str("peer_id", host.SelfID()).Strs("addrs", host.Addrs()).Msg("emberchaind started")

	c := chain.New()
	n := node.New(c, host, os.Stdin, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Run(ctx); err != nil {
		if errors.Is(err, chain.ErrBothInvalid) {
			logger.Fatal().Err(err).Msg("protocol-fatal: both local and remote chains are invalid")
		}
		fmt.Fprintf(os.Stderr, "emberchaind: %v\n", err)
		os.Exit(1)
	}
}
