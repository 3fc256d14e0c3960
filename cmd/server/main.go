// Command server runs the matching engine: it recovers from the last
// snapshot and WAL tail, starts the single-writer matching loop, the
// three websocket transports, and the Kafka trade-report broadcaster,
// then waits for a signal to shut everything down in order.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"matchengine/config"
	"matchengine/domain/orderbook"
	"matchengine/infra/memory"
	"matchengine/infra/outbox"
	"matchengine/infra/wal/entry"
	"matchengine/jobs/broadcaster"
	"matchengine/service"
	"matchengine/snapshot"
	"matchengine/transport"
)

func main() {
	configPath := flag.String("config", "", "path to engine YAML config (defaults to $ENGINE_CONFIG)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("main: load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("main: build logger: %w", err)
	}
	defer logger.Sync()

	tickSize, err := decimal.NewFromString(cfg.TickSize)
	if err != nil {
		return fmt.Errorf("main: parse tick_size %q: %w", cfg.TickSize, err)
	}
	qtySize, err := decimal.NewFromString(cfg.QtySize)
	if err != nil {
		return fmt.Errorf("main: parse qty_size %q: %w", cfg.QtySize, err)
	}

	book := orderbook.NewOrderBook(cfg.Symbol, tickSize, qtySize)
	pool := memory.NewPool(func() *orderbook.Order { return &orderbook.Order{} })

	walCfg := entry.Config{
		Dir:             cfg.WAL.Dir,
		SegmentSize:     cfg.WAL.SegmentSize,
		SegmentDuration: cfg.WAL.SegmentDuration,
	}

	logger.Info("recovering engine state",
		zap.String("snapshot_dir", cfg.Snapshot.Dir), zap.String("wal_dir", cfg.WAL.Dir))

	nextOrderID, walSeq, wal, err := service.Recover(service.RecoverConfig{
		Book:        book,
		Pool:        pool,
		SnapshotDir: cfg.Snapshot.Dir,
		WALConfig:   walCfg,
	})
	if err != nil {
		return fmt.Errorf("main: recover: %w", err)
	}
	defer wal.Close()

	ob, err := outbox.Open(cfg.Outbox.Dir)
	if err != nil {
		return fmt.Errorf("main: open outbox: %w", err)
	}
	defer ob.Close()

	eng := service.New(service.Config{
		Book:             book,
		Pool:             pool,
		WAL:              wal,
		SnapshotWriter:   snapshot.NewWriter(cfg.Snapshot.Dir),
		Outbox:           ob,
		Logger:           logger,
		SnapshotInterval: cfg.Snapshot.Interval,
		RecoveredOrderID: nextOrderID,
		RecoveredWALSeq:  walSeq,
	})

	tp := transport.New(eng, transport.Config{
		OrdersAddr:     cfg.Transport.OrdersAddr,
		MarketDataAddr: cfg.Transport.MarketDataAddr,
		TradesAddr:     cfg.Transport.TradesAddr,
	}, logger)

	bc, err := broadcaster.New(ob, cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	if err != nil {
		return fmt.Errorf("main: open broadcaster: %w", err)
	}
	defer bc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return tp.Run(gctx) })
	g.Go(func() error { return bc.Run(gctx) })

	logger.Info("engine started",
		zap.String("symbol", cfg.Symbol),
		zap.String("orders_addr", cfg.Transport.OrdersAddr),
		zap.String("market_data_addr", cfg.Transport.MarketDataAddr),
		zap.String("trades_addr", cfg.Transport.TradesAddr),
	)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("main: %w", err)
	}
	logger.Info("engine stopped")
	return nil
}
