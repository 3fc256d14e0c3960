package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchengine/domain/orderbook"
	"matchengine/infra/memory"
	"matchengine/infra/outbox"
	"matchengine/infra/wal/entry"
	"matchengine/snapshot"
)

func newTestEngine(t *testing.T, dir string) (*Engine, context.CancelFunc) {
	t.Helper()

	book := orderbook.NewOrderBook("BTC-USDT", decimal.NewFromFloat(0.01), decimal.NewFromInt(1))
	pool := memory.NewPool(func() *orderbook.Order { return &orderbook.Order{} })

	walCfg := entry.Config{Dir: dir + "/wal", SegmentSize: 1 << 20, SegmentDuration: time.Minute}
	nextOrderID, walSeq, wal, err := Recover(RecoverConfig{
		Book: book, Pool: pool, SnapshotDir: dir + "/snapshot", WALConfig: walCfg,
	})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}

	ob, err := outbox.Open(dir + "/outbox")
	if err != nil {
		t.Fatalf("outbox open: %v", err)
	}

	eng := New(Config{
		Book:             book,
		Pool:             pool,
		WAL:              wal,
		SnapshotWriter:   snapshot.NewWriter(dir + "/snapshot"),
		Outbox:           ob,
		Logger:           zap.NewNop(),
		SnapshotInterval: time.Hour, // tests trigger snapshots manually
		RecoveredOrderID: nextOrderID,
		RecoveredWALSeq:  walSeq,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run(ctx)
	}()

	// stop ends Run and then closes the outbox, which holds an exclusive
	// lock on its directory, so a second engine can reopen dir.
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
			ob.Close()
		})
	}
	t.Cleanup(stop)
	return eng, stop
}

func TestSubmitAndMatch(t *testing.T) {
	eng, cancel := newTestEngine(t, t.TempDir())
	defer cancel()

	sub := eng.SubscribeTrades(4)
	defer eng.UnsubscribeTrades(sub)

	if _, err := eng.Submit(SubmitRequest{UserID: 1, Side: orderbook.Sell, Type: orderbook.Limit, Price: 10000, Quantity: 5}); err != nil {
		t.Fatalf("submit sell: %v", err)
	}
	if _, err := eng.Submit(SubmitRequest{UserID: 2, Side: orderbook.Buy, Type: orderbook.Limit, Price: 10000, Quantity: 5}); err != nil {
		t.Fatalf("submit buy: %v", err)
	}

	select {
	case reports := <-sub.C():
		if len(reports) != 1 {
			t.Fatalf("got %d trade reports, want 1", len(reports))
		}
		report := reports[0]
		if report.Quantity.IntPart() != 5 {
			t.Fatalf("trade qty = %s, want 5", report.Quantity)
		}
		if report.AggressorSide != "BUY" {
			t.Fatalf("aggressor side = %s, want BUY", report.AggressorSide)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for trade report")
	}
}

func TestSubmitValidation(t *testing.T) {
	eng, cancel := newTestEngine(t, t.TempDir())
	defer cancel()

	if _, err := eng.Submit(SubmitRequest{Side: orderbook.Buy, Type: orderbook.Limit, Price: 100, Quantity: 1}); err != ErrMissingUserID {
		t.Fatalf("err = %v, want ErrMissingUserID", err)
	}
	if _, err := eng.Submit(SubmitRequest{UserID: 1, Side: orderbook.Buy, Type: orderbook.Limit, Price: 0, Quantity: 1}); err != ErrInvalidPrice {
		t.Fatalf("err = %v, want ErrInvalidPrice", err)
	}
	if _, err := eng.Submit(SubmitRequest{UserID: 1, Side: orderbook.Buy, Type: orderbook.Limit, Price: 100, Quantity: 0}); err != ErrInvalidQty {
		t.Fatalf("err = %v, want ErrInvalidQty", err)
	}
}

func TestSnapshotAndWALRecovery(t *testing.T) {
	dir := t.TempDir()
	eng, cancel := newTestEngine(t, dir)

	if _, err := eng.Submit(SubmitRequest{UserID: 1, Side: orderbook.Buy, Type: orderbook.Limit, Price: 9900, Quantity: 3}); err != nil {
		t.Fatalf("submit resting order: %v", err)
	}
	// Give Run's goroutine a chance to drain the queue before snapshotting.
	deadline := time.After(2 * time.Second)
	for eng.CurrentBook().Bids == nil {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the resting order to be reflected on the book")
		case <-time.After(5 * time.Millisecond):
		}
	}

	eng.snapshotOnce()
	cancel()

	// Submit a second order directly through the WAL so it lands after
	// the snapshot, exercising the forward-replay path on recovery.
	if _, err := eng.Submit(SubmitRequest{UserID: 2, Side: orderbook.Buy, Type: orderbook.Limit, Price: 9800, Quantity: 4}); err != nil {
		t.Fatalf("submit post-snapshot order: %v", err)
	}

	restored, cancel2 := newTestEngine(t, dir)
	defer cancel2()

	bid, bidOK, _, _ := restoredBBO(restored)
	if !bidOK || bid != 9900 {
		t.Fatalf("restored best bid = (%d,%v), want (9900,true) from the snapshot", bid, bidOK)
	}
	if lvl := restored.book.Bids.Find(9800); lvl == nil || lvl.TotalQty != 4 {
		t.Fatalf("bid level 9800 = %+v, want qty 4 from WAL replay", lvl)
	}
}

func restoredBBO(eng *Engine) (bid int64, bidOK bool, ask int64, askOK bool) {
	return eng.book.BestBidOffer()
}
