package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchengine/domain/orderbook"
	"matchengine/infra/memory"
	"matchengine/infra/outbox"
	"matchengine/infra/pubsub"
	"matchengine/infra/sequence"
	"matchengine/infra/wal/entry"
	"matchengine/snapshot"
)

// bookDepth is the number of aggregated levels per side on every
// market-data push.
const bookDepth = 10

// ErrNotAccepting is returned by Submit once a durability failure has
// forced the engine to stop taking new orders.
var ErrNotAccepting = errors.New("service: engine is not accepting new orders")

// Engine is the single-writer matching core plus everything that must
// stay in lockstep with it: intake persistence, periodic snapshots,
// and broadcast fan-out. Run's goroutine is the only one that ever
// mutates the orderbook; Submit only assigns an id, appends to the
// WAL, and enqueues — safe to call from any number of goroutines.
type Engine struct {
	book   *orderbook.OrderBook
	pool   *memory.Pool[orderbook.Order]
	wal    *entry.WAL
	writer *snapshot.Writer
	outbox *outbox.Outbox
	logger *zap.Logger

	orderSeq *sequence.Sequencer
	walSeq   *sequence.Sequencer
	intakeMu sync.Mutex

	snapshotInterval time.Duration
	queue            chan *orderbook.Order

	trades *pubsub.Hub[[]TradeReport]
	books  *pubsub.Hub[BookUpdate]

	lastBook  atomic.Pointer[BookUpdate]
	accepting atomic.Bool
}

// Config bundles everything Engine needs beyond the book itself.
type Config struct {
	Book             *orderbook.OrderBook
	Pool             *memory.Pool[orderbook.Order]
	WAL              *entry.WAL
	SnapshotWriter   *snapshot.Writer
	Outbox           *outbox.Outbox
	Logger           *zap.Logger
	SnapshotInterval time.Duration
	QueueDepth       int

	// RecoveredOrderID and RecoveredWALSeq seed the order-id and WAL
	// sequencers after startup recovery; both are zero for a fresh book.
	RecoveredOrderID uint64
	RecoveredWALSeq  uint64
}

// New constructs an Engine ready to Run. The caller must have already
// replayed any snapshot and WAL tail into cfg.Book before calling this.
func New(cfg Config) *Engine {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 4096
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 5 * time.Second
	}

	e := &Engine{
		book:             cfg.Book,
		pool:             cfg.Pool,
		wal:              cfg.WAL,
		writer:           cfg.SnapshotWriter,
		outbox:           cfg.Outbox,
		logger:           cfg.Logger,
		orderSeq:         sequence.New(cfg.RecoveredOrderID),
		walSeq:           sequence.New(cfg.RecoveredWALSeq),
		snapshotInterval: cfg.SnapshotInterval,
		queue:            make(chan *orderbook.Order, cfg.QueueDepth),
		trades:           pubsub.NewHub[[]TradeReport](),
		books:            pubsub.NewHub[BookUpdate](),
	}
	e.accepting.Store(true)
	initial := BookUpdate{Symbol: cfg.Book.Symbol, Timestamp: unixSeconds(time.Now())}
	e.lastBook.Store(&initial)
	return e
}

// Submit validates req, assigns it an order id, durably records intake,
// and hands it to the matching core. It returns as soon as the order
// is queued — acceptance signifies queued, not matched.
func (e *Engine) Submit(req SubmitRequest) (uint64, error) {
	if !e.accepting.Load() {
		return 0, ErrNotAccepting
	}
	if err := validate(req); err != nil {
		return 0, err
	}

	orderID := e.orderSeq.Next()
	o := e.pool.Get()
	*o = *orderbook.NewOrder(orderID, req.UserID, req.Side, req.Type, req.Price, req.Quantity, time.Now().UnixNano(), orderID)

	e.intakeMu.Lock()
	seq := e.walSeq.Next()
	walErr := e.wal.Append(entry.NewRecord(entry.RecordPlace, seq, orderbook.EncodeOrder(o)))
	var queueErr error
	if walErr == nil {
		select {
		case e.queue <- o:
		default:
			queueErr = errors.New("service: engine queue is full")
		}
	}
	e.intakeMu.Unlock()

	if walErr != nil {
		e.pool.Put(o)
		e.accepting.Store(false)
		e.logger.Error("intake persistence failed, rejecting new orders", zap.Error(walErr))
		return 0, fmt.Errorf("service: intake persistence: %w", walErr)
	}
	if queueErr != nil {
		e.pool.Put(o)
		e.logger.Warn("engine queue full, order rejected", zap.Uint64("order_id", orderID))
		return 0, queueErr
	}

	return orderID, nil
}

// Run drains the intake queue and ticks periodic snapshots until ctx
// is cancelled. It must run on exactly one goroutine for the lifetime
// of the engine.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case o := <-e.queue:
			e.process(o)
		case <-ticker.C:
			e.snapshotOnce()
		}
	}
}

// process runs the matching waterfall for one order and dispatches its
// side effects: outbox records, trade broadcast, and a refreshed
// top-of-book broadcast. An unexpected panic during matching is logged
// and swallowed so one bad order cannot take the engine down — the
// loop continues with the next queued order.
func (e *Engine) process(o *orderbook.Order) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while matching order",
				zap.Uint64("order_id", o.ID), zap.Any("recover", r))
		}
	}()

	trades := e.book.Process(o)

	if len(trades) > 0 {
		reports := e.toReports(trades)
		for _, report := range reports {
			payload, err := json.Marshal(report)
			if err != nil {
				e.logger.Error("trade report marshal failed", zap.Uint64("trade_id", report.TradeID), zap.Error(err))
			} else if err := e.outbox.PutNew(report.TradeID, payload); err != nil {
				e.logger.Error("outbox write failed", zap.Uint64("trade_id", report.TradeID), zap.Error(err))
			}
		}
		// One frame per processed order, carrying every fill it produced —
		// not one frame per fill.
		e.trades.Broadcast(reports)
	}

	update := e.bookUpdate()
	e.lastBook.Store(&update)
	e.books.Broadcast(update)

	if o.Status == orderbook.Inactive {
		e.pool.Put(o)
	}
}

func (e *Engine) toReports(trades []orderbook.Trade) []TradeReport {
	now := unixSeconds(time.Now())
	out := make([]TradeReport, len(trades))
	for i, t := range trades {
		out[i] = TradeReport{
			TradeID:       t.TradeID,
			Symbol:        e.book.Symbol,
			Price:         t.Price,
			Quantity:      t.Qty,
			AggressorSide: t.AggressorSide.String(),
			MakerOrderID:  t.MakerOrderID,
			TakerOrderID:  t.TakerOrderID,
			MakerUserID:   t.MakerUserID,
			TakerUserID:   t.TakerUserID,
			TakerFee:      t.TakerFee,
			MakerFee:      t.MakerFee,
			EngineLatency: time.Duration(t.EngineLatencyNs),
			Timestamp:     now,
		}
	}
	return out
}

func (e *Engine) bookUpdate() BookUpdate {
	return BookUpdate{
		Symbol:    e.book.Symbol,
		Bids:      toBookLevels(e.book, e.book.TopLevels(orderbook.Buy, bookDepth)),
		Asks:      toBookLevels(e.book, e.book.TopLevels(orderbook.Sell, bookDepth)),
		Timestamp: unixSeconds(time.Now()),
	}
}

func toBookLevels(book *orderbook.OrderBook, levels []orderbook.LevelView) []BookLevel {
	out := make([]BookLevel, len(levels))
	for i, lvl := range levels {
		out[i] = BookLevel{
			Price:    book.PriceToDecimal(lvl.Price),
			Quantity: book.QtyToDecimal(lvl.Quantity),
		}
	}
	return out
}

// snapshotOnce writes a full snapshot covering every WAL record
// appended so far and truncates the segments it makes redundant. Under
// the intake lock it first applies every order still waiting in the
// queue, so each record up to the snapshot's seq is reflected in the
// book, then rotates the WAL, so the segment still
// open for writes when Submit runs concurrently is never among the
// ones TruncateBefore considers for deletion. A write failure is
// treated the same as an intake persistence failure: the engine
// surfaces it and stops taking new orders, since continuing to match
// without a way to durably checkpoint risks an unrecoverable book on
// the next crash.
func (e *Engine) snapshotOnce() {
	e.intakeMu.Lock()
	for n := len(e.queue); n > 0; n-- {
		e.process(<-e.queue)
	}
	nextOrderID := e.orderSeq.Current()
	seq := e.walSeq.Current()
	rotateErr := e.wal.Rotate()
	e.intakeMu.Unlock()
	if rotateErr != nil {
		e.logger.Error("wal rotate failed", zap.Error(rotateErr))
		return
	}

	if err := e.writer.Write(e.book, nextOrderID, seq); err != nil {
		e.logger.Error("snapshot write failed, rejecting new orders", zap.Error(err))
		e.accepting.Store(false)
		return
	}
	if err := e.wal.TruncateBefore(seq); err != nil {
		e.logger.Error("wal truncation failed", zap.Error(err))
	}
}

// Symbol returns the book's instrument symbol.
func (e *Engine) Symbol() string {
	return e.book.Symbol
}

// TickSize returns the book's price increment, for decimal<->tick
// conversion at the ingress boundary.
func (e *Engine) TickSize() decimal.Decimal {
	return e.book.TickSize
}

// DecimalToTicks converts a wire decimal price into an integer tick
// count. ok is false when the price is not an exact multiple of TickSize.
func (e *Engine) DecimalToTicks(d decimal.Decimal) (ticks int64, ok bool) {
	return e.book.DecimalToTicks(d)
}

// DecimalToQtyUnits converts a wire decimal quantity into an integer
// unit count. ok is false when the quantity is not an exact multiple
// of the book's quantity scale.
func (e *Engine) DecimalToQtyUnits(d decimal.Decimal) (units int64, ok bool) {
	return e.book.DecimalToQtyUnits(d)
}

// SubscribeTrades registers a new trade-report subscriber. Each value
// received is every fill produced by one processed order, not a
// single fill.
func (e *Engine) SubscribeTrades(buffer int) *pubsub.Subscription[[]TradeReport] {
	return e.trades.Subscribe(buffer)
}

// UnsubscribeTrades removes a trade-report subscriber.
func (e *Engine) UnsubscribeTrades(sub *pubsub.Subscription[[]TradeReport]) {
	e.trades.Unsubscribe(sub)
}

// SubscribeBook registers a new top-of-book subscriber.
func (e *Engine) SubscribeBook(buffer int) *pubsub.Subscription[BookUpdate] {
	return e.books.Subscribe(buffer)
}

// UnsubscribeBook removes a top-of-book subscriber.
func (e *Engine) UnsubscribeBook(sub *pubsub.Subscription[BookUpdate]) {
	e.books.Unsubscribe(sub)
}

// CurrentBook returns the most recently published top-of-book view,
// for a new subscriber's immediate initial snapshot. Safe to call from
// any goroutine: it reads a cached, already-published copy, never the
// live book.
func (e *Engine) CurrentBook() BookUpdate {
	if v := e.lastBook.Load(); v != nil {
		return *v
	}
	return BookUpdate{Symbol: e.book.Symbol, Timestamp: unixSeconds(time.Now())}
}
