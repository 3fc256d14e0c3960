package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderBook is the root aggregate for one symbol. It is single-writer
// and deterministic: every method that reads or changes book state must
// be called from exactly one goroutine, the matching core (§5 of the
// specification this engine implements). The decimal conversion methods
// read only TickSize and QtySize and are also called from ingress
// goroutines.
type OrderBook struct {
	Symbol   string
	TickSize decimal.Decimal
	QtySize  decimal.Decimal

	Bids *priceIndex
	Asks *priceIndex

	// OrdersMap gives O(1) lookup by order_id. Mandatory for
	// correctness, not just a cancel-operation convenience: any level
	// removal must also remove the order's OrdersMap entry so the two
	// never disagree about an order's residency.
	OrdersMap map[uint64]*Order

	// nextTradeID is the only id the book itself generates: trades only
	// ever happen inside walk(), already on the single-writer goroutine.
	// Order ids are assigned by the caller (the ingress adapter, via an
	// atomic sequencer) before an order ever reaches the book, since
	// acceptance must be ack'able before a match is attempted.
	nextTradeID uint64
}

// NewOrderBook creates an empty book for symbol, with prices quantized
// to tickSize and quantities quantized to qtySize — both ingress-side
// decimal<->integer conversions, analogous to each other.
func NewOrderBook(symbol string, tickSize, qtySize decimal.Decimal) *OrderBook {
	return &OrderBook{
		Symbol:    symbol,
		TickSize:  tickSize,
		QtySize:   qtySize,
		Bids:      newPriceIndex(),
		Asks:      newPriceIndex(),
		OrdersMap: make(map[uint64]*Order),
	}
}

// NewTradeID returns the next trade identifier and advances the counter.
func (b *OrderBook) NewTradeID() uint64 {
	b.nextTradeID++
	return b.nextTradeID
}

// NextTradeID returns the current (not-yet-issued) trade counter, for snapshotting.
func (b *OrderBook) NextTradeID() uint64 {
	return b.nextTradeID
}

// RestoreTradeID sets the trade counter directly. Only safe during
// startup, before the book accepts traffic (snapshot load / WAL replay).
func (b *OrderBook) RestoreTradeID(nextTradeID uint64) {
	b.nextTradeID = nextTradeID
}

// PriceToDecimal re-derives a publicly exposed decimal price from a tick.
func (b *OrderBook) PriceToDecimal(ticks int64) decimal.Decimal {
	return decimal.NewFromInt(ticks).Mul(b.TickSize)
}

// DecimalToTicks converts an ingress-supplied decimal price into an
// integer tick count, so every book comparison stays fixed-point. ok
// is false when d is not an exact multiple of TickSize.
func (b *OrderBook) DecimalToTicks(d decimal.Decimal) (ticks int64, ok bool) {
	quotient := d.Div(b.TickSize)
	if !quotient.Equal(quotient.Truncate(0)) {
		return 0, false
	}
	return quotient.IntPart(), true
}

// QtyToDecimal re-derives a publicly exposed decimal quantity from an
// integer unit count, the quantity analogue of PriceToDecimal.
func (b *OrderBook) QtyToDecimal(units int64) decimal.Decimal {
	return decimal.NewFromInt(units).Mul(b.QtySize)
}

// DecimalToQtyUnits converts an ingress-supplied decimal quantity into
// an integer unit count, the quantity analogue of DecimalToTicks. ok
// is false when d is not an exact multiple of QtySize — quantities may
// be fractional (e.g. 0.5 BTC), just quantized to the book's configured
// granularity rather than restricted to whole numbers.
func (b *OrderBook) DecimalToQtyUnits(d decimal.Decimal) (units int64, ok bool) {
	quotient := d.Div(b.QtySize)
	if !quotient.Equal(quotient.Truncate(0)) {
		return 0, false
	}
	return quotient.IntPart(), true
}

// BestBidOffer returns the best bid and ask ticks; ok is false on the
// side that has no resting orders.
func (b *OrderBook) BestBidOffer() (bid int64, bidOK bool, ask int64, askOK bool) {
	if lvl := b.Bids.Max(); lvl != nil {
		bid, bidOK = lvl.Price, true
	}
	if lvl := b.Asks.Min(); lvl != nil {
		ask, askOK = lvl.Price, true
	}
	return
}

func (b *OrderBook) sideIndex(s Side) *priceIndex {
	if s == Buy {
		return b.Bids
	}
	return b.Asks
}

func (b *OrderBook) opposingIndex(s Side) *priceIndex {
	if s == Buy {
		return b.Asks
	}
	return b.Bids
}

// AddLimitOrder appends order to the tail of its target price level's
// FIFO, creating the level if absent, and indexes it in OrdersMap.
// Requires order.Type == Limit and a positive remaining quantity.
func (b *OrderBook) AddLimitOrder(o *Order) {
	b.sideIndex(o.Side).GetOrCreate(o.Price).Enqueue(o)
	b.OrdersMap[o.ID] = o
}

// marketable reports whether levelPrice is not a trade-through for
// incoming. MARKET orders are infinitely permissive on the relevant
// side by construction — never by a sentinel price value, which could
// collide with a legitimate tick at the boundary of the type's range.
func marketable(incoming *Order, levelPrice int64) bool {
	if incoming.Type == Market {
		return true
	}
	if incoming.Side == Buy {
		return incoming.Price >= levelPrice
	}
	return incoming.Price <= levelPrice
}

// fokFeasible runs the Step 1 precheck: walk the opposing book in
// priority order, summing eligible volume, stopping as soon as it
// meets or exceeds the requirement.
func (b *OrderBook) fokFeasible(incoming *Order) bool {
	needed := incoming.Remaining()
	var available int64

	visit := func(lvl *PriceLevel) bool {
		if !marketable(incoming, lvl.Price) {
			return false
		}
		available += lvl.TotalQty
		return available < needed
	}

	if incoming.Side == Buy {
		b.Asks.AscendWalk(visit)
	} else {
		b.Bids.DescendWalk(visit)
	}

	return available >= needed
}

// Process runs the full matching waterfall for incoming and returns
// the trade reports produced, in fill order. If incoming rests
// (positive LIMIT remainder), Process has already inserted it into
// the book; the caller must not call AddLimitOrder again.
func (b *OrderBook) Process(incoming *Order) []Trade {
	start := time.Now()

	if incoming.Remaining() == 0 {
		return nil
	}

	if incoming.Type == FOK && !b.fokFeasible(incoming) {
		return nil
	}

	trades := b.walk(incoming)

	if incoming.Type == Limit && incoming.Remaining() > 0 {
		b.AddLimitOrder(incoming)
	}
	// MARKET/IOC positive remainder: cancelled silently, nothing to do.
	// FOK: remainder is zero by construction once the precheck passed.

	if incoming.Remaining() == 0 {
		incoming.Status = Inactive
	}

	if len(trades) > 0 {
		trades[0].EngineLatencyNs = time.Since(start).Nanoseconds()
	}

	return trades
}

// walk performs Step 2 of the waterfall: fill against the opposing
// side in strict price-time priority until incoming is exhausted or
// the next best level trades through incoming's limit.
func (b *OrderBook) walk(incoming *Order) []Trade {
	var trades []Trade
	opposing := b.opposingIndex(incoming.Side)

	for incoming.Remaining() > 0 {
		var best *PriceLevel
		if incoming.Side == Buy {
			best = opposing.Min()
		} else {
			best = opposing.Max()
		}
		if best == nil || !marketable(incoming, best.Price) {
			break
		}

		for incoming.Remaining() > 0 && !best.Empty() {
			resting := best.Head()
			fillQty := min(incoming.Remaining(), resting.Remaining())

			priceDec := b.PriceToDecimal(best.Price)
			qtyDec := b.QtyToDecimal(fillQty)
			takerFee, makerFee := calcFees(qtyDec, priceDec)

			trades = append(trades, Trade{
				TradeID:       b.NewTradeID(),
				PriceTicks:    best.Price,
				Price:         priceDec,
				Qty:           qtyDec,
				AggressorSide: incoming.Side,
				MakerOrderID:  resting.ID,
				TakerOrderID:  incoming.ID,
				MakerUserID:   resting.UserID,
				TakerUserID:   incoming.UserID,
				TakerFee:      takerFee,
				MakerFee:      makerFee,
			})

			incoming.Filled += fillQty
			resting.Filled += fillQty
			best.Fill(fillQty)

			if resting.Remaining() == 0 {
				resting.Status = Inactive
				best.PopHead()
				delete(b.OrdersMap, resting.ID)
			}
		}

		if best.Empty() {
			opposing.Remove(best.Price)
		}
	}

	return trades
}

// LevelView is one aggregated price level as exposed on the market-data feed.
type LevelView struct {
	Price    int64
	Quantity int64
}

// TopLevels returns up to depth aggregated levels on side, best price first.
func (b *OrderBook) TopLevels(side Side, depth int) []LevelView {
	out := make([]LevelView, 0, depth)
	visit := func(lvl *PriceLevel) bool {
		out = append(out, LevelView{Price: lvl.Price, Quantity: lvl.TotalQty})
		return len(out) < depth
	}

	if side == Buy {
		b.Bids.DescendWalk(visit)
	} else {
		b.Asks.AscendWalk(visit)
	}
	return out
}
