package orderbook

import (
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestBook() *OrderBook {
	return NewOrderBook("BTC-USDT", decimal.NewFromInt(1), decimal.NewFromInt(1))
}

// testOrderIDs stands in for the ingress adapter's id sequencer: order
// ids are assigned before an order ever reaches the book, never by the
// book itself.
var testOrderIDs atomic.Uint64

func nextTestOrderID() uint64 {
	return testOrderIDs.Add(1)
}

func submit(b *OrderBook, side Side, typ OrderType, price, qty int64) []Trade {
	id := nextTestOrderID()
	o := NewOrder(id, id, side, typ, price, qty, 0, id)
	return b.Process(o)
}

// Scenario A — book build.
func TestScenarioA_BookBuild(t *testing.T) {
	b := newTestBook()

	submit(b, Buy, Limit, 98, 10)
	submit(b, Buy, Limit, 95, 15)
	submit(b, Sell, Limit, 104, 20)
	submit(b, Sell, Limit, 105, 10)

	bid, bidOK, ask, askOK := b.BestBidOffer()
	if !bidOK || bid != 98 || !askOK || ask != 104 {
		t.Fatalf("BBO = (%d,%v)/(%d,%v), want (98,true)/(104,true)", bid, bidOK, ask, askOK)
	}
	if lvl := b.Bids.Find(98); lvl == nil || lvl.TotalQty != 10 {
		t.Fatalf("bid level 98 = %+v, want qty 10", lvl)
	}
	if lvl := b.Bids.Find(95); lvl == nil || lvl.TotalQty != 15 {
		t.Fatalf("bid level 95 = %+v, want qty 15", lvl)
	}
	if lvl := b.Asks.Find(104); lvl == nil || lvl.TotalQty != 20 {
		t.Fatalf("ask level 104 = %+v, want qty 20", lvl)
	}
	if lvl := b.Asks.Find(105); lvl == nil || lvl.TotalQty != 10 {
		t.Fatalf("ask level 105 = %+v, want qty 10", lvl)
	}
}

// Scenario B — market buy sweeps the ask side.
func TestScenarioB_MarketBuySweep(t *testing.T) {
	b := newTestBook()
	submit(b, Buy, Limit, 98, 10)
	submit(b, Buy, Limit, 95, 15)
	order3 := nextTestOrderID()
	submit3 := NewOrder(order3, order3, Sell, Limit, 104, 20, 0, order3)
	b.Process(submit3)
	order4 := nextTestOrderID()
	submit4 := NewOrder(order4, order4, Sell, Limit, 105, 10, 0, order4)
	b.Process(submit4)

	trades := submit(b, Buy, Market, 0, 30)
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}

	first, second := trades[0], trades[1]
	if first.PriceTicks != 104 || first.Qty.IntPart() != 20 || first.MakerOrderID != order3 {
		t.Fatalf("first trade = %+v", first)
	}
	if second.PriceTicks != 105 || second.Qty.IntPart() != 10 || second.MakerOrderID != order4 {
		t.Fatalf("second trade = %+v", second)
	}
	for _, tr := range trades {
		if tr.AggressorSide != Buy {
			t.Fatalf("aggressor side = %v, want BUY", tr.AggressorSide)
		}
	}

	wantTakerFee := decimal.NewFromFloat(20 * 104 * 0.0020)
	wantMakerFee := decimal.NewFromFloat(20 * 104 * 0.0010)
	if !first.TakerFee.Equal(wantTakerFee) {
		t.Fatalf("taker fee = %s, want %s", first.TakerFee, wantTakerFee)
	}
	if !first.MakerFee.Equal(wantMakerFee) {
		t.Fatalf("maker fee = %s, want %s", first.MakerFee, wantMakerFee)
	}

	if b.Asks.Len() != 0 {
		t.Fatalf("asks should be empty after the sweep, got %d levels", b.Asks.Len())
	}
	if lvl := b.Bids.Find(98); lvl == nil || lvl.TotalQty != 10 {
		t.Fatalf("bids should be unchanged, 98 level = %+v", lvl)
	}
}

// Scenario C — FOK rejection.
func TestScenarioC_FOKRejected(t *testing.T) {
	b := newTestBook()
	submit(b, Buy, Limit, 98, 10)
	submit(b, Buy, Limit, 95, 15)

	trades := submit(b, Sell, FOK, 100, 30)
	if len(trades) != 0 {
		t.Fatalf("expected FOK rejection, got %d trades", len(trades))
	}
	if lvl := b.Bids.Find(98); lvl == nil || lvl.TotalQty != 10 {
		t.Fatalf("book must be unchanged after a rejected FOK")
	}
	if lvl := b.Bids.Find(95); lvl == nil || lvl.TotalQty != 15 {
		t.Fatalf("book must be unchanged after a rejected FOK")
	}
}

// Scenario D — partial fill, resting remainder.
func TestScenarioD_PartialFillRemainder(t *testing.T) {
	b := newTestBook()
	sellID := nextTestOrderID()
	b.Process(NewOrder(sellID, sellID, Sell, Limit, 100, 10, 0, sellID))

	trades := submit(b, Buy, Limit, 101, 7)
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	if trades[0].Qty.IntPart() != 7 || trades[0].PriceTicks != 100 {
		t.Fatalf("trade = %+v", trades[0])
	}
	if trades[0].AggressorSide != Buy {
		t.Fatalf("aggressor = %v, want BUY", trades[0].AggressorSide)
	}

	lvl := b.Asks.Find(100)
	if lvl == nil || lvl.TotalQty != 3 {
		t.Fatalf("resting ask remainder = %+v, want qty 3", lvl)
	}
	if b.Bids.Len() != 0 {
		t.Fatalf("buyer must not rest: bids has %d levels", b.Bids.Len())
	}
}

// Scenario E — same-price time priority.
func TestScenarioE_SamePriceTimePriority(t *testing.T) {
	b := newTestBook()
	id1 := nextTestOrderID()
	b.Process(NewOrder(id1, id1, Sell, Limit, 50, 5, 0, id1))
	id2 := nextTestOrderID()
	b.Process(NewOrder(id2, id2, Sell, Limit, 50, 5, 0, id2))
	id3 := nextTestOrderID()
	b.Process(NewOrder(id3, id3, Sell, Limit, 50, 5, 0, id3))

	trades := submit(b, Buy, Market, 0, 7)
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	if trades[0].MakerOrderID != id1 || trades[0].Qty.IntPart() != 5 {
		t.Fatalf("first trade = %+v, want maker=%d qty=5", trades[0], id1)
	}
	if trades[1].MakerOrderID != id2 || trades[1].Qty.IntPart() != 2 {
		t.Fatalf("second trade = %+v, want maker=%d qty=2", trades[1], id2)
	}

	lvl := b.Asks.Find(50)
	if lvl == nil || lvl.TotalQty != 8 || lvl.Head().ID != id2 {
		t.Fatalf("resting level = %+v, want qty 8 headed by order %d", lvl, id2)
	}
	if lvl.Head().Remaining() != 3 {
		t.Fatalf("order %d remaining = %d, want 3", id2, lvl.Head().Remaining())
	}
}

func TestZeroQuantityIsNoOp(t *testing.T) {
	b := newTestBook()
	trades := submit(b, Buy, Limit, 100, 0)
	if len(trades) != 0 {
		t.Fatalf("zero-quantity order produced trades: %+v", trades)
	}
	if b.Bids.Len() != 0 {
		t.Fatalf("zero-quantity order must not rest")
	}
}

func TestMarketableAtEquality(t *testing.T) {
	b := newTestBook()
	sellID := nextTestOrderID()
	b.Process(NewOrder(sellID, sellID, Sell, Limit, 100, 5, 0, sellID))

	trades := submit(b, Buy, Limit, 100, 5)
	if len(trades) != 1 {
		t.Fatalf("equal-price order should trade, got %d trades", len(trades))
	}
}

func TestIOCRemainderCancelledSilently(t *testing.T) {
	b := newTestBook()
	trades := submit(b, Buy, IOC, 100, 5)
	if len(trades) != 0 {
		t.Fatalf("expected no trades against an empty book")
	}
	if b.Bids.Len() != 0 {
		t.Fatalf("IOC must never rest")
	}
}

func TestFOKExactlyMeetsVolume(t *testing.T) {
	b := newTestBook()
	submit(b, Sell, Limit, 100, 5)
	submit(b, Sell, Limit, 101, 5)

	trades := submit(b, Buy, FOK, 101, 10)
	if len(trades) != 2 {
		t.Fatalf("FOK exactly meeting volume should fill completely, got %d trades", len(trades))
	}
}

func TestEmptyLevelsAreRemoved(t *testing.T) {
	b := newTestBook()
	sellID := nextTestOrderID()
	b.Process(NewOrder(sellID, sellID, Sell, Limit, 100, 5, 0, sellID))
	submit(b, Buy, Limit, 100, 5)

	if lvl := b.Asks.Find(100); lvl != nil {
		t.Fatalf("fully drained level should be removed, found %+v", lvl)
	}
	if _, ok := b.OrdersMap[sellID]; ok {
		t.Fatalf("fully filled order must be removed from OrdersMap")
	}
}

func TestBookNeverCrosses(t *testing.T) {
	b := newTestBook()
	submit(b, Buy, Limit, 99, 5)
	submit(b, Sell, Limit, 101, 5)

	bid, bidOK, ask, askOK := b.BestBidOffer()
	if bidOK && askOK && bid >= ask {
		t.Fatalf("book crossed: bid=%d ask=%d", bid, ask)
	}
}
