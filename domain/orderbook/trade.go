package orderbook

import "github.com/shopspring/decimal"

// Trade is one fill produced by the waterfall. Immutable once emitted.
// EngineLatencyNs is only set on the first trade of a processed order's
// batch (§3, §4.2 Step 4) and is zero on every subsequent trade.
type Trade struct {
	TradeID         uint64
	PriceTicks      int64
	Price           decimal.Decimal
	Qty             decimal.Decimal
	AggressorSide   Side
	MakerOrderID    uint64
	TakerOrderID    uint64
	MakerUserID     uint64
	TakerUserID     uint64
	TakerFee        decimal.Decimal
	MakerFee        decimal.Decimal
	EngineLatencyNs int64
}
