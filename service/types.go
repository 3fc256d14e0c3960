package service

import (
	"time"

	"github.com/shopspring/decimal"

	"matchengine/domain/orderbook"
)

// SubmitRequest is a validated order intake request. The caller has
// already converted Price to integer ticks and Quantity to integer
// quantity units; Price is ignored for Market orders.
type SubmitRequest struct {
	UserID   uint64
	Side     orderbook.Side
	Type     orderbook.OrderType
	Price    int64
	Quantity int64
}

// TradeReport is one fill, re-expressed in decimal for the wire and
// for the outbox payload handed to the Kafka publisher.
type TradeReport struct {
	TradeID       uint64          `json:"trade_id"`
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	AggressorSide string          `json:"aggressor_side"`
	MakerOrderID  uint64          `json:"maker_order_id"`
	TakerOrderID  uint64          `json:"taker_order_id"`
	MakerUserID   uint64          `json:"maker_user_id"`
	TakerUserID   uint64          `json:"taker_user_id"`
	TakerFee      decimal.Decimal `json:"taker_fee"`
	MakerFee      decimal.Decimal `json:"maker_fee"`
	EngineLatency time.Duration   `json:"engine_latency_ns,omitempty"`
	Timestamp     float64         `json:"timestamp"`
}

// BookLevel is one aggregated price level on the wire.
type BookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// BookUpdate is a full top-of-book view, pushed after every processed
// order and to every newly connected market-data subscriber.
type BookUpdate struct {
	Symbol    string      `json:"symbol"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp float64     `json:"timestamp"`
}

// unixSeconds renders t the way the reference's time.time() does: a
// floating-point count of seconds since the epoch, not an RFC3339 string.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
