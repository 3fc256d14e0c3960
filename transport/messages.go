package transport

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"matchengine/domain/orderbook"
	"matchengine/service"
)

// orderMessage is an inbound order submission, decimal-priced on the
// wire and converted to integer ticks before it reaches the engine.
// Price and Quantity are decimal.Decimal rather than string: its
// UnmarshalJSON accepts both a bare JSON number and a quoted string, so
// a spec-conformant client sending "quantity": 10.0 decodes cleanly.
type orderMessage struct {
	UserID    uint64          `json:"user_id"`
	Side      string          `json:"side"`
	OrderType string          `json:"order_type"`
	Price     decimal.Decimal `json:"price,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// ackMessage is the engine's synchronous reply to one orderMessage.
type ackMessage struct {
	Type    string `json:"status"` // ACCEPTED, REJECTED, or ERROR
	OrderID uint64 `json:"order_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func accepted(orderID uint64) ackMessage {
	return ackMessage{Type: "ACCEPTED", OrderID: orderID}
}

func rejected(reason string) ackMessage {
	return ackMessage{Type: "REJECTED", Reason: reason}
}

func engineError(reason string) ackMessage {
	return ackMessage{Type: "ERROR", Reason: reason}
}

// tradeMessage is one TRADE_REPORT frame on the trade-feed channel,
// carrying every fill produced by a single processed order.
type tradeMessage struct {
	Type   string                `json:"type"`
	Trades []service.TradeReport `json:"trades"`
}

// bookMessage is one L2_UPDATE frame on the market-data channel. It is
// flat on the wire — type alongside symbol/bids/asks/timestamp, not
// nested under a "data" key.
type bookMessage struct {
	Type string `json:"type"`
	service.BookUpdate
}

// toSubmitRequest validates and converts an inbound wire message into
// an engine SubmitRequest. Quantity and (for non-Market types) price
// must be positive multiples of the book's quantity scale and tick
// size respectively; an absent field decodes as the decimal zero
// value, which that same check already rejects.
func toSubmitRequest(eng *Engine, msg orderMessage) (service.SubmitRequest, error) {
	if msg.UserID == 0 {
		return service.SubmitRequest{}, fmt.Errorf("user_id is required")
	}

	side, err := parseSide(msg.Side)
	if err != nil {
		return service.SubmitRequest{}, err
	}
	typ, err := parseOrderType(msg.OrderType)
	if err != nil {
		return service.SubmitRequest{}, err
	}

	qty, ok := eng.engine.DecimalToQtyUnits(msg.Quantity)
	if !ok || qty <= 0 {
		return service.SubmitRequest{}, fmt.Errorf("quantity %s is not a positive multiple of the quantity scale", msg.Quantity)
	}

	var priceTicks int64
	if typ != orderbook.Market {
		priceTicks, ok = eng.engine.DecimalToTicks(msg.Price)
		if !ok || priceTicks <= 0 {
			return service.SubmitRequest{}, fmt.Errorf("price %s is not a positive multiple of the tick size", msg.Price)
		}
	}

	return service.SubmitRequest{
		UserID:   msg.UserID,
		Side:     side,
		Type:     typ,
		Price:    priceTicks,
		Quantity: qty,
	}, nil
}

func parseSide(s string) (orderbook.Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return orderbook.Buy, nil
	case "SELL":
		return orderbook.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

func parseOrderType(s string) (orderbook.OrderType, error) {
	switch strings.ToUpper(s) {
	case "LIMIT":
		return orderbook.Limit, nil
	case "MARKET":
		return orderbook.Market, nil
	case "IOC":
		return orderbook.IOC, nil
	case "FOK":
		return orderbook.FOK, nil
	default:
		return 0, fmt.Errorf("unknown order_type %q", s)
	}
}
