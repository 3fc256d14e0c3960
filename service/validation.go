package service

import (
	"errors"

	"matchengine/domain/orderbook"
)

var (
	ErrMissingUserID = errors.New("service: user_id is required")
	ErrInvalidSide   = errors.New("service: side must be BUY or SELL")
	ErrInvalidType   = errors.New("service: order_type must be LIMIT, MARKET, IOC, or FOK")
	ErrInvalidQty    = errors.New("service: quantity must be positive")
	ErrInvalidPrice  = errors.New("service: price must be positive for non-MARKET orders")
)

func validate(req SubmitRequest) error {
	if req.UserID == 0 {
		return ErrMissingUserID
	}
	if req.Side != orderbook.Buy && req.Side != orderbook.Sell {
		return ErrInvalidSide
	}
	if req.Type < orderbook.Limit || req.Type > orderbook.FOK {
		return ErrInvalidType
	}
	if req.Quantity <= 0 {
		return ErrInvalidQty
	}
	if req.Type != orderbook.Market && req.Price <= 0 {
		return ErrInvalidPrice
	}
	return nil
}
