package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"matchengine/service"
)

// Config holds the three listen addresses, one per channel.
type Config struct {
	OrdersAddr     string
	MarketDataAddr string
	TradesAddr     string
}

// Engine wraps a *service.Engine with the three websocket listeners
// that expose it.
type Engine struct {
	engine *service.Engine
	logger *zap.Logger
	cfg    Config

	upgrader websocket.Upgrader

	ordersSrv *http.Server
	marketSrv *http.Server
	tradesSrv *http.Server
}

// New wires up the three HTTP servers without starting them.
func New(eng *service.Engine, cfg Config, logger *zap.Logger) *Engine {
	e := &Engine{
		engine:   eng,
		logger:   logger,
		cfg:      cfg,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}

	ordersMux := http.NewServeMux()
	ordersMux.HandleFunc("/", e.handleOrders)
	e.ordersSrv = &http.Server{Addr: cfg.OrdersAddr, Handler: ordersMux}

	marketMux := http.NewServeMux()
	marketMux.HandleFunc("/", e.handleMarketData)
	e.marketSrv = &http.Server{Addr: cfg.MarketDataAddr, Handler: marketMux}

	tradesMux := http.NewServeMux()
	tradesMux.HandleFunc("/", e.handleTrades)
	e.tradesSrv = &http.Server{Addr: cfg.TradesAddr, Handler: tradesMux}

	return e
}

// Run starts all three listeners and blocks until ctx is cancelled,
// then shuts each down gracefully.
func (e *Engine) Run(ctx context.Context) error {
	errCh := make(chan error, 3)

	go func() { errCh <- runServer(e.ordersSrv, "orders", e.logger) }()
	go func() { errCh <- runServer(e.marketSrv, "market-data", e.logger) }()
	go func() { errCh <- runServer(e.tradesSrv, "trades", e.logger) }()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = e.ordersSrv.Shutdown(shutdownCtx)
	_ = e.marketSrv.Shutdown(shutdownCtx)
	_ = e.tradesSrv.Shutdown(shutdownCtx)

	for i := 0; i < 3; i++ {
		if err := <-errCh; err != nil {
			return err
		}
	}
	return nil
}

func runServer(srv *http.Server, name string, logger *zap.Logger) error {
	logger.Info("listening", zap.String("channel", name), zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("listener stopped", zap.String("channel", name), zap.Error(err))
		return err
	}
	return nil
}

// handleOrders upgrades to a websocket that accepts one orderMessage
// per frame and replies on the same connection with an ackMessage.
func (e *Engine) handleOrders(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg orderMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := conn.WriteJSON(engineError(fmt.Sprintf("parse error: %v", err))); err != nil {
				return
			}
			continue
		}

		req, err := toSubmitRequest(e, msg)
		if err != nil {
			_ = conn.WriteJSON(rejected(err.Error()))
			continue
		}

		orderID, err := e.engine.Submit(req)
		if err != nil {
			_ = conn.WriteJSON(engineError(err.Error()))
			continue
		}
		if err := conn.WriteJSON(accepted(orderID)); err != nil {
			return
		}
	}
}

// handleMarketData pushes the current top-of-book immediately on
// connect, then every subsequent update as the book changes.
func (e *Engine) handleMarketData(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := e.engine.SubscribeBook(32)
	defer e.engine.UnsubscribeBook(sub)

	if err := conn.WriteJSON(bookMessage{Type: "L2_UPDATE", BookUpdate: e.engine.CurrentBook()}); err != nil {
		return
	}

	for update := range sub.C() {
		if err := conn.WriteJSON(bookMessage{Type: "L2_UPDATE", BookUpdate: update}); err != nil {
			return
		}
	}
}

// handleTrades streams one TRADE_REPORT frame per processed order that
// produced at least one fill, carrying every fill from that order.
// Unlike market data, there is no replay of history on connect: a
// subscriber only ever sees trades that happen after it joins.
func (e *Engine) handleTrades(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := e.engine.SubscribeTrades(32)
	defer e.engine.UnsubscribeTrades(sub)

	for trades := range sub.C() {
		if err := conn.WriteJSON(tradeMessage{Type: "TRADE_REPORT", Trades: trades}); err != nil {
			return
		}
	}
}
