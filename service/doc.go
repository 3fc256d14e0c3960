// Package service orchestrates the matching engine's core
// components — the single-writer orderbook, the intake WAL, periodic
// snapshots, and the trade/book-update fan-out — behind one Engine
// type, decoupled from whatever transport accepts orders.
package service
