// Package memory provides Pool, a typed sync.Pool wrapper used to
// recycle *orderbook.Order values across the engine's single-writer
// loop instead of allocating one per incoming order.
package memory
