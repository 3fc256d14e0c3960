// Package transport exposes the matching engine over three
// independent JSON-over-websocket channels, each its own listener:
// order submission, market-data (top-of-book) push, and trade-report
// push. Keeping the channels on separate ports means a slow or
// disconnected market-data consumer can never hold up order intake.
package transport
