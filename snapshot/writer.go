package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"matchengine/domain/orderbook"
)

// Writer writes snapshots into Dir.
type Writer struct {
	Dir string
}

// NewWriter returns a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// filename is fixed: the previous snapshot is replaced, never kept
// alongside older generations, since the WAL tail covers everything
// written since the last successful snapshot.
func (w *Writer) filename() string {
	return filepath.Join(w.Dir, "snapshot.bin")
}

// Write captures book's full resting-order state as of seq (the
// highest WAL sequence number already applied) and atomically
// replaces the previous snapshot file. nextOrderID is the ingress
// adapter's order-id sequencer value, tracked outside the book since
// ids must be assignable before an order ever reaches the matching
// core.
func (w *Writer) Write(book *orderbook.OrderBook, nextOrderID, seq uint64) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir %s: %w", w.Dir, err)
	}

	s := Snapshot{
		Version:     SchemaVersion,
		Symbol:      book.Symbol,
		Seq:         seq,
		NextOrderID: nextOrderID,
		NextTradeID: book.NextTradeID(),
		Created:     time.Now(),
		Orders:      make([]OrderEntry, 0, 1024),
	}

	collect := func(lvl *orderbook.PriceLevel) bool {
		for o := lvl.Head(); o != nil; o = o.Next() {
			s.Orders = append(s.Orders, OrderEntry{
				ID:         o.ID,
				UserID:     o.UserID,
				Side:       int(o.Side),
				Type:       int(o.Type),
				Price:      o.Price,
				Qty:        o.Qty,
				InitialQty: o.InitialQty,
				Filled:     o.Filled,
				Timestamp:  o.Timestamp,
				ArrivalSeq: o.ArrivalSeq,
			})
		}
		return true
	}
	// Each level is walked head-to-tail, so replaying Orders in slice
	// order and re-enqueuing reconstructs the same FIFO.
	book.Bids.DescendWalk(collect)
	book.Asks.AscendWalk(collect)

	final := w.filename()
	tmp := final + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("snapshot: create temp: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(&s); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}
