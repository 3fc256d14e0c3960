package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"matchengine/domain/orderbook"
	"matchengine/infra/memory"
)

// Load reads dir's snapshot file, if any, inserting every resting
// order back into book and restoring its trade counter. It returns
// the order-id sequencer value and the WAL seq the snapshot covers;
// the caller must replay WAL records with a higher seq on top to
// reach the latest state. A missing file is not an error: a fresh
// book starts from seq 0 with a zero order-id sequencer.
func Load(dir string, book *orderbook.OrderBook, pool *memory.Pool[orderbook.Order]) (nextOrderID, seq uint64, err error) {
	path := filepath.Join(dir, "snapshot.bin")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return 0, 0, fmt.Errorf("snapshot: decode %s: %w", path, err)
	}
	if s.Version != SchemaVersion {
		return 0, 0, fmt.Errorf("snapshot: unsupported schema version %d", s.Version)
	}

	for _, e := range s.Orders {
		o := pool.Get()
		*o = orderbook.Order{
			ID:         e.ID,
			UserID:     e.UserID,
			Side:       orderbook.Side(e.Side),
			Type:       orderbook.OrderType(e.Type),
			Price:      e.Price,
			Qty:        e.Qty,
			InitialQty: e.InitialQty,
			Filled:     e.Filled,
			Timestamp:  e.Timestamp,
			ArrivalSeq: e.ArrivalSeq,
			Status:     orderbook.Active,
		}
		book.AddLimitOrder(o)
	}
	book.RestoreTradeID(s.NextTradeID)

	return s.NextOrderID, s.Seq, nil
}
