package service

import (
	"fmt"

	"matchengine/domain/orderbook"
	"matchengine/infra/memory"
	"matchengine/infra/wal/entry"
	"matchengine/snapshot"
)

// RecoverConfig bundles what the recovery sequence needs before Run
// can start accepting traffic.
type RecoverConfig struct {
	Book        *orderbook.OrderBook
	Pool        *memory.Pool[orderbook.Order]
	SnapshotDir string
	WALConfig   entry.Config
}

// Recover loads the latest snapshot into cfg.Book (if one exists),
// replays every WAL record the snapshot doesn't yet cover back through
// the matching core, and opens a fresh WAL segment for new intake. The
// returned nextOrderID and walSeq seed Engine's sequencers so order ids
// and WAL ordering stay globally monotonic across the restart.
func Recover(cfg RecoverConfig) (nextOrderID, walSeq uint64, wal *entry.WAL, err error) {
	nextOrderID, snapshotSeq, err := snapshot.Load(cfg.SnapshotDir, cfg.Book, cfg.Pool)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("service: snapshot load: %w", err)
	}

	var maxReplayedID uint64

	lastSeq, err := entry.Replay(cfg.WALConfig.Dir, func(r *entry.Record) error {
		if r.Seq <= snapshotSeq {
			return nil
		}
		switch r.Type {
		case entry.RecordPlace:
			decoded, err := orderbook.DecodeOrder(r.Data)
			if err != nil {
				return err
			}
			o := cfg.Pool.Get()
			*o = *decoded
			cfg.Book.Process(o)
			if o.ID > maxReplayedID {
				maxReplayedID = o.ID
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, nil, fmt.Errorf("service: wal replay: %w", err)
	}

	walSeq = snapshotSeq
	if lastSeq > walSeq {
		walSeq = lastSeq
	}

	// Replayed orders may carry ids past what the snapshot last saw, the
	// same way walSeq is bumped past snapshotSeq above — otherwise the
	// next Submit after restart could reassign an id already resting in
	// the book.
	if maxReplayedID+1 > nextOrderID {
		nextOrderID = maxReplayedID + 1
	}

	wal, err = entry.Open(cfg.WALConfig)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("service: wal open: %w", err)
	}

	return nextOrderID, walSeq, wal, nil
}
