package snapshot

import "time"

// SchemaVersion guards against loading a snapshot written by an
// incompatible build.
const SchemaVersion = 1

// Snapshot is the on-disk representation of one point-in-time book.
type Snapshot struct {
	Version     int
	Symbol      string
	Seq         uint64 // highest WAL seq already reflected here
	NextOrderID uint64
	NextTradeID uint64
	Created     time.Time
	Orders      []OrderEntry
}

// OrderEntry is one resting order, flattened for gob encoding.
type OrderEntry struct {
	ID         uint64
	UserID     uint64
	Side       int
	Type       int
	Price      int64
	Qty        int64
	InitialQty int64
	Filled     int64
	Timestamp  int64
	ArrivalSeq uint64
}
