// Package outbox tracks at-least-once delivery of trade reports to
// the downstream Kafka publisher. Every trade report produced by the
// matching core is durably recorded here before the engine moves on
// to the next queued order; the publisher drains NEW records
// independently and never blocks the matching core.
package outbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// State is the delivery lifecycle of one outbox record.
type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Record is one durable outbox entry: the payload to publish plus its
// delivery state.
type Record struct {
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// encoding: [state:1][retries:4][lastAttempt:8][payload...]
func encodeRecord(r Record) []byte {
	buf := make([]byte, 1+4+8+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[13:], r.Payload)
	return buf
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) < 13 {
		return Record{}, errors.New("outbox: record too short")
	}
	payload := make([]byte, len(b)-13)
	copy(payload, b[13:])
	return Record{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

// Outbox is a pebble-backed durable queue keyed by trade_id.
type Outbox struct {
	db *pebble.DB
}

// Open opens (or creates) the outbox database at dir.
func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // durability is the entire point
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

// Close releases the underlying database.
func (o *Outbox) Close() error {
	return o.db.Close()
}

// PutNew records tradeID as pending delivery with the given payload.
// Called synchronously by the engine loop right after a trade report
// is produced, so a crash before the publisher runs never loses it.
func (o *Outbox) PutNew(tradeID uint64, payload []byte) error {
	rec := Record{State: StateNew, Payload: payload}
	return o.db.Set(keyFor(tradeID), encodeRecord(rec), pebble.Sync)
}

// MarkState transitions tradeID to state, setting Retries to retries
// and recording the attempt time. The payload is preserved unchanged.
func (o *Outbox) MarkState(tradeID uint64, state State, retries uint32) error {
	rec, err := o.Get(tradeID)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(tradeID), encodeRecord(rec), pebble.Sync)
}

// Delete removes tradeID's record. No component of the engine calls
// it, so ACKED records stay in the store.
func (o *Outbox) Delete(tradeID uint64) error {
	return o.db.Delete(keyFor(tradeID), pebble.Sync)
}

// Get returns the current record for tradeID.
func (o *Outbox) Get(tradeID uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(tradeID))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	return decodeRecord(val)
}

// ScanByState iterates every record in the given state, in key
// (trade_id) order. Used by the publisher to find NEW and FAILED
// work; no job scans ACKED records for cleanup.
func (o *Outbox) ScanByState(state State, fn func(tradeID uint64, rec Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("trade/"),
		UpperBound: []byte("trade/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != state {
			continue
		}
		id, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(id, rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyFor(tradeID uint64) []byte {
	return []byte(fmt.Sprintf("trade/%020d", tradeID))
}

func parseKey(b []byte) (uint64, error) {
	var id uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("trade/"))), "%d", &id)
	return id, err
}
