// Package snapshot persists and restores the matching engine's full
// book state: every resting order, in FIFO order per price level, and
// the id counters needed to resume order and trade numbering after a
// restart.
//
// Writes are atomic: the encoder writes to a temp file in the
// snapshot directory and renames it over the previous snapshot, so a
// crash mid-write never leaves a corrupt or partial snapshot on disk.
// Recovery combines the latest snapshot with a forward replay of the
// WAL records it does not yet cover (see infra/wal/entry).
package snapshot
