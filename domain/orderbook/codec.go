package orderbook

import (
	"encoding/binary"
	"errors"
)

// orderRecordLen is the fixed width of an encoded intake order: id,
// user id, side, type, price, qty, timestamp, arrival seq.
const orderRecordLen = 8 + 8 + 1 + 1 + 8 + 8 + 8 + 8

// EncodeOrder serializes an incoming order for the WAL's intake
// record, written before the order is ever matched so a crash between
// acceptance and the next snapshot loses nothing.
func EncodeOrder(o *Order) []byte {
	buf := make([]byte, orderRecordLen)
	binary.BigEndian.PutUint64(buf[0:8], o.ID)
	binary.BigEndian.PutUint64(buf[8:16], o.UserID)
	buf[16] = byte(o.Side)
	buf[17] = byte(o.Type)
	binary.BigEndian.PutUint64(buf[18:26], uint64(o.Price))
	binary.BigEndian.PutUint64(buf[26:34], uint64(o.Qty))
	binary.BigEndian.PutUint64(buf[34:42], uint64(o.Timestamp))
	binary.BigEndian.PutUint64(buf[42:50], o.ArrivalSeq)
	return buf
}

// DecodeOrder reverses EncodeOrder, used during WAL replay on startup.
func DecodeOrder(b []byte) (*Order, error) {
	if len(b) < orderRecordLen {
		return nil, errors.New("orderbook: truncated order record")
	}
	o := &Order{
		ID:         binary.BigEndian.Uint64(b[0:8]),
		UserID:     binary.BigEndian.Uint64(b[8:16]),
		Side:       Side(b[16]),
		Type:       OrderType(b[17]),
		Price:      int64(binary.BigEndian.Uint64(b[18:26])),
		Qty:        int64(binary.BigEndian.Uint64(b[26:34])),
		Timestamp:  int64(binary.BigEndian.Uint64(b[34:42])),
		ArrivalSeq: binary.BigEndian.Uint64(b[42:50]),
		Status:     Active,
	}
	o.InitialQty = o.Qty
	return o, nil
}
