package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const PnLSnapshotPayloadSize = 72

// EncodePnLSnapshot serializes a PnL node snapshot into a fixed-size
// payload.
func EncodePnLSnapshot(dst []byte, snap schema.PnLSnapshot) []byte {
	if cap(dst) < PnLSnapshotPayloadSize {
		dst = make([]byte, PnLSnapshotPayloadSize)
	} else {
		dst = dst[:PnLSnapshotPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(snap.AccountID))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(snap.StrategyID))
	binary.LittleEndian.PutUint32(dst[8:12], uint32(snap.InstrumentID))
	binary.LittleEndian.PutUint32(dst[12:16], 0)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(snap.Position))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(snap.AvgPrice))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(snap.RealizedPnL))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(snap.UnrealizedPnL))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(snap.FeesPaid))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(snap.MaxPnL))
	binary.LittleEndian.PutUint64(dst[64:72], uint64(snap.MinPnL))

	return dst
}

// DecodePnLSnapshot parses a fixed-size PnL node snapshot payload.
func DecodePnLSnapshot(src []byte) (schema.PnLSnapshot, bool) {
	if len(src) < PnLSnapshotPayloadSize {
		return schema.PnLSnapshot{}, false
	}
	return schema.PnLSnapshot{
		AccountID:     schema.AccountID(binary.LittleEndian.Uint32(src[0:4])),
		StrategyID:    schema.StrategyID(binary.LittleEndian.Uint32(src[4:8])),
		InstrumentID:  schema.InstrumentID(binary.LittleEndian.Uint32(src[8:12])),
		Position:      schema.Quantity(int64(binary.LittleEndian.Uint64(src[16:24]))),
		AvgPrice:      schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		RealizedPnL:   schema.Notional(int64(binary.LittleEndian.Uint64(src[32:40]))),
		UnrealizedPnL: schema.Notional(int64(binary.LittleEndian.Uint64(src[40:48]))),
		FeesPaid:      schema.Notional(int64(binary.LittleEndian.Uint64(src[48:56]))),
		MaxPnL:        schema.Notional(int64(binary.LittleEndian.Uint64(src[56:64]))),
		MinPnL:        schema.Notional(int64(binary.LittleEndian.Uint64(src[64:72]))),
	}, true
}
