package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const PositionUpdatePayloadSize = 40

// EncodePositionUpdate serializes a counter snapshot into a fixed-size
// payload.
func EncodePositionUpdate(dst []byte, update schema.PositionUpdate) []byte {
	if cap(dst) < PositionUpdatePayloadSize {
		dst = make([]byte, PositionUpdatePayloadSize)
	} else {
		dst = dst[:PositionUpdatePayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(update.AccountID))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(update.StrategyID))
	binary.LittleEndian.PutUint32(dst[8:12], uint32(update.InstrumentID))
	binary.LittleEndian.PutUint32(dst[12:16], 0)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(update.OpenBid))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(update.OpenAsk))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(update.NetPos))

	return dst
}

// DecodePositionUpdate parses a fixed-size counter snapshot payload.
func DecodePositionUpdate(src []byte) (schema.PositionUpdate, bool) {
	if len(src) < PositionUpdatePayloadSize {
		return schema.PositionUpdate{}, false
	}
	return schema.PositionUpdate{
		AccountID:    schema.AccountID(binary.LittleEndian.Uint32(src[0:4])),
		StrategyID:   schema.StrategyID(binary.LittleEndian.Uint32(src[4:8])),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[8:12])),
		OpenBid:      schema.Quantity(int64(binary.LittleEndian.Uint64(src[16:24]))),
		OpenAsk:      schema.Quantity(int64(binary.LittleEndian.Uint64(src[24:32]))),
		NetPos:       schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
	}, true
}
