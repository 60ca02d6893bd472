package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const FillPayloadSize = 64

// EncodeFill serializes a fill into a fixed-size payload.
func EncodeFill(dst []byte, fill schema.Fill) []byte {
	if cap(dst) < FillPayloadSize {
		dst = make([]byte, FillPayloadSize)
	} else {
		dst = dst[:FillPayloadSize]
	}

	binary.LittleEndian.PutUint16(dst[0:2], uint16(fill.Type))
	binary.LittleEndian.PutUint16(dst[2:4], uint16(fill.Side))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(fill.Liquidity))
	binary.LittleEndian.PutUint16(dst[6:8], 0)
	copy(dst[8:24], fill.OrderID[:])
	binary.LittleEndian.PutUint32(dst[24:28], uint32(fill.AccountID))
	binary.LittleEndian.PutUint32(dst[28:32], uint32(fill.StrategyID))
	binary.LittleEndian.PutUint32(dst[32:36], uint32(fill.InstrumentID))
	binary.LittleEndian.PutUint32(dst[36:40], 0)
	binary.LittleEndian.PutUint64(dst[40:48], uint64(fill.Price))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(fill.Qty))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(fill.Fee))

	return dst
}

// DecodeFill parses a fixed-size fill payload.
func DecodeFill(src []byte) (schema.Fill, bool) {
	if len(src) < FillPayloadSize {
		return schema.Fill{}, false
	}
	fill := schema.Fill{
		Type:         schema.FillType(binary.LittleEndian.Uint16(src[0:2])),
		Side:         schema.OrderSide(binary.LittleEndian.Uint16(src[2:4])),
		Liquidity:    schema.Liquidity(binary.LittleEndian.Uint16(src[4:6])),
		AccountID:    schema.AccountID(binary.LittleEndian.Uint32(src[24:28])),
		StrategyID:   schema.StrategyID(binary.LittleEndian.Uint32(src[28:32])),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[32:36])),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[40:48]))),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[48:56]))),
		Fee:          schema.Fee(int64(binary.LittleEndian.Uint64(src[56:64]))),
	}
	copy(fill.OrderID[:], src[8:24])
	return fill, true
}
