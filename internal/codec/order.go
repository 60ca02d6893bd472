package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const OrderEventPayloadSize = 72

// EncodeOrderEvent serializes an order lifecycle snapshot into a
// fixed-size payload.
func EncodeOrderEvent(dst []byte, event schema.OrderEvent) []byte {
	if cap(dst) < OrderEventPayloadSize {
		dst = make([]byte, OrderEventPayloadSize)
	} else {
		dst = dst[:OrderEventPayloadSize]
	}

	copy(dst[0:16], event.OrderID[:])
	binary.LittleEndian.PutUint32(dst[16:20], uint32(event.AccountID))
	binary.LittleEndian.PutUint32(dst[20:24], uint32(event.StrategyID))
	binary.LittleEndian.PutUint32(dst[24:28], uint32(event.InstrumentID))
	binary.LittleEndian.PutUint16(dst[28:30], uint16(event.Side))
	binary.LittleEndian.PutUint16(dst[30:32], uint16(event.Type))
	binary.LittleEndian.PutUint16(dst[32:34], uint16(event.TimeInForce))
	binary.LittleEndian.PutUint16(dst[34:36], uint16(event.State))
	binary.LittleEndian.PutUint16(dst[36:38], uint16(event.Reason))
	binary.LittleEndian.PutUint16(dst[38:40], 0)
	binary.LittleEndian.PutUint64(dst[40:48], uint64(event.Price))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(event.NewPrice))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(event.Qty))
	binary.LittleEndian.PutUint64(dst[64:72], uint64(event.CumQty))

	return dst
}

// DecodeOrderEvent parses a fixed-size order lifecycle payload.
func DecodeOrderEvent(src []byte) (schema.OrderEvent, bool) {
	if len(src) < OrderEventPayloadSize {
		return schema.OrderEvent{}, false
	}
	event := schema.OrderEvent{
		AccountID:    schema.AccountID(binary.LittleEndian.Uint32(src[16:20])),
		StrategyID:   schema.StrategyID(binary.LittleEndian.Uint32(src[20:24])),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[24:28])),
		Side:         schema.OrderSide(binary.LittleEndian.Uint16(src[28:30])),
		Type:         schema.OrderType(binary.LittleEndian.Uint16(src[30:32])),
		TimeInForce:  schema.TimeInForce(binary.LittleEndian.Uint16(src[32:34])),
		State:        schema.OrderState(binary.LittleEndian.Uint16(src[34:36])),
		Reason:       schema.RejectReason(binary.LittleEndian.Uint16(src[36:38])),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[40:48]))),
		NewPrice:     schema.Price(int64(binary.LittleEndian.Uint64(src[48:56]))),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[56:64]))),
		CumQty:       schema.Quantity(int64(binary.LittleEndian.Uint64(src[64:72]))),
	}
	copy(event.OrderID[:], src[0:16])
	return event, true
}
