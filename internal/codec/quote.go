package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

// QuotePayloadSize covers the header, the last trade, both fixed-depth
// sides and the event timestamp.
const QuotePayloadSize = 24 + 2*schema.QuoteDepth*16 + 8

// EncodeQuote serializes a fixed-depth quote into a fixed-size payload.
// Sides shorter than the fixed depth are zero padded.
func EncodeQuote(dst []byte, quote schema.Quote) []byte {
	if cap(dst) < QuotePayloadSize {
		dst = make([]byte, QuotePayloadSize)
	} else {
		dst = dst[:QuotePayloadSize]
	}
	for i := range dst {
		dst[i] = 0
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(quote.InstrumentID))
	binary.LittleEndian.PutUint16(dst[4:6], quote.Flags)
	if quote.Last != nil {
		binary.LittleEndian.PutUint64(dst[8:16], uint64(quote.Last.Price))
		binary.LittleEndian.PutUint64(dst[16:24], uint64(quote.Last.Size))
	}

	offset := 24
	writeSide := func(levels []schema.QuoteLevel) {
		for i := 0; i < schema.QuoteDepth; i++ {
			if i < len(levels) {
				binary.LittleEndian.PutUint64(dst[offset:offset+8], uint64(levels[i].Price))
				binary.LittleEndian.PutUint64(dst[offset+8:offset+16], uint64(levels[i].Size))
			}
			offset += 16
		}
	}
	writeSide(quote.Bids)
	writeSide(quote.Asks)
	binary.LittleEndian.PutUint64(dst[offset:offset+8], uint64(quote.TsEvent))

	return dst
}

// DecodeQuote parses a fixed-size quote payload. Zero levels are
// dropped from the decoded sides.
func DecodeQuote(src []byte) (schema.Quote, bool) {
	if len(src) < QuotePayloadSize {
		return schema.Quote{}, false
	}
	quote := schema.Quote{
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[0:4])),
		Flags:        binary.LittleEndian.Uint16(src[4:6]),
	}
	lastPrice := schema.Price(int64(binary.LittleEndian.Uint64(src[8:16])))
	lastSize := schema.Quantity(int64(binary.LittleEndian.Uint64(src[16:24])))
	if lastPrice != 0 || lastSize != 0 {
		quote.Last = &schema.QuoteTrade{Price: lastPrice, Size: lastSize}
	}

	offset := 24
	readSide := func() []schema.QuoteLevel {
		levels := make([]schema.QuoteLevel, 0, schema.QuoteDepth)
		for i := 0; i < schema.QuoteDepth; i++ {
			price := schema.Price(int64(binary.LittleEndian.Uint64(src[offset : offset+8])))
			size := schema.Quantity(int64(binary.LittleEndian.Uint64(src[offset+8 : offset+16])))
			offset += 16
			if price != 0 {
				levels = append(levels, schema.QuoteLevel{Price: price, Size: size})
			}
		}
		return levels
	}
	quote.Bids = readSide()
	quote.Asks = readSide()
	quote.TsEvent = int64(binary.LittleEndian.Uint64(src[offset : offset+8]))
	return quote, true
}
