// Package feed turns external market data into schema.Quote updates.
// The wire format is JSON with decimal strings; prices and sizes are
// converted to scaled integers using the instrument registry.
package feed

import (
	"strings"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// WireQuote is the JSON shape published by the market data generator
// and consumed by the trader feed client.
type WireQuote struct {
	Instrument string              `json:"instrument"`
	Flags      uint16              `json:"flags"`
	Bids       [][]decimal.Decimal `json:"bids"`
	Asks       [][]decimal.Decimal `json:"asks"`
	Last       []decimal.Decimal   `json:"last,omitempty"`
	Ts         int64               `json:"ts"`
}

// EncodedQuote is the producer-side wire shape. Prices and sizes are
// rendered as decimal strings so consumers never see scale internals.
type EncodedQuote struct {
	Instrument string     `json:"instrument"`
	Flags      uint16     `json:"flags"`
	Bids       [][]string `json:"bids"`
	Asks       [][]string `json:"asks"`
	Last       []string   `json:"last,omitempty"`
	Ts         int64      `json:"ts"`
}

// Encode renders a quote for the wire using the instrument's scales.
func Encode(inst schema.Instrument, quote schema.Quote) EncodedQuote {
	out := EncodedQuote{
		Instrument: inst.Name,
		Flags:      quote.Flags,
		Bids:       encodeLevels(quote.Bids, inst.Scale),
		Asks:       encodeLevels(quote.Asks, inst.Scale),
		Ts:         quote.TsEvent,
	}
	if quote.Last != nil {
		out.Last = []string{
			formatScaled(int64(quote.Last.Price), inst.Scale.PriceScale),
			formatScaled(int64(quote.Last.Size), inst.Scale.QuantityScale),
		}
	}
	return out
}

func encodeLevels(levels []schema.QuoteLevel, scale schema.ScaleSpec) [][]string {
	out := make([][]string, 0, len(levels))
	for _, level := range levels {
		out = append(out, []string{
			formatScaled(int64(level.Price), scale.PriceScale),
			formatScaled(int64(level.Size), scale.QuantityScale),
		})
	}
	return out
}

// Decode converts a wire quote using the registry's instrument scales.
func Decode(reg *schema.Registry, wq WireQuote) (schema.Quote, error) {
	id, ok := reg.InstrumentIDByName(wq.Instrument)
	if !ok {
		return schema.Quote{}, errors.Errorf("unknown instrument %q", wq.Instrument)
	}
	inst, _ := reg.Instrument(id)

	quote := schema.Quote{
		InstrumentID: id,
		Flags:        wq.Flags,
		TsEvent:      wq.Ts,
	}

	var err error
	if quote.Bids, err = decodeLevels(wq.Bids, inst.Scale); err != nil {
		return schema.Quote{}, errors.Wrapf(err, "bids for %s", wq.Instrument)
	}
	if quote.Asks, err = decodeLevels(wq.Asks, inst.Scale); err != nil {
		return schema.Quote{}, errors.Wrapf(err, "asks for %s", wq.Instrument)
	}
	if len(wq.Last) == 2 {
		price, err := scaled(wq.Last[0], inst.Scale.PriceScale)
		if err != nil {
			return schema.Quote{}, errors.Wrapf(err, "last price for %s", wq.Instrument)
		}
		size, err := scaled(wq.Last[1], inst.Scale.QuantityScale)
		if err != nil {
			return schema.Quote{}, errors.Wrapf(err, "last size for %s", wq.Instrument)
		}
		quote.Last = &schema.QuoteTrade{
			Price: schema.Price(price),
			Size:  schema.Quantity(size),
		}
	}
	return quote, nil
}

func decodeLevels(raw [][]decimal.Decimal, scale schema.ScaleSpec) ([]schema.QuoteLevel, error) {
	levels := make([]schema.QuoteLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) != 2 {
			return nil, errors.Errorf("level needs [price, size], got %d fields", len(pair))
		}
		price, err := scaled(pair[0], scale.PriceScale)
		if err != nil {
			return nil, err
		}
		size, err := scaled(pair[1], scale.QuantityScale)
		if err != nil {
			return nil, err
		}
		levels = append(levels, schema.QuoteLevel{
			Price: schema.Price(price),
			Size:  schema.Quantity(size),
		})
	}
	return levels, nil
}

// scaled converts a decimal to a fixed-point integer with the given
// number of fractional digits, truncating any excess precision.
func scaled(d decimal.Decimal, scale schema.Scale) (int64, error) {
	return parseScaled(d.String(), scale)
}

func parseScaled(s string, scale schema.Scale) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty decimal")
	}
	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, fracPart = s[:dot], s[dot+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0, errors.Errorf("malformed decimal %q", s)
	}
	if len(fracPart) > int(scale) {
		fracPart = fracPart[:scale]
	}
	for schema.Scale(len(fracPart)) < scale {
		fracPart += "0"
	}

	var value int64
	for _, digits := range []string{intPart, fracPart} {
		for _, c := range digits {
			if c < '0' || c > '9' {
				return 0, errors.Errorf("malformed decimal %q", s)
			}
			value = value*10 + int64(c-'0')
		}
	}
	if negative {
		value = -value
	}
	return value, nil
}

// formatScaled renders a fixed-point integer back to a decimal string.
func formatScaled(value int64, scale schema.Scale) string {
	negative := value < 0
	if negative {
		value = -value
	}

	digits := make([]byte, 0, 20)
	for value > 0 || len(digits) <= int(scale) {
		digits = append(digits, byte('0'+value%10))
		value /= 10
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	split := len(digits) - int(scale)
	b.Write(digits[:split])
	if scale > 0 {
		b.WriteByte('.')
		b.Write(digits[split:])
	}
	return b.String()
}
