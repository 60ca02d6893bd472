package feed

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestParseScaled(t *testing.T) {
	cases := []struct {
		in    string
		scale schema.Scale
		want  int64
	}{
		{"123", 0, 123},
		{"123", 2, 12300},
		{"1.2", 4, 12000},
		{"1.23456", 2, 123},
		{"0.5", 2, 50},
		{"-0.5", 2, -50},
		{"-12.34", 2, -1234},
		{"+3", 0, 3},
		{" 7.25 ", 2, 725},
		{"0", 2, 0},
	}
	for _, c := range cases {
		got, err := parseScaled(c.in, c.scale)
		require.NoError(t, err, "parseScaled(%q, %d)", c.in, c.scale)
		assert.Equal(t, c.want, got, "parseScaled(%q, %d)", c.in, c.scale)
	}
}

func TestParseScaledRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", " ", "abc", "1.2.3", ".", "-", "1,5", "1e3"} {
		_, err := parseScaled(in, 2)
		assert.Error(t, err, "parseScaled(%q)", in)
	}
}

func TestFormatScaled(t *testing.T) {
	cases := []struct {
		value int64
		scale schema.Scale
		want  string
	}{
		{0, 2, "0.00"},
		{5, 2, "0.05"},
		{123, 2, "1.23"},
		{12000, 4, "1.2000"},
		{-1234, 2, "-12.34"},
		{42, 0, "42"},
		{0, 0, "0"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, formatScaled(c.value, c.scale), "formatScaled(%d, %d)", c.value, c.scale)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, value := range []int64{0, 1, 99, 100, -1, -101, 123456789} {
		s := formatScaled(value, 3)
		got, err := parseScaled(s, 3)
		require.NoError(t, err)
		assert.Equal(t, value, got, "round trip through %q", s)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	reg := schema.NewRegistry()
	id, err := reg.AddInstrument("BTCUSDT", 1, schema.ScaleSpec{PriceScale: 2, QuantityScale: 0})
	require.NoError(t, err)
	inst, ok := reg.Instrument(id)
	require.True(t, ok)

	quote := schema.Quote{
		InstrumentID: id,
		Flags:        schema.QuoteFlagLevelUpdate | schema.QuoteFlagNormalTrade,
		Bids: []schema.QuoteLevel{
			{Price: 10050, Size: 12},
			{Price: 10049, Size: 30},
		},
		Asks: []schema.QuoteLevel{
			{Price: 10051, Size: 7},
		},
		Last:    &schema.QuoteTrade{Price: 10051, Size: 3},
		TsEvent: 1700000000000000000,
	}

	raw, err := sonic.Marshal(Encode(inst, quote))
	require.NoError(t, err)

	var wq WireQuote
	require.NoError(t, sonic.Unmarshal(raw, &wq))
	assert.Equal(t, "BTCUSDT", wq.Instrument)

	decoded, err := Decode(reg, wq)
	require.NoError(t, err)
	assert.Equal(t, quote, decoded)
}

func TestDecodeWithoutTrade(t *testing.T) {
	reg := schema.NewRegistry()
	id, err := reg.AddInstrument("ETHUSDT", 1, schema.ScaleSpec{PriceScale: 2, QuantityScale: 1})
	require.NoError(t, err)
	inst, ok := reg.Instrument(id)
	require.True(t, ok)

	quote := schema.Quote{
		InstrumentID: id,
		Flags:        schema.QuoteFlagLevelUpdate,
		Bids:         []schema.QuoteLevel{{Price: 200000, Size: 15}},
		Asks:         []schema.QuoteLevel{{Price: 200010, Size: 5}},
		TsEvent:      42,
	}

	raw, err := sonic.Marshal(Encode(inst, quote))
	require.NoError(t, err)

	var wire WireQuote
	require.NoError(t, sonic.Unmarshal(raw, &wire))
	decoded, err := Decode(reg, wire)
	require.NoError(t, err)
	assert.Nil(t, decoded.Last)
	assert.Equal(t, quote, decoded)
}

func TestDecodeUnknownInstrument(t *testing.T) {
	reg := schema.NewRegistry()
	_, err := Decode(reg, WireQuote{Instrument: "NOPE"})
	assert.Error(t, err)
}

func TestDecodeRejectsBadLevelArity(t *testing.T) {
	reg := schema.NewRegistry()
	_, err := reg.AddInstrument("BTCUSDT", 1, schema.ScaleSpec{PriceScale: 2})
	require.NoError(t, err)

	var wq WireQuote
	require.NoError(t, sonic.Unmarshal([]byte(`{"instrument":"BTCUSDT","bids":[["100.00"]],"asks":[]}`), &wq))
	_, err = Decode(reg, wq)
	assert.Error(t, err)
}
