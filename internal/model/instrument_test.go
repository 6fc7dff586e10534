package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ValidateInstrument(t *testing.T) {
	tests := []struct {
		name        string
		pair        string
		expectError bool
	}{
		{name: "usd pair", pair: "btcusd", expectError: false},
		{name: "eur pair", pair: "btceur", expectError: false},
		{name: "usdt pair", pair: "xrpusdt", expectError: false},
		{name: "long base", pair: "hbarusd", expectError: false},
		{name: "empty", pair: "", expectError: true},
		{name: "uppercase", pair: "BTCUSD", expectError: true},
		{name: "no quote suffix", pair: "btcxyz", expectError: true},
		{name: "quote only", pair: "usd", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInstrument(tt.pair)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_ValidateInstruments(t *testing.T) {
	assert.NoError(t, ValidateInstruments([]string{"btcusd", "xrpusd"}, 10))
	assert.ErrorIs(t, ValidateInstruments(nil, 10), ErrNoInstruments)
	assert.ErrorIs(t, ValidateInstruments([]string{"btcusd", "xrpusd"}, 1), ErrTooManyInstruments)
	assert.Error(t, ValidateInstruments([]string{"btcusd", "nope"}, 10))
}

func Test_BaseSymbol(t *testing.T) {
	tests := []struct {
		pair string
		want string
	}{
		{pair: "btcusd", want: "BTC"},
		{pair: "xrpusd", want: "XRP"},
		{pair: "hbarusd", want: "HBAR"},
		{pair: "ethusdt", want: "ETH"},
		{pair: "xdceur", want: "XDC"},
		// Unrecognized quote falls back to trimming three characters.
		{pair: "abcxyz", want: "ABC"},
	}

	for _, tt := range tests {
		t.Run(tt.pair, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseSymbol(tt.pair))
		})
	}
}
