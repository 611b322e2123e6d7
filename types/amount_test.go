package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals uint8
		want     string
	}{
		{"cent on six decimals", "0.01", 6, "10000"},
		{"whole unit on six decimals", "1.00", 6, "1000000"},
		{"eighteen decimals", "0.5", 18, "500000000000000000"},
		{"zero", "0", 6, "0"},
		{"integer amount", "25", 6, "25000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.amount, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseAmountRejectsInvalid(t *testing.T) {
	_, err := ParseAmount("not-a-number", 6)
	require.Error(t, err)
	assert.Equal(t, ErrConfiguration, CodeOf(err))

	_, err = ParseAmount("-1", 6)
	require.Error(t, err)
	assert.Equal(t, ErrConfiguration, CodeOf(err))
}

func TestAmountRoundTrip(t *testing.T) {
	cases := []struct {
		amount   string
		decimals uint8
	}{
		{"0.01", 6},
		{"1.5", 6},
		{"123.456789", 6},
		{"0.000000000000000001", 18},
		{"42", 0},
	}

	for _, c := range cases {
		atomic, err := ParseAmount(c.amount, c.decimals)
		require.NoError(t, err)
		assert.Equal(t, c.amount, FormatAmount(atomic, c.decimals),
			"round trip for %s with %d decimals", c.amount, c.decimals)
	}
}

func TestAtomicToDecimal(t *testing.T) {
	d, err := AtomicToDecimal("1000000", 6)
	require.NoError(t, err)
	assert.Equal(t, "1", d.String())

	_, err = AtomicToDecimal("12.5", 6)
	require.Error(t, err)
	assert.Equal(t, ErrProtocolViolation, CodeOf(err))

	_, err = AtomicToDecimal("-3", 6)
	require.Error(t, err)
}

func TestFormatAmountLargeValue(t *testing.T) {
	n, ok := new(big.Int).SetString("123456789000000000000", 10)
	require.True(t, ok)
	assert.Equal(t, "123.456789", FormatAmount(n, 18))
}
