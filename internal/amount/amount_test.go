package amount

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "whole rupees with paise zeros", input: "250.00", want: 25000},
		{name: "whole rupees", input: "250", want: 25000},
		{name: "fractional paise scale", input: "99.99", want: 9999},
		{name: "one paisa", input: "0.01", want: 1},
		{name: "trailing zeros beyond paise", input: "10.500", want: 1050},
		{name: "zero", input: "0", wantErr: true},
		{name: "negative", input: "-5", wantErr: true},
		{name: "sub-paise precision", input: "10.005", wantErr: true},
		{name: "overflow", input: "99999999999999999999", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			major, err := Parse(tc.input)
			require.NoError(t, err)

			got, err := ToMinorUnits(major)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "  ", "abc", "1,000", "NaN"} {
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidAmount, raw)
	}
}

func TestFromFloatRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := FromFloat(v)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}

	d, err := FromFloat(250.0)
	require.NoError(t, err)
	minor, err := ToMinorUnits(d)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), minor)
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, FromMinorUnits(25050).Equal(decimal.RequireFromString("250.50")))
}
