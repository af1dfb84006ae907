package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/offer-sourcing/internal/model"
)

func TestParseMinor_Text(t *testing.T) {
	tests := []struct {
		text  string
		scale int
		want  int64
	}{
		{"$1,299.99", 2, 129999},
		{"1.299,99 €", 2, 129999},
		{"12,50", 2, 1250},
		{"1,299", 2, 129900},
		{"1.299.000", 2, 129900000},
		{"19.999", 2, 2000},
		{"19.5", 2, 1950},
		{"¥1,500", 0, 1500},
		{"$10 - $20", 2, 1000},
		{"USD 45", 2, 4500},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParseMinor(nil, tt.text, tt.scale)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMinor_Amount(t *testing.T) {
	got, err := ParseMinor(model.Float(19.99), "ignored", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1999), got)

	_, err = ParseMinor(model.Float(-1), "", 2)
	assert.ErrorIs(t, err, errBadPrice)
}

func TestParseMinor_Failures(t *testing.T) {
	_, err := ParseMinor(nil, "", 2)
	assert.ErrorIs(t, err, errNoPrice)

	_, err = ParseMinor(nil, "Free shipping", 2)
	assert.ErrorIs(t, err, errBadPrice)

	_, err = ParseMinor(nil, "-5.00", 2)
	assert.ErrorIs(t, err, errBadPrice)
}

func TestScale(t *testing.T) {
	s, err := Scale("USD")
	require.NoError(t, err)
	assert.Equal(t, 2, s)

	s, err = Scale("JPY")
	require.NoError(t, err)
	assert.Equal(t, 0, s)

	_, err = Scale("ZZZ")
	assert.Error(t, err)
}

func TestDetectCurrency(t *testing.T) {
	assert.Equal(t, "GBP", DetectCurrency("£12.00"))
	assert.Equal(t, "EUR", DetectCurrency("12.00 EUR"))
	assert.Equal(t, "USD", DetectCurrency("$5"))
	assert.Equal(t, "", DetectCurrency("12.00"))
}

func TestDetectCurrency_CodeMustTouchAmount(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"CUP $5", "USD"},
		{"TOP deal £9.99", "GBP"},
		{"ALL sizes 12.00", ""},
		{"EUR12", "EUR"},
		{"1,299.00JPY", "JPY"},
		{"(CAD 15)", "CAD"},
		{"usd 5", ""},
		{"XYZ 5", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectCurrency(tt.text))
		})
	}
}

func TestConvert(t *testing.T) {
	got, ok := Convert(1000, "EUR", "USD", DefaultFXRates)
	require.True(t, ok)
	assert.Equal(t, int64(1080), got)

	got, ok = Convert(1500, "JPY", "USD", DefaultFXRates)
	require.True(t, ok)
	assert.Equal(t, int64(1005), got)

	_, ok = Convert(1000, "SEK", "USD", DefaultFXRates)
	assert.False(t, ok)
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "19.99", FormatMinor(1999, "USD"))
	assert.Equal(t, "1500", FormatMinor(1500, "JPY"))
}
