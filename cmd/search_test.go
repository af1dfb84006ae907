package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/offer-sourcing/internal/model"
)

func resetSearchFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		searchCategory, searchCurrency = "", ""
		searchMinPrice, searchMaxPrice = 0, 0
		searchAttrs = nil
	})
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("search", pflag.ContinueOnError)
	fs.StringVar(&searchCategory, "category", "", "")
	fs.Float64Var(&searchMinPrice, "min-price", 0, "")
	fs.Float64Var(&searchMaxPrice, "max-price", 0, "")
	fs.StringVar(&searchCurrency, "currency", "", "")
	fs.StringArrayVar(&searchAttrs, "attr", nil, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestBuildQuery(t *testing.T) {
	resetSearchFlags(t)
	fs := testFlags(t, "--min-price", "0", "--currency", "eur", "--attr", "color=blue", "--attr", "Size = XL")

	q, err := buildQuery([]string{"  usb   hub "}, fs)
	require.NoError(t, err)

	assert.Equal(t, "usb hub", q.Phrase)
	require.NotNil(t, q.Constraints.MinPrice)
	assert.Zero(t, *q.Constraints.MinPrice)
	assert.Nil(t, q.Constraints.MaxPrice, "unset flag must not become a zero constraint")
	assert.Equal(t, "EUR", q.Constraints.Currency)
	assert.Equal(t, map[string]string{"color": "blue", "size": "XL"}, q.Constraints.Attributes)
}

func TestBuildQuery_CategoryOnly(t *testing.T) {
	resetSearchFlags(t)
	fs := testFlags(t, "--category", "office chairs")

	q, err := buildQuery(nil, fs)
	require.NoError(t, err)
	assert.Equal(t, "office chairs", q.SearchText())
}

func TestBuildQuery_Invalid(t *testing.T) {
	resetSearchFlags(t)

	_, err := buildQuery(nil, testFlags(t))
	assert.ErrorIs(t, err, model.ErrInvalidQuery)

	_, err = buildQuery([]string{"x"}, testFlags(t, "--min-price", "20", "--max-price", "10"))
	assert.ErrorIs(t, err, model.ErrInvalidQuery)
}

func TestParseAttrs(t *testing.T) {
	got, err := parseAttrs([]string{"a=1", "b=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y"}, got)

	_, err = parseAttrs([]string{"novalue"})
	assert.Error(t, err)

	_, err = parseAttrs([]string{"=v"})
	assert.Error(t, err)

	got, err = parseAttrs(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRenderResult(t *testing.T) {
	res := &model.SourcingResult{
		SessionID: "sess-1",
		Offers: []model.NormalizedOffer{
			{Title: "Blue Widget", PriceMinor: 1999, Currency: "USD", Merchant: "shop.example.com", Provenance: []string{"demo", "ebay"}, Score: 0.875, GroupSize: 2},
			{Title: "青いウィジェット", PriceMinor: 2500, Currency: "JPY", Merchant: "market.example.org", Provenance: []string{"demo"}, Score: 0.5},
		},
		ProviderStatus: []model.ProviderStatusReport{
			{Provider: "demo", Status: model.StatusSucceeded, Latency: 12 * time.Millisecond, ResultCount: 2},
			{Provider: "ebay", Status: model.StatusTimedOut, Latency: 4 * time.Second, Message: "deadline exceeded"},
		},
		Stats:           model.SessionStats{RawResults: 3, Normalized: 3, UniqueOffers: 2},
		ServedFromCache: true,
	}

	var buf bytes.Buffer
	require.NoError(t, renderResult(&buf, res))
	out := buf.String()

	assert.Contains(t, out, "19.99 USD")
	assert.Contains(t, out, "2500 JPY")
	assert.Contains(t, out, "demo,ebay")
	assert.Contains(t, out, "0.875")
	assert.Contains(t, out, "timed_out")
	assert.Contains(t, out, "deadline exceeded")
	assert.Contains(t, out, "2 offers from 3 raw results (1 duplicates merged, source: cache, session sess-1)")
}

func TestRenderResult_NoOffers(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderResult(&buf, &model.SourcingResult{SessionID: "s"}))
	assert.NotContains(t, buf.String(), "Title")
	assert.Contains(t, buf.String(), "0 offers")
}

func TestWriteTable_AlignsWideRunes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, []string{"Name", "N"}, [][]string{
		{"abc", "1"},
		{"日本", "22"},
	}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "| Name | N  |", lines[0])
	assert.Equal(t, "|------|----|", lines[1])
	assert.Equal(t, "| abc  | 1  |", lines[2])
	assert.Equal(t, "| 日本 | 22 |", lines[3])
}

func TestWriteTable_TruncatesLongCells(t *testing.T) {
	var buf bytes.Buffer
	long := strings.Repeat("x", 100)
	require.NoError(t, writeTable(&buf, []string{"Title"}, [][]string{{long}}))
	assert.NotContains(t, buf.String(), long)
	assert.Contains(t, buf.String(), "…")
}
