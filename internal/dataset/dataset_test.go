package dataset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "twse-backtester/internal/errors"
	"twse-backtester/internal/models"
)

func TestParseEnglishHeader(t *testing.T) {
	csv := `Date,Open,High,Low,Close,Volume,Symbol
2024-06-04,101,103,100,102,12000,2330
2024-06-03,100,102,99,101,10000,2330
`
	records, err := Parse([]byte(csv), "FALLBACK")
	require.NoError(t, err)
	require.Len(t, records, 2)

	// sorted by date regardless of file order
	assert.Equal(t, "2024-06-03", models.DateKey(records[0].Timestamp))
	assert.Equal(t, "2024-06-04", models.DateKey(records[1].Timestamp))
	assert.Equal(t, "2330", records[0].Symbol)
	assert.Equal(t, 101.0, records[0].Close)
	assert.Equal(t, int64(10000), records[0].Volume)
}

func TestParseChineseHeader(t *testing.T) {
	csv := `日期,開盤,最高,最低,收盤,成交量
2024/06/03,580,590,578,588,25000
2024/06/04,589,595,586,592,31000
`
	records, err := Parse([]byte(csv), "2330")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2330", records[0].Symbol)
	assert.Equal(t, 588.0, records[0].Close)
	assert.Equal(t, 590.0, records[0].High)
}

func TestParseDropsBadRows(t *testing.T) {
	csv := `date,close
2024-06-03,100
not-a-date,101
2024-06-05,0
2024-06-06,-5
2024-06-07,103
`
	records, err := Parse([]byte(csv), "2330")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 100.0, records[0].Close)
	assert.Equal(t, 103.0, records[1].Close)
}

func TestParseNoValidRows(t *testing.T) {
	csv := `date,close
bad,0
`
	_, err := Parse([]byte(csv), "2330")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrEmptyDateRange))
	assert.Equal(t, "行情資料不足，請確認 CSV 內容是否包含有效的日期與價格。", err.Error())
}

func TestParseHeaderOnly(t *testing.T) {
	_, err := Parse([]byte("date,close\n"), "2330")
	assert.Error(t, err)
}

func TestParseSymbolFallbackAndUppercase(t *testing.T) {
	csv := `date,close,symbol
2024-06-03,100,tsm
2024-06-04,101,
`
	records, err := Parse([]byte(csv), "0050")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "TSM", records[0].Symbol)
	assert.Equal(t, "0050", records[1].Symbol)
}

func TestParseQuotedHeader(t *testing.T) {
	csv := `"Date","Close"
2024-06-03,100
`
	records, err := Parse([]byte(csv), "2330")
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestParseCompactDateLayout(t *testing.T) {
	csv := `date,close
20240603,100
`
	records, err := Parse([]byte(csv), "2330")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-03", models.DateKey(records[0].Timestamp))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2330.csv")
	csv := `date,open,high,low,close,volume
2024-06-03,100,102,99,101,10000
2024-06-04,101,103,100,102,12000
`
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	records, err := LoadFile(path, "2330")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"), "2330")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	records := make([]models.PriceRecord, 5)
	for i := range records {
		records[i] = models.PriceRecord{Timestamp: start.AddDate(0, 0, i), Close: 100}
	}

	summary := Summarize("2330", records)
	assert.Equal(t, "2330", summary.Symbol)
	assert.Equal(t, 5, summary.RowCount)
	assert.Equal(t, "2024-06-03", summary.Start)
	assert.Equal(t, "2024-06-07", summary.End)
	assert.Equal(t, "daily", summary.Frequency)
}

func TestDetectFrequency(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	intraday := []models.PriceRecord{
		{Timestamp: base},
		{Timestamp: base.Add(time.Hour)},
		{Timestamp: base.Add(2 * time.Hour)},
	}
	assert.Equal(t, "intraday", detectFrequency(intraday))

	weekly := []models.PriceRecord{
		{Timestamp: base},
		{Timestamp: base.AddDate(0, 0, 7)},
		{Timestamp: base.AddDate(0, 0, 14)},
	}
	assert.Equal(t, "unknown", detectFrequency(weekly))

	assert.Equal(t, "unknown", detectFrequency(nil))
	assert.Equal(t, "unknown", detectFrequency(intraday[:1]))
}
