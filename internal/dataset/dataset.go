// Package dataset imports OHLCV price series from CSV files.
package dataset

import (
	"bytes"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "twse-backtester/internal/errors"
	"twse-backtester/internal/models"
)

// Column aliases accepted in CSV headers, normalized to canonical names
// before unmarshalling. Both English and Chinese headers are common in
// exported TWSE data.
var headerAliases = map[string]string{
	"date": "date", "datetime": "date", "time": "date", "日期": "date",
	"open": "open", "open_price": "open", "開盤": "open",
	"high": "high", "high_price": "high", "最高": "high",
	"low": "low", "low_price": "low", "最低": "low",
	"close": "close", "close_price": "close", "adj_close": "close", "收盤": "close", "收盤價": "close",
	"volume": "volume", "vol": "volume", "成交量": "volume",
	"symbol": "symbol", "ticker": "symbol", "代號": "symbol", "股票代號": "symbol", "標的": "symbol",
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	time.RFC3339,
}

type csvRow struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume int64   `csv:"volume"`
	Symbol string  `csv:"symbol"`
}

// LoadFile reads one CSV file into a price series. Rows without a parsable
// date or a positive close are dropped. fallbackSymbol is used when the
// file carries no symbol column.
func LoadFile(path, fallbackSymbol string) ([]models.PriceRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewDataError("csv", fallbackSymbol, "reading file", err)
	}
	return Parse(raw, fallbackSymbol)
}

// Parse converts raw CSV bytes into a price series sorted by date.
func Parse(raw []byte, fallbackSymbol string) ([]models.PriceRecord, error) {
	normalized, err := normalizeHeader(raw)
	if err != nil {
		return nil, err
	}

	var rows []csvRow
	if err := gocsv.UnmarshalBytes(normalized, &rows); err != nil {
		return nil, apperrors.NewDataError("csv", fallbackSymbol, "parsing rows", err)
	}

	records := make([]models.PriceRecord, 0, len(rows))
	for _, row := range rows {
		ts, ok := parseDate(row.Date)
		if !ok || row.Close <= 0 {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSpace(row.Symbol))
		if symbol == "" {
			symbol = fallbackSymbol
		}
		records = append(records, models.PriceRecord{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}
	if len(records) == 0 {
		return nil, apperrors.ErrEmptyDateRange
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}

// Summarize builds the coverage summary for one imported series.
func Summarize(symbol string, records []models.PriceRecord) models.DatasetSummary {
	summary := models.DatasetSummary{
		Symbol:    symbol,
		Name:      symbol,
		RowCount:  len(records),
		Frequency: detectFrequency(records),
	}
	if len(records) > 0 {
		summary.Start = models.DateKey(records[0].Timestamp)
		summary.End = models.DateKey(records[len(records)-1].Timestamp)
	}
	return summary
}

// detectFrequency classifies a sorted series by the median gap between
// consecutive records.
func detectFrequency(records []models.PriceRecord) string {
	if len(records) < 2 {
		return "unknown"
	}
	diffs := make([]time.Duration, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		if diff := records[i].Timestamp.Sub(records[i-1].Timestamp); diff > 0 {
			diffs = append(diffs, diff)
		}
	}
	if len(diffs) == 0 {
		return "unknown"
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i] < diffs[j] })
	median := diffs[len(diffs)/2]
	switch {
	case median <= 12*time.Hour:
		return "intraday"
	case median <= 48*time.Hour:
		return "daily"
	default:
		return "unknown"
	}
}

// normalizeHeader lowercases, trims and de-aliases the first CSV line so
// gocsv can match columns by canonical name.
func normalizeHeader(raw []byte) ([]byte, error) {
	idx := bytes.IndexByte(raw, '\n')
	if idx < 0 {
		return nil, apperrors.ErrEmptyDateRange
	}
	header := strings.TrimRight(string(raw[:idx]), "\r")
	columns := strings.Split(header, ",")
	for i, column := range columns {
		name := strings.ToLower(strings.TrimSpace(strings.Trim(column, `"`)))
		if canonical, ok := headerAliases[name]; ok {
			columns[i] = canonical
		} else {
			columns[i] = name
		}
	}
	var buf bytes.Buffer
	buf.WriteString(strings.Join(columns, ","))
	buf.WriteByte('\n')
	buf.Write(raw[idx+1:])
	return buf.Bytes(), nil
}

func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
