package feed

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/secdb/internal/model"
)

// LoadTickers reads symbol,cik rows and returns the symbol of each CIK.
// Share class suffixes after '^' are dropped.
func LoadTickers(r io.Reader) (map[int64]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	out := make(map[int64]string)
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "tickers: read row")
		}
		if len(record) < 2 {
			return nil, eris.Errorf("tickers: line %d has %d fields", line, len(record))
		}
		cik, err := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "tickers: cik on line %d", line)
		}
		symbol, _, _ := strings.Cut(strings.TrimSpace(record[0]), "^")
		out[cik] = symbol
	}
}

// LoadTickersFile reads the ticker list at path.
func LoadTickersFile(path string) (map[int64]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tickers: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return LoadTickers(f)
}

// Select keeps the statement filings of companies with a ticker, optionally
// restricted to one CIK, and sets their ticker.
func Select(entries []Entry, tickers map[int64]string, cik int64) []model.Filing {
	var out []model.Filing
	for _, e := range entries {
		if !model.IsStatementForm(e.FormType) {
			continue
		}
		symbol, ok := tickers[e.CIK]
		if !ok {
			continue
		}
		if cik != 0 && e.CIK != cik {
			continue
		}
		f := e.Filing
		f.Ticker = symbol
		out = append(out, f)
	}
	return out
}
