package statement

import (
	"time"

	"github.com/sells-group/secdb/internal/model"
)

// QuarterWindowStart returns the last day of the month lying months before
// period. Prior quarterly rows with a filing period between this date and
// period cover the rest of a cumulative statement.
func QuarterWindowStart(period time.Time, months int) time.Time {
	y, m := period.Year(), int(period.Month())-months
	for m < 1 {
		m += 12
		y--
	}
	// Day 0 of the following month is the last day of month m.
	return time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC)
}

// ExpectedQuarters returns how many prior 3-month rows a cumulative
// statement of the given duration needs to isolate its last quarter.
func ExpectedQuarters(annual bool, duration int) int {
	if annual {
		return 3
	}
	return duration/3 - 1
}

// NeedsQuarter reports whether a statement row is cumulative and should get
// a reconstructed 3-month row. Income rows are reconstructed for annual
// filings only; cash flow rows for annual filings and year-to-date
// quarterly filings.
func NeedsQuarter(kind model.StatementKind, annual bool, duration int) bool {
	switch kind {
	case model.Income:
		return annual
	case model.Cashflow:
		return annual || duration > QuarterlyMonths
	default:
		return false
	}
}

// SubtractQuarters returns cumulative minus the sum of priors, line item by
// line item. Null cumulative items stay null; null prior items are skipped.
func SubtractQuarters(items []string, cumulative model.Values, priors []model.Values) model.Values {
	out := make(model.Values, len(items))
	for _, item := range items {
		p := cumulative[item]
		if p == nil {
			out[item] = nil
			continue
		}
		v := *p
		for _, prior := range priors {
			if q := prior[item]; q != nil {
				v -= *q
			}
		}
		out[item] = model.Int(v)
	}
	return out
}

// Quarter derives the 3-month row from a cumulative row and its prior
// quarterly rows.
func Quarter(items []string, cumulative model.StatementRow, priors []model.StatementRow) model.StatementRow {
	vals := make([]model.Values, len(priors))
	for i, p := range priors {
		vals[i] = p.Values
	}
	row := cumulative
	row.Duration = QuarterlyMonths
	row.Values = SubtractQuarters(items, cumulative.Values, vals)
	return row
}
