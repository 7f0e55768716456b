package model

import "time"

// StatementKind names one of the canonical statements.
type StatementKind string

const (
	Balance  StatementKind = "balance"
	Income   StatementKind = "income"
	Cashflow StatementKind = "cashflow"
	Other    StatementKind = "other"
)

// StatementKinds lists the canonical statements in processing order.
var StatementKinds = []StatementKind{Balance, Income, Cashflow}

// String returns the kind as stored in the database.
func (k StatementKind) String() string { return string(k) }

// Values maps a canonical line item to its value. A nil entry means the
// item was not reported and could not be derived.
type Values map[string]*int64

// Int returns a pointer to v, for building Values literals.
func Int(v int64) *int64 { return &v }

// Get returns the value of item, or zero when it is null or absent.
func (v Values) Get(item string) int64 {
	if p := v[item]; p != nil {
		return *p
	}
	return 0
}

// Clone returns a deep copy of v.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, p := range v {
		if p == nil {
			out[k] = nil
			continue
		}
		out[k] = Int(*p)
	}
	return out
}

// StatementRow is one persisted canonical statement. Duration is the period
// length in months and is zero for balance sheets.
type StatementRow struct {
	AccessionNumber string        `json:"accession_number"`
	CIK             int64         `json:"cik"`
	Kind            StatementKind `json:"kind"`
	EndDate         time.Time     `json:"end_date"`
	Duration        int           `json:"duration,omitempty"`
	CurrencyCode    string        `json:"currency_code"`
	Values          Values        `json:"values"`
}

// RatioFamily distinguishes the two ratio computation windows.
type RatioFamily string

const (
	MostRecentQuarter    RatioFamily = "mrq"
	TrailingTwelveMonths RatioFamily = "ttm"
)

// RatioRow is one persisted set of ratios for a filing.
type RatioRow struct {
	AccessionNumber string              `json:"accession_number"`
	CIK             int64               `json:"cik"`
	EndDate         time.Time           `json:"end_date"`
	Kind            RatioFamily         `json:"kind"`
	Values          map[string]*float64 `json:"values"`
}

// FactRecord is the audit copy of one value seen while extracting a
// statement, together with the line item it ended up in (if any).
type FactRecord struct {
	AccessionNumber string        `json:"accession_number"`
	Report          StatementKind `json:"report"`
	Position        int           `json:"pos"`
	LineItem        string        `json:"lineitem,omitempty"`
	Label           string        `json:"label,omitempty"`
	Namespace       string        `json:"namespace"`
	Name            string        `json:"name"`
	Value           string        `json:"value,omitempty"`
	Level           int           `json:"level"`
	IsAbstract      bool          `json:"is_abstract"`
	IsTotal         bool          `json:"is_total"`
	IsNegated       bool          `json:"is_negated"`
}
