package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/report"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for statements, ratios and the
// filings they were computed from.
type Store interface {
	// Filings
	HasFiling(ctx context.Context, accession string) (bool, error)
	GetFiling(ctx context.Context, accession string) (*model.Filing, error)
	InsertFiling(ctx context.Context, f *model.Filing) error
	// DeleteFiling removes a filing with its facts, statements and ratios
	// in one transaction.
	DeleteFiling(ctx context.Context, accession string) error
	FilingsForPeriod(ctx context.Context, cik int64, period time.Time) ([]model.Filing, error)
	// PreviousFiling returns the latest filing of cik with a period before
	// the given date, or nil when there is none.
	PreviousFiling(ctx context.Context, cik int64, before time.Time) (*model.Filing, error)
	// FilingsBetween returns the filings of cik with a period in (after, through].
	FilingsBetween(ctx context.Context, cik int64, after, through time.Time) ([]model.Filing, error)
	ListFilings(ctx context.Context, cik int64) ([]model.Filing, error)

	// Statements
	InsertFacts(ctx context.Context, facts []model.FactRecord) error
	Facts(ctx context.Context, accession string, kind model.StatementKind) ([]model.FactRecord, error)
	InsertStatement(ctx context.Context, row *model.StatementRow) error
	Statements(ctx context.Context, accession string) ([]model.StatementRow, error)
	// QuarterlyStatements returns the 3-month rows of kind from quarterly
	// filings of cik with a period in [from, through].
	QuarterlyStatements(ctx context.Context, cik int64, kind model.StatementKind, from, through time.Time) ([]model.StatementRow, error)

	// Ratios
	InsertRatios(ctx context.Context, row *model.RatioRow) error
	Ratios(ctx context.Context, accession string) ([]model.RatioRow, error)

	// Tickers maps CIK to ticker symbol.
	InsertTickers(ctx context.Context, tickers map[int64]string) error
	Tickers(ctx context.Context) (map[int64]string, error)

	// Runs
	StartRun(ctx context.Context, feeds []string) (*model.Run, error)
	CompleteRun(ctx context.Context, id string, status model.RunStatus, result *model.RunResult) error
	GetRun(ctx context.Context, id string) (*model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const dateLayout = "2006-01-02"

// dateValue scans DATE, TIMESTAMP and ISO text columns alike.
type dateValue struct {
	t time.Time
}

func (d *dateValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.t = time.Time{}
	case time.Time:
		d.t = v.UTC()
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return eris.Errorf("store: cannot scan %T into date", src)
	}
	return nil
}

func (d *dateValue) parse(s string) error {
	if s == "" {
		d.t = time.Time{}
		return nil
	}
	for _, layout := range []string{dateLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			d.t = t.UTC()
			return nil
		}
	}
	return eris.Errorf("store: invalid date %q", s)
}

type scannable interface {
	Scan(dest ...any) error
}

type rowIter interface {
	scannable
	Next() bool
	Err() error
}

func filingSelect(s *Schema) string {
	return s.selectFrom(filingsTable, filingColumns)
}

func scanFiling(sc scannable) (*model.Filing, error) {
	var f model.Filing
	var filingDate, acceptance, period dateValue
	var companyName, fileNumber, assistant, otherCIKs, instanceURL, ticker, errs, runID *string
	var sic, fye *int

	err := sc.Scan(&f.AccessionNumber, &f.CIK, &companyName, &f.FormType, &filingDate, &fileNumber,
		&acceptance, &period, &assistant, &sic, &otherCIKs, &fye, &instanceURL, &ticker, &errs, &runID)
	if err != nil {
		return nil, err
	}
	f.FilingDate, f.AcceptanceDatetime, f.Period = filingDate.t, acceptance.t, period.t
	f.CompanyName = deref(companyName)
	f.FileNumber = deref(fileNumber)
	f.AssistantDirector = deref(assistant)
	f.OtherCIKNumbers = deref(otherCIKs)
	f.InstanceURL = deref(instanceURL)
	f.Ticker = deref(ticker)
	f.Errors = deref(errs)
	f.RunID = deref(runID)
	if sic != nil {
		f.AssignedSIC = *sic
	}
	if fye != nil {
		f.FiscalYearEnd = *fye
	}
	return &f, nil
}

func collectFilings(rows rowIter) ([]model.Filing, error) {
	var out []model.Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan filing")
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate filings")
}

func scanStatement(sc scannable, s *Schema, kind model.StatementKind) (*model.StatementRow, error) {
	items := s.defs.Statement(kind).LineItems
	row := model.StatementRow{Kind: kind, Values: make(model.Values, len(items))}
	var end dateValue
	var currency *string

	dest := []any{&row.AccessionNumber, &row.CIK, &end}
	if kind != model.Balance {
		dest = append(dest, &row.Duration)
	}
	dest = append(dest, &currency)
	vals := make([]*int64, len(items))
	for i := range items {
		dest = append(dest, &vals[i])
	}
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	row.EndDate = end.t
	row.CurrencyCode = deref(currency)
	for i, item := range items {
		row.Values[item] = vals[i]
	}
	return &row, nil
}

func collectStatements(rows rowIter, s *Schema, kind model.StatementKind) ([]model.StatementRow, error) {
	var out []model.StatementRow
	for rows.Next() {
		r, err := scanStatement(rows, s, kind)
		if err != nil {
			return nil, eris.Wrapf(err, "store: scan %s row", kind)
		}
		out = append(out, *r)
	}
	return out, eris.Wrapf(rows.Err(), "store: iterate %s rows", kind)
}

func collectRatios(rows rowIter, s *Schema) ([]model.RatioRow, error) {
	names := s.defs.Ratios.Names()
	var out []model.RatioRow
	for rows.Next() {
		r := model.RatioRow{Values: make(map[string]*float64, len(names))}
		var end dateValue
		var kind string
		vals := make([]*float64, len(names))
		dest := []any{&r.AccessionNumber, &r.CIK, &end, &kind}
		for i := range names {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "store: scan ratios")
		}
		r.EndDate = end.t
		r.Kind = model.RatioFamily(kind)
		for i, name := range names {
			r.Values[name] = vals[i]
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate ratios")
}

func collectFacts(rows rowIter) ([]model.FactRecord, error) {
	var out []model.FactRecord
	for rows.Next() {
		var f model.FactRecord
		var report string
		var lineitem, label, namespace, name, value *string
		var level *int
		var abstract, total, negated *bool
		if err := rows.Scan(&f.AccessionNumber, &report, &f.Position, &lineitem, &label, &namespace,
			&name, &value, &level, &abstract, &total, &negated); err != nil {
			return nil, eris.Wrap(err, "store: scan fact")
		}
		f.Report = model.StatementKind(report)
		f.LineItem, f.Label, f.Namespace = deref(lineitem), deref(label), deref(namespace)
		f.Name, f.Value = deref(name), deref(value)
		if level != nil {
			f.Level = *level
		}
		f.IsAbstract = abstract != nil && *abstract
		f.IsTotal = total != nil && *total
		f.IsNegated = negated != nil && *negated
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate facts")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Open returns the store for driver, "sqlite" or "postgres".
func Open(ctx context.Context, driver, url string, poolCfg *PoolConfig, defs *report.Set) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(url, defs)
	case "postgres":
		return NewPostgres(ctx, url, poolCfg, defs)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
