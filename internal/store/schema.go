package store

import (
	"fmt"
	"strings"

	"github.com/sells-group/secdb/internal/db"
	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/report"
)

// Table names.
const (
	tickersTable  = "tickers"
	filingsTable  = "filings"
	factsTable    = "facts"
	ratiosTable   = "ratios"
	runsTable     = "runs"
	balanceTable  = "balance_sheet"
	incomeTable   = "income_statement"
	cashflowTable = "cashflow_statement"
)

// StatementTable returns the table holding rows of kind.
func StatementTable(kind model.StatementKind) string {
	switch kind {
	case model.Balance:
		return balanceTable
	case model.Income:
		return incomeTable
	case model.Cashflow:
		return cashflowTable
	default:
		return ""
	}
}

var filingColumns = []string{
	"accession_number", "cik", "company_name", "form_type", "filing_date", "file_number",
	"acceptance_datetime", "period", "assistant_director", "assigned_sic", "other_cik_numbers",
	"fiscal_year_end", "instance_url", "ticker", "errors", "run_id",
}

var factColumns = []string{
	"accession_number", "report", "pos", "lineitem", "label", "namespace", "name", "value",
	"level", "is_abstract", "is_total", "is_negated",
}

// dialect holds the SQL differences between the two backends.
type dialect struct {
	bigint  string
	real    string
	date    string
	time    string
	boolean string
	bind    func(i int) string
}

var sqliteDialect = dialect{
	bigint:  "INTEGER",
	real:    "REAL",
	date:    "TEXT",
	time:    "TEXT",
	boolean: "INTEGER",
	bind:    func(int) string { return "?" },
}

var postgresDialect = dialect{
	bigint:  "BIGINT",
	real:    "DOUBLE PRECISION",
	date:    "DATE",
	time:    "TIMESTAMPTZ",
	boolean: "BOOLEAN",
	bind:    func(i int) string { return fmt.Sprintf("$%d", i) },
}

// binds returns n comma separated placeholders starting at from.
func (d dialect) binds(from, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.bind(from + i)
	}
	return strings.Join(out, ", ")
}

// Schema generates the DDL and row statements of the line-item tables
// from the report definitions.
type Schema struct {
	defs *report.Set
	d    dialect
}

func newSchema(defs *report.Set, d dialect) *Schema {
	return &Schema{defs: defs, d: d}
}

// statementColumns returns the key columns followed by the line items.
func (s *Schema) statementColumns(kind model.StatementKind) []string {
	cols := []string{"accession_number", "cik", "end_date"}
	if kind != model.Balance {
		cols = append(cols, "duration")
	}
	cols = append(cols, "currency_code")
	return append(cols, s.defs.Statement(kind).LineItems...)
}

func (s *Schema) ratioColumns() []string {
	return append([]string{"accession_number", "cik", "end_date", "kind"}, s.defs.Ratios.Names()...)
}

func columnDefs(items []string, typ string) string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = "\t" + db.QuoteIdent(it) + " " + typ
	}
	return strings.Join(out, ",\n")
}

// Create returns the CREATE TABLE and CREATE INDEX statements.
func (s *Schema) Create() []string {
	d := s.d
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tickers (
	symbol TEXT PRIMARY KEY,
	cik    ` + d.bigint + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS filings (
	accession_number    TEXT PRIMARY KEY,
	cik                 ` + d.bigint + ` NOT NULL,
	company_name        TEXT,
	form_type           TEXT NOT NULL,
	filing_date         ` + d.date + `,
	file_number         TEXT,
	acceptance_datetime ` + d.time + `,
	period              ` + d.date + ` NOT NULL,
	assistant_director  TEXT,
	assigned_sic        INTEGER,
	other_cik_numbers   TEXT,
	fiscal_year_end     INTEGER,
	instance_url        TEXT,
	ticker              TEXT,
	errors              TEXT,
	run_id              TEXT
)`,
		`CREATE TABLE IF NOT EXISTS facts (
	accession_number TEXT NOT NULL,
	report           TEXT NOT NULL,
	pos              INTEGER NOT NULL,
	lineitem         TEXT,
	label            TEXT,
	namespace        TEXT,
	name             TEXT,
	value            TEXT,
	level            INTEGER,
	is_abstract      ` + d.boolean + `,
	is_total         ` + d.boolean + `,
	is_negated       ` + d.boolean + `,
	PRIMARY KEY (accession_number, report, pos)
)`,
		`CREATE TABLE IF NOT EXISTS balance_sheet (
	accession_number TEXT PRIMARY KEY,
	cik              ` + d.bigint + ` NOT NULL,
	end_date         ` + d.date + `,
	currency_code    TEXT,
` + columnDefs(s.defs.Balance.LineItems, d.bigint) + `
)`,
	}
	for _, kind := range []model.StatementKind{model.Income, model.Cashflow} {
		stmts = append(stmts, `CREATE TABLE IF NOT EXISTS `+StatementTable(kind)+` (
	accession_number TEXT NOT NULL,
	cik              `+d.bigint+` NOT NULL,
	end_date         `+d.date+`,
	duration         INTEGER NOT NULL,
	currency_code    TEXT,
`+columnDefs(s.defs.Statement(kind).LineItems, d.bigint)+`,
	PRIMARY KEY (accession_number, duration)
)`)
	}
	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS ratios (
	accession_number TEXT NOT NULL,
	cik              `+d.bigint+` NOT NULL,
	end_date         `+d.date+`,
	kind             TEXT NOT NULL,
`+columnDefs(s.defs.Ratios.Names(), d.real)+`,
	PRIMARY KEY (accession_number, kind)
)`,
		`CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	feeds        TEXT,
	processed    INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	started_at   `+d.time+` NOT NULL,
	completed_at `+d.time+`
)`,
		`CREATE INDEX IF NOT EXISTS idx_filings_cik ON filings (cik)`,
		`CREATE INDEX IF NOT EXISTS idx_filings_cik_period ON filings (cik, period)`,
		`CREATE INDEX IF NOT EXISTS idx_filings_company ON filings (company_name)`,
		`CREATE INDEX IF NOT EXISTS idx_balance_cik ON balance_sheet (cik)`,
		`CREATE INDEX IF NOT EXISTS idx_income_cik ON income_statement (cik)`,
		`CREATE INDEX IF NOT EXISTS idx_cashflow_cik ON cashflow_statement (cik)`,
		`CREATE INDEX IF NOT EXISTS idx_ratios_cik ON ratios (cik)`,
	)
	return stmts
}

func (s *Schema) insert(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, db.QuoteColumns(cols), s.d.binds(1, len(cols)))
}

func (s *Schema) selectFrom(table string, cols []string) string {
	return fmt.Sprintf("SELECT %s FROM %s", db.QuoteColumns(cols), table)
}

// statementArgs returns the insert arguments of row in column order. Null
// line items stay nil.
func (s *Schema) statementArgs(row *model.StatementRow, endDate any) []any {
	def := s.defs.Statement(row.Kind)
	args := []any{row.AccessionNumber, row.CIK, endDate}
	if row.Kind != model.Balance {
		args = append(args, row.Duration)
	}
	args = append(args, row.CurrencyCode)
	for _, item := range def.LineItems {
		if p := row.Values[item]; p != nil {
			args = append(args, *p)
		} else {
			args = append(args, nil)
		}
	}
	return args
}

func (s *Schema) ratioArgs(row *model.RatioRow, endDate any) []any {
	args := []any{row.AccessionNumber, row.CIK, endDate, string(row.Kind)}
	for _, name := range s.defs.Ratios.Names() {
		if p := row.Values[name]; p != nil {
			args = append(args, *p)
		} else {
			args = append(args, nil)
		}
	}
	return args
}

func factArgs(f model.FactRecord) []any {
	return []any{
		f.AccessionNumber, string(f.Report), f.Position, nullString(f.LineItem), f.Label,
		f.Namespace, f.Name, nullString(f.Value), f.Level, f.IsAbstract, f.IsTotal, f.IsNegated,
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
