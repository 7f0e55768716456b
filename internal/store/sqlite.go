package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/secdb/internal/db"
	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/report"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db     *sql.DB
	schema *Schema
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, defs *report.Set) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection and SQLite allows a single writer.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn, schema: newSchema(defs, sqliteDialect)}, nil
}

func sqliteDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(dateLayout)
}

func sqliteTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.schema.Create() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "sqlite: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Filings ---

func (s *SQLiteStore) HasFiling(ctx context.Context, accession string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM filings WHERE accession_number = ?`, accession,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has filing %s", accession)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetFiling(ctx context.Context, accession string) (*model.Filing, error) {
	row := s.db.QueryRowContext(ctx, filingSelect(s.schema)+` WHERE accession_number = ?`, accession)
	f, err := scanFiling(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get filing %s", accession)
	}
	return f, nil
}

func (s *SQLiteStore) InsertFiling(ctx context.Context, f *model.Filing) error {
	_, err := s.db.ExecContext(ctx, s.schema.insert(filingsTable, filingColumns),
		f.AccessionNumber, f.CIK, f.CompanyName, f.FormType, sqliteDate(f.FilingDate), f.FileNumber,
		sqliteTime(f.AcceptanceDatetime), sqliteDate(f.Period), f.AssistantDirector, f.AssignedSIC,
		f.OtherCIKNumbers, f.FiscalYearEnd, f.InstanceURL, nullString(f.Ticker), nullString(f.Errors), nullString(f.RunID),
	)
	return eris.Wrapf(err, "sqlite: insert filing %s", f.AccessionNumber)
}

func (s *SQLiteStore) DeleteFiling(ctx context.Context, accession string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{factsTable, balanceTable, incomeTable, cashflowTable, ratiosTable, filingsTable} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE accession_number = ?`, accession); err != nil {
			return eris.Wrapf(err, "sqlite: delete %s of %s", table, accession)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete")
}

func (s *SQLiteStore) queryFilings(ctx context.Context, where string, args ...any) ([]model.Filing, error) {
	rows, err := s.db.QueryContext(ctx, filingSelect(s.schema)+` WHERE `+where, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query filings")
	}
	defer rows.Close()
	return collectFilings(rows)
}

func (s *SQLiteStore) FilingsForPeriod(ctx context.Context, cik int64, period time.Time) ([]model.Filing, error) {
	return s.queryFilings(ctx, `cik = ? AND period = ?`, cik, sqliteDate(period))
}

func (s *SQLiteStore) PreviousFiling(ctx context.Context, cik int64, before time.Time) (*model.Filing, error) {
	out, err := s.queryFilings(ctx, `cik = ? AND period < ? ORDER BY period DESC LIMIT 1`, cik, sqliteDate(before))
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return &out[0], nil
}

func (s *SQLiteStore) FilingsBetween(ctx context.Context, cik int64, after, through time.Time) ([]model.Filing, error) {
	return s.queryFilings(ctx, `cik = ? AND period > ? AND period <= ? ORDER BY period`,
		cik, sqliteDate(after), sqliteDate(through))
}

func (s *SQLiteStore) ListFilings(ctx context.Context, cik int64) ([]model.Filing, error) {
	return s.queryFilings(ctx, `cik = ? ORDER BY period DESC`, cik)
}

// --- Statements ---

func (s *SQLiteStore) InsertFacts(ctx context.Context, facts []model.FactRecord) error {
	if len(facts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin facts")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, s.schema.insert(factsTable, factColumns))
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare facts")
	}
	defer stmt.Close()

	for _, f := range facts {
		if _, err := stmt.ExecContext(ctx, factArgs(f)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert fact %s/%s/%d", f.AccessionNumber, f.Report, f.Position)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit facts")
}

func (s *SQLiteStore) Facts(ctx context.Context, accession string, kind model.StatementKind) ([]model.FactRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		s.schema.selectFrom(factsTable, factColumns)+` WHERE accession_number = ? AND report = ? ORDER BY pos`,
		accession, string(kind),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query facts of %s", accession)
	}
	defer rows.Close()
	return collectFacts(rows)
}

func (s *SQLiteStore) InsertStatement(ctx context.Context, row *model.StatementRow) error {
	table := StatementTable(row.Kind)
	if table == "" {
		return eris.Errorf("sqlite: no table for %s statements", row.Kind)
	}
	_, err := s.db.ExecContext(ctx,
		s.schema.insert(table, s.schema.statementColumns(row.Kind)),
		s.schema.statementArgs(row, sqliteDate(row.EndDate))...,
	)
	return eris.Wrapf(err, "sqlite: insert %s of %s", table, row.AccessionNumber)
}

func (s *SQLiteStore) Statements(ctx context.Context, accession string) ([]model.StatementRow, error) {
	var out []model.StatementRow
	for _, kind := range model.StatementKinds {
		table := StatementTable(kind)
		q := s.schema.selectFrom(table, s.schema.statementColumns(kind)) + ` WHERE accession_number = ?`
		if kind != model.Balance {
			q += ` ORDER BY duration DESC`
		}
		rows, err := s.db.QueryContext(ctx, q, accession)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: query %s of %s", table, accession)
		}
		got, err := collectStatements(rows, s.schema, kind)
		rows.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	return out, nil
}

func (s *SQLiteStore) QuarterlyStatements(ctx context.Context, cik int64, kind model.StatementKind, from, through time.Time) ([]model.StatementRow, error) {
	table := StatementTable(kind)
	if table == "" || kind == model.Balance {
		return nil, eris.Errorf("sqlite: no quarterly rows for %s statements", kind)
	}
	cols := make([]string, 0, len(s.schema.statementColumns(kind)))
	for _, c := range s.schema.statementColumns(kind) {
		cols = append(cols, "s."+db.QuoteIdent(c))
	}
	q := `SELECT ` + strings.Join(cols, ", ") + ` FROM ` + table + ` s
		JOIN filings f ON f.accession_number = s.accession_number
		WHERE s.duration = 3 AND f.cik = ? AND f.form_type IN (?, ?) AND f.period BETWEEN ? AND ?
		ORDER BY f.period`
	rows, err := s.db.QueryContext(ctx, q, cik, model.FormQuarterly, model.FormQuarterly+"/A",
		sqliteDate(from), sqliteDate(through))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query quarterly %s of %d", table, cik)
	}
	defer rows.Close()
	return collectStatements(rows, s.schema, kind)
}

// --- Ratios ---

func (s *SQLiteStore) InsertRatios(ctx context.Context, row *model.RatioRow) error {
	_, err := s.db.ExecContext(ctx,
		s.schema.insert(ratiosTable, s.schema.ratioColumns()),
		s.schema.ratioArgs(row, sqliteDate(row.EndDate))...,
	)
	return eris.Wrapf(err, "sqlite: insert %s ratios of %s", row.Kind, row.AccessionNumber)
}

func (s *SQLiteStore) Ratios(ctx context.Context, accession string) ([]model.RatioRow, error) {
	rows, err := s.db.QueryContext(ctx,
		s.schema.selectFrom(ratiosTable, s.schema.ratioColumns())+` WHERE accession_number = ? ORDER BY kind`,
		accession,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query ratios of %s", accession)
	}
	defer rows.Close()
	return collectRatios(rows, s.schema)
}

// --- Tickers ---

func (s *SQLiteStore) InsertTickers(ctx context.Context, tickers map[int64]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tickers")
	}
	defer tx.Rollback() //nolint:errcheck

	for cik, symbol := range tickers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tickers (symbol, cik) VALUES (?, ?) ON CONFLICT (symbol) DO UPDATE SET cik = excluded.cik`,
			symbol, cik,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert ticker %s", symbol)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tickers")
}

func (s *SQLiteStore) Tickers(ctx context.Context) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, cik FROM tickers ORDER BY symbol`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query tickers")
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var symbol string
		var cik int64
		if err := rows.Scan(&symbol, &cik); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ticker")
		}
		out[cik] = symbol
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate tickers")
}

// --- Runs ---

func (s *SQLiteStore) StartRun(ctx context.Context, feeds []string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		Feeds:     feeds,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, feeds, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), strings.Join(feeds, "\n"), sqliteTime(run.StartedAt),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status model.RunStatus, result *model.RunResult) error {
	if result == nil {
		result = &model.RunResult{}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, processed = ?, skipped = ?, failed = ?, completed_at = ? WHERE id = ?`,
		string(status), result.Processed, result.Skipped, result.Failed, sqliteTime(time.Now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, feeds, processed, skipped, failed, started_at, completed_at FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	return run, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func scanRun(sc scannable) (*model.Run, error) {
	var r model.Run
	var status string
	var feeds *string
	var started, completed dateValue
	if err := sc.Scan(&r.ID, &status, &feeds, &r.Processed, &r.Skipped, &r.Failed, &started, &completed); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if f := deref(feeds); f != "" {
		r.Feeds = strings.Split(f, "\n")
	}
	r.StartedAt = started.t
	if !completed.t.IsZero() {
		t := completed.t
		r.CompletedAt = &t
	}
	return &r, nil
}
