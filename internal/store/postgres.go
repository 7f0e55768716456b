package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/secdb/internal/db"
	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/report"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	schema  *Schema
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, defs *report.Set) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := db.Retry(ctx, db.DefaultRetryConfig("postgres ping"), pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, schema: newSchema(defs, postgresDialect)}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func pgDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.schema.Create() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "postgres: migrate")
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Filings ---

func (s *PostgresStore) HasFiling(ctx context.Context, accession string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM filings WHERE accession_number = $1)`, accession,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has filing %s", accession)
	}
	return exists, nil
}

func (s *PostgresStore) GetFiling(ctx context.Context, accession string) (*model.Filing, error) {
	row := s.pool.QueryRow(ctx, filingSelect(s.schema)+` WHERE accession_number = $1`, accession)
	f, err := scanFiling(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get filing %s", accession)
	}
	return f, nil
}

func (s *PostgresStore) InsertFiling(ctx context.Context, f *model.Filing) error {
	_, err := s.pool.Exec(ctx, s.schema.insert(filingsTable, filingColumns),
		f.AccessionNumber, f.CIK, f.CompanyName, f.FormType, pgDate(f.FilingDate), f.FileNumber,
		pgDate(f.AcceptanceDatetime), pgDate(f.Period), f.AssistantDirector, f.AssignedSIC,
		f.OtherCIKNumbers, f.FiscalYearEnd, f.InstanceURL, nullString(f.Ticker), nullString(f.Errors), nullString(f.RunID),
	)
	return eris.Wrapf(err, "postgres: insert filing %s", f.AccessionNumber)
}

func (s *PostgresStore) DeleteFiling(ctx context.Context, accession string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin delete")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, table := range []string{factsTable, balanceTable, incomeTable, cashflowTable, ratiosTable, filingsTable} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE accession_number = $1`, accession); err != nil {
			return eris.Wrapf(err, "postgres: delete %s of %s", table, accession)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit delete")
}

func (s *PostgresStore) queryFilings(ctx context.Context, where string, args ...any) ([]model.Filing, error) {
	rows, err := s.pool.Query(ctx, filingSelect(s.schema)+` WHERE `+where, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query filings")
	}
	defer rows.Close()
	return collectFilings(rows)
}

func (s *PostgresStore) FilingsForPeriod(ctx context.Context, cik int64, period time.Time) ([]model.Filing, error) {
	return s.queryFilings(ctx, `cik = $1 AND period = $2`, cik, pgDate(period))
}

func (s *PostgresStore) PreviousFiling(ctx context.Context, cik int64, before time.Time) (*model.Filing, error) {
	out, err := s.queryFilings(ctx, `cik = $1 AND period < $2 ORDER BY period DESC LIMIT 1`, cik, pgDate(before))
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return &out[0], nil
}

func (s *PostgresStore) FilingsBetween(ctx context.Context, cik int64, after, through time.Time) ([]model.Filing, error) {
	return s.queryFilings(ctx, `cik = $1 AND period > $2 AND period <= $3 ORDER BY period`,
		cik, pgDate(after), pgDate(through))
}

func (s *PostgresStore) ListFilings(ctx context.Context, cik int64) ([]model.Filing, error) {
	return s.queryFilings(ctx, `cik = $1 ORDER BY period DESC`, cik)
}

// --- Statements ---

// InsertFacts streams facts with the COPY protocol.
func (s *PostgresStore) InsertFacts(ctx context.Context, facts []model.FactRecord) error {
	rows := make([][]any, len(facts))
	for i, f := range facts {
		rows[i] = factArgs(f)
	}
	_, err := db.CopyFrom(ctx, s.pool, factsTable, factColumns, rows)
	return eris.Wrap(err, "postgres: insert facts")
}

func (s *PostgresStore) Facts(ctx context.Context, accession string, kind model.StatementKind) ([]model.FactRecord, error) {
	rows, err := s.pool.Query(ctx,
		s.schema.selectFrom(factsTable, factColumns)+` WHERE accession_number = $1 AND report = $2 ORDER BY pos`,
		accession, string(kind),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query facts of %s", accession)
	}
	defer rows.Close()
	return collectFacts(rows)
}

func (s *PostgresStore) InsertStatement(ctx context.Context, row *model.StatementRow) error {
	table := StatementTable(row.Kind)
	if table == "" {
		return eris.Errorf("postgres: no table for %s statements", row.Kind)
	}
	_, err := s.pool.Exec(ctx,
		s.schema.insert(table, s.schema.statementColumns(row.Kind)),
		s.schema.statementArgs(row, pgDate(row.EndDate))...,
	)
	return eris.Wrapf(err, "postgres: insert %s of %s", table, row.AccessionNumber)
}

func (s *PostgresStore) Statements(ctx context.Context, accession string) ([]model.StatementRow, error) {
	var out []model.StatementRow
	for _, kind := range model.StatementKinds {
		table := StatementTable(kind)
		q := s.schema.selectFrom(table, s.schema.statementColumns(kind)) + ` WHERE accession_number = $1`
		if kind != model.Balance {
			q += ` ORDER BY duration DESC`
		}
		rows, err := s.pool.Query(ctx, q, accession)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: query %s of %s", table, accession)
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

func (s *PostgresStore) QuarterlyStatements(ctx context.Context, cik int64, kind model.StatementKind, from, through time.Time) ([]model.StatementRow, error) {
	table := StatementTable(kind)
	if table == "" || kind == model.Balance {
		return nil, eris.Errorf("postgres: no quarterly rows for %s statements", kind)
	}
	cols := make([]string, 0, len(s.schema.statementColumns(kind)))
	for _, c := range s.schema.statementColumns(kind) {
		cols = append(cols, "s."+db.QuoteIdent(c))
	}
	q := `SELECT ` + strings.Join(cols, ", ") + ` FROM ` + table + ` s
		JOIN filings f ON f.accession_number = s.accession_number
		WHERE s.duration = 3 AND f.cik = $1 AND f.form_type IN ($2, $3) AND f.period BETWEEN $4 AND $5
		ORDER BY f.period`
	rows, err := s.pool.Query(ctx, q, cik, model.FormQuarterly, model.FormQuarterly+"/A",
		pgDate(from), pgDate(through))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query quarterly %s of %d", table, cik)
	}
	defer rows.Close()
	return collectStatements(rows, s.schema, kind)
}

// --- Ratios ---

func (s *PostgresStore) InsertRatios(ctx context.Context, row *model.RatioRow) error {
	_, err := s.pool.Exec(ctx,
		s.schema.insert(ratiosTable, s.schema.ratioColumns()),
		s.schema.ratioArgs(row, pgDate(row.EndDate))...,
	)
	return eris.Wrapf(err, "postgres: insert %s ratios of %s", row.Kind, row.AccessionNumber)
}

func (s *PostgresStore) Ratios(ctx context.Context, accession string) ([]model.RatioRow, error) {
	rows, err := s.pool.Query(ctx,
		s.schema.selectFrom(ratiosTable, s.schema.ratioColumns())+` WHERE accession_number = $1 ORDER BY kind`,
		accession,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query ratios of %s", accession)
	}
	defer rows.Close()
	return collectRatios(rows, s.schema)
}

// --- Tickers ---

func (s *PostgresStore) InsertTickers(ctx context.Context, tickers map[int64]string) error {
	rows := make([][]any, 0, len(tickers))
	for cik, symbol := range tickers {
		rows = append(rows, []any{symbol, cik})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        tickersTable,
		Columns:      []string{"symbol", "cik"},
		ConflictKeys: []string{"symbol"},
	}, rows)
	return eris.Wrap(err, "postgres: insert tickers")
}

func (s *PostgresStore) Tickers(ctx context.Context) (map[int64]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT symbol, cik FROM tickers ORDER BY symbol`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query tickers")
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var symbol string
		var cik int64
		if err := rows.Scan(&symbol, &cik); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ticker")
		}
		out[cik] = symbol
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate tickers")
}

// --- Runs ---

func (s *PostgresStore) StartRun(ctx context.Context, feeds []string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		Feeds:     feeds,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, feeds, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Status), strings.Join(feeds, "\n"), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, id string, status model.RunStatus, result *model.RunResult) error {
	if result == nil {
		result = &model.RunResult{}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, processed = $2, skipped = $3, failed = $4, completed_at = $5 WHERE id = $6`,
		string(status), result.Processed, result.Skipped, result.Failed, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", id)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, feeds, processed, skipped, failed, started_at, completed_at FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return run, nil
}
