package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/report"
)

func testDefs(t *testing.T) *report.Set {
	t.Helper()
	defs, err := report.Load()
	require.NoError(t, err)
	return defs
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath, testDefs(t))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func testFiling(acc string, cik int64, form string, period time.Time) *model.Filing {
	return &model.Filing{
		AccessionNumber:    acc,
		CIK:                cik,
		CompanyName:        "ACME CORP",
		FormType:           form,
		FilingDate:         period.AddDate(0, 1, 0),
		AcceptanceDatetime: period.AddDate(0, 1, 0).Add(16 * time.Hour),
		Period:             period,
		AssignedSIC:        3571,
		FiscalYearEnd:      1231,
		InstanceURL:        "https://www.sec.gov/Archives/edgar/data/" + acc + ".xml",
	}
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_Filings(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ok, err := st.HasFiling(ctx, "0001")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = st.GetFiling(ctx, "0001")
	assert.ErrorIs(t, err, ErrNotFound)

	f := testFiling("0001", 320193, model.FormAnnual, day(2015, 12, 31))
	f.Errors = "load: boom"
	require.NoError(t, st.InsertFiling(ctx, f))

	ok, err = st.HasFiling(ctx, "0001")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := st.GetFiling(ctx, "0001")
	require.NoError(t, err)
	assert.Equal(t, f.CIK, got.CIK)
	assert.Equal(t, "ACME CORP", got.CompanyName)
	assert.Equal(t, f.Period, got.Period)
	assert.Equal(t, f.FilingDate, got.FilingDate)
	assert.True(t, f.AcceptanceDatetime.Equal(got.AcceptanceDatetime))
	assert.Equal(t, 3571, got.AssignedSIC)
	assert.Equal(t, 1231, got.FiscalYearEnd)
	assert.Equal(t, "load: boom", got.Errors)
	assert.Empty(t, got.RunID)

	// Duplicate accession numbers are rejected.
	assert.Error(t, st.InsertFiling(ctx, f))
}

func TestSQLite_FilingQueries(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	periods := []time.Time{day(2015, 3, 31), day(2015, 6, 30), day(2015, 9, 30), day(2015, 12, 31)}
	for i, p := range periods {
		form := model.FormQuarterly
		if i == 3 {
			form = model.FormAnnual
		}
		require.NoError(t, st.InsertFiling(ctx, testFiling(p.Format("20060102"), 7, form, p)))
	}
	require.NoError(t, st.InsertFiling(ctx, testFiling("other", 8, model.FormAnnual, day(2015, 12, 31))))

	prev, err := st.PreviousFiling(ctx, 7, day(2015, 12, 31))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "20150930", prev.AccessionNumber)

	prev, err = st.PreviousFiling(ctx, 7, day(2015, 3, 31))
	require.NoError(t, err)
	assert.Nil(t, prev)

	between, err := st.FilingsBetween(ctx, 7, day(2015, 3, 31), day(2015, 12, 31))
	require.NoError(t, err)
	require.Len(t, between, 3)
	assert.Equal(t, "20150630", between[0].AccessionNumber)
	assert.Equal(t, "20151231", between[2].AccessionNumber)

	same, err := st.FilingsForPeriod(ctx, 7, day(2015, 6, 30))
	require.NoError(t, err)
	require.Len(t, same, 1)

	all, err := st.ListFilings(ctx, 7)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "20151231", all[0].AccessionNumber)
}

func TestSQLite_StatementsRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	end := day(2015, 12, 31)
	require.NoError(t, st.InsertFiling(ctx, testFiling("k", 7, model.FormAnnual, end)))

	rows := []model.StatementRow{
		{AccessionNumber: "k", CIK: 7, Kind: model.Balance, EndDate: end, CurrencyCode: "USD",
			Values: model.Values{"totalAssets": model.Int(1000), "cashAndCashEquivalents": model.Int(0)}},
		{AccessionNumber: "k", CIK: 7, Kind: model.Income, EndDate: end, Duration: 3, CurrencyCode: "USD",
			Values: model.Values{"netIncome": model.Int(-5)}},
		{AccessionNumber: "k", CIK: 7, Kind: model.Income, EndDate: end, Duration: 12, CurrencyCode: "USD",
			Values: model.Values{"netIncome": model.Int(40), "totalRevenue": model.Int(400)}},
		{AccessionNumber: "k", CIK: 7, Kind: model.Cashflow, EndDate: end, Duration: 12, CurrencyCode: "USD",
			Values: model.Values{"netIncome": model.Int(40)}},
	}
	for i := range rows {
		require.NoError(t, st.InsertStatement(ctx, &rows[i]))
	}

	got, err := st.Statements(ctx, "k")
	require.NoError(t, err)
	require.Len(t, got, 4)

	bal := got[0]
	assert.Equal(t, model.Balance, bal.Kind)
	assert.Equal(t, end, bal.EndDate)
	assert.Equal(t, "USD", bal.CurrencyCode)
	assert.Equal(t, int64(1000), *bal.Values["totalAssets"])
	require.NotNil(t, bal.Values["cashAndCashEquivalents"])
	assert.Equal(t, int64(0), *bal.Values["cashAndCashEquivalents"])
	assert.Nil(t, bal.Values["inventory"])
	assert.Len(t, bal.Values, len(testDefs(t).Balance.LineItems))

	// Flow rows come back longest duration first.
	assert.Equal(t, 12, got[1].Duration)
	assert.Equal(t, int64(400), *got[1].Values["totalRevenue"])
	assert.Equal(t, 3, got[2].Duration)
	assert.Equal(t, int64(-5), *got[2].Values["netIncome"])
	assert.Nil(t, got[2].Values["totalRevenue"])
	assert.Equal(t, model.Cashflow, got[3].Kind)

	// One row per duration.
	assert.Error(t, st.InsertStatement(ctx, &rows[1]))
	assert.Error(t, st.InsertStatement(ctx, &model.StatementRow{Kind: model.Other}))
}

func TestSQLite_QuarterlyStatements(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	periods := []time.Time{day(2015, 3, 31), day(2015, 6, 30), day(2015, 9, 30), day(2015, 12, 31)}
	for i, p := range periods {
		form := model.FormQuarterly
		if i == 3 {
			form = model.FormAnnual
		}
		acc := p.Format("20060102")
		require.NoError(t, st.InsertFiling(ctx, testFiling(acc, 7, form, p)))
		require.NoError(t, st.InsertStatement(ctx, &model.StatementRow{
			AccessionNumber: acc, CIK: 7, Kind: model.Income, EndDate: p, Duration: 3,
			Values: model.Values{"netIncome": model.Int(int64(10 * (i + 1)))},
		}))
		if i > 0 && i < 3 {
			require.NoError(t, st.InsertStatement(ctx, &model.StatementRow{
				AccessionNumber: acc, CIK: 7, Kind: model.Income, EndDate: p, Duration: 3 * (i + 1),
				Values: model.Values{"netIncome": model.Int(99)},
			}))
		}
	}

	got, err := st.QuarterlyStatements(ctx, 7, model.Income, day(2015, 1, 1), day(2015, 12, 31))
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, 3, r.Duration)
		assert.Equal(t, int64(10*(i+1)), *r.Values["netIncome"])
	}

	_, err = st.QuarterlyStatements(ctx, 7, model.Balance, day(2015, 1, 1), day(2015, 12, 31))
	assert.Error(t, err)
}

func TestSQLite_DeleteFiling(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	end := day(2015, 12, 31)

	require.NoError(t, st.InsertFiling(ctx, testFiling("k", 7, model.FormAnnual, end)))
	require.NoError(t, st.InsertStatement(ctx, &model.StatementRow{
		AccessionNumber: "k", CIK: 7, Kind: model.Balance, EndDate: end, Values: model.Values{},
	}))
	require.NoError(t, st.InsertFacts(ctx, []model.FactRecord{
		{AccessionNumber: "k", Report: model.Balance, Position: 0, Namespace: "us-gaap", Name: "Assets", Value: "10"},
	}))
	require.NoError(t, st.InsertRatios(ctx, &model.RatioRow{
		AccessionNumber: "k", CIK: 7, EndDate: end, Kind: model.MostRecentQuarter, Values: map[string]*float64{},
	}))

	require.NoError(t, st.DeleteFiling(ctx, "k"))

	ok, err := st.HasFiling(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	rows, err := st.Statements(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, rows)
	facts, err := st.Facts(ctx, "k", model.Balance)
	require.NoError(t, err)
	assert.Empty(t, facts)
	ratios, err := st.Ratios(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, ratios)
}

func TestSQLite_Facts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertFacts(ctx, nil))
	facts := []model.FactRecord{
		{AccessionNumber: "k", Report: model.Balance, Position: 1, LineItem: "totalAssets", Label: "Total assets",
			Namespace: "us-gaap", Name: "Assets", Value: "1000", Level: 2, IsTotal: true},
		{AccessionNumber: "k", Report: model.Balance, Position: 0, Label: "Assets", Namespace: "us-gaap",
			Name: "AssetsAbstract", Level: 1, IsAbstract: true},
		{AccessionNumber: "k", Report: model.Income, Position: 0, LineItem: "totalRevenue",
			Namespace: "us-gaap", Name: "Revenues", Value: "400", IsNegated: true},
	}
	require.NoError(t, st.InsertFacts(ctx, facts))

	got, err := st.Facts(ctx, "k", model.Balance)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AssetsAbstract", got[0].Name)
	assert.True(t, got[0].IsAbstract)
	assert.Empty(t, got[0].LineItem)
	assert.Empty(t, got[0].Value)
	assert.Equal(t, facts[0], got[1])

	inc, err := st.Facts(ctx, "k", model.Income)
	require.NoError(t, err)
	require.Len(t, inc, 1)
	assert.True(t, inc[0].IsNegated)
}

func TestSQLite_Ratios(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	end := day(2015, 12, 31)
	v := 0.25

	for _, kind := range []model.RatioFamily{model.TrailingTwelveMonths, model.MostRecentQuarter} {
		require.NoError(t, st.InsertRatios(ctx, &model.RatioRow{
			AccessionNumber: "k", CIK: 7, EndDate: end, Kind: kind,
			Values: map[string]*float64{"grossMargin": &v},
		}))
	}

	got, err := st.Ratios(ctx, "k")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.MostRecentQuarter, got[0].Kind)
	assert.Equal(t, end, got[0].EndDate)
	require.NotNil(t, got[0].Values["grossMargin"])
	assert.InDelta(t, 0.25, *got[0].Values["grossMargin"], 1e-12)
	assert.Nil(t, got[0].Values["profitMargin"])
	assert.Contains(t, got[0].Values, "profitMargin")
}

func TestSQLite_Tickers(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertTickers(ctx, map[int64]string{320193: "AAPL", 789019: "MSFT"}))
	require.NoError(t, st.InsertTickers(ctx, map[int64]string{320194: "AAPL"}))

	got, err := st.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{320194: "AAPL", 789019: "MSFT"}, got)
}

func TestSQLite_Runs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.StartRun(ctx, []string{"2015-01.xml", "2015-02.xml"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2015-01.xml", "2015-02.xml"}, got.Feeds)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusComplete,
		&model.RunResult{Processed: 3, Skipped: 2, Failed: 1}))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, int64(3), got.Processed)
	assert.Equal(t, int64(2), got.Skipped)
	assert.Equal(t, int64(1), got.Failed)
	require.NotNil(t, got.CompletedAt)

	assert.ErrorIs(t, st.CompleteRun(ctx, "missing", model.RunStatusFailed, nil), ErrNotFound)
	_, err = st.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "", nil, testDefs(t))
	assert.ErrorContains(t, err, "unknown driver")
}

func TestSchema_Dialects(t *testing.T) {
	defs := testDefs(t)
	lite := newSchema(defs, sqliteDialect)
	pg := newSchema(defs, postgresDialect)

	assert.Equal(t, `INSERT INTO tickers ("symbol", "cik") VALUES (?, ?)`, lite.insert(tickersTable, []string{"symbol", "cik"}))
	assert.Equal(t, `INSERT INTO tickers ("symbol", "cik") VALUES ($1, $2)`, pg.insert(tickersTable, []string{"symbol", "cik"}))

	cols := pg.statementColumns(model.Income)
	assert.Equal(t, []string{"accession_number", "cik", "end_date", "duration", "currency_code"}, cols[:5])
	assert.Len(t, cols, 5+len(defs.Income.LineItems))
	assert.NotContains(t, lite.statementColumns(model.Balance), "duration")

	ddl := pg.Create()
	assert.Contains(t, ddl[1], "period              DATE NOT NULL")
	assert.Contains(t, ddl[3], `"totalAssets" BIGINT`)
}
