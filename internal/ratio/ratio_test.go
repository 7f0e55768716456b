package ratio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/report"
)

type fakeSource struct {
	filings []model.Filing
	rows    map[string][]model.StatementRow
	err     error
}

func (f *fakeSource) Statements(_ context.Context, accession string) ([]model.StatementRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[accession], nil
}

func (f *fakeSource) PreviousFiling(_ context.Context, cik int64, before time.Time) (*model.Filing, error) {
	var best *model.Filing
	for i := range f.filings {
		pf := &f.filings[i]
		if pf.CIK == cik && pf.Period.Before(before) && (best == nil || pf.Period.After(best.Period)) {
			best = pf
		}
	}
	return best, nil
}

func (f *fakeSource) FilingsBetween(_ context.Context, cik int64, after, through time.Time) ([]model.Filing, error) {
	var out []model.Filing
	for _, pf := range f.filings {
		if pf.CIK == cik && pf.Period.After(after) && !pf.Period.After(through) {
			out = append(out, pf)
		}
	}
	return out, nil
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func testRatios() *report.RatioSet {
	return &report.RatioSet{Formulas: []report.Formula{
		{
			Name:        "profitMargin",
			Numerator:   []report.Operand{{Report: model.Income, LineItem: "netIncome"}},
			Denominator: []report.Operand{{Report: model.Income, LineItem: "totalRevenue"}},
		},
		{
			Name:        "returnOnAssets",
			Numerator:   []report.Operand{{Report: model.Income, LineItem: "netIncome"}},
			Denominator: []report.Operand{{Report: model.Balance, LineItem: "totalAssets"}},
		},
		{
			Name:        "currentRatio",
			Numerator:   []report.Operand{{Report: model.Balance, LineItem: "currentAssetsTotal"}},
			Denominator: []report.Operand{{Report: model.Balance, LineItem: "currentLiabilitiesTotal"}},
		},
		{
			Name: "netDebtToEquity",
			Numerator: []report.Operand{
				{Report: model.Balance, LineItem: "longTermDebt"},
				{Report: model.Balance, LineItem: "cash", Negative: true},
			},
			Denominator: []report.Operand{{Report: model.Balance, LineItem: "totalEquity"}},
		},
		{
			Name:        "cashFlowMargin",
			Numerator:   []report.Operand{{Report: model.Cashflow, LineItem: "operating"}},
			Denominator: []report.Operand{{Report: model.Income, LineItem: "totalRevenue"}},
		},
	}}
}

func balance(acc string, end time.Time, vals model.Values) model.StatementRow {
	return model.StatementRow{AccessionNumber: acc, Kind: model.Balance, EndDate: end, Values: vals}
}

func flow(acc string, kind model.StatementKind, end time.Time, duration int, vals model.Values) model.StatementRow {
	return model.StatementRow{AccessionNumber: acc, Kind: kind, EndDate: end, Duration: duration, Values: vals}
}

func assertRatio(t *testing.T, want float64, got *float64, name string) {
	t.Helper()
	require.NotNil(t, got, name)
	assert.InDelta(t, want, *got, 1e-9, name)
}

func TestEvaluate_NullSafety(t *testing.T) {
	s := NewSums()
	s.Income["netIncome"] = 50
	s.Balance["currentAssetsTotal"] = 10

	got := Evaluate(testRatios(), s, false)
	for _, name := range testRatios().Names() {
		assert.Nil(t, got[name], name)
	}
	assert.Len(t, got, 5)
}

func TestEvaluate_NegatedOperand(t *testing.T) {
	s := NewSums()
	s.Balance["longTermDebt"] = 300
	s.Balance["cash"] = 100
	s.Balance["totalEquity"] = 400

	got := Evaluate(testRatios(), s, false)
	assertRatio(t, 0.5, got["netDebtToEquity"], "netDebtToEquity")
}

func TestMostRecentQuarter_Quarterly(t *testing.T) {
	q2 := day(2015, 6, 30)
	q1 := day(2015, 3, 31)
	src := &fakeSource{
		filings: []model.Filing{
			{AccessionNumber: "q1", CIK: 7, FormType: model.FormQuarterly, Period: q1},
			{AccessionNumber: "q2", CIK: 7, FormType: model.FormQuarterly, Period: q2},
		},
		rows: map[string][]model.StatementRow{
			"q1": {balance("q1", q1, model.Values{"totalAssets": model.Int(800)})},
			"q2": {
				balance("q2", q2, model.Values{
					"totalAssets": model.Int(1200), "currentAssetsTotal": model.Int(300),
					"currentLiabilitiesTotal": model.Int(150),
				}),
				flow("q2", model.Income, q2, 3, model.Values{"netIncome": model.Int(25), "totalRevenue": model.Int(100)}),
				// Year-to-date rows are ignored.
				flow("q2", model.Income, q2, 6, model.Values{"netIncome": model.Int(999), "totalRevenue": model.Int(1)}),
				flow("q2", model.Cashflow, q2, 6, model.Values{"operating": model.Int(60)}),
				flow("q2", model.Cashflow, q2, 3, model.Values{"operating": model.Int(30), "other": nil}),
			},
		},
	}

	e := NewEngine(testRatios(), src, zap.NewNop())
	row, err := e.MostRecentQuarter(context.Background(), &src.filings[1])
	require.NoError(t, err)

	assert.Equal(t, model.MostRecentQuarter, row.Kind)
	assert.Equal(t, "q2", row.AccessionNumber)
	assert.Equal(t, int64(7), row.CIK)
	assert.Equal(t, q2, row.EndDate)

	assertRatio(t, 0.25, row.Values["profitMargin"], "profitMargin")
	// 25*4 over the average of 800 and 1200.
	assertRatio(t, 0.1, row.Values["returnOnAssets"], "returnOnAssets")
	// Pure balance ratios use the end balance only.
	assertRatio(t, 2, row.Values["currentRatio"], "currentRatio")
	assertRatio(t, 0.3, row.Values["cashFlowMargin"], "cashFlowMargin")
	assert.Nil(t, row.Values["netDebtToEquity"])
}

func TestMostRecentQuarter_AnnualWithoutPreviousBalance(t *testing.T) {
	fy := day(2015, 12, 31)
	src := &fakeSource{
		filings: []model.Filing{{AccessionNumber: "k", CIK: 7, FormType: model.FormAnnual, Period: fy}},
		rows: map[string][]model.StatementRow{
			"k": {
				balance("k", fy, model.Values{"totalAssets": model.Int(1000)}),
				flow("k", model.Income, fy, 12, model.Values{"netIncome": model.Int(100), "totalRevenue": model.Int(400)}),
				flow("k", model.Income, fy, 3, model.Values{"netIncome": model.Int(1), "totalRevenue": model.Int(1)}),
			},
		},
	}

	row, err := NewEngine(testRatios(), src, nil).MostRecentQuarter(context.Background(), &src.filings[0])
	require.NoError(t, err)
	assertRatio(t, 0.25, row.Values["profitMargin"], "profitMargin")
	assertRatio(t, 0.1, row.Values["returnOnAssets"], "returnOnAssets")
}

func TestTrailingTwelveMonths(t *testing.T) {
	periods := []time.Time{day(2014, 12, 31), day(2015, 3, 31), day(2015, 6, 30), day(2015, 9, 30), day(2015, 12, 31)}
	src := &fakeSource{rows: make(map[string][]model.StatementRow)}
	for i, p := range periods {
		acc := p.Format("2006-01-02")
		form := model.FormQuarterly
		if p.Month() == time.December {
			form = model.FormAnnual
		}
		src.filings = append(src.filings, model.Filing{AccessionNumber: acc, CIK: 7, FormType: form, Period: p})
		src.rows[acc] = []model.StatementRow{
			balance(acc, p, model.Values{"totalAssets": model.Int(int64(1000 * (i + 1)))}),
			flow(acc, model.Income, p, 3, model.Values{"netIncome": model.Int(10), "totalRevenue": model.Int(100)}),
		}
		if form == model.FormAnnual {
			src.rows[acc] = append(src.rows[acc],
				flow(acc, model.Income, p, 12, model.Values{"netIncome": model.Int(999), "totalRevenue": model.Int(999)}))
		}
	}

	f := src.filings[4]
	row, err := NewEngine(testRatios(), src, zap.NewNop()).TrailingTwelveMonths(context.Background(), &f)
	require.NoError(t, err)

	assert.Equal(t, model.TrailingTwelveMonths, row.Kind)
	// The window excludes the filing a year earlier: four quarters of 10/100.
	assertRatio(t, 0.1, row.Values["profitMargin"], "profitMargin")
	// Balances 2000..5000 weighted by a quarter average to 3500.
	assertRatio(t, 40.0/3500, row.Values["returnOnAssets"], "returnOnAssets")
}

func TestCompute(t *testing.T) {
	fy := day(2015, 12, 31)
	src := &fakeSource{
		filings: []model.Filing{{AccessionNumber: "k", CIK: 7, FormType: model.FormAnnual, Period: fy}},
		rows:    map[string][]model.StatementRow{"k": {balance("k", fy, model.Values{"totalAssets": model.Int(1)})}},
	}
	rows, err := NewEngine(testRatios(), src, zap.NewNop()).Compute(context.Background(), &src.filings[0])
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.MostRecentQuarter, rows[0].Kind)
	assert.Equal(t, model.TrailingTwelveMonths, rows[1].Kind)

	src.err = errors.New("boom")
	_, err = NewEngine(testRatios(), src, zap.NewNop()).Compute(context.Background(), &src.filings[0])
	assert.ErrorContains(t, err, "ratio: load statements of k")
}

func TestEmbeddedRatiosEvaluate(t *testing.T) {
	defs, err := report.Load()
	require.NoError(t, err)

	s := NewSums()
	s.Income["totalRevenue"] = 1000
	s.Income["grossProfit"] = 400
	got := Evaluate(defs.Ratios, s, true)
	assert.Len(t, got, len(defs.Ratios.Formulas))
	assertRatio(t, 0.4, got["grossMargin"], "grossMargin")
}
