// Package ratio computes financial ratios from persisted statement rows.
package ratio

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/report"
	"github.com/sells-group/secdb/internal/statement"
)

// Source reads the statement rows and filings ratios are computed from.
type Source interface {
	// Statements returns every statement row of a filing.
	Statements(ctx context.Context, accession string) ([]model.StatementRow, error)
	// PreviousFiling returns the latest filing of cik with a period strictly
	// before the given date, or nil when there is none.
	PreviousFiling(ctx context.Context, cik int64, before time.Time) (*model.Filing, error)
	// FilingsBetween returns the filings of cik with a period in (after, through].
	FilingsBetween(ctx context.Context, cik int64, after, through time.Time) ([]model.Filing, error)
}

// Sums holds per-line-item operand values for each statement kind.
type Sums struct {
	Balance         map[string]float64
	PreviousBalance map[string]float64
	Income          map[string]float64
	Cashflow        map[string]float64
}

// NewSums returns empty sums.
func NewSums() *Sums {
	return &Sums{
		Balance:         make(map[string]float64),
		PreviousBalance: make(map[string]float64),
		Income:          make(map[string]float64),
		Cashflow:        make(map[string]float64),
	}
}

// add accumulates factor times each non-null value of vals into dst.
func add(dst map[string]float64, vals model.Values, factor float64) {
	for item, p := range vals {
		if p != nil {
			dst[item] += factor * float64(*p)
		}
	}
}

func (s *Sums) operand(op report.Operand, average bool) float64 {
	var v float64
	switch op.Report {
	case model.Balance:
		v = s.Balance[op.LineItem]
		if average {
			v = (s.PreviousBalance[op.LineItem] + v) / 2
		}
	case model.Income:
		v = s.Income[op.LineItem]
	case model.Cashflow:
		v = s.Cashflow[op.LineItem]
	}
	if op.Negative {
		v = -v
	}
	return v
}

// Evaluate computes every formula of rs over s. A ratio is null when its
// denominator sums to zero. Balance operands are averaged over the start and
// end balance when averaged is set and the formula mixes balance with
// another statement.
func Evaluate(rs *report.RatioSet, s *Sums, averaged bool) map[string]*float64 {
	out := make(map[string]*float64, len(rs.Formulas))
	for _, f := range rs.Formulas {
		reports := f.Reports()
		avg := averaged && len(reports) > 1 && reports[model.Balance]

		var num, den float64
		for _, op := range f.Numerator {
			num += s.operand(op, avg)
		}
		for _, op := range f.Denominator {
			den += s.operand(op, avg)
		}
		if den == 0 {
			out[f.Name] = nil
			continue
		}
		r := num / den
		out[f.Name] = &r
	}
	return out
}

// Engine computes the mrq and ttm ratio rows of a filing.
type Engine struct {
	Ratios *report.RatioSet
	Src    Source
	Log    *zap.Logger
}

// NewEngine returns a ratio engine reading from src.
func NewEngine(ratios *report.RatioSet, src Source, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.L()
	}
	return &Engine{Ratios: ratios, Src: src, Log: log}
}

// Compute returns the mrq and ttm rows of f.
func (e *Engine) Compute(ctx context.Context, f *model.Filing) ([]model.RatioRow, error) {
	mrq, err := e.MostRecentQuarter(ctx, f)
	if err != nil {
		return nil, err
	}
	ttm, err := e.TrailingTwelveMonths(ctx, f)
	if err != nil {
		return nil, err
	}
	return []model.RatioRow{*mrq, *ttm}, nil
}

// MostRecentQuarter annualizes the filing's own statements: the 12-month
// rows of an annual filing as reported, the 3-month rows of a quarterly
// filing times four.
func (e *Engine) MostRecentQuarter(ctx context.Context, f *model.Filing) (*model.RatioRow, error) {
	rows, err := e.Src.Statements(ctx, f.AccessionNumber)
	if err != nil {
		return nil, eris.Wrapf(err, "ratio: load statements of %s", f.AccessionNumber)
	}

	duration, factor := statement.QuarterlyMonths, 4.0
	if f.IsAnnual() {
		duration, factor = statement.AnnualMonths, 1.0
	}

	s := NewSums()
	for _, r := range rows {
		switch {
		case r.Kind == model.Balance:
			add(s.Balance, r.Values, 1)
		case r.Kind == model.Income && r.Duration == duration:
			add(s.Income, r.Values, factor)
		case r.Kind == model.Cashflow && r.Duration == duration:
			add(s.Cashflow, r.Values, factor)
		}
	}

	prev, err := e.Src.PreviousFiling(ctx, f.CIK, f.Period)
	if err != nil {
		return nil, eris.Wrapf(err, "ratio: load previous filing of %d", f.CIK)
	}
	found := false
	if prev != nil {
		prows, err := e.Src.Statements(ctx, prev.AccessionNumber)
		if err != nil {
			return nil, eris.Wrapf(err, "ratio: load statements of %s", prev.AccessionNumber)
		}
		for _, r := range prows {
			if r.Kind == model.Balance {
				add(s.PreviousBalance, r.Values, 1)
				found = true
			}
		}
	}
	if !found {
		e.Log.Debug("no previous balance sheet, using end balance for averages",
			zap.String("accession", f.AccessionNumber))
		s.PreviousBalance = s.Balance
	}

	return e.row(f, model.MostRecentQuarter, Evaluate(e.Ratios, s, true)), nil
}

// TrailingTwelveMonths sums the 3-month statements of every filing of the
// company within the year ending at the filing period and averages their
// balance sheets in quarters.
func (e *Engine) TrailingTwelveMonths(ctx context.Context, f *model.Filing) (*model.RatioRow, error) {
	after := statement.QuarterWindowStart(f.Period, statement.AnnualMonths)
	filings, err := e.Src.FilingsBetween(ctx, f.CIK, after, f.Period)
	if err != nil {
		return nil, eris.Wrapf(err, "ratio: load filings of %d", f.CIK)
	}

	s := NewSums()
	for _, pf := range filings {
		rows, err := e.Src.Statements(ctx, pf.AccessionNumber)
		if err != nil {
			return nil, eris.Wrapf(err, "ratio: load statements of %s", pf.AccessionNumber)
		}
		for _, r := range rows {
			switch {
			case r.Kind == model.Balance:
				add(s.Balance, r.Values, 0.25)
			case r.Kind == model.Income && r.Duration == statement.QuarterlyMonths:
				add(s.Income, r.Values, 1)
			case r.Kind == model.Cashflow && r.Duration == statement.QuarterlyMonths:
				add(s.Cashflow, r.Values, 1)
			}
		}
	}

	return e.row(f, model.TrailingTwelveMonths, Evaluate(e.Ratios, s, false)), nil
}

func (e *Engine) row(f *model.Filing, kind model.RatioFamily, vals map[string]*float64) *model.RatioRow {
	return &model.RatioRow{
		AccessionNumber: f.AccessionNumber,
		CIK:             f.CIK,
		EndDate:         f.Period,
		Kind:            kind,
		Values:          vals,
	}
}
