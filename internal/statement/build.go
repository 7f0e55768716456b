package statement

import (
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/secdb/internal/disclosure"
	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/report"
)

// Income statement period lengths in months.
const (
	AnnualMonths    = 12
	QuarterlyMonths = 3
)

var deiNamespace = regexp.MustCompile(`^http://xbrl\.us/dei/|^http://xbrl\.sec\.gov/dei/`)

// RequiredContext returns the context of the undimensioned
// dei:DocumentPeriodEndDate fact, which marks the main reporting period.
func RequiredContext(inst disclosure.Instance) *disclosure.Context {
	for _, f := range inst.FactsByName("DocumentPeriodEndDate") {
		if !deiNamespace.MatchString(f.Concept.Namespace) {
			continue
		}
		if !f.Context.HasSegment() {
			return f.Context
		}
	}
	return nil
}

// DurationContext returns the undimensioned duration context ending at end
// whose length rounds to months.
func DurationContext(inst disclosure.Instance, end time.Time, months int) *disclosure.Context {
	for _, c := range inst.Contexts() {
		if c.Period.IsDuration() && c.Period.End.Equal(end) && c.Period.Months() == months && !c.HasSegment() {
			return c
		}
	}
	return nil
}

// Result is one computed statement with its fact audit trail.
type Result struct {
	Row   model.StatementRow
	Facts []model.FactRecord
}

// Builder computes the canonical statements of a filing.
type Builder struct {
	Defs     *report.Set
	Currency string
	Log      *zap.Logger
}

// NewBuilder returns a statement builder for the given definitions.
func NewBuilder(defs *report.Set, currency string, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.L()
	}
	return &Builder{Defs: defs, Currency: currency, Log: log}
}

// Balance computes the balance sheet at the end of the required context.
func (b *Builder) Balance(inst disclosure.Instance, f *model.Filing, required *disclosure.Context, roles []string) (*Result, error) {
	if required == nil {
		return nil, eris.Errorf("statement: skipped %s: no required context found", b.Defs.Balance.Name)
	}
	ctx := InstantContext(inst, required.Period.EndDate())
	return b.build(inst, f, model.Balance, ctx, roles, 0)
}

// Income computes the income statement over the last 12 (annual) or 3
// (quarterly) months ending at the required context.
func (b *Builder) Income(inst disclosure.Instance, f *model.Filing, required *disclosure.Context, roles []string) (*Result, error) {
	if required == nil {
		return nil, eris.Errorf("statement: skipped %s: no required context found", b.Defs.Income.Name)
	}
	months := QuarterlyMonths
	if f.IsAnnual() {
		months = AnnualMonths
	}
	ctx := DurationContext(inst, required.Period.End, months)
	if ctx == nil {
		return nil, eris.Errorf("statement: skipped %s: no required context found with %d month duration", b.Defs.Income.Name, months)
	}
	return b.build(inst, f, model.Income, ctx, roles, months)
}

// Cashflow computes the cash flow statement over the required context.
func (b *Builder) Cashflow(inst disclosure.Instance, f *model.Filing, required *disclosure.Context, roles []string) (*Result, error) {
	if required == nil || !required.Period.IsDuration() {
		return nil, eris.Errorf("statement: skipped %s: no required context found", b.Defs.Cashflow.Name)
	}
	return b.build(inst, f, model.Cashflow, required, roles, required.Period.Months())
}

func (b *Builder) build(inst disclosure.Instance, f *model.Filing, kind model.StatementKind, ctx *disclosure.Context, roles []string, months int) (*Result, error) {
	def := b.Defs.Statement(kind)
	log := b.Log.With(zap.String("report", def.Name))

	if ctx == nil {
		return nil, eris.Errorf("statement: skipped %s: no required context found", def.Name)
	}
	if len(roles) == 0 {
		return nil, eris.Errorf("statement: skipped %s: no linkrole found", def.Name)
	}
	if len(roles) > 1 {
		log.Warn("multiple linkroles found", zap.String("linkroles", strings.Join(roles, ",")))
	}
	role := roles[0]

	log.Info("calculate statement", zap.String("linkrole", role))

	ext, err := NewExtractor(b.Currency, log).Extract(inst, role, kind, ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "statement: extract %s", def.Name)
	}

	net := inst.Calculation(role)
	if net == nil {
		log.Warn("no calculation linkbase found", zap.String("linkrole", role))
	}

	w := NewWalker(def, log)
	w.Observe = func(pos int, item string) {
		if pos >= 0 && pos < len(ext.Records) {
			ext.Records[pos].LineItem = item
		}
	}
	vals := w.Walk(net, ext.Values)
	ReconcileTotals(def, vals)
	negate(def.Negate, vals)

	for i := range ext.Records {
		ext.Records[i].AccessionNumber = f.AccessionNumber
	}

	return &Result{
		Row: model.StatementRow{
			AccessionNumber: f.AccessionNumber,
			CIK:             f.CIK,
			Kind:            kind,
			EndDate:         ctx.Period.EndDate(),
			Duration:        months,
			CurrencyCode:    b.Currency,
			Values:          vals,
		},
		Facts: ext.Records,
	}, nil
}

// negate flips the stored sign of expense line items.
func negate(items []string, vals model.Values) {
	for _, item := range items {
		if p := vals[item]; p != nil {
			vals[item] = model.Int(-*p)
		}
	}
}
