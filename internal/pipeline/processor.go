// Package pipeline turns feed filings into persisted statements and ratios.
package pipeline

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/secdb/internal/config"
	"github.com/sells-group/secdb/internal/disclosure"
	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/ratio"
	"github.com/sells-group/secdb/internal/report"
	"github.com/sells-group/secdb/internal/statement"
	"github.com/sells-group/secdb/internal/store"
)

// Loader resolves the parsed instance of a filing.
type Loader interface {
	Load(ctx context.Context, f *model.Filing) (disclosure.Instance, error)
}

// DirLoader reads JSON snapshots named <accession>.json from Dir.
type DirLoader struct {
	Dir string
}

func (l DirLoader) Load(_ context.Context, f *model.Filing) (disclosure.Instance, error) {
	doc, err := disclosure.Open(filepath.Join(l.Dir, f.AccessionNumber+".json"))
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Outcome reports what happened to one filing.
type Outcome int

const (
	Processed Outcome = iota
	Skipped
)

// Processor computes and stores the statements and ratios of one filing.
type Processor struct {
	cfg    config.BuildConfig
	store  store.Store
	defs   *report.Set
	loader Loader
}

// NewProcessor returns a processor writing to st.
func NewProcessor(cfg config.BuildConfig, st store.Store, defs *report.Set, loader Loader) *Processor {
	if loader == nil {
		loader = DirLoader{Dir: cfg.FilingsDir}
	}
	return &Processor{
		cfg:    cfg,
		store:  st,
		defs:   defs,
		loader: loader,
	}
}

func filingLogger(f *model.Filing) *zap.Logger {
	return zap.L().With(
		zap.String("accession", f.AccessionNumber),
		zap.Int64("cik", f.CIK),
		zap.String("ticker", f.Ticker),
		zap.String("form", f.FormType),
	)
}

// Process handles one filing. Statements that cannot be computed are logged
// and skipped; only store failures are returned.
func (p *Processor) Process(ctx context.Context, f model.Filing) (Outcome, error) {
	log := filingLogger(&f)
	log.Info("start processing filing")

	exists, err := p.store.HasFiling(ctx, f.AccessionNumber)
	if err != nil {
		return Processed, err
	}
	if exists {
		if !p.cfg.Recompute {
			log.Info("skipped already processed filing")
			return Skipped, nil
		}
		log.Info("deleting existing filing")
		if err := p.store.DeleteFiling(ctx, f.AccessionNumber); err != nil {
			return Processed, err
		}
	}

	if f.IsAmendment() {
		f.FormType = f.BaseForm()
		amended, err := p.store.FilingsForPeriod(ctx, f.CIK, f.Period)
		if err != nil {
			return Processed, err
		}
		for _, prev := range amended {
			log.Info("deleting amended filing", zap.String("amended", prev.AccessionNumber))
			if err := p.store.DeleteFiling(ctx, prev.AccessionNumber); err != nil {
				return Processed, err
			}
		}
	}

	inst, loadErr := p.loader.Load(ctx, &f)
	if loadErr != nil {
		log.Error("failed loading instance", zap.Error(loadErr))
		f.Errors = loadErr.Error()
	}
	if err := p.store.InsertFiling(ctx, &f); err != nil {
		return Processed, err
	}

	if inst != nil {
		if err := p.statements(ctx, log, &f, inst); err != nil {
			return Processed, err
		}
	}

	log.Info("finished processing filing")
	return Processed, nil
}

func (p *Processor) statements(ctx context.Context, log *zap.Logger, f *model.Filing, inst disclosure.Instance) error {
	roles := statement.SelectRoles(inst)

	required := statement.RequiredContext(inst)
	if required == nil || !required.Period.IsDuration() {
		log.Error("missing or non-duration required context")
		return nil
	}
	checkDuration(log, f, required.Period.Months())

	builder := statement.NewBuilder(p.defs, p.cfg.Currency, log)

	builds := []struct {
		kind  model.StatementKind
		build func(disclosure.Instance, *model.Filing, *disclosure.Context, []string) (*statement.Result, error)
	}{
		{model.Balance, builder.Balance},
		{model.Income, builder.Income},
		{model.Cashflow, builder.Cashflow},
	}
	for _, b := range builds {
		res, err := b.build(inst, f, required, roles[b.kind])
		if err != nil {
			log.Error("statement skipped", zap.String("report", p.defs.Statement(b.kind).Name), zap.Error(err))
			continue
		}
		if err := p.save(ctx, log, f, res); err != nil {
			return err
		}
	}

	rows, err := ratio.NewEngine(p.defs.Ratios, p.store, log).Compute(ctx, f)
	if err != nil {
		return err
	}
	for i := range rows {
		if err := p.store.InsertRatios(ctx, &rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// checkDuration warns about required contexts with an unusual length.
func checkDuration(log *zap.Logger, f *model.Filing, months int) {
	switch {
	case f.IsAnnual() && months != statement.AnnualMonths:
		log.Warn("10-K required context has unexpected duration", zap.Int("months", months))
	case f.IsQuarterly() && months != 3 && months != 6 && months != 9:
		log.Warn("10-Q required context has unexpected duration", zap.Int("months", months))
	}
}

func (p *Processor) save(ctx context.Context, log *zap.Logger, f *model.Filing, res *statement.Result) error {
	if err := p.store.InsertStatement(ctx, &res.Row); err != nil {
		return err
	}
	if p.cfg.StoreFactMappings {
		if err := p.store.InsertFacts(ctx, res.Facts); err != nil {
			return err
		}
	}
	return p.quarter(ctx, log, f, &res.Row)
}

// quarter stores the 3-month row isolated from a cumulative statement by
// subtracting the quarterly rows already stored for the same window.
func (p *Processor) quarter(ctx context.Context, log *zap.Logger, f *model.Filing, row *model.StatementRow) error {
	annual := f.IsAnnual()
	if !statement.NeedsQuarter(row.Kind, annual, row.Duration) {
		return nil
	}
	months := row.Duration
	if annual {
		months = statement.AnnualMonths
	}
	from := statement.QuarterWindowStart(f.Period, months)

	priors, err := p.store.QuarterlyStatements(ctx, f.CIK, row.Kind, from, f.Period)
	if err != nil {
		return err
	}
	def := p.defs.Statement(row.Kind)
	if want := statement.ExpectedQuarters(annual, row.Duration); len(priors) != want {
		log.Error("missing previous quarterly reports to calculate quarterly data",
			zap.String("report", def.Name),
			zap.Int("expected", want),
			zap.Int("found", len(priors)),
		)
		return nil
	}

	q := statement.Quarter(def.LineItems, *row, priors)
	return eris.Wrapf(p.store.InsertStatement(ctx, &q), "pipeline: store quarter of %s", def.Name)
}
