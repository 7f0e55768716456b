package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/store"
)

// Batch processes the filings of many companies on a bounded worker pool.
// Filings of one company run sequentially in period order, since quarter
// reconstruction and ratios read the rows of earlier filings.
type Batch struct {
	proc    *Processor
	store   store.Store
	workers int
}

// NewBatch returns a batch runner with the given concurrency.
func NewBatch(proc *Processor, st store.Store, workers int) *Batch {
	if workers < 1 {
		workers = 1
	}
	return &Batch{proc: proc, store: st, workers: workers}
}

// GroupByCIK groups filings per company, keeping the order in which
// companies first appear and sorting each group by period and acceptance.
func GroupByCIK(filings []model.Filing) [][]model.Filing {
	idx := make(map[int64]int)
	var groups [][]model.Filing
	for _, f := range filings {
		i, ok := idx[f.CIK]
		if !ok {
			i = len(groups)
			idx[f.CIK] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], f)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(a, b int) bool {
			if !g[a].Period.Equal(g[b].Period) {
				return g[a].Period.Before(g[b].Period)
			}
			return g[a].AcceptanceDatetime.Before(g[b].AcceptanceDatetime)
		})
	}
	return groups
}

// Run processes filings and records the run. A failing filing is logged and
// counted; it never aborts the other filings. Cancelling ctx stops
// scheduling new filings.
func (b *Batch) Run(ctx context.Context, filings []model.Filing, feeds []string) (*model.RunResult, error) {
	run, err := b.store.StartRun(ctx, feeds)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: start run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))

	groups := GroupByCIK(filings)
	log.Info("processing filings",
		zap.Int("filings", len(filings)),
		zap.Int("companies", len(groups)),
		zap.Int("workers", b.workers),
	)

	var processed, skipped, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(b.workers)
	for _, group := range groups {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			for _, f := range group {
				if ctx.Err() != nil {
					return nil
				}
				f.RunID = run.ID
				outcome, err := b.processSafe(ctx, f)
				switch {
				case err != nil:
					failed.Add(1)
					filingLogger(&f).Error("failed processing filing", zap.Error(err))
				case outcome == Skipped:
					skipped.Add(1)
				default:
					processed.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &model.RunResult{
		Processed: processed.Load(),
		Skipped:   skipped.Load(),
		Failed:    failed.Load(),
	}
	status := model.RunStatusComplete
	if ctx.Err() != nil {
		status = model.RunStatusFailed
	}
	// Record the outcome even when ctx was cancelled.
	if err := b.store.CompleteRun(context.WithoutCancel(ctx), run.ID, status, result); err != nil {
		return result, eris.Wrap(err, "pipeline: complete run")
	}

	log.Info("finished processing filings",
		zap.Int64("processed", result.Processed),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("failed", result.Failed),
	)
	if ctx.Err() != nil {
		return result, eris.Wrap(ctx.Err(), "pipeline: run cancelled")
	}
	return result, nil
}

// processSafe turns a panic inside one filing into an error.
func (b *Batch) processSafe(ctx context.Context, f model.Filing) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pipeline: panic processing %s: %s", f.AccessionNumber, fmt.Sprint(r))
		}
	}()
	return b.proc.Process(ctx, f)
}
