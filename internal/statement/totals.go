package statement

import (
	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/report"
)

// ReconcileTotals fills every formula-defined total of def that is still
// null in vals. A total already set is never recomputed, so calling it twice
// is a no-op.
func ReconcileTotals(def *report.Definition, vals model.Values) {
	for _, item := range def.TotalOrder() {
		resolveTotal(def.Totals, vals, item)
	}
}

// resolveTotal sets item to the signed sum of its operands. A "-" operand
// flips the sign of the operands after it. With no resolvable operand the
// total stays null.
func resolveTotal(totals map[string][]string, vals model.Values, item string) {
	if vals[item] != nil {
		return
	}

	var sum int64
	resolved := 0
	negate := false
	for _, op := range totals[item] {
		if op == report.Negation {
			negate = !negate
			continue
		}
		if _, isTotal := totals[op]; isTotal {
			resolveTotal(totals, vals, op)
		}
		p := vals[op]
		if p == nil {
			continue
		}
		if negate {
			sum -= *p
		} else {
			sum += *p
		}
		resolved++
	}

	if resolved == 0 {
		vals[item] = nil
		return
	}
	vals[item] = model.Int(sum)
}
