package statement

import "github.com/sells-group/secdb/internal/model"

// Accumulator collects line-item values during a calculation walk. Reads of
// untouched items return zero; Finalize turns them into nulls so "not
// reported" stays distinct from "reported as zero".
type Accumulator struct {
	items   []string
	values  map[string]int64
	touched map[string]bool
}

// NewAccumulator returns an empty accumulator over the given line items.
func NewAccumulator(items []string) *Accumulator {
	return &Accumulator{
		items:   items,
		values:  make(map[string]int64, len(items)),
		touched: make(map[string]bool, len(items)),
	}
}

// Add accumulates v into item.
func (a *Accumulator) Add(item string, v int64) {
	a.values[item] += v
	a.touched[item] = true
}

// Set overwrites item with v.
func (a *Accumulator) Set(item string, v int64) {
	a.values[item] = v
	a.touched[item] = true
}

// IsSet reports whether item has been written.
func (a *Accumulator) IsSet(item string) bool { return a.touched[item] }

// Get returns the value of item, zero if untouched.
func (a *Accumulator) Get(item string) int64 { return a.values[item] }

// Finalize returns one entry per line item, nil for untouched items.
func (a *Accumulator) Finalize() model.Values {
	out := make(model.Values, len(a.items))
	for _, item := range a.items {
		if a.touched[item] {
			out[item] = model.Int(a.values[item])
		} else {
			out[item] = nil
		}
	}
	return out
}
