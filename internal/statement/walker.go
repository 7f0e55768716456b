package statement

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/secdb/internal/disclosure"
	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/report"
)

// treasuryStockItem is reported with either sign by filers; outside the
// calculation tree it is always stored as a reduction of equity.
const treasuryStockItem = "treasuryStockValue"

// MappingObserver is told the presentation position and line item of every
// value the walker assigns.
type MappingObserver func(position int, lineItem string)

// Walker maps extracted values onto the line items of one statement by
// following its calculation network.
type Walker struct {
	Def     *report.Definition
	Log     *zap.Logger
	Observe MappingObserver
}

// NewWalker returns a walker for def.
func NewWalker(def *report.Definition, log *zap.Logger) *Walker {
	if log == nil {
		log = zap.L()
	}
	return &Walker{Def: def, Log: log}
}

type lineSet map[string]bool

func newLineSet(items []string) lineSet {
	s := make(lineSet, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}

func (s lineSet) intersect(items []string) lineSet {
	out := make(lineSet)
	for _, it := range items {
		if s[it] {
			out[it] = true
		}
	}
	return out
}

type walkState struct {
	*Walker
	net     disclosure.Network
	values  FactValues
	acc     *Accumulator
	visited map[*disclosure.Concept]bool
}

// Walk assigns values to line items. net may be nil, in which case every
// value goes through the sweep of concepts outside the calculation tree.
// Line items that received nothing are nil in the result.
func (w *Walker) Walk(net disclosure.Network, values FactValues) model.Values {
	st := &walkState{
		Walker:  w,
		net:     net,
		values:  values,
		acc:     NewAccumulator(w.Def.LineItems),
		visited: make(map[*disclosure.Concept]bool),
	}

	if net != nil {
		all := newLineSet(w.Def.LineItems)
		for _, root := range net.Roots() {
			st.walk(root, nil, 1, all, "")
		}
	}
	st.sweep()
	return st.acc.Finalize()
}

func (st *walkState) observe(pos int, item string) {
	if st.Observe != nil {
		st.Observe(pos, item)
	}
}

func (st *walkState) markDescendants(c *disclosure.Concept) {
	for _, d := range disclosure.Descendants(st.net, c) {
		st.visited[d] = true
	}
}

func (st *walkState) conceptLog(c, parent *disclosure.Concept) *zap.Logger {
	log := st.Log.With(zap.String("concept", c.QName()))
	if parent != nil {
		log = log.With(zap.String("parent", parent.QName()))
	}
	return log
}

func (st *walkState) walk(c, parent *disclosure.Concept, weight int64, allowed lineSet, other string) {
	if st.visited[c] {
		// Reconverging branches: the subtree has been counted already.
		st.markDescendants(c)
		return
	}
	st.visited[c] = true

	children := st.net.From(c)
	fv, hasValue := st.values[c.Name]

	if rule, ok := st.Def.Rule(c.Name); ok {
		item := ""
		switch rule.Kind {
		case report.AddTo:
			item = rule.First()
			for _, cand := range rule.Candidates {
				if allowed[cand] {
					item = cand
					break
				}
			}
		case report.Total:
			item = rule.First()
		}

		if item != "" && !allowed[item] {
			st.conceptLog(c, parent).Warn("concept is not expected within this breakdown",
				zap.String("lineitem", item))
			item = ""
		}

		restrict := rule.Allowed
		if len(restrict) == 0 {
			restrict = []string{item}
		}
		allowed = allowed.intersect(restrict)
		if len(allowed) == 0 {
			st.conceptLog(c, parent).Warn("breakdown of concept allows no line items")
		}

		if rule.Other != "" {
			other = rule.Other
		}

		if hasValue {
			overflow := false
			if item == "" && len(children) == 0 {
				item, overflow = other, true
			}
			switch {
			case item != "" && rule.Kind == report.Total && !overflow:
				st.observe(fv.Position, item)
				if st.acc.IsSet(item) {
					st.conceptLog(c, parent).Error("overwriting already set total value",
						zap.String("lineitem", item))
				}
				st.acc.Set(item, weight*fv.Value)
			case item != "":
				st.observe(fv.Position, item)
				st.acc.Add(item, weight*fv.Value)
				st.markDescendants(c)
				return
			case len(children) == 0:
				st.conceptLog(c, parent).Error("ignored value of inconsistent concept")
			}
		}
	} else if hasValue && len(children) == 0 {
		if other != "" {
			st.observe(fv.Position, other)
			st.conceptLog(c, parent).Warn("added value of unknown concept to overflow line item",
				zap.String("lineitem", other))
			st.acc.Add(other, weight*fv.Value)
		} else {
			st.conceptLog(c, parent).Error("ignored value of unknown concept")
		}
		st.markDescendants(c)
		return
	}

	if p, ok := st.Def.Partitions[c.Name]; ok && st.walkPartition(c, p, children, weight) {
		return
	}

	for _, rel := range children {
		st.walk(rel.Target, c, weight*int64(rel.Weight), allowed, other)
	}
}

// walkPartition walks the children of c under the partition's "before"
// scope up to and including the pivot child, and under "after" for the
// rest. It reports false when c has no pivot child.
func (st *walkState) walkPartition(c *disclosure.Concept, p report.Partition, children []disclosure.Relationship, weight int64) bool {
	pivot := -1
	for i, rel := range children {
		if rel.Target.Name == p.Pivot {
			pivot = i
			break
		}
	}
	if pivot < 0 {
		return false
	}

	allowed, other := newLineSet(p.Before.Allowed), p.Before.Other
	for i, rel := range children {
		st.walk(rel.Target, c, weight*int64(rel.Weight), allowed, other)
		if i == pivot {
			allowed, other = newLineSet(p.After.Allowed), p.After.Other
		}
	}
	return true
}

// sweep assigns values of concepts the walk never reached, as long as the
// target line item is still untouched.
func (st *walkState) sweep() {
	visited := make(map[string]bool, len(st.visited))
	for c := range st.visited {
		visited[c.Name] = true
	}

	pending := make([]FactValue, 0, len(st.values))
	for name, fv := range st.values {
		if !visited[name] {
			pending = append(pending, fv)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Position < pending[j].Position })

	for _, fv := range pending {
		log := st.Log.With(zap.String("concept", fv.Concept.QName()))
		rule, ok := st.Def.Rule(fv.Concept.Name)
		if !ok {
			log.Warn("ignored value of unknown concept outside calculation tree")
			continue
		}
		item := rule.First()
		if st.acc.IsSet(item) {
			log.Warn("ignored value outside calculation tree to preserve totals",
				zap.String("lineitem", item))
			continue
		}
		v := fv.Value
		if item == treasuryStockItem && v > 0 {
			v = -v
		}
		st.observe(fv.Position, item)
		st.acc.Add(item, v)
	}
}
