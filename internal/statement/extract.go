package statement

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/secdb/internal/disclosure"
	"github.com/sells-group/secdb/internal/model"
)

// Axes that never take part in the general dimensional rollup.
const (
	legalEntityAxis  = "LegalEntityAxis"
	classOfStockAxis = "StatementClassOfStockAxis"
)

// FactValue is a monetary value found in the presentation network.
type FactValue struct {
	Position int
	Concept  *disclosure.Concept
	Value    int64
}

// FactValues maps a concept name to its extracted monetary value.
type FactValues map[string]FactValue

// Extraction is the result of reading one presentation role.
type Extraction struct {
	Values FactValues
	// Records holds every presented concept with its raw value, in
	// presentation order, for the fact audit table.
	Records []model.FactRecord
}

// Extractor reads values for the concepts of a presentation network.
type Extractor struct {
	Currency string
	Log      *zap.Logger
}

// NewExtractor returns an extractor for the given reporting currency.
func NewExtractor(currency string, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.L()
	}
	return &Extractor{Currency: currency, Log: log}
}

type presented struct {
	concept        *disclosure.Concept
	preferredLabel string
	level          int
}

type domains map[*disclosure.Concept]map[*disclosure.Concept]bool

// presentationConcepts flattens a presentation network depth-first. Axis
// nodes record their descendants as the axis domain and are not entered;
// tables do not add a nesting level.
func presentationConcepts(n disclosure.Network) ([]presented, domains) {
	var concepts []presented
	dims := make(domains)

	var walk func(c *disclosure.Concept, label string, level, depth int)
	walk = func(c *disclosure.Concept, label string, level, depth int) {
		if depth > maxWalkDepth {
			return
		}
		if c.IsDimension() {
			members := make(map[*disclosure.Concept]bool)
			for _, m := range disclosure.Descendants(n, c) {
				members[m] = true
			}
			dims[c] = members
			return
		}
		if c.IsHypercube() {
			level--
		} else {
			concepts = append(concepts, presented{concept: c, preferredLabel: label, level: level})
		}
		for _, rel := range n.From(c) {
			walk(rel.Target, rel.PreferredLabel, level+1, depth+1)
		}
	}
	for _, root := range n.Roots() {
		walk(root, "", 0, 0)
	}
	return concepts, dims
}

const maxWalkDepth = 64

// dimensionContexts returns the dimensional contexts sharing period and
// entity with ctx whose every (axis, member) pair lies within dims.
func dimensionContexts(inst disclosure.Instance, ctx *disclosure.Context, dims domains) []*disclosure.Context {
	if len(dims) == 0 {
		return nil
	}
	var out []*disclosure.Context
	for _, dc := range inst.Contexts() {
		if !dc.HasSegment() || dc.Entity != ctx.Entity || !dc.Period.Equal(ctx.Period) {
			continue
		}
		matching := true
		for _, dv := range dc.Dimensions {
			members, ok := dims[dv.Axis]
			if !ok || !members[dv.Member] {
				matching = false
				break
			}
		}
		if matching {
			out = append(out, dc)
		}
	}
	return out
}

func splitDomains(dims domains) (general, stock domains) {
	general, stock = make(domains), make(domains)
	for axis, members := range dims {
		switch axis.Name {
		case legalEntityAxis:
		case classOfStockAxis:
			stock[axis] = members
		default:
			general[axis] = members
		}
	}
	return general, stock
}

// InstantContext returns the undimensioned instant context at date.
func InstantContext(inst disclosure.Instance, date time.Time) *disclosure.Context {
	for _, c := range inst.Contexts() {
		if c.Period.IsInstant() && c.Period.Instant.Equal(date) && !c.HasSegment() {
			return c
		}
	}
	return nil
}

func isTotalRole(role string) bool { return strings.Contains(strings.ToLower(role), "total") }
func isNegatedRole(role string) bool { return strings.Contains(strings.ToLower(role), "negated") }
func isStartRole(role string) bool { return strings.Contains(strings.ToLower(role), "periodstart") }
func isEndRole(role string) bool { return strings.Contains(strings.ToLower(role), "periodend") }

// Extract reads the presentation network of role against the required
// context ctx.
func (e *Extractor) Extract(inst disclosure.Instance, role string, kind model.StatementKind, ctx *disclosure.Context) (*Extraction, error) {
	n := inst.Presentation(role)
	if n == nil {
		return nil, eris.Errorf("statement: no presentation network for %s", role)
	}
	if ctx == nil {
		return nil, eris.New("statement: no context to extract")
	}

	concepts, dims := presentationConcepts(n)
	general, stock := splitDomains(dims)
	dimCtx := dimensionContexts(inst, ctx, general)
	stockCtx := dimensionContexts(inst, ctx, stock)

	out := &Extraction{Values: make(FactValues)}
	for i, p := range concepts {
		c := p.concept
		var text string

		switch {
		case c.Abstract:
		case c.IsMonetary():
			v, ok := e.rollup(inst, c, ctx, dimCtx, stockCtx)
			if !ok && ctx.Period.IsDuration() {
				switch {
				case isStartRole(p.preferredLabel):
					v, ok = e.monetary(inst, c, InstantContext(inst, ctx.Period.Start))
				case isEndRole(p.preferredLabel):
					v, ok = e.monetary(inst, c, InstantContext(inst, ctx.Period.End))
				}
			}
			if ok {
				out.Values[c.Name] = FactValue{Position: i, Concept: c, Value: v}
				text = decimal.NewFromInt(v).String()
			}
		case c.IsNumeric():
			if d, ok := e.numeric(inst, c, ctx); ok {
				text = d.String()
			}
		default:
			text = textValue(inst, c, ctx)
		}

		out.Records = append(out.Records, model.FactRecord{
			Report:     kind,
			Position:   i,
			Label:      c.Label(p.preferredLabel),
			Namespace:  c.Namespace,
			Name:       c.Name,
			Value:      text,
			Level:      p.level,
			IsAbstract: c.Abstract,
			IsTotal:    isTotalRole(p.preferredLabel),
			IsNegated:  isNegatedRole(p.preferredLabel),
		})
	}
	return out, nil
}

// rollup resolves a monetary value: the exact context first, else the sum
// over the dimensional contexts, plus the class-of-stock breakdown on top.
func (e *Extractor) rollup(inst disclosure.Instance, c *disclosure.Concept, ctx *disclosure.Context, dimCtx, stockCtx []*disclosure.Context) (int64, bool) {
	var sum int64
	found := false

	if v, ok := e.monetary(inst, c, ctx); ok {
		sum, found = v, true
	} else {
		for _, dc := range dimCtx {
			if v, ok := e.monetary(inst, c, dc); ok {
				sum += v
				found = true
			}
		}
	}
	for _, dc := range stockCtx {
		if v, ok := e.monetary(inst, c, dc); ok {
			sum += v
			found = true
		}
	}
	return sum, found
}

// monetary returns the first non-nil value of c in ctx reported in the
// extractor's currency, truncated to an integer.
func (e *Extractor) monetary(inst disclosure.Instance, c *disclosure.Concept, ctx *disclosure.Context) (int64, bool) {
	if !c.IsMonetary() || ctx == nil {
		return 0, false
	}
	for _, f := range inst.Facts(c, ctx) {
		if f.Nil || f.Currency != e.Currency {
			continue
		}
		d, err := f.Decimal()
		if err != nil {
			e.Log.Warn("ignored unparseable fact value",
				zap.String("concept", c.QName()),
				zap.String("context", ctx.ID),
				zap.Error(err),
			)
			continue
		}
		return d.IntPart(), true
	}
	return 0, false
}

func (e *Extractor) numeric(inst disclosure.Instance, c *disclosure.Concept, ctx *disclosure.Context) (decimal.Decimal, bool) {
	for _, f := range inst.Facts(c, ctx) {
		if f.Nil {
			continue
		}
		d, err := f.Decimal()
		if err != nil {
			e.Log.Warn("ignored unparseable fact value",
				zap.String("concept", c.QName()),
				zap.String("context", ctx.ID),
				zap.Error(err),
			)
			continue
		}
		return d, true
	}
	return decimal.Zero, false
}

func textValue(inst disclosure.Instance, c *disclosure.Concept, ctx *disclosure.Context) string {
	for _, f := range inst.Facts(c, ctx) {
		if f.Nil {
			continue
		}
		return f.Value
	}
	return ""
}
