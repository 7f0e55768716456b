// Package report holds the canonical statement and ratio definitions: line
// items, concept mapping rules, totals formulas and ratio formulas.
package report

import (
	"github.com/sells-group/secdb/internal/model"
)

// RuleKind tags the variant of a mapping Rule.
type RuleKind int

const (
	// AddTo accumulates the concept into the first allowed candidate line item.
	AddTo RuleKind = iota + 1
	// Total assigns the concept directly as the value of one line item.
	Total
)

// String returns the YAML key of the rule kind.
func (k RuleKind) String() string {
	switch k {
	case AddTo:
		return "add-to"
	case Total:
		return "total"
	default:
		return "unknown"
	}
}

// Rule maps one source concept to canonical line items.
type Rule struct {
	Kind RuleKind
	// Candidates holds the add-to preference list, or the single total line item.
	Candidates []string
	// Allowed restricts the line items the concept's calculation subtree may map to.
	// Empty means the subtree is restricted to the resolved line item.
	Allowed []string
	// Other is the overflow bucket for unrecognised descendants.
	Other string
}

// First returns the first candidate line item.
func (r Rule) First() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0]
}

// Scope is an allowed line-item set together with its overflow bucket.
type Scope struct {
	Allowed []string
	Other   string
}

// Partition splits the calculation children of one concept in two: children
// up to and including Pivot are walked under Before, the rest under After.
type Partition struct {
	Pivot  string
	Before Scope
	After  Scope
}

// Definition describes one canonical statement.
type Definition struct {
	Kind       model.StatementKind
	Name       string
	LineItems  []string
	Rules      map[string]Rule
	Totals     map[string][]string
	Negate     []string
	Partitions map[string]Partition
}

// Rule returns the mapping rule for a concept name.
func (d *Definition) Rule(concept string) (Rule, bool) {
	r, ok := d.Rules[concept]
	return r, ok
}

// HasLineItem reports whether item is one of the statement's line items.
func (d *Definition) HasLineItem(item string) bool {
	for _, li := range d.LineItems {
		if li == item {
			return true
		}
	}
	return false
}

// TotalOrder returns the formula-defined totals in line-item order.
func (d *Definition) TotalOrder() []string {
	out := make([]string, 0, len(d.Totals))
	for _, li := range d.LineItems {
		if _, ok := d.Totals[li]; ok {
			out = append(out, li)
		}
	}
	return out
}

// Operand is one term of a ratio formula.
type Operand struct {
	Report   model.StatementKind
	LineItem string
	Negative bool
}

// Formula is numerator / denominator over sums of operands.
type Formula struct {
	Name        string
	Numerator   []Operand
	Denominator []Operand
}

// Reports returns the set of statement kinds the formula reads from.
func (f Formula) Reports() map[model.StatementKind]bool {
	out := make(map[model.StatementKind]bool)
	for _, op := range f.Numerator {
		out[op.Report] = true
	}
	for _, op := range f.Denominator {
		out[op.Report] = true
	}
	return out
}

// RatioSet is the ordered list of ratio formulas.
type RatioSet struct {
	Formulas []Formula
}

// Names returns the ratio names in column order.
func (r *RatioSet) Names() []string {
	out := make([]string, len(r.Formulas))
	for i, f := range r.Formulas {
		out[i] = f.Name
	}
	return out
}

// Set bundles every definition the pipeline needs.
type Set struct {
	Balance  *Definition
	Income   *Definition
	Cashflow *Definition
	Ratios   *RatioSet
}

// Statement returns the definition for kind, or nil for other kinds.
func (s *Set) Statement(kind model.StatementKind) *Definition {
	switch kind {
	case model.Balance:
		return s.Balance
	case model.Income:
		return s.Income
	case model.Cashflow:
		return s.Cashflow
	default:
		return nil
	}
}
