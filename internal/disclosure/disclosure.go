// Package disclosure models a parsed XBRL instance: concepts, contexts, facts
// and the presentation and calculation networks of each extended link role.
package disclosure

import (
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// Standard label roles.
const (
	StandardLabel = "http://www.xbrl.org/2003/role/label"
	TotalLabel    = "http://www.xbrl.org/2003/role/totalLabel"
	NegatedLabel  = "http://www.xbrl.org/2009/role/negatedLabel"
	StartLabel    = "http://www.xbrl.org/2003/role/periodStartLabel"
	EndLabel      = "http://www.xbrl.org/2003/role/periodEndLabel"
)

// ConceptType is the data type family of a concept.
type ConceptType string

const (
	Monetary ConceptType = "monetary"
	Numeric  ConceptType = "numeric"
	Text     ConceptType = "string"
)

// NodeKind distinguishes primary items from dimensional constructs.
type NodeKind string

const (
	Item      NodeKind = "item"
	Dimension NodeKind = "dimension"
	Hypercube NodeKind = "hypercube"
)

// Concept is a taxonomy element.
type Concept struct {
	ID        string            `json:"id"`
	Namespace string            `json:"namespace"`
	Name      string            `json:"name"`
	Abstract  bool              `json:"abstract,omitempty"`
	Type      ConceptType       `json:"type"`
	Node      NodeKind          `json:"node,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// QName returns the prefixed name used in log output.
func (c *Concept) QName() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Name
}

// IsMonetary reports whether facts of c carry a currency unit.
func (c *Concept) IsMonetary() bool { return c.Type == Monetary }

// IsNumeric reports whether facts of c are numbers. Monetary concepts are numeric.
func (c *Concept) IsNumeric() bool { return c.Type == Monetary || c.Type == Numeric }

// IsDimension reports whether c is an axis.
func (c *Concept) IsDimension() bool { return c.Node == Dimension }

// IsHypercube reports whether c is a table.
func (c *Concept) IsHypercube() bool { return c.Node == Hypercube }

// Label returns the label text for role, falling back to the standard label
// when role is empty or has no text.
func (c *Concept) Label(role string) string {
	if l, ok := c.Labels[role]; ok && role != "" {
		return l
	}
	return c.Labels[StandardLabel]
}

// Period is either an instant or a start/end duration.
type Period struct {
	Instant time.Time
	Start   time.Time
	End     time.Time
}

// IsInstant reports whether p is a point in time.
func (p Period) IsInstant() bool { return !p.Instant.IsZero() }

// IsDuration reports whether p has a start and an end date.
func (p Period) IsDuration() bool { return !p.Start.IsZero() && !p.End.IsZero() }

// EndDate returns the instant or the end of the duration.
func (p Period) EndDate() time.Time {
	if p.IsInstant() {
		return p.Instant
	}
	return p.End
}

// Months returns the duration length rounded to whole 30-day months.
func (p Period) Months() int {
	if !p.IsDuration() {
		return 0
	}
	days := p.End.Sub(p.Start).Hours() / 24
	return int(math.RoundToEven(days / 30))
}

// Equal reports whether both periods denote the same dates.
func (p Period) Equal(o Period) bool {
	return p.Instant.Equal(o.Instant) && p.Start.Equal(o.Start) && p.End.Equal(o.End)
}

// DimValue is one explicit (axis, member) pair of a context segment.
type DimValue struct {
	Axis   *Concept
	Member *Concept
}

// Context is the reporting scope of a fact.
type Context struct {
	ID         string
	Entity     string
	Period     Period
	Dimensions []DimValue
}

// HasSegment reports whether the context is dimensionally qualified.
func (c *Context) HasSegment() bool { return len(c.Dimensions) > 0 }

// Fact is one reported value.
type Fact struct {
	Concept *Concept
	Context *Context
	// Currency is the ISO 4217 code of the unit, empty for non-currency units.
	Currency string
	Value    string
	Nil      bool
}

// Decimal parses the fact value.
func (f *Fact) Decimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(f.Value))
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "disclosure: parse value of %s", f.Concept.QName())
	}
	return d, nil
}

// Relationship is one arc of a network.
type Relationship struct {
	Source         *Concept
	Target         *Concept
	Weight         float64
	Order          float64
	PreferredLabel string
}

// Network is the tree of relationships of one arc role within one link role.
type Network interface {
	Roots() []*Concept
	From(c *Concept) []Relationship
	To(c *Concept) []Relationship
}

// Instance is the read-only view of a parsed filing.
type Instance interface {
	// RoleDefinition returns the definition string of a link role.
	RoleDefinition(role string) string
	// PresentationRoles lists the link roles that have presentation arcs.
	PresentationRoles() []string
	// Presentation returns the presentation network of role, or nil.
	Presentation(role string) Network
	// Calculation returns the calculation network of role, or nil.
	Calculation(role string) Network
	Contexts() []*Context
	// Facts returns the facts reported for c in ctx.
	Facts(c *Concept, ctx *Context) []*Fact
	// FactsByName returns every fact whose concept has the given local name.
	FactsByName(name string) []*Fact
}

// Descendants returns every concept reachable from root in depth-first order,
// excluding root itself. A concept reached along several paths is listed once.
func Descendants(n Network, root *Concept) []*Concept {
	var out []*Concept
	seen := map[*Concept]struct{}{root: {}}
	var walk func(c *Concept)
	walk = func(c *Concept) {
		for _, rel := range n.From(c) {
			if _, ok := seen[rel.Target]; ok {
				continue
			}
			seen[rel.Target] = struct{}{}
			out = append(out, rel.Target)
			walk(rel.Target)
		}
	}
	walk(root)
	return out
}
