package disclosure

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const dateLayout = "2006-01-02"

// Document is a JSON snapshot of a parsed XBRL instance. It implements Instance.
type Document struct {
	Concepts    []*Concept `json:"concepts"`
	Roles       []Role     `json:"roles"`
	RawContexts []RawCtx   `json:"contexts"`
	Units       []Unit     `json:"units"`
	RawFacts    []RawFact  `json:"facts"`

	concepts     map[string]*Concept
	contexts     []*Context
	roles        map[string]*Role
	presentation map[string]*network
	calculation  map[string]*network
	facts        map[factKey][]*Fact
	byName       map[string][]*Fact
}

// Role is one extended link role with its arcs.
type Role struct {
	URI          string `json:"uri"`
	Definition   string `json:"definition"`
	Presentation []Arc  `json:"presentation,omitempty"`
	Calculation  []Arc  `json:"calculation,omitempty"`
}

// Arc references concepts by ID.
type Arc struct {
	From           string  `json:"from"`
	To             string  `json:"to"`
	Order          float64 `json:"order,omitempty"`
	Weight         float64 `json:"weight,omitempty"`
	PreferredLabel string  `json:"preferredLabel,omitempty"`
}

// RawCtx is the serialized form of a Context.
type RawCtx struct {
	ID         string   `json:"id"`
	Entity     string   `json:"entity"`
	Instant    string   `json:"instant,omitempty"`
	Start      string   `json:"start,omitempty"`
	End        string   `json:"end,omitempty"`
	Dimensions []RawDim `json:"dimensions,omitempty"`
}

// RawDim is the serialized form of a DimValue.
type RawDim struct {
	Axis   string `json:"axis"`
	Member string `json:"member"`
}

// Unit maps a unit ID to its measure, e.g. "iso4217:USD".
type Unit struct {
	ID      string `json:"id"`
	Measure string `json:"measure"`
}

// RawFact is the serialized form of a Fact.
type RawFact struct {
	Concept string `json:"concept"`
	Context string `json:"context"`
	Unit    string `json:"unit,omitempty"`
	Value   string `json:"value,omitempty"`
	Nil     bool   `json:"nil,omitempty"`
}

type factKey struct {
	concept *Concept
	context *Context
}

// Decode reads a snapshot from r and resolves its references.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "disclosure: decode document")
	}
	if err := doc.index(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Open reads the snapshot at path.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "disclosure: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	doc, err := Decode(f)
	if err != nil {
		return nil, eris.Wrapf(err, "disclosure: load %s", path)
	}
	return doc, nil
}

func (d *Document) index() error {
	d.concepts = make(map[string]*Concept, len(d.Concepts))
	for _, c := range d.Concepts {
		if c.ID == "" {
			return eris.Errorf("disclosure: concept %q has no id", c.Name)
		}
		if c.Name == "" {
			c.Name = c.ID[strings.LastIndexAny(c.ID, ":_")+1:]
		}
		if c.Node == "" {
			c.Node = Item
		}
		d.concepts[c.ID] = c
	}

	d.contexts = make([]*Context, 0, len(d.RawContexts))
	ctxByID := make(map[string]*Context, len(d.RawContexts))
	for _, raw := range d.RawContexts {
		ctx, err := d.resolveContext(raw)
		if err != nil {
			return err
		}
		d.contexts = append(d.contexts, ctx)
		ctxByID[ctx.ID] = ctx
	}

	currency := make(map[string]string, len(d.Units))
	for _, u := range d.Units {
		if code, ok := strings.CutPrefix(u.Measure, "iso4217:"); ok {
			currency[u.ID] = code
		}
	}

	d.facts = make(map[factKey][]*Fact, len(d.RawFacts))
	d.byName = make(map[string][]*Fact)
	for _, raw := range d.RawFacts {
		c, ok := d.concepts[raw.Concept]
		if !ok {
			return eris.Errorf("disclosure: fact references unknown concept %q", raw.Concept)
		}
		ctx, ok := ctxByID[raw.Context]
		if !ok {
			return eris.Errorf("disclosure: fact %s references unknown context %q", raw.Concept, raw.Context)
		}
		f := &Fact{Concept: c, Context: ctx, Currency: currency[raw.Unit], Value: raw.Value, Nil: raw.Nil}
		key := factKey{concept: c, context: ctx}
		d.facts[key] = append(d.facts[key], f)
		d.byName[c.Name] = append(d.byName[c.Name], f)
	}

	d.roles = make(map[string]*Role, len(d.Roles))
	d.presentation = make(map[string]*network)
	d.calculation = make(map[string]*network)
	for i := range d.Roles {
		role := &d.Roles[i]
		d.roles[role.URI] = role
		if len(role.Presentation) > 0 {
			n, err := d.buildNetwork(role.URI, role.Presentation, false)
			if err != nil {
				return err
			}
			d.presentation[role.URI] = n
		}
		if len(role.Calculation) > 0 {
			n, err := d.buildNetwork(role.URI, role.Calculation, true)
			if err != nil {
				return err
			}
			d.calculation[role.URI] = n
		}
	}
	return nil
}

func (d *Document) resolveContext(raw RawCtx) (*Context, error) {
	ctx := &Context{ID: raw.ID, Entity: raw.Entity}
	var err error
	parse := func(s string) time.Time {
		if s == "" || err != nil {
			return time.Time{}
		}
		var t time.Time
		t, err = time.Parse(dateLayout, s)
		return t
	}
	ctx.Period = Period{Instant: parse(raw.Instant), Start: parse(raw.Start), End: parse(raw.End)}
	if err != nil {
		return nil, eris.Wrapf(err, "disclosure: context %s period", raw.ID)
	}
	if !ctx.Period.IsInstant() && !ctx.Period.IsDuration() {
		return nil, eris.Errorf("disclosure: context %s has no period", raw.ID)
	}

	for _, dim := range raw.Dimensions {
		axis, ok := d.concepts[dim.Axis]
		if !ok {
			return nil, eris.Errorf("disclosure: context %s references unknown axis %q", raw.ID, dim.Axis)
		}
		member, ok := d.concepts[dim.Member]
		if !ok {
			return nil, eris.Errorf("disclosure: context %s references unknown member %q", raw.ID, dim.Member)
		}
		ctx.Dimensions = append(ctx.Dimensions, DimValue{Axis: axis, Member: member})
	}
	return ctx, nil
}

func (d *Document) buildNetwork(role string, arcs []Arc, calc bool) (*network, error) {
	n := &network{
		from: make(map[*Concept][]Relationship),
		to:   make(map[*Concept][]Relationship),
	}
	var sources []*Concept
	for _, a := range arcs {
		src, ok := d.concepts[a.From]
		if !ok {
			return nil, eris.Errorf("disclosure: role %s arc from unknown concept %q", role, a.From)
		}
		dst, ok := d.concepts[a.To]
		if !ok {
			return nil, eris.Errorf("disclosure: role %s arc to unknown concept %q", role, a.To)
		}
		rel := Relationship{Source: src, Target: dst, Weight: a.Weight, Order: a.Order, PreferredLabel: a.PreferredLabel}
		// Summation-item weights are never zero; an omitted weight means 1.
		if calc && rel.Weight == 0 {
			rel.Weight = 1
		}
		if _, seen := n.from[src]; !seen {
			sources = append(sources, src)
		}
		n.from[src] = append(n.from[src], rel)
		n.to[dst] = append(n.to[dst], rel)
	}

	for _, rels := range n.from {
		sort.SliceStable(rels, func(i, j int) bool { return rels[i].Order < rels[j].Order })
	}
	for _, src := range sources {
		if len(n.to[src]) == 0 {
			n.roots = append(n.roots, src)
		}
	}
	return n, nil
}

// RoleDefinition implements Instance.
func (d *Document) RoleDefinition(role string) string {
	if r, ok := d.roles[role]; ok {
		return r.Definition
	}
	return ""
}

// PresentationRoles implements Instance. Roles are returned in document order.
func (d *Document) PresentationRoles() []string {
	var out []string
	for _, r := range d.Roles {
		if len(r.Presentation) > 0 {
			out = append(out, r.URI)
		}
	}
	return out
}

// Presentation implements Instance.
func (d *Document) Presentation(role string) Network {
	if n, ok := d.presentation[role]; ok {
		return n
	}
	return nil
}

// Calculation implements Instance.
func (d *Document) Calculation(role string) Network {
	if n, ok := d.calculation[role]; ok {
		return n
	}
	return nil
}

// Contexts implements Instance.
func (d *Document) Contexts() []*Context { return d.contexts }

// Facts implements Instance.
func (d *Document) Facts(c *Concept, ctx *Context) []*Fact {
	if c == nil || ctx == nil {
		return nil
	}
	return d.facts[factKey{concept: c, context: ctx}]
}

// FactsByName implements Instance.
func (d *Document) FactsByName(name string) []*Fact { return d.byName[name] }

// Concept returns the concept with the given ID.
func (d *Document) Concept(id string) (*Concept, bool) {
	c, ok := d.concepts[id]
	return c, ok
}

type network struct {
	roots []*Concept
	from  map[*Concept][]Relationship
	to    map[*Concept][]Relationship
}

func (n *network) Roots() []*Concept { return n.roots }

func (n *network) From(c *Concept) []Relationship { return n.from[c] }

func (n *network) To(c *Concept) []Relationship { return n.to[c] }
