// Package disclosuretest assembles disclosure documents in memory for tests.
package disclosuretest

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/secdb/internal/disclosure"
)

// Namespaces used by Builder for generated concepts.
const (
	USGAAPNamespace = "http://fasb.org/us-gaap/2015-01-31"
	DEINamespace    = "http://xbrl.sec.gov/dei/2014-01-31"
)

// Builder assembles a Document in memory. Concepts are referenced by local
// name; contexts by ID. Errors surface from Build.
type Builder struct {
	doc   disclosure.Document
	ids   map[string]string
	roles map[string]int
	order map[string]float64
}

// NewBuilder returns an empty builder with a USD unit.
func NewBuilder() *Builder {
	b := &Builder{
		ids:   make(map[string]string),
		roles: make(map[string]int),
		order: make(map[string]float64),
	}
	b.doc.Units = []disclosure.Unit{{ID: "usd", Measure: "iso4217:USD"}}
	return b
}

func (b *Builder) concept(ns, prefix, name string, typ disclosure.ConceptType, node disclosure.NodeKind, abstract bool) *Builder {
	if _, ok := b.ids[name]; ok {
		return b
	}
	id := prefix + ":" + name
	b.ids[name] = id
	b.doc.Concepts = append(b.doc.Concepts, &disclosure.Concept{
		ID:        id,
		Namespace: ns,
		Name:      name,
		Abstract:  abstract,
		Type:      typ,
		Node:      node,
		Labels:    map[string]string{disclosure.StandardLabel: name},
	})
	return b
}

// Monetary declares monetary us-gaap concepts.
func (b *Builder) Monetary(names ...string) *Builder {
	for _, n := range names {
		b.concept(USGAAPNamespace, "us-gaap", n, disclosure.Monetary, disclosure.Item, false)
	}
	return b
}

// Numeric declares non-monetary numeric us-gaap concepts.
func (b *Builder) Numeric(names ...string) *Builder {
	for _, n := range names {
		b.concept(USGAAPNamespace, "us-gaap", n, disclosure.Numeric, disclosure.Item, false)
	}
	return b
}

// Text declares string us-gaap concepts.
func (b *Builder) Text(names ...string) *Builder {
	for _, n := range names {
		b.concept(USGAAPNamespace, "us-gaap", n, disclosure.Text, disclosure.Item, false)
	}
	return b
}

// Abstract declares abstract headings and domain members.
func (b *Builder) Abstract(names ...string) *Builder {
	for _, n := range names {
		b.concept(USGAAPNamespace, "us-gaap", n, disclosure.Text, disclosure.Item, true)
	}
	return b
}

// Axis declares dimension concepts.
func (b *Builder) Axis(names ...string) *Builder {
	for _, n := range names {
		b.concept(USGAAPNamespace, "us-gaap", n, disclosure.Text, disclosure.Dimension, true)
	}
	return b
}

// Table declares hypercube concepts.
func (b *Builder) Table(names ...string) *Builder {
	for _, n := range names {
		b.concept(USGAAPNamespace, "us-gaap", n, disclosure.Text, disclosure.Hypercube, true)
	}
	return b
}

// DEI declares a dei concept of the given type.
func (b *Builder) DEI(name string, typ disclosure.ConceptType) *Builder {
	return b.concept(DEINamespace, "dei", name, typ, disclosure.Item, false)
}

// Label sets an additional label on a declared concept.
func (b *Builder) Label(name, role, text string) *Builder {
	for _, c := range b.doc.Concepts {
		if c.Name == name {
			c.Labels[role] = text
		}
	}
	return b
}

// Role declares a link role.
func (b *Builder) Role(uri, definition string) *Builder {
	if _, ok := b.roles[uri]; ok {
		return b
	}
	b.roles[uri] = len(b.doc.Roles)
	b.doc.Roles = append(b.doc.Roles, disclosure.Role{URI: uri, Definition: definition})
	return b
}

func (b *Builder) id(name string) string {
	if id, ok := b.ids[name]; ok {
		return id
	}
	// Unknown names flow through and fail in Build.
	return name
}

func (b *Builder) nextOrder(key string) float64 {
	b.order[key]++
	return b.order[key]
}

// Present adds a presentation arc to role, declaring the role if needed.
func (b *Builder) Present(role, from, to, preferredLabel string) *Builder {
	b.Role(role, "")
	r := &b.doc.Roles[b.roles[role]]
	r.Presentation = append(r.Presentation, disclosure.Arc{
		From:           b.id(from),
		To:             b.id(to),
		Order:          b.nextOrder("p|" + role + "|" + from),
		PreferredLabel: preferredLabel,
	})
	return b
}

// Calc adds a calculation arc to role, declaring the role if needed.
func (b *Builder) Calc(role, from, to string, weight float64) *Builder {
	b.Role(role, "")
	r := &b.doc.Roles[b.roles[role]]
	r.Calculation = append(r.Calculation, disclosure.Arc{
		From:   b.id(from),
		To:     b.id(to),
		Order:  b.nextOrder("c|" + role + "|" + from),
		Weight: weight,
	})
	return b
}

// Instant adds an instant context. Each dims entry is "Axis=Member".
func (b *Builder) Instant(id, date string, dims ...string) *Builder {
	b.doc.RawContexts = append(b.doc.RawContexts, disclosure.RawCtx{ID: id, Entity: "0000000001", Instant: date, Dimensions: b.dims(dims)})
	return b
}

// Duration adds a start/end context. Each dims entry is "Axis=Member".
func (b *Builder) Duration(id, start, end string, dims ...string) *Builder {
	b.doc.RawContexts = append(b.doc.RawContexts, disclosure.RawCtx{ID: id, Entity: "0000000001", Start: start, End: end, Dimensions: b.dims(dims)})
	return b
}

func (b *Builder) dims(pairs []string) []disclosure.RawDim {
	var out []disclosure.RawDim
	for _, p := range pairs {
		axis, member, _ := strings.Cut(p, "=")
		out = append(out, disclosure.RawDim{Axis: b.id(axis), Member: b.id(member)})
	}
	return out
}

// Fact adds a fact. Monetary concepts are reported in USD.
func (b *Builder) Fact(concept, ctx, value string) *Builder {
	unit := ""
	for _, c := range b.doc.Concepts {
		if c.Name == concept && c.IsMonetary() {
			unit = "usd"
		}
	}
	return b.add(disclosure.RawFact{Concept: b.id(concept), Context: ctx, Unit: unit, Value: value})
}

// CurrencyFact adds a monetary fact in the given ISO currency.
func (b *Builder) CurrencyFact(concept, ctx, currency, value string) *Builder {
	unit := strings.ToLower(currency)
	found := false
	for _, u := range b.doc.Units {
		if u.ID == unit {
			found = true
		}
	}
	if !found {
		b.doc.Units = append(b.doc.Units, disclosure.Unit{ID: unit, Measure: "iso4217:" + currency})
	}
	return b.add(disclosure.RawFact{Concept: b.id(concept), Context: ctx, Unit: unit, Value: value})
}

// NilFact adds an explicitly nil fact.
func (b *Builder) NilFact(concept, ctx string) *Builder {
	return b.add(disclosure.RawFact{Concept: b.id(concept), Context: ctx, Unit: "usd", Nil: true})
}

func (b *Builder) add(f disclosure.RawFact) *Builder {
	b.doc.RawFacts = append(b.doc.RawFacts, f)
	return b
}

// Build encodes the assembled snapshot and decodes it back, so references
// resolve exactly as they do for a snapshot read from disk.
func (b *Builder) Build() (*disclosure.Document, error) {
	data, err := json.Marshal(&b.doc)
	if err != nil {
		return nil, eris.Wrap(err, "disclosuretest: encode document")
	}
	return disclosure.Decode(bytes.NewReader(data))
}
