package report

import (
	"embed"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/secdb/internal/model"
)

//go:embed defs/*.yaml
var defsFS embed.FS

// Negation marks a line item whose sign is flipped inside a totals or ratio formula.
const Negation = "-"

var identRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*$`)

type statementFile struct {
	Kind       string                   `yaml:"kind"`
	Name       string                   `yaml:"name"`
	LineItems  []string                 `yaml:"lineitems"`
	Mappings   map[string]ruleFile      `yaml:"mappings"`
	Totals     map[string][]string      `yaml:"totals"`
	Negate     []string                 `yaml:"negate"`
	Partitions map[string]partitionFile `yaml:"partitions"`
}

type ruleFile struct {
	AddTo   []string `yaml:"add-to"`
	Total   string   `yaml:"total"`
	Allowed []string `yaml:"allowed"`
	Other   string   `yaml:"other"`
}

type scopeFile struct {
	Allowed []string `yaml:"allowed"`
	Other   string   `yaml:"other"`
}

type partitionFile struct {
	Pivot  string    `yaml:"pivot"`
	Before scopeFile `yaml:"before"`
	After  scopeFile `yaml:"after"`
}

type ratiosFile struct {
	Ratios []struct {
		Name        string        `yaml:"name"`
		Numerator   []operandFile `yaml:"numerator"`
		Denominator []operandFile `yaml:"denominator"`
	} `yaml:"ratios"`
}

type operandFile struct {
	Report   string `yaml:"report"`
	LineItem string `yaml:"lineitem"`
}

// Load reads the embedded default definitions.
func Load() (*Set, error) {
	return load(func(name string) ([]byte, error) {
		return defsFS.ReadFile("defs/" + name)
	})
}

// LoadDir reads definitions from dir, falling back to the embedded copy for
// any file that is not present there.
func LoadDir(dir string) (*Set, error) {
	if dir == "" {
		return Load()
	}
	return load(func(name string) ([]byte, error) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
		return defsFS.ReadFile("defs/" + name)
	})
}

func load(read func(name string) ([]byte, error)) (*Set, error) {
	set := &Set{}
	for _, kind := range model.StatementKinds {
		name := kind.String() + ".yaml"
		data, err := read(name)
		if err != nil {
			return nil, eris.Wrapf(err, "report: read %s", name)
		}
		def, err := ParseStatement(data)
		if err != nil {
			return nil, eris.Wrapf(err, "report: %s", name)
		}
		if def.Kind != kind {
			return nil, eris.Errorf("report: %s declares kind %q", name, def.Kind)
		}
		switch kind {
		case model.Balance:
			set.Balance = def
		case model.Income:
			set.Income = def
		case model.Cashflow:
			set.Cashflow = def
		}
	}

	data, err := read("ratios.yaml")
	if err != nil {
		return nil, eris.Wrap(err, "report: read ratios.yaml")
	}
	ratios, err := ParseRatios(data, set)
	if err != nil {
		return nil, eris.Wrap(err, "report: ratios.yaml")
	}
	set.Ratios = ratios
	return set, nil
}

// ParseStatement decodes and validates one statement definition.
func ParseStatement(data []byte) (*Definition, error) {
	var f statementFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "parse statement definition")
	}

	def := &Definition{
		Kind:       model.StatementKind(f.Kind),
		Name:       f.Name,
		LineItems:  f.LineItems,
		Rules:      make(map[string]Rule, len(f.Mappings)),
		Totals:     f.Totals,
		Negate:     f.Negate,
		Partitions: make(map[string]Partition, len(f.Partitions)),
	}
	if def.Totals == nil {
		def.Totals = map[string][]string{}
	}

	switch def.Kind {
	case model.Balance, model.Income, model.Cashflow:
	default:
		return nil, eris.Errorf("unknown statement kind %q", f.Kind)
	}

	items := make(map[string]bool, len(def.LineItems))
	for _, li := range def.LineItems {
		if !identRe.MatchString(li) {
			return nil, eris.Errorf("line item %q is not a valid identifier", li)
		}
		if items[li] {
			return nil, eris.Errorf("duplicate line item %q", li)
		}
		items[li] = true
	}
	if len(items) == 0 {
		return nil, eris.New("no line items")
	}

	known := func(where string, names ...string) error {
		for _, n := range names {
			if n != "" && !items[n] {
				return eris.Errorf("%s: unknown line item %q", where, n)
			}
		}
		return nil
	}

	for concept, rf := range f.Mappings {
		var r Rule
		switch {
		case len(rf.AddTo) > 0 && rf.Total != "":
			return nil, eris.Errorf("mapping %s: add-to and total are exclusive", concept)
		case len(rf.AddTo) > 0:
			r = Rule{Kind: AddTo, Candidates: rf.AddTo}
		case rf.Total != "":
			r = Rule{Kind: Total, Candidates: []string{rf.Total}}
		default:
			return nil, eris.Errorf("mapping %s: needs add-to or total", concept)
		}
		r.Allowed = rf.Allowed
		r.Other = rf.Other
		if err := known("mapping "+concept, r.Candidates...); err != nil {
			return nil, err
		}
		if err := known("mapping "+concept, r.Allowed...); err != nil {
			return nil, err
		}
		if err := known("mapping "+concept, r.Other); err != nil {
			return nil, err
		}
		def.Rules[concept] = r
	}

	for total, operands := range def.Totals {
		if err := known("totals", total); err != nil {
			return nil, err
		}
		for _, op := range operands {
			if op == Negation {
				continue
			}
			if err := known("totals "+total, op); err != nil {
				return nil, err
			}
		}
	}
	if err := checkTotalsAcyclic(def.Totals); err != nil {
		return nil, err
	}

	if err := known("negate", def.Negate...); err != nil {
		return nil, err
	}

	for concept, pf := range f.Partitions {
		if pf.Pivot == "" {
			return nil, eris.Errorf("partition %s: missing pivot", concept)
		}
		for _, s := range []scopeFile{pf.Before, pf.After} {
			if err := known("partition "+concept, s.Allowed...); err != nil {
				return nil, err
			}
			if err := known("partition "+concept, s.Other); err != nil {
				return nil, err
			}
		}
		def.Partitions[concept] = Partition{
			Pivot:  pf.Pivot,
			Before: Scope{Allowed: pf.Before.Allowed, Other: pf.Before.Other},
			After:  Scope{Allowed: pf.After.Allowed, Other: pf.After.Other},
		}
	}

	return def, nil
}

// checkTotalsAcyclic rejects formulas that reference themselves directly or
// through other totals.
func checkTotalsAcyclic(totals map[string][]string) error {
	const (
		unseen = iota
		active
		done
	)
	state := make(map[string]int, len(totals))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case active:
			return eris.Errorf("totals cycle: %s", strings.Join(append(path, name), " -> "))
		case done:
			return nil
		}
		state[name] = active
		for _, op := range totals[name] {
			if _, isTotal := totals[op]; !isTotal {
				continue
			}
			if err := visit(op, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for name := range totals {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// ParseRatios decodes ratio formulas and checks every operand against the
// statement definitions in set.
func ParseRatios(data []byte, set *Set) (*RatioSet, error) {
	var f ratiosFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "parse ratio definitions")
	}

	out := &RatioSet{Formulas: make([]Formula, 0, len(f.Ratios))}
	seen := make(map[string]bool, len(f.Ratios))

	convert := func(ratio string, ops []operandFile) ([]Operand, error) {
		res := make([]Operand, 0, len(ops))
		for _, op := range ops {
			kind := model.StatementKind(op.Report)
			def := set.Statement(kind)
			if def == nil {
				return nil, eris.Errorf("ratio %s: unknown report %q", ratio, op.Report)
			}
			item := strings.TrimPrefix(op.LineItem, Negation)
			if !def.HasLineItem(item) {
				return nil, eris.Errorf("ratio %s: unknown %s line item %q", ratio, kind, item)
			}
			res = append(res, Operand{
				Report:   kind,
				LineItem: item,
				Negative: strings.HasPrefix(op.LineItem, Negation),
			})
		}
		return res, nil
	}

	for _, r := range f.Ratios {
		if !identRe.MatchString(r.Name) {
			return nil, eris.Errorf("ratio name %q is not a valid identifier", r.Name)
		}
		if seen[r.Name] {
			return nil, eris.Errorf("duplicate ratio %q", r.Name)
		}
		seen[r.Name] = true

		num, err := convert(r.Name, r.Numerator)
		if err != nil {
			return nil, err
		}
		den, err := convert(r.Name, r.Denominator)
		if err != nil {
			return nil, err
		}
		if len(num) == 0 || len(den) == 0 {
			return nil, eris.Errorf("ratio %s: numerator and denominator must be non-empty", r.Name)
		}
		out.Formulas = append(out.Formulas, Formula{Name: r.Name, Numerator: num, Denominator: den})
	}
	return out, nil
}
