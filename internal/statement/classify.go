// Package statement turns the presentation and calculation networks of a
// filing into canonical balance sheet, income and cash flow statements.
package statement

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/secdb/internal/disclosure"
	"github.com/sells-group/secdb/internal/model"
)

const (
	definitionSep = " - "
	statementType = "Statement"
)

var (
	upper = cases.Upper(language.Und)

	dropChars  = strings.NewReplacer("`", "", ",", "", "'", "", ".", "")
	spaceChars = strings.NewReplacer(
		"[", " ", "]", " ", "{", " ", "}", " ", "(", " ", ")", " ",
		":", " ", "/", " ", "&", " ", "-", " ",
	)

	// Supporting schedules, including the misspellings seen in filings.
	supportingMarkers = []string{
		"PARENTHETHICAL", "PARENTHETCIAL", "PARATHETICAL", "PARATHENTICALS",
		"PARENTHETIC", "PARENTHETICAL", "PARENTHETICALS", "PARANTHETICAL",
		"PARANTHETICALS", "PARENTHICAL", "PARENTHICALS", "PARENTHTICAL",
		"NOTE", "DISCLOSURE", "FOOTNOTES", "DETAILS",
	}

	excludedWhenAmbiguous = []string{"COMPREHENSIVE", "COMPREHESIVE", "SUPPLEMENTAL"}
)

type wordSet map[string]bool

func (w wordSet) any(words ...string) bool {
	for _, x := range words {
		if w[x] {
			return true
		}
	}
	return false
}

// titleWords upper-cases the free-text part of a definition and splits it
// into words with punctuation removed.
func titleWords(text string) wordSet {
	norm := dropChars.Replace(spaceChars.Replace(upper.String(text)))
	fields := strings.Fields(norm)
	out := make(wordSet, len(fields))
	for _, f := range fields {
		out[f] = true
	}
	return out
}

// splitDefinition returns the sort code, type and free text of a role
// definition of the form "{SortCode} - {Type} - {Title}".
func splitDefinition(definition string) (code, typ, title string, ok bool) {
	parts := strings.Split(definition, definitionSep)
	if len(parts) < 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], strings.Join(parts[2:], " "), true
}

// ClassifyLinkrole returns the statement kind a role definition describes.
func ClassifyLinkrole(definition string) model.StatementKind {
	_, typ, title, ok := splitDefinition(definition)
	if !ok || typ != statementType {
		return model.Other
	}

	w := titleWords(title)
	if w.any(supportingMarkers...) {
		return model.Other
	}

	if w.any("CASHFLOW", "CASHFLOWS") {
		return model.Cashflow
	}
	if w["CASH"] && w.any("FLOW", "FLOWN", "FLOWS", "RECEIPTS") {
		return model.Cashflow
	}

	if (w["INCOME"] && !w.any("CHANGES", "TAX", "TAXES")) ||
		w.any("PROFIT", "EARNINGS", "REVENUES", "OPERATION", "OPERATIONS", "EXPENSES", "LOSS", "LOSSES") {
		return model.Income
	}

	if w["CHANGES"] && ((w["NET"] && w["ASSETS"]) || w.any("CAPITAL", "TRUST")) {
		return model.Cashflow
	}

	if w.any("BALANCE", "BALANCES") && w.any("SHEET", "SHEETS", "SHEEETS") {
		return model.Balance
	}
	if w.any("FINANCIAL", "POSITION", "POSITIONS", "CONDITION", "CONDITIONS") {
		return model.Balance
	}
	if w.any("ASSETS", "LIABILITIES") {
		return model.Balance
	}

	return model.Other
}

// SelectRoles groups the presentation roles of inst by statement kind. When
// more than one role matches a kind, comprehensive-income and supplemental
// statements are dropped and the rest are ordered by sort code.
func SelectRoles(inst disclosure.Instance) map[model.StatementKind][]string {
	out := map[model.StatementKind][]string{
		model.Balance:  nil,
		model.Income:   nil,
		model.Cashflow: nil,
		model.Other:    nil,
	}
	for _, role := range inst.PresentationRoles() {
		def := inst.RoleDefinition(role)
		if def == "" {
			continue
		}
		kind := ClassifyLinkrole(def)
		out[kind] = append(out[kind], role)
	}

	for _, kind := range model.StatementKinds {
		roles := out[kind]
		if len(roles) <= 1 {
			continue
		}
		filtered := make([]string, 0, len(roles))
		for _, role := range roles {
			_, _, title, _ := splitDefinition(inst.RoleDefinition(role))
			t := upper.String(title)
			excluded := false
			for _, x := range excludedWhenAmbiguous {
				if strings.Contains(t, x) {
					excluded = true
					break
				}
			}
			if !excluded {
				filtered = append(filtered, role)
			}
		}
		sort.SliceStable(filtered, func(i, j int) bool {
			return sortCode(inst.RoleDefinition(filtered[i])) < sortCode(inst.RoleDefinition(filtered[j]))
		})
		out[kind] = filtered
	}
	return out
}

func sortCode(definition string) int {
	code, _, _, _ := splitDefinition(definition)
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		// Unparseable codes sort last.
		return int(^uint(0) >> 1)
	}
	return n
}
