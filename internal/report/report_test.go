package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/secdb/internal/model"
)

func TestLoad_Embedded(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)

	require.NotNil(t, set.Balance)
	require.NotNil(t, set.Income)
	require.NotNil(t, set.Cashflow)
	require.NotNil(t, set.Ratios)

	assert.Equal(t, model.Balance, set.Balance.Kind)
	assert.Same(t, set.Income, set.Statement(model.Income))
	assert.Nil(t, set.Statement(model.Other))

	r, ok := set.Balance.Rule("AssetsCurrent")
	require.True(t, ok)
	assert.Equal(t, Total, r.Kind)
	assert.Equal(t, "currentAssetsTotal", r.First())
	assert.Equal(t, "currentAssetsOther", r.Other)

	r, ok = set.Balance.Rule("LongTermDebtCurrent")
	require.True(t, ok)
	assert.Equal(t, AddTo, r.Kind)
	assert.Equal(t, []string{"shortTermDebt", "longTermDebt"}, r.Candidates)

	p, ok := set.Balance.Partitions["Assets"]
	require.True(t, ok)
	assert.Equal(t, "AssetsCurrent", p.Pivot)
	assert.Contains(t, p.Before.Allowed, "currentAssetsTotal")
	assert.Equal(t, "nonCurrentAssetsOther", p.After.Other)

	assert.Contains(t, set.Income.Negate, "costOfRevenue")
	assert.Contains(t, set.Ratios.Names(), "netDebtToEquity")
}

func TestLoad_RatioOperands(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)

	var netDebt Formula
	for _, f := range set.Ratios.Formulas {
		if f.Name == "netDebtToEquity" {
			netDebt = f
		}
	}
	require.Len(t, netDebt.Numerator, 3)
	last := netDebt.Numerator[2]
	assert.True(t, last.Negative)
	assert.Equal(t, "cashAndShortTermInvestments", last.LineItem)
	assert.Equal(t, map[model.StatementKind]bool{model.Balance: true}, netDebt.Reports())
}

func TestDefinition_TotalOrder(t *testing.T) {
	def := &Definition{
		LineItems: []string{"a", "b", "c", "d"},
		Totals:    map[string][]string{"d": {"c"}, "b": {"a"}},
	}
	assert.Equal(t, []string{"b", "d"}, def.TotalOrder())
}

const minimalStatement = `
kind: income
name: Test
lineitems: [revenue, cost, profit]
mappings:
  Revenues:
    add-to: [revenue]
  GrossProfit:
    total: profit
    allowed: [revenue, cost]
totals:
  profit: [revenue, cost]
`

func TestParseStatement_Valid(t *testing.T) {
	def, err := ParseStatement([]byte(minimalStatement))
	require.NoError(t, err)
	assert.Equal(t, model.Income, def.Kind)
	assert.Len(t, def.Rules, 2)
	assert.Equal(t, []string{"profit"}, def.TotalOrder())
}

func TestParseStatement_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown kind",
			yaml: "kind: equity\nlineitems: [a]\n",
			want: "unknown statement kind",
		},
		{
			name: "bad identifier",
			yaml: "kind: income\nlineitems: [\"net income\"]\n",
			want: "not a valid identifier",
		},
		{
			name: "duplicate line item",
			yaml: "kind: income\nlineitems: [a, a]\n",
			want: "duplicate line item",
		},
		{
			name: "rule with both variants",
			yaml: "kind: income\nlineitems: [a]\nmappings:\n  X:\n    add-to: [a]\n    total: a\n",
			want: "exclusive",
		},
		{
			name: "rule with neither variant",
			yaml: "kind: income\nlineitems: [a]\nmappings:\n  X:\n    other: a\n",
			want: "needs add-to or total",
		},
		{
			name: "rule references unknown item",
			yaml: "kind: income\nlineitems: [a]\nmappings:\n  X:\n    add-to: [b]\n",
			want: "unknown line item \"b\"",
		},
		{
			name: "totals reference unknown item",
			yaml: "kind: income\nlineitems: [a]\ntotals:\n  a: [z]\n",
			want: "unknown line item \"z\"",
		},
		{
			name: "totals cycle",
			yaml: "kind: income\nlineitems: [a, b, c]\ntotals:\n  a: [b]\n  b: [c]\n  c: [a]\n",
			want: "totals cycle",
		},
		{
			name: "partition without pivot",
			yaml: "kind: balance\nlineitems: [a]\npartitions:\n  Assets:\n    before: {allowed: [a]}\n",
			want: "missing pivot",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStatement([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseStatement_NegationMarkerInTotals(t *testing.T) {
	def, err := ParseStatement([]byte("kind: balance\nlineitems: [a, b, c]\ntotals:\n  c: [a, \"-\", b]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", Negation, "b"}, def.Totals["c"])
}

func TestParseRatios_Errors(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)

	_, err = ParseRatios([]byte(`
ratios:
  - name: bogus
    numerator: [{report: equity, lineitem: x}]
    denominator: [{report: balance, lineitem: totalAssets}]
`), set)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown report")

	_, err = ParseRatios([]byte(`
ratios:
  - name: bogus
    numerator: [{report: balance, lineitem: notAnItem}]
    denominator: [{report: balance, lineitem: totalAssets}]
`), set)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown balance line item")

	_, err = ParseRatios([]byte(`
ratios:
  - name: empty
    numerator: [{report: balance, lineitem: totalAssets}]
`), set)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-empty")
}

func TestLoadDir_Override(t *testing.T) {
	dir := t.TempDir()
	override := `
ratios:
  - name: onlyRatio
    numerator: [{report: income, lineitem: netIncome}]
    denominator: [{report: income, lineitem: totalRevenue}]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ratios.yaml"), []byte(override), 0o644))

	set, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"onlyRatio"}, set.Ratios.Names())
	// Statements not present in dir come from the embedded copy.
	assert.True(t, set.Balance.HasLineItem("totalAssets"))
}

func TestLoadDir_KindMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "balance.yaml"), []byte(minimalStatement), 0o644))

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares kind")
}
