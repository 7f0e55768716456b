package statement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/secdb/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSubtractQuarters(t *testing.T) {
	items := []string{"rev", "cost", "other"}
	cumulative := model.Values{"rev": model.Int(900), "cost": model.Int(500), "other": nil}
	priors := []model.Values{
		{"rev": model.Int(300), "cost": model.Int(100), "other": model.Int(4)},
		{"rev": model.Int(300), "cost": nil},
		{"rev": model.Int(300), "cost": model.Int(150)},
	}

	got := SubtractQuarters(items, cumulative, priors)
	assert.Equal(t, int64(0), *got["rev"])
	assert.Equal(t, int64(250), *got["cost"])
	assert.Nil(t, got["other"])
	assert.Len(t, got, 3)

	// Inputs are untouched.
	assert.Equal(t, int64(900), *cumulative["rev"])
}

func TestQuarter(t *testing.T) {
	cumulative := model.StatementRow{
		AccessionNumber: "0000000001-16-000001",
		CIK:             1,
		Kind:            model.Income,
		EndDate:         date(2015, 12, 31),
		Duration:        12,
		CurrencyCode:    "USD",
		Values:          model.Values{"rev": model.Int(1000)},
	}
	priors := []model.StatementRow{
		{Values: model.Values{"rev": model.Int(200)}},
		{Values: model.Values{"rev": model.Int(250)}},
		{Values: model.Values{"rev": model.Int(300)}},
	}

	q := Quarter([]string{"rev"}, cumulative, priors)
	assert.Equal(t, QuarterlyMonths, q.Duration)
	assert.Equal(t, int64(250), *q.Values["rev"])
	assert.Equal(t, cumulative.AccessionNumber, q.AccessionNumber)
	assert.Equal(t, cumulative.EndDate, q.EndDate)
	assert.Equal(t, 12, cumulative.Duration)
}

func TestQuarterWindowStart(t *testing.T) {
	tests := []struct {
		period time.Time
		months int
		want   time.Time
	}{
		{date(2015, 12, 31), 12, date(2014, 12, 31)},
		{date(2015, 9, 30), 12, date(2014, 9, 30)},
		{date(2015, 3, 31), 6, date(2014, 9, 30)},
		{date(2015, 6, 30), 9, date(2014, 9, 30)},
		{date(2016, 2, 29), 12, date(2015, 2, 28)},
		{date(2015, 12, 31), 3, date(2015, 9, 30)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QuarterWindowStart(tt.period, tt.months), "%s -%d", tt.period.Format("2006-01-02"), tt.months)
	}
}

func TestExpectedQuarters(t *testing.T) {
	assert.Equal(t, 3, ExpectedQuarters(true, 12))
	assert.Equal(t, 1, ExpectedQuarters(false, 6))
	assert.Equal(t, 2, ExpectedQuarters(false, 9))
}

func TestNeedsQuarter(t *testing.T) {
	assert.True(t, NeedsQuarter(model.Income, true, 12))
	assert.False(t, NeedsQuarter(model.Income, false, 3))
	assert.True(t, NeedsQuarter(model.Cashflow, true, 12))
	assert.True(t, NeedsQuarter(model.Cashflow, false, 6))
	assert.False(t, NeedsQuarter(model.Cashflow, false, 3))
	assert.False(t, NeedsQuarter(model.Balance, true, 0))
}
