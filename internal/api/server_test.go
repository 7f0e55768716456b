package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/report"
	"github.com/sells-group/secdb/internal/store"
)

const accession = "0000320193-16-000001"

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	ctx := context.Background()
	defs, err := report.Load()
	require.NoError(t, err)
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sec.db3"), defs)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	period := time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertFiling(ctx, &model.Filing{
		AccessionNumber:    accession,
		CIK:                320193,
		CompanyName:        "APPLE INC",
		FormType:           model.FormAnnual,
		Period:             period,
		FilingDate:         period.AddDate(0, 1, 0),
		AcceptanceDatetime: period.AddDate(0, 1, 0),
		Ticker:             "AAPL",
	}))
	require.NoError(t, st.InsertStatement(ctx, &model.StatementRow{
		AccessionNumber: accession, CIK: 320193, Kind: model.Balance, EndDate: period, CurrencyCode: "USD",
		Values: model.Values{"totalAssets": model.Int(1000)},
	}))
	require.NoError(t, st.InsertStatement(ctx, &model.StatementRow{
		AccessionNumber: accession, CIK: 320193, Kind: model.Income, EndDate: period, Duration: 12, CurrencyCode: "USD",
		Values: model.Values{"totalRevenue": model.Int(500)},
	}))
	margin := 0.25
	require.NoError(t, st.InsertRatios(ctx, &model.RatioRow{
		AccessionNumber: accession, CIK: 320193, EndDate: period, Kind: model.MostRecentQuarter,
		Values: map[string]*float64{"grossMargin": &margin},
	}))
	require.NoError(t, st.InsertFacts(ctx, []model.FactRecord{
		{AccessionNumber: accession, Report: model.Income, Position: 0, LineItem: "totalRevenue",
			Namespace: "http://fasb.org/us-gaap/2015-01-31", Name: "Revenues", Value: "500", Level: 1},
	}))

	return NewServer(st), st
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListFilings(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/v1/companies/320193/filings")
	require.Equal(t, http.StatusOK, rec.Code)
	var filings []model.Filing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filings))
	require.Len(t, filings, 1)
	assert.Equal(t, accession, filings[0].AccessionNumber)

	rec = get(t, s, "/v1/companies/1/filings")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = get(t, s, "/v1/companies/apple/filings")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFiling(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/v1/filings/"+accession)
	require.Equal(t, http.StatusOK, rec.Code)
	var f model.Filing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, "AAPL", f.Ticker)

	rec = get(t, s, "/v1/filings/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

func TestStatements(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		path   string
		status int
		kinds  []model.StatementKind
	}{
		{"/v1/filings/" + accession + "/statements", http.StatusOK, []model.StatementKind{model.Balance, model.Income}},
		{"/v1/filings/" + accession + "/statements/income", http.StatusOK, []model.StatementKind{model.Income}},
		{"/v1/filings/" + accession + "/statements/cashflow", http.StatusOK, nil},
		{"/v1/filings/" + accession + "/statements/equity", http.StatusBadRequest, nil},
		{"/v1/filings/missing/statements/income", http.StatusNotFound, nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, s, tt.path)
			require.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusOK {
				return
			}
			var rows []model.StatementRow
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
			var kinds []model.StatementKind
			for _, r := range rows {
				kinds = append(kinds, r.Kind)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}

	rec := get(t, s, "/v1/filings/"+accession+"/statements/income")
	var rows []model.StatementRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, int64(500), rows[0].Values.Get("totalRevenue"))
	assert.Nil(t, rows[0].Values["costOfRevenue"])
}

func TestFacts(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/v1/filings/"+accession+"/facts/income")
	require.Equal(t, http.StatusOK, rec.Code)
	var facts []model.FactRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &facts))
	require.Len(t, facts, 1)
	assert.Equal(t, "totalRevenue", facts[0].LineItem)

	rec = get(t, s, "/v1/filings/"+accession+"/facts/balance")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRatios(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/v1/filings/"+accession+"/ratios")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []model.RatioRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Values["grossMargin"])
	assert.InDelta(t, 0.25, *rows[0].Values["grossMargin"], 1e-9)
}

func TestGetRun(t *testing.T) {
	s, st := newTestServer(t)
	run, err := st.StartRun(context.Background(), []string{"xbrlrss-2016-01.xml"})
	require.NoError(t, err)

	rec := get(t, s, "/v1/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.RunStatusRunning, got.Status)

	rec = get(t, s, "/v1/runs/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/filings/"+accession, nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
