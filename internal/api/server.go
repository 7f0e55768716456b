// Package api serves persisted filings, statements and ratios over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/store"
)

// Server is the read-only HTTP API.
type Server struct {
	router chi.Router
	store  store.Store
}

// NewServer returns a server reading from st.
func NewServer(st store.Store) *Server {
	s := &Server{router: chi.NewRouter(), store: st}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/companies/{cik}/filings", s.listFilings)
		r.Get("/runs/{id}", s.getRun)
		r.Route("/filings/{accession}", func(r chi.Router) {
			r.Get("/", s.getFiling)
			r.Get("/statements", s.statements)
			r.Get("/statements/{kind}", s.statements)
			r.Get("/facts/{kind}", s.facts)
			r.Get("/ratios", s.ratios)
		})
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	zap.L().Error("api: request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

func (s *Server) listFilings(w http.ResponseWriter, r *http.Request) {
	cik, err := strconv.ParseInt(chi.URLParam(r, "cik"), 10, 64)
	if err != nil || cik <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid cik"})
		return
	}
	filings, err := s.store.ListFilings(r.Context(), cik)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if filings == nil {
		filings = []model.Filing{}
	}
	writeJSON(w, http.StatusOK, filings)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// filing resolves the {accession} parameter, writing a response when the
// filing cannot be read.
func (s *Server) filing(w http.ResponseWriter, r *http.Request) (*model.Filing, bool) {
	f, err := s.store.GetFiling(r.Context(), chi.URLParam(r, "accession"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return f, true
}

// kindParam parses the optional {kind} parameter. An empty kind matches
// every statement.
func kindParam(r *http.Request) (model.StatementKind, bool) {
	k := model.StatementKind(chi.URLParam(r, "kind"))
	if k == "" {
		return "", true
	}
	for _, known := range model.StatementKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

func (s *Server) getFiling(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filing(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) statements(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown statement kind"})
		return
	}
	f, ok := s.filing(w, r)
	if !ok {
		return
	}
	rows, err := s.store.Statements(r.Context(), f.AccessionNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := []model.StatementRow{}
	for _, row := range rows {
		if kind == "" || row.Kind == kind {
			out = append(out, row)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) facts(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown statement kind"})
		return
	}
	f, ok := s.filing(w, r)
	if !ok {
		return
	}
	facts, err := s.store.Facts(r.Context(), f.AccessionNumber, kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if facts == nil {
		facts = []model.FactRecord{}
	}
	writeJSON(w, http.StatusOK, facts)
}

func (s *Server) ratios(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filing(w, r)
	if !ok {
		return
	}
	rows, err := s.store.Ratios(r.Context(), f.AccessionNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []model.RatioRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}
