// Package api serves the record store over a read-only HTTP API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/qda-harvester/internal/model"
	"github.com/sells-group/qda-harvester/internal/source"
	"github.com/sells-group/qda-harvester/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Server answers queries against a store. It never triggers harvesting.
type Server struct {
	store   store.Store
	sources []source.Entry
	log     *zap.Logger
}

// New creates a Server over st listing the given sources.
func New(st store.Store, sources []source.Entry) *Server {
	return &Server{
		store:   st,
		sources: sources,
		log:     zap.L().With(zap.String("component", "api")),
	}
}

// FileView is a stored record with its derived state.
type FileView struct {
	model.File
	State model.FileState `json:"state"`
}

// FileList is the response of GET /api/files.
type FileList struct {
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
	Files  []FileView `json:"files"`
}

// Stats is the response of GET /api/stats.
type Stats struct {
	Summary   *store.Summary  `json:"summary"`
	Dimension store.Dimension `json:"dimension"`
	Buckets   []store.Bucket  `json:"buckets"`
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/files", s.handleListFiles)
		r.Get("/files/{id}", s.handleGetFile)
		r.Get("/stats", s.handleStats)
		r.Get("/sources", s.handleSources)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	total, err := s.store.Count(r.Context(), f)
	if err != nil {
		s.fail(w, "count files", err)
		return
	}
	recs, err := s.store.List(r.Context(), f)
	if err != nil {
		s.fail(w, "list files", err)
		return
	}

	out := FileList{Total: total, Limit: f.Limit, Offset: f.Offset, Files: make([]FileView, 0, len(recs))}
	for _, rec := range recs {
		out.Files = append(out.Files, FileView{File: rec, State: rec.State()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}

	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		s.fail(w, "get file", err)
		return
	}
	writeJSON(w, http.StatusOK, FileView{File: *rec, State: rec.State()})
}

// handleStats returns the summary and a breakdown by the dimension in ?by=,
// source when absent.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	dim := store.BySource
	if v := r.URL.Query().Get("by"); v != "" {
		d, err := store.ParseDimension(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "by must be one of source, language, software, file_type, license")
			return
		}
		dim = d
	}

	sum, err := s.store.Summary(r.Context())
	if err != nil {
		s.fail(w, "summary", err)
		return
	}
	buckets, err := s.store.Breakdown(r.Context(), dim, 0)
	if err != nil {
		s.fail(w, "breakdown", err)
		return
	}
	if buckets == nil {
		buckets = []store.Bucket{}
	}
	writeJSON(w, http.StatusOK, Stats{Summary: sum, Dimension: dim, Buckets: buckets})
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sources)
}

func (s *Server) fail(w http.ResponseWriter, action string, err error) {
	s.log.Error("api: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// ParseFilter reads the browse filters from the query string.
func ParseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		Source:   strings.TrimSpace(q.Get("source")),
		Search:   strings.TrimSpace(q.Get("search")),
		Language: strings.TrimSpace(q.Get("language")),
		Software: strings.TrimSpace(q.Get("software")),
		FileType: strings.TrimSpace(q.Get("file_type")),
		Limit:    defaultLimit,
	}

	for name, dst := range map[string]*bool{
		"qda_only":        &f.QDAOnly,
		"restricted_only": &f.RestrictedOnly,
		"has_software":    &f.HasSoftware,
		"has_keywords":    &f.HasKeywords,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New(name + " must be a boolean")
		}
		*dst = b
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = min(n, maxLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
