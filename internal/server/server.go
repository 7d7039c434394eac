// Package server exposes a catalogue over HTTP using the page fetch
// contract: GET /items returns one page, the cursor of the next page and
// the total number of matches.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"feedscroll/internal/model"
	"feedscroll/internal/source"
	"feedscroll/internal/storage"
)

// MaxLimit bounds the limit query parameter.
const MaxLimit = 100

// Catalogue is the read side of the item store.
type Catalogue interface {
	source.Source
	GetItem(ctx context.Context, id string) (*model.Item, error)
}

// Server serves a Catalogue.
type Server struct {
	cat     Catalogue
	log     *slog.Logger
	metrics *metrics
	router  chi.Router
}

// New builds the router. Metrics are registered on a private registry so
// that several servers can coexist in one process.
func New(cat Catalogue, log *slog.Logger) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		cat:     cat,
		log:     log,
		metrics: newMetrics(reg),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)

	r.Get("/healthz", s.health)
	r.Get("/items", s.listItems)
	r.Get("/items/{id}", s.getItem)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := source.DefaultLimit
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > MaxLimit {
			s.writeError(w, http.StatusBadRequest, model.CodeInvalidLimit,
				"limit must be an integer between 1 and "+strconv.Itoa(MaxLimit))
			return
		}
		limit = v
	}

	req := model.PageRequest{
		Limit:  limit,
		Cursor: q.Get("cursor"),
		Search: q.Get("search"),
		Tags:   q["tag"],
	}

	page, err := s.cat.Fetch(r.Context(), req)
	if err != nil {
		s.metrics.observePageError()
		if errors.Is(err, source.ErrInvalidCursor) {
			s.writeError(w, http.StatusBadRequest, model.CodeInvalidCursor, "invalid cursor")
			return
		}
		s.log.Error("fetch page", "cursor", req.Cursor, "request_id", middleware.GetReqID(r.Context()), "error", err)
		s.writeError(w, http.StatusInternalServerError, model.CodeInternal, "failed to fetch items")
		return
	}
	if page.Items == nil {
		page.Items = []model.Item{}
	}

	s.metrics.observePage(len(page.Items), page.NextCursor != "")
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	it, err := s.cat.GetItem(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, model.CodeNotFound, "item "+id+" not found")
		return
	}
	if err != nil {
		s.log.Error("get item", "id", id, "request_id", middleware.GetReqID(r.Context()), "error", err)
		s.writeError(w, http.StatusInternalServerError, model.CodeInternal, "failed to load item")
		return
	}
	if it.Tags == nil {
		it.Tags = []string{}
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.APIError{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
