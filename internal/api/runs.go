package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/posterior/internal/posteriordb"
)

type Server struct {
	store    *RunStore
	service  *SamplingService
	gatherer prometheus.Gatherer
	clock    func() time.Time
}

// NewServer wires the handlers. gatherer backs GET /metrics and may be nil.
func NewServer(store *RunStore, service *SamplingService, gatherer prometheus.Gatherer) *Server {
	if store == nil {
		store = NewRunStore()
	}
	return &Server{
		store:    store,
		service:  service,
		gatherer: gatherer,
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/models", s.handleListModels)
	e.POST("/v1/runs", s.handleCreateRun)
	e.GET("/v1/runs/:id", s.handleGetRun)
	e.DELETE("/v1/runs/:id", s.handleDeleteRun)
	e.GET("/v1/runs/:id/draws", s.handleGetDraws)

	if s.gatherer != nil {
		metrics := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
		e.GET("/metrics", func(c *echo.Context) error {
			metrics.ServeHTTP(c.Response(), c.Request())
			return nil
		})
	}
}

func (s *Server) handleListModels(c *echo.Context) error {
	list := ModelList{Object: "list", Data: []ModelInfo{}}
	for _, p := range posteriordb.All() {
		m, err := p.Model()
		if err != nil {
			return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
		}
		names := m.Names()
		list.Data = append(list.Data, ModelInfo{
			ID:          p.Name,
			Object:      "model",
			Description: p.Description,
			Params:      names.Params,
			Data:        names.Data,
			Observed:    names.Observed,
		})
	}
	return writeJSON(c, http.StatusOK, list)
}

func (s *Server) handleCreateRun(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "sampling service not configured", "", "")
	}
	req, err := decodeJSON[RunRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Model == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "model is required", "model", "")
	}

	created := s.clock()
	out, err := s.service.Run(c.Request().Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRequest):
			return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), invalidParam(err), "")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return writeError(c, http.StatusServiceUnavailable, "canceled_error", err.Error(), "", "")
		default:
			return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
		}
	}

	id := newRunID()
	run := RunResponse{
		ID:          id.String(),
		Object:      "run",
		CreatedAt:   created.Unix(),
		CompletedAt: s.clock().Unix(),
		Model:       req.Model,
		Status:      "completed",
		Seed:        out.Seed,
		Metadata:    req.Metadata,
		Stats:       out.Stats,
		Summary:     out.Summary,
	}
	body, err := json.Marshal(run)
	if err != nil {
		out.Draws.Dispose()
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	s.store.Put(id, &runRecord{Run: run, Draws: out.Draws})
	return writeEncoded(c, http.StatusOK, body)
}

func (s *Server) handleGetRun(c *echo.Context) error {
	id, err := parseRunID(c)
	if err != nil {
		return writeNotFound(c, err.Error())
	}
	var run RunResponse
	if !s.store.View(id, func(rec *runRecord) { run = rec.Run }) {
		return writeNotFound(c, fmt.Sprintf("%v: %s", ErrRunNotFound, id))
	}
	return writeJSON(c, http.StatusOK, run)
}

func (s *Server) handleGetDraws(c *echo.Context) error {
	id, err := parseRunID(c)
	if err != nil {
		return writeNotFound(c, err.Error())
	}
	resp := DrawsResponse{ID: id.String(), Object: "draws"}
	found := s.store.View(id, func(rec *runRecord) {
		resp.Params = rec.Draws.Names()
		resp.Draws = DrawsOf(rec.Draws)
	})
	if !found {
		return writeNotFound(c, fmt.Sprintf("%v: %s", ErrRunNotFound, id))
	}
	return writeJSON(c, http.StatusOK, resp)
}

func (s *Server) handleDeleteRun(c *echo.Context) error {
	id, err := parseRunID(c)
	if err != nil {
		return writeNotFound(c, err.Error())
	}
	if !s.store.Delete(id) {
		return writeNotFound(c, fmt.Sprintf("%v: %s", ErrRunNotFound, id))
	}
	return writeJSON(c, http.StatusOK, DeleteResponse{ID: id.String(), Object: "run.deleted", Deleted: true})
}
