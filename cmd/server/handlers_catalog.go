package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/recon/internal/audit"
	"github.com/liamcoop/recon/internal/connectors"
	"github.com/liamcoop/recon/internal/templates"
)

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := s.svc.Dashboard.KPIs()
	if err != nil {
		respondServiceError(w, "failed to compute KPIs", err)
		return
	}
	respondJSON(w, http.StatusOK, kpis)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 7)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid days", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"points": s.svc.Dashboard.Trends(days),
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	respondJSON(w, http.StatusOK, map[string]any{
		"templates": s.svc.Templates.List(templates.Filter{
			Category:   q.Get("category"),
			Complexity: q.Get("complexity"),
			Search:     q.Get("search"),
		}),
	})
}

func (s *Server) handleTemplateCategories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"categories": s.svc.Templates.Categories(),
	})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Templates.Get(chi.URLParam(r, "templateId"))
	if err != nil {
		respondServiceError(w, "template not found", err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleInstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templates.InstantiateRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, err := s.svc.Templates.Instantiate(chi.URLParam(r, "templateId"), req)
	if err != nil {
		respondServiceError(w, "failed to instantiate template", err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleListConnectors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var typ connectors.Type
	if raw := q.Get("type"); raw != "" {
		t, ok := connectors.ParseType(raw)
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown connector type", nil)
			return
		}
		typ = t
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"connectors": s.svc.Connectors.List(typ, connectors.Status(q.Get("status"))),
	})
}

func (s *Server) handleGetConnector(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "connectorId")
	c, err := s.svc.Connectors.Get(id)
	if err != nil {
		respondServiceError(w, "connector not found", err)
		return
	}

	resp := map[string]any{"connector": c}
	if s.svc.Scheduler != nil {
		if next, ok := s.svc.Scheduler.NextRun(id); ok {
			resp["nextSync"] = next
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateConnector(w http.ResponseWriter, r *http.Request) {
	var req connectors.CreateRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	c, err := s.svc.Connectors.Create(req)
	if err != nil {
		respondServiceError(w, "failed to create connector", err)
		return
	}
	if s.svc.Scheduler != nil && c.Schedule != "" {
		// Scheduled syncs outlive the request.
		if err := s.svc.Scheduler.Schedule(context.WithoutCancel(r.Context()), c); err != nil {
			respondServiceError(w, "failed to schedule connector", err)
			return
		}
	}
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleTestConnector(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Connectors.TestConnection(chi.URLParam(r, "connectorId"))
	if err != nil {
		respondServiceError(w, "connection test failed", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSyncConnector(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Connectors.Sync(r.Context(), chi.URLParam(r, "connectorId"), "manual")
	if err != nil {
		respondServiceError(w, "sync failed", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{RuleID: r.URL.Query().Get("ruleId")}

	var err error
	if q.Limit, err = queryInt(r, "limit", audit.DefaultLimit); err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit", err)
		return
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		if q.Since, err = time.Parse(time.RFC3339, raw); err != nil {
			respondError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp", err)
			return
		}
	}

	runs, err := s.svc.Audit.List(r.Context(), q)
	if err != nil {
		if errors.Is(err, audit.ErrClosed) {
			respondError(w, http.StatusServiceUnavailable, "run history unavailable", err)
			return
		}
		respondServiceError(w, "failed to list runs", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"runs": runs,
	})
}
