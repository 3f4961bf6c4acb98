package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/recon/internal/access"
	"github.com/liamcoop/recon/internal/exceptions"
	"github.com/liamcoop/recon/rules"
)

func (s *Server) handleListExceptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := exceptions.Filter{
		Type:     rules.ExceptionType(q.Get("type")),
		Assignee: q.Get("assignee"),
		RuleID:   q.Get("ruleId"),
	}
	if raw := q.Get("status"); raw != "" {
		status, ok := exceptions.ParseStatus(raw)
		if !ok {
			respondError(w, http.StatusBadRequest, "status must be one of: open, investigating, resolved, dismissed", nil)
			return
		}
		filter.Status = status
	}

	var err error
	if filter.Page, err = queryInt(r, "page", 1); err != nil {
		respondError(w, http.StatusBadRequest, "invalid page", err)
		return
	}
	if filter.PageSize, err = queryInt(r, "pageSize", exceptions.DefaultPageSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid pageSize", err)
		return
	}

	page, err := s.svc.Exceptions.List(filter)
	if err != nil {
		respondServiceError(w, "failed to list exceptions", err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetException(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.Exceptions.Get(chi.URLParam(r, "exceptionId"))
	if err != nil {
		respondServiceError(w, "exception not found", err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) handleAssignException(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	e, err := s.svc.Exceptions.Assign(chi.URLParam(r, "exceptionId"), req.Assignee)
	if err != nil {
		respondServiceError(w, "failed to assign exception", err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) handleExceptionStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	status, ok := exceptions.ParseStatus(req.Status)
	if !ok {
		respondError(w, http.StatusBadRequest, "status must be one of: open, investigating, resolved, dismissed", nil)
		return
	}

	e, err := s.svc.Exceptions.UpdateStatus(chi.URLParam(r, "exceptionId"), status)
	if err != nil {
		respondServiceError(w, "failed to update exception", err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) handleResolveException(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	p, _ := access.PrincipalFrom(r.Context())
	e, err := s.svc.Exceptions.Resolve(chi.URLParam(r, "exceptionId"), req.Note, p.Email)
	if err != nil {
		respondServiceError(w, "failed to resolve exception", err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}
