package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/recon/internal/logger"
	"github.com/liamcoop/recon/rules"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	var (
		list []*rules.RuleDefinition
		err  error
	)
	status := rules.Status(r.URL.Query().Get("status"))
	if status == rules.StatusActive {
		list, err = s.svc.Engine.ListActive()
	} else {
		list, err = s.svc.Engine.List()
	}
	if err != nil {
		respondServiceError(w, "failed to list rules", err)
		return
	}

	if status != "" && status != rules.StatusActive {
		filtered := list[:0]
		for _, def := range list {
			if def.Status == status {
				filtered = append(filtered, def)
			}
		}
		list = filtered
	}
	if list == nil {
		list = []*rules.RuleDefinition{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"rules": list,
	})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, err := s.svc.Engine.CreateRule(req.definition())
	if err != nil {
		respondServiceError(w, "failed to create rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.Engine.Get(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondServiceError(w, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")
	versions, err := s.svc.Engine.ListVersions(ruleID)
	if err != nil {
		respondServiceError(w, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, RuleVersionsResponse{RuleID: ruleID, Versions: versions})
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.Engine.GetVersion(chi.URLParam(r, "ruleId"), chi.URLParam(r, "version"))
	if err != nil {
		respondServiceError(w, "rule version not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleNewVersion(w http.ResponseWriter, r *http.Request) {
	var req NewVersionRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	changes := &rules.RuleDefinition{
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Conditions:  req.Conditions,
		Logic:       req.Logic,
	}
	rule, err := s.svc.Engine.NewVersion(chi.URLParam(r, "ruleId"), changes, req.Bump)
	if err != nil {
		respondServiceError(w, "failed to create rule version", err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.Engine.Activate(chi.URLParam(r, "ruleId"), chi.URLParam(r, "version"))
	if err != nil {
		respondServiceError(w, "failed to activate rule", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.Engine.Deactivate(chi.URLParam(r, "ruleId"), chi.URLParam(r, "version"))
	if err != nil {
		respondServiceError(w, "failed to deactivate rule", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// handleTestRule dry-runs a batch against a rule without recording anything.
func (s *Server) handleTestRule(w http.ResponseWriter, r *http.Request) {
	var req TestRuleRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := s.svc.Engine.Test(r.Context(), chi.URLParam(r, "ruleId"), req.TestData)
	if err != nil {
		respondServiceError(w, "rule test failed", err)
		return
	}
	countAdvisory(result)
	respondJSON(w, http.StatusOK, newTestRuleResponse(result))
}

// handleRunRule runs a batch against the active version. Failures are queued
// as exceptions and the run is recorded.
func (s *Server) handleRunRule(w http.ResponseWriter, r *http.Request) {
	var req TestRuleRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := s.svc.Engine.Run(r.Context(), chi.URLParam(r, "ruleId"), req.TestData)
	if err != nil {
		logger.RunFailures.Add(1)
		respondServiceError(w, "rule run failed", err)
		return
	}
	countAdvisory(result)
	respondJSON(w, http.StatusOK, result)
}

func countAdvisory(result *rules.BatchRunResult) {
	for _, res := range result.Results {
		if res.AdvisoryMismatch {
			logger.AdvisoryMismatch.Add(1)
		}
	}
}
