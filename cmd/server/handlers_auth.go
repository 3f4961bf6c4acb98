package main

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/recon/internal/access"
	"github.com/liamcoop/recon/internal/accounts"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required", nil)
		return
	}

	token, user, err := s.svc.Accounts.Login(req.Email, req.Password)
	if err != nil {
		respondServiceError(w, "login failed", err)
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
		User:      user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.svc.Accounts.Logout(access.BearerToken(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.svc.Accounts.Me(access.BearerToken(r))
	if err != nil {
		respondServiceError(w, "failed to load user", err)
		return
	}
	respondJSON(w, http.StatusOK, MeResponse{
		User:         user,
		Capabilities: s.svc.Gate.Capabilities(user.Principal().Roles),
	})
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	p, _ := access.PrincipalFrom(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"items": s.svc.Gate.Navigation(p.Roles),
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.Accounts.Users()
	if err != nil {
		respondServiceError(w, "failed to list users", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"users": users,
	})
}

func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := s.svc.Accounts.Invitations()
	if err != nil {
		respondServiceError(w, "failed to list invitations", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"invitations": invitations,
	})
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req InviteRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	role, ok := access.ParseRole(req.Role)
	if !ok {
		respondError(w, http.StatusBadRequest, "role must be one of: admin, analyst, viewer", nil)
		return
	}

	p, _ := access.PrincipalFrom(r.Context())
	inv, err := s.svc.Accounts.Invite(req.Email, role, p.Email)
	if err != nil {
		respondServiceError(w, "failed to create invitation", err)
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req AcceptInvitationRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	user, err := s.svc.Accounts.AcceptInvitation(chi.URLParam(r, "invitationId"), req.Name, req.Password)
	if err != nil {
		respondServiceError(w, "failed to accept invitation", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]*accounts.User{
		"user": user,
	})
}
