package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/liamcoop/recon/internal/accounts"
	"github.com/liamcoop/recon/internal/connectors"
	"github.com/liamcoop/recon/internal/exceptions"
	"github.com/liamcoop/recon/internal/logger"
	"github.com/liamcoop/recon/internal/templates"
	"github.com/liamcoop/recon/rules"
)

// maxBodyBytes bounds request bodies, test batches included.
const maxBodyBytes = 8 << 20

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Debug("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

// respondServiceError picks the status for an error returned by one of the
// services.
func respondServiceError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= 500 {
		logger.Error(message, "error", err)
	}
	respondError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rules.ErrRuleNotFound),
		errors.Is(err, exceptions.ErrNotFound),
		errors.Is(err, templates.ErrTemplateNotFound),
		errors.Is(err, connectors.ErrNotFound),
		errors.Is(err, accounts.ErrUserNotFound),
		errors.Is(err, accounts.ErrInvitationNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrRuleExists),
		errors.Is(err, rules.ErrVersionConflict),
		errors.Is(err, accounts.ErrUserExists),
		errors.Is(err, accounts.ErrInvitationClosed),
		errors.Is(err, exceptions.ErrInvalidTransition),
		errors.Is(err, connectors.ErrSyncInProgress):
		return http.StatusConflict
	case rules.IsValidationError(err),
		errors.Is(err, exceptions.ErrNoteRequired),
		errors.Is(err, connectors.ErrInvalidConnector),
		errors.Is(err, accounts.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, accounts.ErrInvalidCredentials),
		errors.Is(err, accounts.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, connectors.ErrConnectionFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a JSON request body into v. An empty body leaves v
// unchanged when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
