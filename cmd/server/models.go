package main

import (
	"time"

	"github.com/liamcoop/recon/internal/access"
	"github.com/liamcoop/recon/internal/accounts"
	"github.com/liamcoop/recon/rules"
)

// API request and response models

// LoginRequest represents the request body for logging in
type LoginRequest struct {
	Email    string `json:"email" example:"analyst@recon.local"`
	Password string `json:"password" example:"demo"`
} // @name LoginRequest

// LoginResponse carries the issued token and the user it belongs to
type LoginResponse struct {
	Token     string         `json:"token" example:"7d9f1c3e-2b4a-4c8e-9f1d-3a5b7c9e1f2a"`
	ExpiresAt time.Time      `json:"expiresAt" example:"2024-01-16T10:30:00Z"`
	User      *accounts.User `json:"user"`
} // @name LoginResponse

// MeResponse describes the caller and what they may do
type MeResponse struct {
	User         *accounts.User      `json:"user"`
	Capabilities []access.Capability `json:"capabilities"`
} // @name MeResponse

// CreateRuleRequest represents the request body for creating a rule
type CreateRuleRequest struct {
	ID          string            `json:"id,omitempty" example:"bank-amount-match"`
	Name        string            `json:"name" example:"Bank amount match"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version,omitempty" example:"1.0.0"`
	Status      rules.Status      `json:"status,omitempty" example:"draft"`
	Conditions  []rules.Condition `json:"conditions"`
	Logic       string            `json:"logic,omitempty" example:"c1 AND c2"`
} // @name CreateRuleRequest

func (r CreateRuleRequest) definition() *rules.RuleDefinition {
	return &rules.RuleDefinition{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Version:     r.Version,
		Status:      r.Status,
		Conditions:  r.Conditions,
		Logic:       r.Logic,
	}
}

// NewVersionRequest changes a rule by publishing a new version. Empty fields
// are copied from the latest version.
type NewVersionRequest struct {
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version,omitempty" example:"1.1.0"`
	Conditions  []rules.Condition `json:"conditions,omitempty"`
	Logic       string            `json:"logic,omitempty"`
	Bump        string            `json:"bump,omitempty" example:"minor"`
} // @name NewVersionRequest

// RuleVersionsResponse lists the version history of a rule
type RuleVersionsResponse struct {
	RuleID   string                  `json:"ruleId"`
	Versions []*rules.RuleDefinition `json:"versions"`
} // @name RuleVersionsResponse

// TestRuleRequest is a batch of record pairs to dry-run against a rule
type TestRuleRequest struct {
	TestData []rules.RecordPair `json:"testData"`
} // @name TestRuleRequest

// TestRuleResponse summarises a dry run; errors holds the failed results
type TestRuleResponse struct {
	Passed        bool                      `json:"passed" example:"false"`
	RuleVersion   string                    `json:"ruleVersion" example:"1.0.0"`
	TotalRecords  int                       `json:"totalRecords" example:"2"`
	PassedRecords int                       `json:"passedRecords" example:"1"`
	FailedRecords int                       `json:"failedRecords" example:"1"`
	Errors        []*rules.EvaluationResult `json:"errors"`
} // @name TestRuleResponse

func newTestRuleResponse(result *rules.BatchRunResult) TestRuleResponse {
	return TestRuleResponse{
		Passed:        result.FailedRecords == 0,
		RuleVersion:   result.RuleVersion,
		TotalRecords:  result.TotalRecords,
		PassedRecords: result.PassedRecords,
		FailedRecords: result.FailedRecords,
		Errors:        result.Failures(),
	}
}

// AssignRequest assigns an exception
type AssignRequest struct {
	Assignee string `json:"assignee" example:"analyst@recon.local"`
} // @name AssignRequest

// StatusRequest moves an exception to a new status
type StatusRequest struct {
	Status string `json:"status" example:"investigating"`
} // @name StatusRequest

// ResolveRequest closes an exception
type ResolveRequest struct {
	Note string `json:"note" example:"Bank fee booked to 6200"`
} // @name ResolveRequest

// InviteRequest invites a user
type InviteRequest struct {
	Email string `json:"email" example:"new.analyst@example.com"`
	Role  string `json:"role" example:"analyst"`
} // @name InviteRequest

// AcceptInvitationRequest completes an invitation
type AcceptInvitationRequest struct {
	Name     string `json:"name" example:"Sam Analyst"`
	Password string `json:"password"`
} // @name AcceptInvitationRequest

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string `json:"status" example:"healthy"`
	RuleStore   string `json:"ruleStore" example:"memory"`
	ActiveRules int    `json:"activeRules" example:"3"`
	Error       string `json:"error,omitempty"`
} // @name HealthResponse
