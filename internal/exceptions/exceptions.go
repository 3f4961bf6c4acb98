// Package exceptions is the queue of records that failed reconciliation.
package exceptions

import (
	"errors"
	"time"

	"github.com/liamcoop/recon/rules"
)

var (
	ErrNotFound          = errors.New("exception not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoteRequired      = errors.New("resolution note is required")
)

type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
	StatusDismissed     Status = "dismissed"
)

// transitions lists the statuses reachable from each status. Resolved and
// dismissed are terminal.
var transitions = map[Status][]Status{
	StatusOpen:          {StatusInvestigating, StatusResolved, StatusDismissed},
	StatusInvestigating: {StatusOpen, StatusResolved, StatusDismissed},
}

// ParseStatus returns false for unknown statuses.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusOpen, StatusInvestigating, StatusResolved, StatusDismissed:
		return st, true
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusDismissed
}

func (s Status) canMoveTo(next Status) bool {
	for _, st := range transitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func priorityFor(t rules.ExceptionType) Priority {
	switch t {
	case rules.ExceptionAmountMismatch, rules.ExceptionMissingReference:
		return PriorityHigh
	case rules.ExceptionDateDiscrepancy, rules.ExceptionAccountMismatch:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Exception is one failed record awaiting review.
type Exception struct {
	ID             string                   `json:"id"`
	RuleID         string                   `json:"ruleId"`
	RuleVersion    string                   `json:"ruleVersion,omitempty"`
	RecordID       string                   `json:"recordId"`
	Type           rules.ExceptionType      `json:"type"`
	Status         Status                   `json:"status"`
	Priority       Priority                 `json:"priority"`
	Description    string                   `json:"description"`
	Diagnostics    []rules.ConditionFailure `json:"diagnostics,omitempty"`
	AssignedTo     string                   `json:"assignedTo,omitempty"`
	ResolutionNote string                   `json:"resolutionNote,omitempty"`
	ResolvedBy     string                   `json:"resolvedBy,omitempty"`
	CreatedAt      time.Time                `json:"createdAt"`
	UpdatedAt      time.Time                `json:"updatedAt"`
	ResolvedAt     *time.Time               `json:"resolvedAt,omitempty"`
}

func (e *Exception) clone() *Exception {
	cp := *e
	cp.Diagnostics = append([]rules.ConditionFailure(nil), e.Diagnostics...)
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

// Filter selects exceptions. Zero fields match everything.
type Filter struct {
	Status   Status
	Type     rules.ExceptionType
	Assignee string
	RuleID   string
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func (f Filter) normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

func (f Filter) matches(e *Exception) bool {
	return (f.Status == "" || e.Status == f.Status) &&
		(f.Type == "" || e.Type == f.Type) &&
		(f.Assignee == "" || e.AssignedTo == f.Assignee) &&
		(f.RuleID == "" || e.RuleID == f.RuleID)
}

// Page is one page of a filtered listing.
type Page struct {
	Items    []*Exception `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
}
