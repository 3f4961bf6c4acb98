// Package audit keeps a durable summary of every rule run.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/recon/rules"
)

var ErrClosed = errors.New("audit store closed")

// RunRecord summarises one rule run.
type RunRecord struct {
	ID              string         `json:"id"`
	RuleID          string         `json:"ruleId"`
	RuleVersion     string         `json:"ruleVersion"`
	RuleName        string         `json:"ruleName"`
	TotalRecords    int            `json:"totalRecords"`
	PassedRecords   int            `json:"passedRecords"`
	FailedRecords   int            `json:"failedRecords"`
	ExceptionCounts map[string]int `json:"exceptionCounts,omitempty"`
	StartedAt       time.Time      `json:"startedAt"`
	Duration        time.Duration  `json:"duration"`
	RecordedAt      time.Time      `json:"recordedAt"`
}

// NewRunRecord builds the audit summary of a completed run.
func NewRunRecord(rule *rules.RuleDefinition, result *rules.BatchRunResult) *RunRecord {
	rec := &RunRecord{
		ID:            uuid.NewString(),
		RuleID:        result.RuleID,
		RuleVersion:   result.RuleVersion,
		TotalRecords:  result.TotalRecords,
		PassedRecords: result.PassedRecords,
		FailedRecords: result.FailedRecords,
		StartedAt:     result.StartedAt,
		Duration:      result.Duration,
	}
	if rule != nil {
		rec.RuleName = rule.Name
	}
	for _, r := range result.Results {
		if r.Passed {
			continue
		}
		if rec.ExceptionCounts == nil {
			rec.ExceptionCounts = make(map[string]int)
		}
		rec.ExceptionCounts[string(r.ExceptionType)]++
	}
	return rec
}

// Query filters List results. Results are newest first.
type Query struct {
	RuleID string
	Since  time.Time
	Limit  int
}

// DefaultLimit applies when Query.Limit is zero.
const DefaultLimit = 100

// Store persists run records.
type Store interface {
	Store(ctx context.Context, rec *RunRecord) error
	List(ctx context.Context, q Query) ([]*RunRecord, error)
	Close() error
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}
