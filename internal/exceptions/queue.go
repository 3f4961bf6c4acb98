package exceptions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/recon/rules"
)

// Queue manages the exception workflow on top of a Store.
type Queue struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

func NewQueue(store Store) *Queue {
	return &Queue{
		store:  store,
		now:    time.Now,
		logger: slog.Default().With("component", "exceptions"),
	}
}

func (q *Queue) List(f Filter) (Page, error) { return q.store.List(f) }

func (q *Queue) Get(id string) (*Exception, error) { return q.store.Get(id) }

func (q *Queue) All() ([]*Exception, error) { return q.store.All() }

// Assign sets the assignee. Terminal exceptions cannot be reassigned.
func (q *Queue) Assign(id, assignee string) (*Exception, error) {
	assignee = strings.TrimSpace(assignee)
	return q.store.Update(id, func(e *Exception) error {
		if e.Status.Terminal() {
			return fmt.Errorf("%w: exception is %s", ErrInvalidTransition, e.Status)
		}
		e.AssignedTo = assignee
		e.UpdatedAt = q.now()
		return nil
	})
}

// UpdateStatus moves an exception along its workflow. Resolving goes through
// Resolve so that a note is recorded.
func (q *Queue) UpdateStatus(id string, next Status) (*Exception, error) {
	if next == StatusResolved {
		return nil, fmt.Errorf("%w: use resolve", ErrNoteRequired)
	}
	return q.transition(id, next, func(*Exception) {})
}

// Resolve closes an exception with a note.
func (q *Queue) Resolve(id, note, by string) (*Exception, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, ErrNoteRequired
	}
	return q.transition(id, StatusResolved, func(e *Exception) {
		e.ResolutionNote = note
		e.ResolvedBy = by
	})
}

func (q *Queue) transition(id string, next Status, apply func(*Exception)) (*Exception, error) {
	e, err := q.store.Update(id, func(e *Exception) error {
		if !e.Status.canMoveTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, next)
		}
		now := q.now()
		e.Status = next
		e.UpdatedAt = now
		if next.Terminal() {
			e.ResolvedAt = &now
		}
		apply(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	q.logger.Info("exception status changed", "exception_id", id, "status", next)
	return e, nil
}

// EnqueueFromRun turns the failed results of a run into open exceptions.
func (q *Queue) EnqueueFromRun(rule *rules.RuleDefinition, result *rules.BatchRunResult) ([]*Exception, error) {
	failures := result.Failures()
	if len(failures) == 0 {
		return nil, nil
	}

	name := result.RuleID
	if rule != nil && rule.Name != "" {
		name = rule.Name
	}

	now := q.now()
	items := make([]*Exception, 0, len(failures))
	for _, r := range failures {
		items = append(items, &Exception{
			ID:          uuid.NewString(),
			RuleID:      result.RuleID,
			RuleVersion: result.RuleVersion,
			RecordID:    r.RecordID,
			Type:        r.ExceptionType,
			Status:      StatusOpen,
			Priority:    priorityFor(r.ExceptionType),
			Description: describe(name, r),
			Diagnostics: r.Diagnostics,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if err := q.store.Add(items...); err != nil {
		return nil, fmt.Errorf("failed to enqueue exceptions: %w", err)
	}
	q.logger.Info("exceptions enqueued", "rule_id", result.RuleID, "count", len(items))
	return items, nil
}

// RuleRunCompleted implements rules.RunObserver.
func (q *Queue) RuleRunCompleted(_ context.Context, rule *rules.RuleDefinition, result *rules.BatchRunResult) {
	if _, err := q.EnqueueFromRun(rule, result); err != nil {
		q.logger.Error("failed to enqueue run exceptions", "rule_id", result.RuleID, "error", err)
	}
}

func describe(ruleName string, r *rules.EvaluationResult) string {
	if len(r.Diagnostics) == 0 {
		return fmt.Sprintf("%s: record %s failed", ruleName, r.RecordID)
	}
	d := r.Diagnostics[0]
	return fmt.Sprintf("%s: %s: %s (expected %s, got %s)", ruleName, d.Field, d.Reason, d.Expected, d.Actual)
}
