package exceptions

import (
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/recon/rules"
)

// SeedDemo fills the store with a small backlog spread over the last week.
func (q *Queue) SeedDemo() error {
	now := q.now()
	demo := []struct {
		ruleID, recordID, description string
		typ                           rules.ExceptionType
		status                        Status
		assignee                      string
		age                           time.Duration
	}{
		{"amount-match", "TXN-10021", "Amount differs by 0.50 between bank and ledger", rules.ExceptionAmountMismatch, StatusOpen, "", 2 * time.Hour},
		{"amount-match", "TXN-10034", "Amount differs by 120.00 between bank and ledger", rules.ExceptionAmountMismatch, StatusInvestigating, "analyst@recon.local", 26 * time.Hour},
		{"date-window", "TXN-10102", "Settlement date is three days after booking date", rules.ExceptionDateDiscrepancy, StatusOpen, "", 30 * time.Hour},
		{"reference-match", "TXN-10150", "No ledger entry with matching reference", rules.ExceptionMissingReference, StatusOpen, "", 50 * time.Hour},
		{"account-match", "TXN-10188", "Counterparty account number differs", rules.ExceptionAccountMismatch, StatusResolved, "analyst@recon.local", 4 * 24 * time.Hour},
		{"amount-match", "TXN-10201", "Duplicate bank fee", rules.ExceptionOther, StatusDismissed, "admin@recon.local", 6 * 24 * time.Hour},
	}

	items := make([]*Exception, 0, len(demo))
	for _, d := range demo {
		created := now.Add(-d.age)
		e := &Exception{
			ID:          uuid.NewString(),
			RuleID:      d.ruleID,
			RuleVersion: rules.InitialVersion,
			RecordID:    d.recordID,
			Type:        d.typ,
			Status:      d.status,
			Priority:    priorityFor(d.typ),
			Description: d.description,
			AssignedTo:  d.assignee,
			CreatedAt:   created,
			UpdatedAt:   created,
		}
		if d.status.Terminal() {
			resolved := created.Add(time.Hour)
			e.ResolvedAt = &resolved
			e.UpdatedAt = resolved
			if d.status == StatusResolved {
				e.ResolutionNote = "Corrected in ledger"
				e.ResolvedBy = d.assignee
			}
		}
		items = append(items, e)
	}
	return q.store.Add(items...)
}
