package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/liamcoop/recon/rules"
)

func sampleResult(ruleID string) *rules.BatchRunResult {
	return &rules.BatchRunResult{
		RuleID:        ruleID,
		RuleVersion:   "1.0.0",
		TotalRecords:  3,
		PassedRecords: 1,
		FailedRecords: 2,
		StartedAt:     time.Now(),
		Duration:      15 * time.Millisecond,
		Results: []*rules.EvaluationResult{
			{Passed: true},
			{Passed: false, ExceptionType: rules.ExceptionAmountMismatch},
			{Passed: false, ExceptionType: rules.ExceptionAmountMismatch},
		},
	}
}

func TestNewRunRecord(t *testing.T) {
	rec := NewRunRecord(&rules.RuleDefinition{ID: "r", Name: "Amount"}, sampleResult("r"))

	if rec.ID == "" || rec.RuleName != "Amount" || rec.FailedRecords != 2 {
		t.Errorf("record = %+v", rec)
	}
	if rec.ExceptionCounts["AmountMismatch"] != 2 {
		t.Errorf("ExceptionCounts = %v, want AmountMismatch: 2", rec.ExceptionCounts)
	}
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreList(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()
			base := time.Now().Add(-time.Hour)

			for i := 0; i < 5; i++ {
				ruleID := "a"
				if i%2 == 1 {
					ruleID = "b"
				}
				rec := NewRunRecord(nil, sampleResult(ruleID))
				rec.RecordedAt = base.Add(time.Duration(i) * time.Minute)
				if err := store.Store(ctx, rec); err != nil {
					t.Fatalf("Store() failed: %v", err)
				}
			}

			all, err := store.List(ctx, Query{})
			if err != nil {
				t.Fatalf("List() failed: %v", err)
			}
			if len(all) != 5 {
				t.Fatalf("List() = %d records, want 5", len(all))
			}
			if !all[0].RecordedAt.After(all[4].RecordedAt) {
				t.Error("records should be newest first")
			}
			if all[0].ExceptionCounts["AmountMismatch"] != 2 || all[0].Duration != 15*time.Millisecond {
				t.Errorf("record did not round-trip: %+v", all[0])
			}

			onlyB, _ := store.List(ctx, Query{RuleID: "b"})
			if len(onlyB) != 2 {
				t.Errorf("List(rule b) = %d records, want 2", len(onlyB))
			}

			limited, _ := store.List(ctx, Query{Limit: 2})
			if len(limited) != 2 {
				t.Errorf("List(limit 2) = %d records", len(limited))
			}

			recent, _ := store.List(ctx, Query{Since: base.Add(150 * time.Second)})
			if len(recent) != 2 {
				t.Errorf("List(since) = %d records, want 2", len(recent))
			}
		})
	}
}

func TestRecorderDrainsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewMemoryStore()
	rec := NewRecorder(store, RecorderConfig{Buffer: 64, WriteTimeout: time.Second})

	for i := 0; i < 50; i++ {
		rec.RuleRunCompleted(context.Background(), &rules.RuleDefinition{ID: fmt.Sprint(i)}, sampleResult(fmt.Sprint(i)))
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// MemoryStore.List still works after Close.
	got, _ := store.List(context.Background(), Query{Limit: 1000})
	if len(got) != 50 {
		t.Errorf("stored %d records, want 50", len(got))
	}
}

func TestRecorderRejectsAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := NewRecorder(NewMemoryStore(), DefaultRecorderConfig())
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}

	err := rec.Record(context.Background(), NewRunRecord(nil, sampleResult("r")))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Record() after Close = %v, want ErrClosed", err)
	}
}

type blockingStore struct {
	MemoryStore
	release chan struct{}
}

func (b *blockingStore) Store(ctx context.Context, rec *RunRecord) error {
	<-b.release
	return b.MemoryStore.Store(ctx, rec)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &blockingStore{release: make(chan struct{})}
	rec := NewRecorder(store, RecorderConfig{Buffer: 1, WriteTimeout: 20 * time.Millisecond})

	var dropped int
	for i := 0; i < 4; i++ {
		if err := rec.Record(context.Background(), NewRunRecord(nil, sampleResult("r"))); err != nil {
			dropped++
		}
	}
	if dropped == 0 {
		t.Error("expected records to be dropped while the store is blocked")
	}

	close(store.release)
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
}
