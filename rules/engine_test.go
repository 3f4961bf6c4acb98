package rules

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	en, err := NewEngine(NewInMemoryRuleStore(), opts...)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	return en
}

func draftRule() *RuleDefinition {
	return &RuleDefinition{
		Name: "Amount match",
		Conditions: []Condition{
			{Field: "amount", Operator: OpEquals, Value: "target_amount", Logic: "and"},
			{Field: "currency", Operator: OpEquals, Value: "target_currency"},
		},
	}
}

var matchingPair = RecordPair{
	ID:     "tx-1",
	Source: map[string]any{"amount": "10.00", "currency": "EUR"},
	Target: map[string]any{"amount": "10", "currency": "EUR"},
}

var mismatchedPair = RecordPair{
	ID:     "tx-2",
	Source: map[string]any{"amount": "10.00", "currency": "EUR"},
	Target: map[string]any{"amount": "12", "currency": "EUR"},
}

func TestNewEngineCompilesExistingRules(t *testing.T) {
	store := NewInMemoryRuleStore()
	_ = store.Add(storedRule("active", "1.0.0", StatusActive))
	_ = store.Add(storedRule("draft", "1.0.0", StatusDraft))

	en, err := NewEngine(store)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	active, err := en.ListActive()
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "active" {
		t.Errorf("ListActive() = %v, want only the active rule", active)
	}
}

func TestNewEngineRejectsInvalidStoredRule(t *testing.T) {
	store := NewInMemoryRuleStore()
	bad := storedRule("bad", "1.0.0", StatusActive)
	bad.Conditions = nil
	_ = store.Add(bad)

	if _, err := NewEngine(store); err == nil {
		t.Error("NewEngine() should fail when an active rule does not validate")
	}
}

func TestEngineCreateRuleDefaults(t *testing.T) {
	en := newTestEngine(t)

	def, err := en.CreateRule(draftRule())
	if err != nil {
		t.Fatalf("CreateRule() failed: %v", err)
	}
	if def.ID == "" {
		t.Error("CreateRule() should assign an ID")
	}
	if def.Version != InitialVersion || def.Status != StatusDraft {
		t.Errorf("version/status = %s/%s, want %s/draft", def.Version, def.Status, InitialVersion)
	}
	if def.Conditions[0].Logic != LogicAnd || def.Conditions[1].Logic != LogicAnd {
		t.Errorf("logic not normalised: %+v", def.Conditions)
	}

	if _, err := en.CreateRule(def); !errors.Is(err, ErrRuleExists) {
		t.Errorf("CreateRule() duplicate = %v, want ErrRuleExists", err)
	}
}

func TestEngineCreateRuleInvalid(t *testing.T) {
	en := newTestEngine(t)

	rule := draftRule()
	rule.Conditions[0].Operator = "contains"
	if _, err := en.CreateRule(rule); !IsValidationError(err) {
		t.Errorf("CreateRule() = %v, want a validation error", err)
	}
}

func TestEngineVersionLifecycle(t *testing.T) {
	en := newTestEngine(t)

	rule := draftRule()
	rule.ID = "amount-match"
	if _, err := en.CreateRule(rule); err != nil {
		t.Fatalf("CreateRule() failed: %v", err)
	}
	if _, err := en.Activate("amount-match", ""); err != nil {
		t.Fatalf("Activate() failed: %v", err)
	}

	next, err := en.NewVersion("amount-match", &RuleDefinition{Name: "Amount only",
		Conditions: []Condition{{Field: "amount", Operator: OpEquals, Value: "target_amount"}}}, BumpMinor)
	if err != nil {
		t.Fatalf("NewVersion() failed: %v", err)
	}
	if next.Version != "1.1.0" || next.Status != StatusDraft || next.Name != "Amount only" {
		t.Errorf("NewVersion() = %s %s %q", next.Version, next.Status, next.Name)
	}

	// The draft does not replace the active version until it is activated.
	active, err := en.ListActive()
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	if len(active) != 1 || active[0].Version != "1.0.0" {
		t.Fatalf("active set = %v, want amount-match@1.0.0", active)
	}

	if _, err := en.Activate("amount-match", "1.1.0"); err != nil {
		t.Fatalf("Activate(1.1.0) failed: %v", err)
	}
	versions, err := en.ListVersions("amount-match")
	if err != nil {
		t.Fatalf("ListVersions() failed: %v", err)
	}
	if versions[0].Status != StatusInactive || versions[1].Status != StatusActive {
		t.Errorf("statuses = %s/%s, want inactive/active", versions[0].Status, versions[1].Status)
	}

	if _, err := en.Deactivate("amount-match", ""); err != nil {
		t.Fatalf("Deactivate() failed: %v", err)
	}
	if _, err := en.Run(context.Background(), "amount-match", []RecordPair{matchingPair}); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Run() without an active version = %v, want ErrRuleNotFound", err)
	}
}

func TestEngineTestFallsBackToLatest(t *testing.T) {
	en := newTestEngine(t)

	def, err := en.CreateRule(draftRule())
	if err != nil {
		t.Fatalf("CreateRule() failed: %v", err)
	}

	res, err := en.Test(context.Background(), def.ID, []RecordPair{matchingPair, mismatchedPair})
	if err != nil {
		t.Fatalf("Test() failed: %v", err)
	}
	if res.TotalRecords != 2 || res.PassedRecords != 1 || res.FailedRecords != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", res.TotalRecords, res.PassedRecords, res.FailedRecords)
	}
	if res.Results[1].ExceptionType != ExceptionAmountMismatch {
		t.Errorf("ExceptionType = %s, want AmountMismatch", res.Results[1].ExceptionType)
	}

	if _, err := en.Test(context.Background(), "missing", nil); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Test(missing) = %v, want ErrRuleNotFound", err)
	}
}

func TestEngineRunNotifiesObservers(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []*BatchRunResult
	)
	observer := RunObserverFunc(func(_ context.Context, rule *RuleDefinition, result *BatchRunResult) {
		mu.Lock()
		defer mu.Unlock()
		if rule.ID != result.RuleID {
			t.Errorf("observer rule %s, result rule %s", rule.ID, result.RuleID)
		}
		seen = append(seen, result)
	})
	en := newTestEngine(t, WithObserver(observer), WithWorkers(2))

	def, _ := en.CreateRule(draftRule())
	if _, err := en.Activate(def.ID, def.Version); err != nil {
		t.Fatalf("Activate() failed: %v", err)
	}

	// Test is side-effect free.
	if _, err := en.Test(context.Background(), def.ID, []RecordPair{matchingPair}); err != nil {
		t.Fatalf("Test() failed: %v", err)
	}
	if _, err := en.Run(context.Background(), def.ID, []RecordPair{matchingPair, mismatchedPair}); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("observer called %d times, want 1", len(seen))
	}
	if seen[0].FailedRecords != 1 {
		t.Errorf("observed FailedRecords = %d, want 1", seen[0].FailedRecords)
	}
}

func TestEngineImport(t *testing.T) {
	en := newTestEngine(t)

	valid := storedRule("imported", "", "")
	invalid := storedRule("broken", "1.0.0", "")
	invalid.Conditions = nil

	stats, err := en.Import([]*RuleDefinition{valid, invalid})
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if stats.Added != 1 || stats.Failed != 1 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want 1 added 1 failed", stats)
	}

	// Re-importing the same catalog is a no-op.
	stats, err = en.Import([]*RuleDefinition{valid})
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if stats.Added != 0 || stats.Skipped != 1 {
		t.Errorf("second import stats = %+v, want 1 skipped", stats)
	}

	active, _ := en.ListActive()
	if len(active) != 1 || active[0].ID != "imported" || active[0].Version != InitialVersion {
		t.Errorf("active set after import = %v", active)
	}
}

func TestEngineConcurrentRuns(t *testing.T) {
	en := newTestEngine(t)
	def, _ := en.CreateRule(draftRule())
	if _, err := en.Activate(def.ID, ""); err != nil {
		t.Fatalf("Activate() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := en.Run(context.Background(), def.ID, []RecordPair{matchingPair, mismatchedPair})
			if err != nil {
				t.Errorf("Run() failed: %v", err)
				return
			}
			if res.PassedRecords != 1 {
				t.Errorf("PassedRecords = %d, want 1", res.PassedRecords)
			}
		}()
	}
	wg.Wait()
}
