package connectors

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func bankRequest() CreateRequest {
	return CreateRequest{
		Name:     "Main bank",
		Type:     "Bank",
		Schedule: "0 * * * *",
		Settings: map[string]string{"institution": "First National", "accountNumber": "1234"},
	}
}

func TestCreateValidation(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing name", CreateRequest{Type: "csv"}},
		{"unknown type", CreateRequest{Name: "x", Type: "ftp"}},
		{"bad schedule", CreateRequest{Name: "x", Type: "csv", Schedule: "every hour"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Create(tt.req); !errors.Is(err, ErrInvalidConnector) {
				t.Errorf("Create() = %v, want ErrInvalidConnector", err)
			}
		})
	}

	c, err := r.Create(bankRequest())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if c.Type != TypeBank || c.Status != StatusDisconnected || c.ID == "" {
		t.Errorf("connector = %+v", c)
	}
}

func TestCreateCopiesSettings(t *testing.T) {
	r := NewRegistry()
	req := bankRequest()
	c, _ := r.Create(req)
	req.Settings["institution"] = "changed"

	got, _ := r.Get(c.ID)
	if got.Settings["institution"] != "First National" {
		t.Error("registry shares the caller's settings map")
	}
}

func TestTestConnection(t *testing.T) {
	r := NewRegistry()
	good, _ := r.Create(bankRequest())
	bad, _ := r.Create(CreateRequest{Name: "Warehouse", Type: "database", Settings: map[string]string{"dsn": "x"}})

	res, err := r.TestConnection(good.ID)
	if err != nil || !res.Success {
		t.Fatalf("TestConnection(good) = %+v, %v", res, err)
	}
	again, _ := r.TestConnection(good.ID)
	if again.LatencyMs != res.LatencyMs {
		t.Error("connection test is not deterministic")
	}
	if c, _ := r.Get(good.ID); c.Status != StatusConnected {
		t.Errorf("status = %s, want connected", c.Status)
	}

	res, _ = r.TestConnection(bad.ID)
	if res.Success || len(res.Missing) != 1 || res.Missing[0] != "table" {
		t.Errorf("TestConnection(bad) = %+v", res)
	}
	if c, _ := r.Get(bad.ID); c.Status != StatusError || c.LastError == "" {
		t.Errorf("bad connector = %+v", c)
	}

	if _, err := r.TestConnection("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("TestConnection(missing) = %v", err)
	}
}

func TestSync(t *testing.T) {
	r := NewRegistry()
	c, _ := r.Create(bankRequest())

	var observed []SyncResult
	r.OnSync(func(res SyncResult) { observed = append(observed, res) })

	first, err := r.Sync(context.Background(), c.ID, "manual")
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if first.Records < 50 || first.Records >= 500 {
		t.Errorf("Records = %d, want within [50, 500)", first.Records)
	}
	second, _ := r.Sync(context.Background(), c.ID, "manual")
	if second.Records != first.Records {
		t.Error("sync record count is not deterministic")
	}

	got, _ := r.Get(c.ID)
	if got.RecordCount != first.Records*2 || got.LastSync == nil || got.Status != StatusConnected {
		t.Errorf("connector after sync = %+v", got)
	}
	if len(observed) != 2 || observed[0].Trigger != "manual" {
		t.Errorf("observed = %+v", observed)
	}
}

func TestSyncFailsWithoutSettings(t *testing.T) {
	r := NewRegistry()
	c, _ := r.Create(CreateRequest{Name: "Export", Type: "csv"})

	if _, err := r.Sync(context.Background(), c.ID, "manual"); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Sync() = %v, want ErrConnectionFailed", err)
	}
	if got, _ := r.Get(c.ID); got.Status != StatusError || got.RecordCount != 0 {
		t.Errorf("connector = %+v", got)
	}
}

func TestSyncCancelled(t *testing.T) {
	r := NewRegistry()
	c, _ := r.Create(bankRequest())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Sync(ctx, c.ID, "manual"); !errors.Is(err, context.Canceled) {
		t.Errorf("Sync() = %v, want context.Canceled", err)
	}
	if got, _ := r.Get(c.ID); got.RecordCount != 0 {
		t.Errorf("cancelled sync counted records: %d", got.RecordCount)
	}
}

func TestListFilters(t *testing.T) {
	r := NewRegistry()
	if err := r.SeedDemo(context.Background()); err != nil {
		t.Fatalf("SeedDemo() failed: %v", err)
	}

	if all := r.List("", ""); len(all) != 5 {
		t.Errorf("List() = %d connectors, want 5", len(all))
	}
	if banks := r.List(TypeBank, ""); len(banks) != 1 {
		t.Errorf("List(bank) = %d connectors, want 1", len(banks))
	}
	connected := r.List("", StatusConnected)
	for _, c := range connected {
		if c.Status != StatusConnected {
			t.Errorf("List(connected) returned %s", c.Status)
		}
	}
	if len(connected) != 4 {
		t.Errorf("connected = %d, want 4", len(connected))
	}
	if failed := r.List(TypeDatabase, StatusError); len(failed) != 1 {
		t.Errorf("List(database, error) = %d connectors, want 1", len(failed))
	}
}

func TestScheduler(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRegistry()
	c, _ := r.Create(bankRequest())
	unscheduled, _ := r.Create(CreateRequest{Name: "Export", Type: "csv", Settings: map[string]string{"path": "/tmp/x.csv"}})

	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(r)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	next, ok := s.NextRun(c.ID)
	if !ok || !next.After(time.Now()) {
		t.Errorf("NextRun() = %v, %v", next, ok)
	}
	if _, ok := s.NextRun(unscheduled.ID); ok {
		t.Error("connector without a schedule was scheduled")
	}

	c.Schedule = ""
	if err := s.Schedule(ctx, c); err != nil {
		t.Fatalf("Schedule() failed: %v", err)
	}
	if _, ok := s.NextRun(c.ID); ok {
		t.Error("clearing the schedule did not remove the job")
	}

	cancel()
	s.Stop()
}

func TestScheduledJobSyncs(t *testing.T) {
	r := NewRegistry()
	req := bankRequest()
	req.Schedule = "@every 1s"
	if _, err := r.Create(req); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	var synced atomic.Int32
	r.OnSync(func(SyncResult) { synced.Add(1) })

	s := NewScheduler(r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for synced.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if synced.Load() == 0 {
		t.Error("scheduled job never synced")
	}
}
