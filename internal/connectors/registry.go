package connectors

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SyncObserver is told about every completed sync.
type SyncObserver func(SyncResult)

// Registry holds connectors in memory. Connection tests and syncs are
// simulated: their outcome depends only on the connector's settings and id.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]*Connector
	syncing    map[string]bool
	observers  []SyncObserver
	now        func() time.Time
	logger     *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]*Connector),
		syncing:    make(map[string]bool),
		now:        time.Now,
		logger:     slog.Default().With("component", "connectors"),
	}
}

// OnSync registers an observer for completed syncs.
func (r *Registry) OnSync(o SyncObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

func (r *Registry) Create(req CreateRequest) (*Connector, error) {
	t, err := req.validate()
	if err != nil {
		return nil, err
	}

	c := &Connector{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Type:      t,
		Status:    StatusDisconnected,
		Schedule:  req.Schedule,
		Settings:  req.Settings,
		CreatedAt: r.now(),
	}
	c = c.clone()

	r.mu.Lock()
	r.connectors[c.ID] = c
	r.mu.Unlock()

	r.logger.Info("connector created", "connector_id", c.ID, "type", c.Type)
	return c.clone(), nil
}

// List returns connectors sorted by name. An empty status or type matches all.
func (r *Registry) List(t Type, status Status) []*Connector {
	r.mu.RLock()
	out := make([]*Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		if (t == "" || c.Type == t) && (status == "" || c.Status == status) {
			out = append(out, c.clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Registry) Get(id string) (*Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connectors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.clone(), nil
}

// TestConnection checks that the connector has every setting its type needs
// and marks it connected or errored accordingly.
func (r *Registry) TestConnection(id string) (*TestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.connectors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	res := probe(c)
	if res.Success {
		c.Status = StatusConnected
		c.LastError = ""
	} else {
		c.Status = StatusError
		c.LastError = res.Message
	}
	return res, nil
}

func probe(c *Connector) *TestResult {
	res := &TestResult{ConnectorID: c.ID, LatencyMs: 20 + int64(seed(c.ID)%180)}
	for _, key := range requiredSettings[c.Type] {
		if strings.TrimSpace(c.Settings[key]) == "" {
			res.Missing = append(res.Missing, key)
		}
	}
	if len(res.Missing) > 0 {
		res.Message = "missing settings: " + strings.Join(res.Missing, ", ")
		return res
	}
	res.Success = true
	res.Message = fmt.Sprintf("connected to %s source", c.Type)
	return res
}

// Sync pulls records from the source. Each sync of a connector yields the
// same number of records.
func (r *Registry) Sync(ctx context.Context, id, trigger string) (*SyncResult, error) {
	r.mu.Lock()
	c, ok := r.connectors[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if r.syncing[id] {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSyncInProgress, id)
	}
	if res := probe(c); !res.Success {
		c.Status = StatusError
		c.LastError = res.Message
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrConnectionFailed, res.Message)
	}
	r.syncing[id] = true
	c.Status = StatusSyncing
	r.mu.Unlock()

	started := r.now()
	result := &SyncResult{
		ConnectorID: id,
		Records:     50 + int64(seed(id+c.Name)%450),
		StartedAt:   started,
		Trigger:     trigger,
	}

	r.mu.Lock()
	delete(r.syncing, id)
	if err := ctx.Err(); err != nil {
		c.Status = StatusConnected
		r.mu.Unlock()
		return nil, err
	}
	finished := r.now()
	result.Duration = finished.Sub(started)
	c.Status = StatusConnected
	c.LastError = ""
	c.LastSync = &finished
	c.RecordCount += result.Records
	observers := append([]SyncObserver(nil), r.observers...)
	r.mu.Unlock()

	r.logger.Info("connector synced", "connector_id", id, "records", result.Records, "trigger", trigger)
	for _, o := range observers {
		o(*result)
	}
	return result, nil
}

func seed(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
