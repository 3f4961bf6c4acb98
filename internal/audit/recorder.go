package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/liamcoop/recon/internal/logger"
	"github.com/liamcoop/recon/rules"
)

// RecorderConfig tunes the asynchronous recorder.
type RecorderConfig struct {
	Buffer       int
	WriteTimeout time.Duration
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{Buffer: 256, WriteTimeout: 5 * time.Second}
}

// Recorder writes run records to a Store off the request path. Close drains
// every queued record before returning.
type Recorder struct {
	store  Store
	config RecorderConfig
	queue  chan *RunRecord
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.RWMutex // guards sends against Close
	closed    bool
}

func NewRecorder(store Store, config RecorderConfig) *Recorder {
	if config.Buffer <= 0 {
		config.Buffer = DefaultRecorderConfig().Buffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultRecorderConfig().WriteTimeout
	}

	r := &Recorder{
		store:  store,
		config: config,
		queue:  make(chan *RunRecord, config.Buffer),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "audit.recorder"),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// RuleRunCompleted implements rules.RunObserver.
func (r *Recorder) RuleRunCompleted(ctx context.Context, rule *rules.RuleDefinition, result *rules.BatchRunResult) {
	_ = r.Record(ctx, NewRunRecord(rule, result))
}

// Record queues rec for writing. It waits at most WriteTimeout for room in
// the queue, then drops the record.
func (r *Recorder) Record(ctx context.Context, rec *RunRecord) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		logger.DroppedAuditEvent.Add(1)
		return ErrClosed
	}

	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.queue <- rec:
		return nil
	case <-timer.C:
		logger.DroppedAuditEvent.Add(1)
		r.logger.Error("audit queue full, dropping run record", "run_id", rec.ID, "rule_id", rec.RuleID)
		return context.DeadlineExceeded
	case <-ctx.Done():
		logger.DroppedAuditEvent.Add(1)
		return ctx.Err()
	}
}

// Store returns the backing store for queries.
func (r *Recorder) Store() Store { return r.store }

// Close stops accepting records, drains the queue and closes the store.
func (r *Recorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		close(r.done)
		r.wg.Wait()
		err = r.store.Close()
	})
	return err
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-r.done:
			for {
				select {
				case rec := <-r.queue:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec *RunRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.store.Store(ctx, rec); err != nil {
		r.logger.Error("failed to store run record", "run_id", rec.ID, "rule_id", rec.RuleID, "error", err)
		return
	}
	r.logger.Debug("run recorded", "run_id", rec.ID, "rule_id", rec.RuleID,
		"duration_ms", time.Since(start).Milliseconds())
}
