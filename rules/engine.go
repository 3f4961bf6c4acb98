package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunObserver is notified after a run completes. Observers must not block;
// slow work such as persistence belongs on their own goroutines.
type RunObserver interface {
	RuleRunCompleted(ctx context.Context, rule *RuleDefinition, result *BatchRunResult)
}

// RunObserverFunc adapts a function to RunObserver.
type RunObserverFunc func(ctx context.Context, rule *RuleDefinition, result *BatchRunResult)

// RuleRunCompleted calls f.
func (f RunObserverFunc) RuleRunCompleted(ctx context.Context, rule *RuleDefinition, result *BatchRunResult) {
	f(ctx, rule, result)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWorkers bounds the number of records evaluated concurrently per run.
func WithWorkers(n int) EngineOption {
	return func(en *Engine) { en.workers = n }
}

// WithCache replaces the default in-memory active rule cache.
func WithCache(c RulesCache) EngineOption {
	return func(en *Engine) { en.cache = c }
}

// WithObserver registers a run observer.
func WithObserver(o RunObserver) EngineOption {
	return func(en *Engine) { en.observers = append(en.observers, o) }
}

// Engine ties the rule store to compiled rules and runs batches.
// Safe for concurrent use.
type Engine struct {
	store     RuleStore
	cache     RulesCache // compiled active rules
	workers   int
	observers []RunObserver
	logger    *slog.Logger
	mu        sync.Mutex // serialises catalog mutations
}

// NewEngine creates an engine over store and compiles every active rule.
func NewEngine(store RuleStore, opts ...EngineOption) (*Engine, error) {
	en := &Engine{
		store:  store,
		cache:  NewInMemoryRulesCache(DefaultCacheConfig()),
		logger: slog.Default().With("component", "rules.engine"),
	}
	for _, opt := range opts {
		opt(en)
	}

	if _, err := en.CompileAllRules(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}
	return en, nil
}

// CompileAllRules compiles every active rule and repopulates the cache.
func (en *Engine) CompileAllRules() ([]*CompiledRule, error) {
	active, err := en.store.ListActive()
	if err != nil {
		return nil, err
	}

	compiled := make([]*CompiledRule, 0, len(active))
	for _, def := range active {
		cr, err := Compile(def)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule %s@%s: %w", def.ID, def.Version, err)
		}
		if cr.AdvisoryErr != nil {
			en.logger.Warn("advisory logic does not compile",
				"rule_id", def.ID, "version", def.Version, "error", cr.AdvisoryErr)
		}
		compiled = append(compiled, cr)
	}

	en.cache.Set(compiled)
	return compiled, nil
}

// activeRules returns the compiled active set, refreshing it on a cache miss.
func (en *Engine) activeRules() ([]*CompiledRule, error) {
	if all := en.cache.All(); all != nil {
		return all, nil
	}
	return en.CompileAllRules()
}

// CreateRule validates and stores a new rule. Missing ID, version and status
// default to a fresh UUID, InitialVersion and draft.
func (en *Engine) CreateRule(def *RuleDefinition) (*RuleDefinition, error) {
	def = def.Clone()
	if def == nil {
		return nil, &ValidationError{Reason: "rule definition is nil"}
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.Version == "" {
		def.Version = InitialVersion
	}
	if def.Status == "" {
		def.Status = StatusDraft
	}
	normalizeLogic(def)

	if _, err := Compile(def); err != nil {
		return nil, err
	}

	en.mu.Lock()
	defer en.mu.Unlock()

	if _, err := en.store.Get(def.ID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrRuleExists, def.ID)
	}
	if err := en.store.Add(def); err != nil {
		return nil, err
	}
	en.cache.Invalidate()

	en.logger.Info("rule created", "rule_id", def.ID, "version", def.Version, "status", def.Status)
	return en.store.GetVersion(def.ID, def.Version)
}

// NewVersion publishes a changed copy of rule id as a new draft version.
// bump selects the version component to increment (default minor).
func (en *Engine) NewVersion(id string, changes *RuleDefinition, bump string) (*RuleDefinition, error) {
	en.mu.Lock()
	defer en.mu.Unlock()

	latest, err := en.store.Get(id)
	if err != nil {
		return nil, err
	}

	next := latest.Clone()
	if changes != nil {
		if changes.Name != "" {
			next.Name = changes.Name
		}
		if changes.Description != "" {
			next.Description = changes.Description
		}
		if changes.Conditions != nil {
			next.Conditions = append([]Condition(nil), changes.Conditions...)
		}
		if changes.Logic != "" {
			next.Logic = changes.Logic
		}
	}
	if changes != nil && changes.Version != "" {
		next.Version = changes.Version
	} else if next.Version, err = NextVersion(latest.Version, bump); err != nil {
		return nil, err
	}
	next.Status = StatusDraft
	next.CreatedAt = time.Time{}
	normalizeLogic(next)

	if _, err := Compile(next); err != nil {
		return nil, err
	}
	if err := en.store.Add(next); err != nil {
		return nil, err
	}
	en.cache.Invalidate()

	en.logger.Info("rule version created", "rule_id", id, "version", next.Version, "previous", latest.Version)
	return en.store.GetVersion(id, next.Version)
}

// Activate makes one version the active version of its rule. An empty
// version activates the latest.
func (en *Engine) Activate(id, version string) (*RuleDefinition, error) {
	return en.setStatus(id, version, StatusActive)
}

// Deactivate retires a rule version. An empty version deactivates the
// currently active version.
func (en *Engine) Deactivate(id, version string) (*RuleDefinition, error) {
	if version == "" {
		if active, err := en.activeVersion(id); err == nil {
			version = active.def.Version
		}
	}
	return en.setStatus(id, version, StatusInactive)
}

func (en *Engine) setStatus(id, version string, status Status) (*RuleDefinition, error) {
	en.mu.Lock()
	defer en.mu.Unlock()

	if version == "" {
		latest, err := en.store.Get(id)
		if err != nil {
			return nil, err
		}
		version = latest.Version
	}
	if status == StatusActive {
		def, err := en.store.GetVersion(id, version)
		if err != nil {
			return nil, err
		}
		if _, err := Compile(def); err != nil {
			return nil, err
		}
	}
	if err := en.store.SetStatus(id, version, status); err != nil {
		return nil, err
	}
	en.cache.Invalidate()

	en.logger.Info("rule status changed", "rule_id", id, "version", version, "status", status)
	return en.store.GetVersion(id, version)
}

// Get returns the latest version of a rule.
func (en *Engine) Get(id string) (*RuleDefinition, error) {
	return en.store.Get(id)
}

// GetVersion returns one version of a rule.
func (en *Engine) GetVersion(id, version string) (*RuleDefinition, error) {
	return en.store.GetVersion(id, version)
}

// ListVersions returns the version history of a rule.
func (en *Engine) ListVersions(id string) ([]*RuleDefinition, error) {
	return en.store.ListVersions(id)
}

// List returns the latest version of every rule.
func (en *Engine) List() ([]*RuleDefinition, error) {
	return en.store.List()
}

// ListActive returns the active version of every rule.
func (en *Engine) ListActive() ([]*RuleDefinition, error) {
	active, err := en.activeRules()
	if err != nil {
		return nil, err
	}
	defs := make([]*RuleDefinition, len(active))
	for i, cr := range active {
		defs[i] = cr.Definition()
	}
	return defs, nil
}

func (en *Engine) activeVersion(id string) (*CompiledRule, error) {
	if _, err := en.activeRules(); err != nil {
		return nil, err
	}
	if cr, ok := en.cache.Get(id); ok {
		return cr, nil
	}
	return nil, fmt.Errorf("%w: no active version of %s", ErrRuleNotFound, id)
}

// Test evaluates records against the active version of a rule, or the
// latest version when none is active. It has no side effects.
func (en *Engine) Test(ctx context.Context, id string, records []RecordPair) (*BatchRunResult, error) {
	cr, err := en.activeVersion(id)
	if errors.Is(err, ErrRuleNotFound) {
		latest, gerr := en.store.Get(id)
		if gerr != nil {
			return nil, gerr
		}
		cr, err = Compile(latest)
	}
	if err != nil {
		return nil, err
	}
	return cr.Run(ctx, records, RunOptions{Workers: en.workers})
}

// Run evaluates records against the active version of a rule and notifies
// observers with the result.
func (en *Engine) Run(ctx context.Context, id string, records []RecordPair) (*BatchRunResult, error) {
	cr, err := en.activeVersion(id)
	if err != nil {
		return nil, err
	}

	result, err := cr.Run(ctx, records, RunOptions{Workers: en.workers})
	if err != nil {
		return nil, err
	}

	en.logger.Info("rule run completed",
		"rule_id", result.RuleID,
		"version", result.RuleVersion,
		"total", result.TotalRecords,
		"failed", result.FailedRecords,
		"duration", result.Duration,
	)

	def := cr.Definition()
	for _, o := range en.observers {
		o.RuleRunCompleted(ctx, def, result)
	}
	return result, nil
}

// ImportStats reports the outcome of an Import.
type ImportStats struct {
	Added   int
	Skipped int
	Failed  int
}

// Import adds rule versions that are not yet stored, leaving existing
// versions untouched. Invalid definitions are logged and counted, not fatal.
func (en *Engine) Import(defs []*RuleDefinition) (ImportStats, error) {
	var stats ImportStats

	en.mu.Lock()
	defer en.mu.Unlock()

	for i, def := range defs {
		if def == nil {
			en.logger.Warn("skipping empty catalog rule entry", "index", i)
			stats.Failed++
			continue
		}
		def = def.Clone()
		if def.Version == "" {
			def.Version = InitialVersion
		}
		if def.Status == "" {
			def.Status = StatusActive
		}
		normalizeLogic(def)

		if _, err := en.store.GetVersion(def.ID, def.Version); err == nil {
			stats.Skipped++
			continue
		}
		if _, err := Compile(def); err != nil {
			en.logger.Warn("skipping invalid catalog rule", "rule_id", def.ID, "error", err)
			stats.Failed++
			continue
		}
		if err := en.store.Add(def); err != nil {
			if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrRuleExists) {
				stats.Skipped++
				continue
			}
			return stats, fmt.Errorf("failed to import rule %s: %w", def.ID, err)
		}
		stats.Added++
	}

	if stats.Added > 0 {
		en.cache.Invalidate()
	}
	return stats, nil
}

func normalizeLogic(def *RuleDefinition) {
	for i := range def.Conditions {
		l := strings.ToUpper(strings.TrimSpace(string(def.Conditions[i].Logic)))
		if l == "" {
			l = string(LogicAnd)
		}
		def.Conditions[i].Logic = Logic(l)
	}
}
