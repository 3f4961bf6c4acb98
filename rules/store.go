package rules

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RuleStore persists rule versions. Versions are immutable once added; only
// their status changes. Rules are never deleted.
type RuleStore interface {
	// Add stores a new rule, or a new version of an existing rule. A new
	// version must be greater than every stored version of the same rule.
	Add(rule *RuleDefinition) error

	// Get returns the latest version of a rule.
	Get(id string) (*RuleDefinition, error)

	// GetVersion returns one version of a rule.
	GetVersion(id, version string) (*RuleDefinition, error)

	// ListVersions returns every version of a rule, oldest first.
	ListVersions(id string) ([]*RuleDefinition, error)

	// List returns the latest version of every rule.
	List() ([]*RuleDefinition, error)

	// ListActive returns every active rule version.
	ListActive() ([]*RuleDefinition, error)

	// SetStatus changes the status of one version. Activating a version
	// deactivates any other active version of the same rule.
	SetStatus(id, version string, status Status) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
type InMemoryRuleStore struct {
	rules map[string][]*RuleDefinition // id -> versions, ascending
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string][]*RuleDefinition),
	}
}

// Add adds a rule version to the store.
func (s *InMemoryRuleStore) Add(rule *RuleDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.rules[rule.ID]
	for _, v := range versions {
		if CompareVersions(v.Version, rule.Version) == 0 {
			return fmt.Errorf("%w: %s@%s", ErrRuleExists, rule.ID, rule.Version)
		}
	}
	if n := len(versions); n > 0 && CompareVersions(rule.Version, versions[n-1].Version) < 0 {
		return fmt.Errorf("%w: %s@%s is older than %s", ErrVersionConflict, rule.ID, rule.Version, versions[n-1].Version)
	}

	stored := rule.Clone()
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.Status == StatusActive {
		deactivate(versions, now)
	}
	s.rules[rule.ID] = append(versions, stored)
	return nil
}

// Get retrieves the latest version of a rule.
func (s *InMemoryRuleStore) Get(id string) (*RuleDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, exists := s.rules[id]
	if !exists || len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return versions[len(versions)-1].Clone(), nil
}

// GetVersion retrieves a single version of a rule.
func (s *InMemoryRuleStore) GetVersion(id, version string) (*RuleDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.rules[id] {
		if CompareVersions(v.Version, version) == 0 {
			return v.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s@%s", ErrRuleNotFound, id, version)
}

// ListVersions returns all versions of a rule, oldest first.
func (s *InMemoryRuleStore) ListVersions(id string) ([]*RuleDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	out := make([]*RuleDefinition, len(versions))
	for i, v := range versions {
		out[i] = v.Clone()
	}
	return out, nil
}

// List returns the latest version of every rule ordered by ID.
func (s *InMemoryRuleStore) List() ([]*RuleDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*RuleDefinition, 0, len(s.rules))
	for _, versions := range s.rules {
		out = append(out, versions[len(versions)-1].Clone())
	}
	sortByID(out)
	return out, nil
}

// ListActive returns all active rule versions ordered by ID.
func (s *InMemoryRuleStore) ListActive() ([]*RuleDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*RuleDefinition
	for _, versions := range s.rules {
		for _, v := range versions {
			if v.Status == StatusActive {
				active = append(active, v.Clone())
			}
		}
	}
	sortByID(active)
	return active, nil
}

// SetStatus updates the status of one rule version.
func (s *InMemoryRuleStore) SetStatus(id, version string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.rules[id]
	for _, v := range versions {
		if CompareVersions(v.Version, version) != 0 {
			continue
		}
		if err := checkTransition(v.Status, status); err != nil {
			return fmt.Errorf("rule %s@%s: %w", id, version, err)
		}
		now := time.Now()
		if status == StatusActive {
			deactivate(versions, now)
		}
		v.Status = status
		v.UpdatedAt = now
		return nil
	}
	return fmt.Errorf("%w: %s@%s", ErrRuleNotFound, id, version)
}

func deactivate(versions []*RuleDefinition, now time.Time) {
	for _, v := range versions {
		if v.Status == StatusActive {
			v.Status = StatusInactive
			v.UpdatedAt = now
		}
	}
}

// checkTransition rejects moving a published version back to draft.
func checkTransition(from, to Status) error {
	if !isValidStatus(to) {
		return fmt.Errorf("unknown status %q", to)
	}
	if to == StatusDraft && from != StatusDraft {
		return fmt.Errorf("cannot return a %s rule to draft", from)
	}
	return nil
}

func sortByID(defs []*RuleDefinition) {
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].ID == defs[j].ID {
			return CompareVersions(defs[i].Version, defs[j].Version) < 0
		}
		return defs[i].ID < defs[j].ID
	})
}
