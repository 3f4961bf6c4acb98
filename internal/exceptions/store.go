package exceptions

import (
	"fmt"
	"sort"
	"sync"
)

// Store persists exceptions.
type Store interface {
	Add(items ...*Exception) error
	Get(id string) (*Exception, error)
	// List returns matching exceptions newest first.
	List(f Filter) (Page, error)
	// Update applies fn to the stored exception atomically. The change is
	// discarded when fn returns an error.
	Update(id string, fn func(*Exception) error) (*Exception, error)
	// All returns every exception, used for aggregation.
	All() ([]*Exception, error)
}

type InMemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Exception
	order []string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[string]*Exception)}
}

func (s *InMemoryStore) Add(items ...*Exception) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range items {
		if _, ok := s.items[e.ID]; ok {
			return fmt.Errorf("exception %s already exists", e.ID)
		}
	}
	for _, e := range items {
		s.items[e.ID] = e.clone()
		s.order = append(s.order, e.ID)
	}
	return nil
}

func (s *InMemoryStore) Get(id string) (*Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.clone(), nil
}

func (s *InMemoryStore) List(f Filter) (Page, error) {
	f = f.normalized()

	s.mu.RLock()
	matched := make([]*Exception, 0)
	for _, id := range s.order {
		if e := s.items[id]; f.matches(e) {
			matched = append(matched, e.clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := Page{Total: len(matched), Page: f.Page, PageSize: f.PageSize, Items: []*Exception{}}
	start := (f.Page - 1) * f.PageSize
	if start < len(matched) {
		page.Items = matched[start:min(start+f.PageSize, len(matched))]
	}
	return page, nil
}

func (s *InMemoryStore) Update(id string, fn func(*Exception) error) (*Exception, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	working := e.clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	s.items[id] = working
	return working.clone(), nil
}

func (s *InMemoryStore) All() ([]*Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Exception, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].clone())
	}
	return out, nil
}
