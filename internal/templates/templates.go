// Package templates is the library of reusable rule blueprints.
package templates

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/liamcoop/recon/rules"
)

var ErrTemplateNotFound = errors.New("template not found")

// Complexity levels a template may declare.
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityAdvanced = "advanced"
)

// RuleCreator stores a new rule. *rules.Engine implements it.
type RuleCreator interface {
	CreateRule(def *rules.RuleDefinition) (*rules.RuleDefinition, error)
}

// Filter selects templates. Empty fields match everything; Search matches
// name and description case-insensitively.
type Filter struct {
	Category   string
	Complexity string
	Search     string
}

// Library holds templates in memory.
type Library struct {
	creator   RuleCreator
	mu        sync.RWMutex
	templates map[string]*rules.TemplateDefinition
	logger    *slog.Logger
}

func NewLibrary(creator RuleCreator) *Library {
	return &Library{
		creator:   creator,
		templates: make(map[string]*rules.TemplateDefinition),
		logger:    slog.Default().With("component", "templates"),
	}
}

func cloneTemplate(t *rules.TemplateDefinition) *rules.TemplateDefinition {
	cp := *t
	cp.RuleDefinition = *t.RuleDefinition.Clone()
	return &cp
}

// Load adds or replaces templates, keeping the usage count of templates
// already in the library. Invalid templates are skipped and reported.
func (l *Library) Load(list []*rules.TemplateDefinition) (loaded int, err error) {
	var errs []error

	l.mu.Lock()
	defer l.mu.Unlock()

	for i, t := range list {
		if t == nil {
			errs = append(errs, fmt.Errorf("template entry %d is empty", i))
			continue
		}
		t = cloneTemplate(t)
		if t.Version == "" {
			t.Version = rules.InitialVersion
		}
		t.Status = rules.StatusDraft
		if t.Complexity == "" {
			t.Complexity = ComplexitySimple
		}
		if verr := rules.ValidateRule(&t.RuleDefinition); verr != nil {
			errs = append(errs, fmt.Errorf("template %q: %w", t.ID, verr))
			continue
		}
		if existing, ok := l.templates[t.ID]; ok && existing.UsageCount > t.UsageCount {
			t.UsageCount = existing.UsageCount
		}
		l.templates[t.ID] = t
		loaded++
	}
	if len(errs) > 0 {
		l.logger.Warn("skipped invalid templates", "count", len(errs))
	}
	return loaded, errors.Join(errs...)
}

// List returns matching templates, most used first.
func (l *Library) List(f Filter) []*rules.TemplateDefinition {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	l.mu.RLock()
	out := make([]*rules.TemplateDefinition, 0, len(l.templates))
	for _, t := range l.templates {
		if f.Category != "" && !strings.EqualFold(t.Category, f.Category) {
			continue
		}
		if f.Complexity != "" && !strings.EqualFold(t.Complexity, f.Complexity) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Name), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, cloneTemplate(t))
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *Library) Get(id string) (*rules.TemplateDefinition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return cloneTemplate(t), nil
}

// Categories lists the distinct template categories, sorted.
func (l *Library) Categories() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, t := range l.templates {
		if t.Category != "" {
			seen[t.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// InstantiateRequest names the rule created from a template. Empty fields
// fall back to a generated id and the template name.
type InstantiateRequest struct {
	RuleID      string `json:"ruleId,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Instantiate creates a draft rule from a template and counts the use.
func (l *Library) Instantiate(id string, req InstantiateRequest) (*rules.RuleDefinition, error) {
	t, err := l.Get(id)
	if err != nil {
		return nil, err
	}

	def := t.RuleDefinition.Clone()
	def.ID = req.RuleID
	def.Version = rules.InitialVersion
	def.Status = rules.StatusDraft
	if req.Name != "" {
		def.Name = req.Name
	}
	if req.Description != "" {
		def.Description = req.Description
	}

	created, err := l.creator.CreateRule(def)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if stored, ok := l.templates[id]; ok {
		stored.UsageCount++
	}
	l.mu.Unlock()

	l.logger.Info("template instantiated", "template_id", id, "rule_id", created.ID)
	return created, nil
}
