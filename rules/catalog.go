package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the content of one or more rule catalog files.
type Catalog struct {
	Rules     []*RuleDefinition     `yaml:"rules"`
	Templates []*TemplateDefinition `yaml:"templates"`
}

// LoadCatalogFile parses a single YAML catalog file.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %q: %w", path, err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %q: %w", path, err)
	}
	return &c, nil
}

// LoadCatalogDir merges every .yaml/.yml file in dir, in lexical order.
func LoadCatalogDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !isCatalogFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	merged := &Catalog{}
	for _, name := range names {
		c, err := LoadCatalogFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		merged.Rules = append(merged.Rules, c.Rules...)
		merged.Templates = append(merged.Templates, c.Templates...)
	}
	return merged, nil
}

func isCatalogFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
