package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogEntry describes a subagent in a capability catalog file.
type CatalogEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type catalogFile struct {
	Subagents []CatalogEntry `yaml:"subagents"`
}

// LoadCatalog reads a YAML capability catalog.
func LoadCatalog(path string) ([]CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML.
func ParseCatalog(data []byte) ([]CatalogEntry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return f.Subagents, nil
}

// Bind pairs catalog entries with handles. Every catalog entry needs a handle;
// handles without a catalog entry are ignored.
func Bind(catalog []CatalogEntry, handles map[string]Handle) ([]Entry, error) {
	entries := make([]Entry, 0, len(catalog))
	for _, c := range catalog {
		h, ok := handles[c.Name]
		if !ok {
			return nil, &ConfigurationError{Name: c.Name, Reason: "no handle bound"}
		}
		entries = append(entries, Entry{Name: c.Name, Description: c.Description, Handle: h})
	}
	return entries, nil
}
