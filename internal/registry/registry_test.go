package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func echo() Handle {
	return HandleFunc(func(ctx context.Context, req Request) (Response, error) {
		return Response{Output: req.Task}, nil
	})
}

func TestNewAndLookup(t *testing.T) {
	r, err := New(
		Entry{Name: "Research Agent", Description: "Searches the web", Handle: echo()},
		Entry{Name: "Math Agent", Description: "Does arithmetic", Handle: echo()},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "Research Agent" || names[1] != "Math Agent" {
		t.Errorf("expected registration order, got %v", names)
	}
	h, err := r.Lookup("Math Agent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := h.Invoke(context.Background(), Request{Task: "2+2"})
	if err != nil || resp.Output != "2+2" {
		t.Errorf("expected echo, got %q, %v", resp.Output, err)
	}
	desc := r.DescribeAll()
	if desc["Math Agent"] != "Does arithmetic" {
		t.Errorf("expected description, got %q", desc["Math Agent"])
	}
	want := "- Research Agent: Searches the web\n- Math Agent: Does arithmetic\n"
	if r.Describe() != want {
		t.Errorf("expected %q, got %q", want, r.Describe())
	}
}

func TestLookupUnknown(t *testing.T) {
	r, _ := New(Entry{Name: "A", Description: "a", Handle: echo()})
	_, err := r.Lookup("B")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNewRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"none", nil},
		{"empty name", []Entry{{Name: " ", Description: "x", Handle: echo()}}},
		{"padded name", []Entry{{Name: "A ", Description: "x", Handle: echo()}}},
		{"blank description", []Entry{{Name: "A", Description: "  ", Handle: echo()}}},
		{"nil handle", []Entry{{Name: "A", Description: "x"}}},
		{"duplicate", []Entry{
			{Name: "A", Description: "x", Handle: echo()},
			{Name: "A", Description: "y", Handle: echo()},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.entries...)
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `subagents:
  - name: Math Agent
    description: Arithmetic with add, subtract, multiply and divide.
  - name: Research Agent
    description: Web research.
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(catalog) != 2 || catalog[0].Name != "Math Agent" {
		t.Fatalf("unexpected catalog %+v", catalog)
	}

	entries, err := Bind(catalog, map[string]Handle{"Math Agent": echo(), "Research Agent": echo(), "Extra": echo()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, err := New(entries...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", r.Len())
	}

	_, err = Bind(catalog, map[string]Handle{"Math Agent": echo()})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Name != "Research Agent" {
		t.Errorf("expected unbound Research Agent error, got %v", err)
	}
}

func TestParseCatalogInvalid(t *testing.T) {
	if _, err := ParseCatalog([]byte("subagents: [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}
