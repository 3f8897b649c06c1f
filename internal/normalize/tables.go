package normalize

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TablesVersion is the lookup-table schema version this package understands.
const TablesVersion = 1

//go:embed defaults.yaml
var defaultTables []byte

// Tables are the versioned lookup tables consulted by the Normalizer.
type Tables struct {
	Version      int               `yaml:"version"`
	Sources      map[string]string `yaml:"sources"`
	DomainStates map[string]string `yaml:"domain_states"`
	PathStates   []PathState       `yaml:"path_states"`
}

// PathState maps a URL path keyword to a state.
type PathState struct {
	Keyword string `yaml:"keyword"`
	State   string `yaml:"state"`
}

// DefaultTables returns the embedded tables.
func DefaultTables() (Tables, error) {
	return ParseTables(defaultTables)
}

// LoadTables reads tables from path, or returns the defaults when path is empty.
func LoadTables(path string) (Tables, error) {
	if path == "" {
		return DefaultTables()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read tables: %w", err)
	}
	return ParseTables(data)
}

// ParseTables decodes and validates YAML tables. Domain keys are lowercased.
func ParseTables(data []byte) (Tables, error) {
	var t Tables
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return Tables{}, fmt.Errorf("decode tables: %w", err)
	}
	if t.Version != TablesVersion {
		return Tables{}, fmt.Errorf("unsupported tables version %d", t.Version)
	}
	t.Sources = lowerKeys(t.Sources)
	t.DomainStates = lowerKeys(t.DomainStates)
	for i, ps := range t.PathStates {
		if strings.TrimSpace(ps.Keyword) == "" || strings.TrimSpace(ps.State) == "" {
			return Tables{}, fmt.Errorf("path_states[%d]: keyword and state are required", i)
		}
		t.PathStates[i].Keyword = strings.ToLower(ps.Keyword)
	}
	return t, nil
}

func lowerKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}
