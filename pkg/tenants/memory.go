// pkg/tenants/memory.go
package tenants

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type memRegistry struct {
	log     *zap.SugaredLogger
	tenants []Tenant
	byID    map[string]int
	strict  bool
}

// NewMemoryRegistry builds a registry over a fixed, ordered tenant list.
// Ids must be non-empty and unique.
func NewMemoryRegistry(list []Tenant, strict bool, log *zap.SugaredLogger) (Registry, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	m := &memRegistry{log: log, byID: make(map[string]int, len(list)), strict: strict}
	for _, t := range list {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, fmt.Errorf("tenant %q: empty id", t.DisplayName)
		}
		if _, dup := m.byID[t.ID]; dup {
			return nil, fmt.Errorf("tenant %q: duplicate id", t.ID)
		}
		m.byID[t.ID] = len(m.tenants)
		m.tenants = append(m.tenants, t)
	}
	return m, nil
}

// NewMemoryRegistryFromEnv seeds from TENANT_SEED_JSON, else from the YAML file at path.
//
//	[{"id":"JP","display_name":"Loja JP","token_query":"SELECT access_token FROM tokens.tiny WHERE empresa = 'JP'"}]
func NewMemoryRegistryFromEnv(seedJSON, path string, strict bool, log *zap.SugaredLogger) (Registry, error) {
	var list []Tenant
	var err error
	switch {
	case seedJSON != "":
		list, err = ParseJSON([]byte(seedJSON))
	case path != "":
		list, err = LoadYAMLFile(path)
	}
	if err != nil {
		return nil, err
	}
	if len(list) == 0 && log != nil {
		log.Warnw("tenant registry empty", "hint", "set TENANT_SEED_JSON, TENANTS_FILE or DATABASE_URL")
	}
	return NewMemoryRegistry(list, strict, log)
}

func ParseJSON(b []byte) ([]Tenant, error) {
	var list []Tenant
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("parse tenant seed json: %w", err)
	}
	return list, nil
}

// LoadYAMLFile reads a file of the form:
//
//	tenants:
//	  - id: JP
//	    display_name: Loja JP
//	    token_query: SELECT access_token FROM tokens.tiny WHERE empresa = 'JP'
func LoadYAMLFile(path string) ([]Tenant, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}
	var doc struct {
		Tenants []Tenant `yaml:"tenants"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse tenants file %s: %w", path, err)
	}
	return doc.Tenants, nil
}

func (m *memRegistry) Resolve(ctx context.Context, ref string) (Tenant, error) {
	t, others, err := lookup(m.tenants, m.byID, ref, m.strict)
	if err != nil {
		return Tenant{}, err
	}
	if len(others) > 0 {
		m.log.Warnw("ambiguous tenant reference, using first match", "ref", ref, "tenant", t.ID, "also_matched", others)
	}
	return t, nil
}

func (m *memRegistry) Get(ctx context.Context, id string) (Tenant, error) {
	if i, ok := m.byID[id]; ok {
		return m.tenants[i], nil
	}
	return Tenant{}, fmt.Errorf("%w: %q", ErrUnknownTenant, id)
}

func (m *memRegistry) List(ctx context.Context) ([]Tenant, error) {
	return append([]Tenant(nil), m.tenants...), nil
}

// lookup resolves ref by exact id first, then by substring of the display name
// in registry order. It also returns the ids of later substring matches.
func lookup(list []Tenant, byID map[string]int, ref string, strict bool) (Tenant, []string, error) {
	if ref == "" {
		return Tenant{}, nil, fmt.Errorf("%w: empty reference", ErrUnknownTenant)
	}
	if i, ok := byID[ref]; ok {
		return list[i], nil, nil
	}
	if strict {
		return Tenant{}, nil, fmt.Errorf("%w: %q", ErrUnknownTenant, ref)
	}
	first := -1
	var others []string
	for i, t := range list {
		if !strings.Contains(t.DisplayName, ref) {
			continue
		}
		if first < 0 {
			first = i
			continue
		}
		others = append(others, t.ID)
	}
	if first < 0 {
		return Tenant{}, nil, fmt.Errorf("%w: %q", ErrUnknownTenant, ref)
	}
	return list[first], others, nil
}
