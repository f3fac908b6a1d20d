package columntypes

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"
)

//go:embed columnTypes.json
var columnTypesFS embed.FS

// Definition describes how a column type behaves in filters and search
type Definition struct {
	Label        string   `json:"label"`
	Description  string   `json:"description"`
	IsSearchable bool     `json:"isSearchable"`
	IsSortable   bool     `json:"isSortable"`
	IsReference  bool     `json:"isReference,omitempty"`
	Operators    []string `json:"operators"`

	operatorSet map[string]struct{}
}

// Registry holds column type definitions
type Registry struct {
	types map[string]Definition
	mu    sync.RWMutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// GetRegistry returns the singleton column types registry
func GetRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = &Registry{types: make(map[string]Definition)}
		if err := defaultRegistry.loadFromEmbedded(); err != nil {
			panic(fmt.Sprintf("columntypes: %v", err))
		}
	})
	return defaultRegistry
}

func (r *Registry) loadFromEmbedded() error {
	data, err := columnTypesFS.ReadFile("columnTypes.json")
	if err != nil {
		return err
	}

	var types map[string]Definition
	if err := json.Unmarshal(data, &types); err != nil {
		return err
	}
	for name, def := range types {
		def.operatorSet = make(map[string]struct{}, len(def.Operators))
		for _, op := range def.Operators {
			def.operatorSet[op] = struct{}{}
		}
		types[name] = def
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = types
	return nil
}

// Get returns a column type definition by name
func (r *Registry) Get(typeName string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[typeName]
	return def, ok
}

// SupportsOperator reports whether op is in the type's operator set
func (r *Registry) SupportsOperator(typeName, op string) bool {
	def, ok := r.Get(typeName)
	if !ok {
		return false
	}
	_, ok = def.operatorSet[op]
	return ok
}

// Operators returns the operator set of a type
func (r *Registry) Operators(typeName string) []string {
	def, ok := r.Get(typeName)
	if !ok {
		return nil
	}
	out := make([]string, len(def.Operators))
	copy(out, def.Operators)
	return out
}

// IsSearchable returns whether global search covers columns of this type
func (r *Registry) IsSearchable(typeName string) bool {
	def, ok := r.Get(typeName)
	return ok && def.IsSearchable
}

// IsSortable returns whether rows can be ordered by columns of this type
func (r *Registry) IsSortable(typeName string) bool {
	def, ok := r.Get(typeName)
	return ok && def.IsSortable
}
