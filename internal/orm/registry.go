package orm

import (
	"sort"
	"sync"
)

// Registry is the in-memory catalog of defined tables. Each DB owns one.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
	order  []string
}

func newRegistry() *Registry {
	return &Registry{tables: map[string]*Table{}}
}

// Get returns the named table.
func (r *Registry) Get(name string) (*Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	return t, ok
}

// Names returns table names in definition order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Tables returns tables in definition order.
func (r *Registry) Tables() []*Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Table, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tables[name])
	}
	return out
}

// put registers t, replacing any previous definition but keeping its
// relations. It reports whether a definition was replaced.
func (r *Registry) put(t *Table) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, exists := r.tables[t.Name]
	if exists {
		for alias, rel := range prev.Relations {
			t.Relations[alias] = rel
		}
	} else {
		r.order = append(r.order, t.Name)
	}
	r.tables[t.Name] = t
	return exists
}

func (r *Registry) addRelation(source string, rel Relation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[source]; ok {
		t.Relations[rel.As] = rel
	}
}

func (r *Registry) relation(source, alias string) (Relation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[source]
	if !ok {
		return Relation{}, false
	}
	rel, ok := t.Relations[alias]
	return rel, ok
}

// relations returns a table's relations sorted by alias.
func (r *Registry) relations(source string) []Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[source]
	if !ok {
		return nil
	}
	out := make([]Relation, 0, len(t.Relations))
	for _, rel := range t.Relations {
		out = append(out, rel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].As < out[j].As })
	return out
}
