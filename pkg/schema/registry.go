// Package schema holds the data definitions that describe the layout of
// sim object data payloads.
package schema

import (
	"fmt"
	"sort"
	"sync"
)

// ID identifies a data definition within a session.
type ID uint32

// Schema is an immutable snapshot of a data definition.
type Schema struct {
	ID      ID      `json:"id"`
	Version int     `json:"version"`
	Fields  []Field `json:"fields"`
}

// Width returns the untagged payload size: the sum of all field widths.
func (s Schema) Width() int {
	total := 0
	for _, f := range s.Fields {
		total += f.Type.Width()
	}
	return total
}

// FieldByTag returns the field registered with the given datum tag.
func (s Schema) FieldByTag(tag uint32) (Field, bool) {
	if tag == Unused {
		return Field{}, false
	}
	for _, f := range s.Fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return Field{}, false
}

// UniformWidth returns the common wire width of all fields, if they share one.
func (s Schema) UniformWidth() (int, bool) {
	if len(s.Fields) == 0 {
		return 0, false
	}
	w := s.Fields[0].Type.Width()
	for _, f := range s.Fields[1:] {
		if f.Type.Width() != w {
			return 0, false
		}
	}
	return w, true
}

// UniformType returns the common data type of all fields, if they share one.
func (s Schema) UniformType() (DataType, bool) {
	if len(s.Fields) == 0 {
		return Invalid, false
	}
	t := s.Fields[0].Type
	for _, f := range s.Fields[1:] {
		if f.Type != t {
			return Invalid, false
		}
	}
	return t, true
}

type entry struct {
	version int
	fields  []Field
}

// Registry maps definition ids to ordered field lists.
// It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[ID]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[ID]*entry)}
}

// Define appends a field to the definition for id, creating it if absent.
// Field order is the order of Define calls.
func (r *Registry) Define(id ID, f Field) error {
	if err := f.validate(); err != nil {
		return fmt.Errorf("define %d: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.defs[id]
	if !ok {
		e = &entry{}
		r.defs[id] = e
	}
	if f.HasTag() {
		for _, existing := range e.fields {
			if existing.Tag == f.Tag {
				return fmt.Errorf("define %d: %w: %d used by %s", id, ErrDuplicateTag, f.Tag, existing.Name)
			}
		}
	}
	e.fields = append(e.fields, f)
	e.version++
	return nil
}

// Clear removes all fields of a definition. A later Define starts a new shape.
func (r *Registry) Clear(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.defs[id]; ok {
		e.fields = nil
		e.version++
	}
}

// Remove drops the most recently added field named name from definition id,
// for a field the host did not accept. It reports whether a field was removed.
func (r *Registry) Remove(id ID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.defs[id]
	if !ok {
		return false
	}
	for i := len(e.fields) - 1; i >= 0; i-- {
		if e.fields[i].Name == name {
			e.fields = append(e.fields[:i:i], e.fields[i+1:]...)
			e.version++
			return true
		}
	}
	return false
}

// Resolve returns a snapshot of the definition for id.
func (r *Registry) Resolve(id ID) (Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.defs[id]
	if !ok || len(e.fields) == 0 {
		return Schema{}, fmt.Errorf("%w: %d", ErrUnknownSchema, id)
	}
	fields := make([]Field, len(e.fields))
	copy(fields, e.fields)
	return Schema{ID: id, Version: e.version, Fields: fields}, nil
}

// MustResolve is like Resolve but panics if id was never defined.
func (r *Registry) MustResolve(id ID) Schema {
	s, err := r.Resolve(id)
	if err != nil {
		panic(err)
	}
	return s
}

// Snapshot returns all non-empty definitions ordered by id.
func (r *Registry) Snapshot() []Schema {
	r.mu.RLock()
	ids := make([]ID, 0, len(r.defs))
	for id, e := range r.defs {
		if len(e.fields) > 0 {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Schema, 0, len(ids))
	for _, id := range ids {
		if s, err := r.Resolve(id); err == nil {
			out = append(out, s)
		}
	}
	return out
}
