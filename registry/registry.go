// Package registry holds the explicit entity-to-schema mapping: which
// in-memory entities exist, what table shape each maps to, and how
// entities reference each other. A Registry is built once at startup and
// passed to the pool and session factory; nothing in this package is
// process-global.
package registry

import (
	"fmt"
	"sync"
)

// FieldType enumerates the supported column types.
type FieldType int

const (
	FieldString FieldType = iota
	FieldText
	FieldInt
	FieldBigInt
	FieldFloat
	FieldBool
	FieldTime
	FieldDate
)

const defaultStringSize = 255

// Field declares one column of an entity's table shape.
type Field struct {
	Name       string
	Type       FieldType
	Size       int
	PrimaryKey bool
	Nullable   bool
	Unique     bool
	Indexed    bool
	// Default is rendered verbatim into DDL, so it must be a SQL
	// literal ('free', 0, TRUE).
	Default string
}

// DeletePolicy is the declared referential-integrity choice for one
// relationship. The zero value rejects parent deletion while dependents
// exist; cascading is never inferred.
type DeletePolicy int

const (
	DeleteRestrict DeletePolicy = iota
	DeleteCascade
	DeleteSetNull
)

func (p DeletePolicy) String() string {
	switch p {
	case DeleteCascade:
		return "CASCADE"
	case DeleteSetNull:
		return "SET NULL"
	default:
		return "RESTRICT"
	}
}

// Relationship links a child entity's foreign-key field to a parent
// entity, together with the delete policy evaluated at commit time.
type Relationship struct {
	Name       string
	Child      string
	ForeignKey string
	Parent     string
	OnDelete   DeletePolicy
}

// Definition is the table shape an entity maps to.
type Definition struct {
	Name   string
	Table  string
	Fields []Field

	byName map[string]int
}

// Field looks a column declaration up by name.
func (d *Definition) Field(name string) (Field, bool) {
	idx, ok := d.byName[name]
	if !ok {
		return Field{}, false
	}
	return d.Fields[idx], true
}

// PrimaryKey returns the declared primary key column.
func (d *Definition) PrimaryKey() Field {
	for _, f := range d.Fields {
		if f.PrimaryKey {
			return f
		}
	}
	return Field{}
}

// Registry maps entity names to table definitions and relationships.
type Registry struct {
	mu            sync.RWMutex
	order         []string
	definitions   map[string]*Definition
	relationships []Relationship
	byParent      map[string][]Relationship
	byChild       map[string][]Relationship
}

func New() *Registry {
	return &Registry{
		definitions: map[string]*Definition{},
		byParent:    map[string][]Relationship{},
		byChild:     map[string][]Relationship{},
	}
}

// Define registers an entity and its table shape. Bookkeeping columns
// (id primary key, version, created_at, modified_at) are injected when
// not declared. Entities must be defined parent-first so that generated
// foreign keys always reference tables that already exist.
func (r *Registry) Define(name, table string, fields ...Field) (*Definition, error) {
	if name == "" || table == "" {
		return nil, fmt.Errorf("define %q: entity and table names are required", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[name]; exists {
		return nil, fmt.Errorf("define %q: entity already defined", name)
	}

	def := &Definition{
		Name:   name,
		Table:  table,
		byName: map[string]int{},
	}

	def.Fields = withBookkeeping(fields)
	for i, f := range def.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("define %q: field %d has no name", name, i)
		}
		if _, dup := def.byName[f.Name]; dup {
			return nil, fmt.Errorf("define %q: duplicate field %q", name, f.Name)
		}
		def.byName[f.Name] = i
	}

	r.definitions[name] = def
	r.order = append(r.order, name)
	return def, nil
}

// MustDefine is Define for startup wiring where a bad declaration is a
// programming error.
func (r *Registry) MustDefine(name, table string, fields ...Field) *Definition {
	def, err := r.Define(name, table, fields...)
	if err != nil {
		panic(err)
	}
	return def
}

// Relate declares that child's foreignKey field references parent,
// deleted under the supplied policy. Both entities and the field must
// already be defined.
func (r *Registry) Relate(name, child, foreignKey, parent string, policy DeletePolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	childDef, ok := r.definitions[child]
	if !ok {
		return fmt.Errorf("relate %q: unknown child entity %q", name, child)
	}
	if _, ok = r.definitions[parent]; !ok {
		return fmt.Errorf("relate %q: unknown parent entity %q", name, parent)
	}

	fkField, ok := childDef.Field(foreignKey)
	if !ok {
		return fmt.Errorf("relate %q: entity %q has no field %q", name, child, foreignKey)
	}
	if policy == DeleteSetNull && !fkField.Nullable {
		return fmt.Errorf("relate %q: set-null policy needs nullable field %s.%s", name, child, foreignKey)
	}

	for _, existing := range r.byChild[child] {
		if existing.ForeignKey == foreignKey {
			return fmt.Errorf("relate %q: %s.%s already related to %q", name, child, foreignKey, existing.Parent)
		}
	}

	rel := Relationship{
		Name:       name,
		Child:      child,
		ForeignKey: foreignKey,
		Parent:     parent,
		OnDelete:   policy,
	}
	r.relationships = append(r.relationships, rel)
	r.byParent[parent] = append(r.byParent[parent], rel)
	r.byChild[child] = append(r.byChild[child], rel)
	return nil
}

// MustRelate is Relate for startup wiring.
func (r *Registry) MustRelate(name, child, foreignKey, parent string, policy DeletePolicy) {
	if err := r.Relate(name, child, foreignKey, parent, policy); err != nil {
		panic(err)
	}
}

// Lookup returns the definition for the named entity.
func (r *Registry) Lookup(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[name]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", name)
	}
	return def, nil
}

// Definitions returns all definitions in declaration order.
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.definitions[name])
	}
	return out
}

// ChildrenOf returns the relationships in which the named entity is the parent.
func (r *Registry) ChildrenOf(parent string) []Relationship {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Relationship, len(r.byParent[parent]))
	copy(out, r.byParent[parent])
	return out
}

// ReferencesFrom returns the relationships in which the named entity is the child.
func (r *Registry) ReferencesFrom(child string) []Relationship {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Relationship, len(r.byChild[child]))
	copy(out, r.byChild[child])
	return out
}

// RelationshipFor finds the relationship governing the child entity's
// foreign-key field, if one was declared.
func (r *Registry) RelationshipFor(child, foreignKey string) (Relationship, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rel := range r.byChild[child] {
		if rel.ForeignKey == foreignKey {
			return rel, true
		}
	}
	return Relationship{}, false
}

func withBookkeeping(fields []Field) []Field {
	present := map[string]bool{}
	hasPK := false
	for _, f := range fields {
		present[f.Name] = true
		if f.PrimaryKey {
			hasPK = true
		}
	}

	out := make([]Field, 0, len(fields)+4)
	if !present["id"] && !hasPK {
		out = append(out, Field{Name: "id", Type: FieldString, Size: 50, PrimaryKey: true})
	}
	out = append(out, fields...)
	if !present["version"] {
		out = append(out, Field{Name: "version", Type: FieldBigInt, Default: "0"})
	}
	if !present["created_at"] {
		out = append(out, Field{Name: "created_at", Type: FieldTime})
	}
	if !present["modified_at"] {
		out = append(out, Field{Name: "modified_at", Type: FieldTime})
	}
	return out
}
