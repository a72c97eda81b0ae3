package data

import (
	"time"

	"github.com/rs/xid"
)

// Bookkeeping columns every registered entity carries.
const (
	FieldID         = "id"
	FieldVersion    = "version"
	FieldCreatedAt  = "created_at"
	FieldModifiedAt = "modified_at"
)

// Record is an in-memory entity instance: a stable identity plus the
// column values pending persistence. Records are owned by a single unit
// of work at a time and are never shared across units.
type Record struct {
	entity  string
	order   []string
	values  map[string]any
	cleared map[string]bool
}

func NewRecord(entity string) *Record {
	return &Record{
		entity:  entity,
		values:  map[string]any{},
		cleared: map[string]bool{},
	}
}

func (r *Record) Entity() string {
	return r.entity
}

// Set assigns a column value. Assignment order is preserved so flushed
// statements are deterministic.
func (r *Record) Set(field string, value any) *Record {
	if _, ok := r.values[field]; !ok {
		r.order = append(r.order, field)
	}
	r.values[field] = value
	delete(r.cleared, field)
	return r
}

// Clear explicitly nulls a column. A cleared foreign key is what the
// orphan rule inspects at commit time, so clearing must be distinct
// from never having set the field.
func (r *Record) Clear(field string) *Record {
	if _, ok := r.values[field]; !ok {
		r.order = append(r.order, field)
	}
	r.values[field] = nil
	r.cleared[field] = true
	return r
}

func (r *Record) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

func (r *Record) IsCleared(field string) bool {
	return r.cleared[field]
}

// Fields returns the assigned column names in assignment order.
func (r *Record) Fields() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Record) ID() any {
	return r.Identity(FieldID)
}

// Identity returns the value held by the named key column, or nil when
// it was never assigned. Entities that declare their own primary key
// resolve identity through this instead of the bookkeeping id.
func (r *Record) Identity(key string) any {
	v, ok := r.values[key]
	if !ok {
		return nil
	}
	return v
}

func (r *Record) SetID(id any) *Record {
	return r.Set(FieldID, id)
}

// GenID assigns a fresh identifier when none is present yet.
func (r *Record) GenID() {
	if id, ok := r.values[FieldID].(string); ok && id != "" {
		return
	}
	if r.values[FieldID] != nil {
		return
	}
	r.Set(FieldID, xid.New().String())
}

func (r *Record) Version() uint {
	switch v := r.values[FieldVersion].(type) {
	case uint:
		return v
	case int:
		if v < 0 {
			return 0
		}
		return uint(v)
	case int64:
		if v < 0 {
			return 0
		}
		return uint(v)
	default:
		return 0
	}
}

// PrepareInsert stamps identity, version and timestamps ahead of an
// insert statement.
func (r *Record) PrepareInsert(now time.Time) {
	r.GenID()
	r.StampInsert(now)
}

// StampInsert sets the initial version and timestamps without touching
// identity. Used for entities whose declared primary key the caller
// supplies.
func (r *Record) StampInsert(now time.Time) {
	r.Set(FieldVersion, uint(1))
	if _, ok := r.values[FieldCreatedAt]; !ok {
		r.Set(FieldCreatedAt, now)
	}
	r.Set(FieldModifiedAt, now)
}

// PrepareUpdate bumps the version and modification timestamp. The
// returned value is the version the row must still hold for the update
// to win the optimistic check.
func (r *Record) PrepareUpdate(now time.Time) uint {
	expected := r.Version()
	r.Set(FieldVersion, expected+1)
	r.Set(FieldModifiedAt, now)
	return expected
}

// ValidXID reports whether the supplied string parses as an xid.
func ValidXID(id string) bool {
	_, err := xid.FromString(id)
	return err == nil
}
