// Package adapter defines the DatabaseAdapter contract (spec §4.3): the
// single seam between the provider registry and every backend kind Prism
// Cache knows how to query.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel error classes surfaced by adapter implementations. The facade
// and dispatcher translate these into the RESP error kinds of spec §7;
// they never leak credentials or raw SQL to the client.
var (
	// ErrBackendUnavailable covers connection loss, query timeout, and
	// other transient backend failures.
	ErrBackendUnavailable = errors.New("adapter: backend unavailable")
	// ErrMalformedID covers ids that fail an adapter's own schema or
	// template-injection checks.
	ErrMalformedID = errors.New("adapter: malformed id")
	// ErrConfiguration covers adapter misconfiguration, whether caught at
	// construction (e.g. a query template without a placeholder) or on
	// first use (e.g. a predicate column missing from the table schema).
	ErrConfiguration = errors.New("adapter: configuration mismatch")
)

// Field is a single name/value pair in an EntityData record.
type Field struct {
	Name  string
	Value string
}

// EntityData is an ordered mapping from field name to field value,
// preserving the adapter's declared field order (spec §3). The zero
// value is the empty record, which means "no such id".
type EntityData struct {
	fields []Field
	index  map[string]int
}

// NewEntityData returns an empty record ready to be built up field by
// field, in declaration order.
func NewEntityData() EntityData {
	return EntityData{}
}

// Set appends or overwrites a field. Overwriting preserves the field's
// original position.
func (e *EntityData) Set(name, value string) {
	if e.index == nil {
		e.index = make(map[string]int)
	}
	if i, ok := e.index[name]; ok {
		e.fields[i].Value = value
		return
	}
	e.index[name] = len(e.fields)
	e.fields = append(e.fields, Field{Name: name, Value: value})
}

// Get returns a field's value and whether it was present.
func (e EntityData) Get(name string) (string, bool) {
	if e.index == nil {
		return "", false
	}
	i, ok := e.index[name]
	if !ok {
		return "", false
	}
	return e.fields[i].Value, true
}

// Empty reports whether the record has no fields, i.e. "no such id".
func (e EntityData) Empty() bool {
	return len(e.fields) == 0
}

// Fields returns the record's fields in declaration order. The slice is
// owned by the caller; mutating it does not affect e.
func (e EntityData) Fields() []Field {
	out := make([]Field, len(e.fields))
	copy(out, e.fields)
	return out
}

// Project returns a copy of e restricted to the named fields, preserving
// e's own field order. An empty or nil fields list returns e unchanged —
// see DESIGN.md's resolution of the partial-field-caching open question.
func (e EntityData) Project(fields []string) EntityData {
	if len(fields) == 0 {
		return e
	}
	want := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		want[f] = struct{}{}
	}
	out := NewEntityData()
	for _, f := range e.fields {
		if _, ok := want[f.Name]; ok {
			out.Set(f.Name, f.Value)
		}
	}
	return out
}

// MarshalJSON renders the record as a JSON object with fields in
// declaration order. encoding/json's default map handling sorts keys
// alphabetically, which would make HGET/GET replies depend on field
// names instead of the adapter's declared order — so the object is
// built by hand instead.
func (e EntityData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range e.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// StringifyValue renders a raw backend column value as a cache-ready
// string, per spec §4.5 step 3's stringification rules: numeric values
// use Go's default decimal rendering, timestamps are ISO-8601, and a
// nil value reports ok=false so the caller omits the field entirely
// instead of caching the literal text "<nil>".
func StringifyValue(v interface{}) (value string, ok bool) {
	if v == nil {
		return "", false
	}
	if t, isTime := v.(time.Time); isTime {
		return t.Format(time.RFC3339), true
	}
	return fmt.Sprint(v), true
}

// Adapter is the DatabaseAdapter contract (spec §4.3). Implementations
// must be safe for concurrent use; they may own pooled backend
// connections but are otherwise stateless with respect to individual
// requests.
type Adapter interface {
	// FetchFields returns the record for id within the logical
	// collection entity, restricted to fields if non-empty, else all
	// configured fields. An empty (non-nil-error) EntityData means "no
	// such id" — non-fatal.
	FetchFields(ctx context.Context, entity, id string, fields []string) (EntityData, error)

	// Close releases any pooled backend connections. Safe to call once
	// during registry teardown.
	Close() error
}
