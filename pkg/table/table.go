// Package table implements the open-addressed hash table shared by the
// VM's globals and the interned-string table.
//
// Capacity is always a power of two; the table grows (doubling) once the
// load factor would exceed 0.75. Deleted entries become tombstones (key
// == nil, value == Bool(true)) so later probes don't stop short; empty
// slots have key == nil, value == Nil. FindString is the sole interning
// entry point: it probes by raw bytes and a precomputed hash without
// allocating a Go string key, which is what makes "does this string
// already exist" a check rather than an allocation.
//
// Grounded on clox's table.c (original_source/src/table.c); the teacher
// repo has no analogue (it uses Go's builtin map throughout), but the
// spec requires exactly this probe contract for string interning.
package table

import "ember/pkg/value"

const maxLoad = 0.75

type entry struct {
	key   *value.StringObj
	val   value.Value
}

// Table is an open-addressed, linear-probed hash table keyed by
// interned strings.
type Table struct {
	count   int // live entries + tombstones
	entries []entry
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

// Get looks up key, returning its value and whether it was present.
func (t *Table) Get(key *value.StringObj) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Nil, false
	}
	e := t.find(key)
	if e.key == nil {
		return value.Nil, false
	}
	return e.val, true
}

// Set stores val under key, returning true if key was not already
// present (whether it lands in an empty slot or reuses a tombstone's
// slot) and false if it overwrote an existing entry for key.
func (t *Table) Set(key *value.StringObj, val value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.grow(growCapacity(len(t.entries)))
	}

	e := t.find(key)
	isNewKey := e.key == nil
	if isNewKey && e.val.IsNil() {
		// Only a genuinely empty slot increases count; reusing a
		// tombstone does not, since the tombstone was already counted.
		t.count++
	}
	e.key = key
	e.val = val
	return isNewKey
}

// Delete tombstones key's entry if present, returning whether it was.
func (t *Table) Delete(key *value.StringObj) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.find(key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.val = value.Bool(true) // tombstone marker
	return true
}

// AddAll copies every live entry of src into t.
func (t *Table) AddAll(src *Table) {
	for _, e := range src.entries {
		if e.key != nil {
			t.Set(e.key, e.val)
		}
	}
}

// FindString probes for a string with the given bytes and precomputed
// hash without allocating, returning the interned StringObj if present.
// This is the sole means of interning: the caller checks here first and
// only allocates a new StringObj on a miss.
func (t *Table) FindString(s string, hash uint32) *value.StringObj {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	idx := hash & mask
	for {
		e := &t.entries[idx]
		if e.key == nil {
			// Stop only on a true empty slot (tombstones have val ==
			// Bool(true), not Nil) so probing continues past deletions.
			if e.val.IsNil() {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == s {
			return e.key
		}
		idx = (idx + 1) & mask
	}
}

// Keys returns every live key, used to mark the globals table's keys as
// collector roots (the intern table is pruned by RemoveUnmarked).
func (t *Table) Keys() []*value.StringObj {
	keys := make([]*value.StringObj, 0, t.count)
	for _, e := range t.entries {
		if e.key != nil {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Values returns every live value, used by the collector to mark
// globals' values.
func (t *Table) Values() []value.Value {
	vals := make([]value.Value, 0, t.count)
	for _, e := range t.entries {
		if e.key != nil {
			vals = append(vals, e.val)
		}
	}
	return vals
}

// RemoveUnmarked deletes (tombstones) every entry whose key is not
// marked. Called on the intern table before sweep so sweep's free of an
// unmarked string doesn't leave the table holding a dangling key.
func (t *Table) RemoveUnmarked() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.Obj.Marked {
			e.key = nil
			e.val = value.Bool(true)
		}
	}
}

func (t *Table) find(key *value.StringObj) *entry {
	mask := uint32(len(t.entries) - 1)
	idx := key.Hash & mask
	var tombstone *entry
	for {
		e := &t.entries[idx]
		if e.key == nil {
			if e.val.IsNil() {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		idx = (idx + 1) & mask
	}
}

func growCapacity(cap int) int {
	if cap < 8 {
		return 8
	}
	return cap * 2
}

func (t *Table) grow(newCap int) {
	old := t.entries
	t.entries = make([]entry, newCap)
	t.count = 0
	for _, e := range old {
		if e.key == nil {
			continue
		}
		dst := t.find(e.key)
		dst.key = e.key
		dst.val = e.val
		t.count++
	}
}
