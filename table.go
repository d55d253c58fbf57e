// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// package attrtable implements a small, ordered, multi-valued table keyed by
// case-insensitive ASCII strings. It is intended for attribute-like state
// such as request headers, where tables are small, keys repeat, and
// insertion order matters.
//
// # Layout
//
// Entries live in a single contiguous buffer in insertion order. The buffer
// is obtained from an Allocator and doubles in size whenever an insertion
// would overflow it: a new buffer is allocated, the live entries are copied
// across and the old buffer is handed back to the same Allocator.
//
// Each entry stores its key (truncated to 59 bytes), the value, and a 4-byte
// fingerprint built from the first four key bytes with the ASCII case bit
// cleared. The fingerprint rejects most non-matching entries before the
// case-insensitive string comparison is performed.
//
// # Locality index
//
// Rather than maintaining per-bucket lists, the table keeps a coarse
// positional index. Keys are assigned to one of 32 buckets by the low 5 bits
// of their first byte. For each bucket the index records the first and last
// position at which an entry of that bucket was added:
//
//	position:  0     1      2     3     4
//	key:       Host  Accept hOst  Via   Date
//	bucket:    8     1      8     22    4
//
//	bucket 8:  first=0 last=2
//	bucket 1:  first=1 last=1
//
// A lookup in bucket b scans positions [first(b), last(b)] inclusive. The
// range may contain entries of other buckets (position 1 above) which are
// skipped by the fingerprint check. Cost is proportional to the span of the
// range rather than the number of entries in the bucket, so key sets whose
// first bytes collide on the low 5 bits degrade to a linear scan. For the
// small tables this structure targets that is an acceptable trade.
//
// Insertion only appends, so it can keep the index exact by moving last(b)
// forward. Deletion compacts the buffer, shifting later entries down, which
// invalidates every recorded position; the index is rebuilt from scratch by a
// single left to right scan before Delete returns.
//
// # Comparator
//
// Multiple entries may share a key. A Comparator supplied at construction
// disambiguates them by value: Get and Delete only consider entries whose
// value the comparator matches against a caller supplied context value, and
// Set requires one to decide which entry to overwrite.
package attrtable

import (
	"fmt"
	"log/slog"
	"strings"
)

const debug = false

// Entry holds a key, its fingerprint and a value.
type Entry[V any] struct {
	key         string
	fingerprint uint32
	value       V
}

// Table is an ordered multimap from case-insensitive string keys to values
// with Add, Get, Set, Delete, Clear and All operations. Duplicate keys are
// permitted and are returned in insertion order.
//
// Values are opaque to the table: it never copies or releases anything a
// value references.
//
// A Table is NOT goroutine-safe.
type Table[V any] struct {
	// entries is capacity in length. Only entries[:count] are live.
	entries []Entry[V]
	count   int
	// bucketFirst[b] and bucketLast[b] are the lowest and highest position
	// of an entry in bucket b since the last reindex. They are only
	// meaningful if bit b of bucketInit is set.
	bucketFirst [numBuckets]int
	bucketLast  [numBuckets]int
	bucketInit  uint32
	// cmp is optional. A nil cmp matches on key alone.
	cmp       Comparator[V]
	allocator Allocator[V]
	logger    *slog.Logger
}

// New constructs a new Table with the specified initial capacity. Capacities
// less than 1 are rounded up to 1. An error wrapping ErrOutOfMemory is
// returned if the allocator cannot provide the initial buffer.
func New[V any](initialCapacity int, options ...option[V]) (*Table[V], error) {
	t := &Table[V]{
		allocator: defaultAllocator[V]{},
		logger:    slog.New(slog.DiscardHandler),
	}

	for _, op := range options {
		op.apply(t)
	}
	if t.allocator == nil {
		t.allocator = defaultAllocator[V]{}
	}

	if initialCapacity < 1 {
		initialCapacity = 1
	}
	entries, err := t.alloc(initialCapacity)
	if err != nil {
		return nil, err
	}
	t.entries = entries

	t.checkInvariants()
	return t, nil
}

// Close closes the table, releasing the entry buffer back to its configured
// allocator. It is unnecessary to close a table using the default allocator.
// After Close the table is empty and Add returns ErrClosed. Close itself is
// idempotent.
func (t *Table[V]) Close() {
	if t.allocator == nil {
		return
	}
	if t.entries != nil {
		t.allocator.Free(t.entries)
	}
	t.entries = nil
	t.count = 0
	t.bucketInit = 0
	t.allocator = nil
}

// Add appends an entry to the table. Existing entries with the same key are
// left in place. Keys longer than 59 bytes are silently truncated and a NUL
// byte terminates the key.
func (t *Table[V]) Add(key string, value V) error {
	if t.allocator == nil {
		return ErrClosed
	}
	key = truncateKey(key)

	if t.count == len(t.entries) {
		if err := t.grow(); err != nil {
			return err
		}
	}

	i := t.count
	b := bucketOf(key)
	t.bucketLast[b] = i
	if !t.initialized(b) {
		t.bucketFirst[b] = i
		t.bucketInit |= 1 << b
	}
	t.entries[i] = Entry[V]{
		key:         key,
		fingerprint: fingerprint(key),
		value:       value,
	}
	t.count++

	if debug {
		fmt.Printf("add(%q): index=%d bucket=%d first=%d last=%d\n",
			key, i, b, t.bucketFirst[b], t.bucketLast[b])
	}
	t.checkInvariants()
	return nil
}

// Get returns the value of the first entry, in insertion order, whose key
// equals key ignoring case and, if the table has a Comparator, whose value
// matches ctx. ctx is ignored when there is no Comparator. ok is false if no
// entry qualifies.
func (t *Table[V]) Get(key string, ctx V) (value V, ok bool) {
	key = cstring(key)
	lo, hi, found := t.span(bucketOf(key))
	if !found {
		return value, false
	}
	fp := fingerprint(key)
	if debug {
		fmt.Printf("get(%q): fp=%08x range=[%d,%d]\n", key, fp, lo, hi)
	}

	for i := lo; i <= hi; i++ {
		e := &t.entries[i]
		if e.fingerprint != fp || !equalFold(e.key, key) {
			continue
		}
		if t.cmp == nil || t.cmp(e.value, ctx) {
			return e.value, true
		}
	}
	return value, false
}

// Set overwrites the value of the first entry whose key equals key ignoring
// case and whose value the table's Comparator matches against value. It
// returns false if no entry qualifies. Set returns ErrNoComparator if the
// table was created without a Comparator.
func (t *Table[V]) Set(key string, value V) (bool, error) {
	if t.cmp == nil {
		return false, ErrNoComparator
	}
	key = cstring(key)
	lo, hi, found := t.span(bucketOf(key))
	if !found {
		return false, nil
	}
	fp := fingerprint(key)

	for i := lo; i <= hi; i++ {
		e := &t.entries[i]
		if e.fingerprint == fp && equalFold(e.key, key) && t.cmp(e.value, value) {
			if debug {
				fmt.Printf("set(%q): index=%d\n", key, i)
			}
			e.value = value
			return true, nil
		}
	}
	return false, nil
}

// Delete removes every entry whose key equals key ignoring case and, if the
// table has a Comparator, whose value matches ctx. Entries after a removed
// entry shift down, preserving relative order. Delete returns the value of
// the first removed entry and the number of entries removed.
func (t *Table[V]) Delete(key string, ctx V) (value V, removed int) {
	key = cstring(key)
	lo, hi, found := t.span(bucketOf(key))
	if !found {
		return value, 0
	}
	fp := fingerprint(key)

	// Compact [lo, hi] in place, then slide the tail down behind it.
	j := lo
	for i := lo; i <= hi; i++ {
		e := &t.entries[i]
		if e.fingerprint == fp && equalFold(e.key, key) &&
			(t.cmp == nil || t.cmp(e.value, ctx)) {
			if debug {
				fmt.Printf("delete(%q): index=%d\n", key, i)
			}
			if removed == 0 {
				value = e.value
			}
			removed++
			continue
		}
		if i != j {
			t.entries[j] = *e
		}
		j++
	}
	if removed == 0 {
		return value, 0
	}

	n := copy(t.entries[j:], t.entries[hi+1:t.count])
	clear(t.entries[j+n : t.count])
	t.count -= removed

	t.reindex()
	t.logger.Debug("table reindexed after delete",
		"removed", removed,
		"count", t.count,
	)
	t.checkInvariants()
	return value, removed
}

// Clear deletes all entries from the table, retaining the allocated buffer.
func (t *Table[V]) Clear() {
	clear(t.entries[:t.count])
	t.count = 0
	t.bucketInit = 0
	t.checkInvariants()
}

// All calls yield sequentially for each key and value in insertion order. If
// yield returns false, iteration stops. Keys are reported in their stored,
// possibly truncated, form. The table must not be mutated during iteration.
func (t *Table[V]) All(yield func(key string, value V) bool) {
	for i := 0; i < t.count; i++ {
		e := &t.entries[i]
		if !yield(e.key, e.value) {
			return
		}
	}
}

// Len returns the number of entries in the table.
func (t *Table[V]) Len() int {
	return t.count
}

// Cap returns the number of entries the table can hold before growing.
func (t *Table[V]) Cap() int {
	return len(t.entries)
}

// IsEmpty returns true if t is nil or holds no entries.
func (t *Table[V]) IsEmpty() bool {
	return t == nil || t.count == 0
}

func (t *Table[V]) initialized(b int) bool {
	return t.bucketInit&(1<<b) != 0
}

// span returns the inclusive position range to scan for bucket b, or
// ok=false if no live entry maps to b.
func (t *Table[V]) span(b int) (lo, hi int, ok bool) {
	if !t.initialized(b) {
		return 0, 0, false
	}
	return t.bucketFirst[b], t.bucketLast[b], true
}

// reindex rebuilds the locality index from the live entries.
func (t *Table[V]) reindex() {
	t.bucketInit = 0
	for i := 0; i < t.count; i++ {
		b := bucketOf(t.entries[i].key)
		t.bucketLast[b] = i
		if !t.initialized(b) {
			t.bucketFirst[b] = i
			t.bucketInit |= 1 << b
		}
	}
}

// grow doubles the capacity of the entry buffer, copying the live entries
// into a new buffer and freeing the old one. The table is left untouched if
// the allocation fails.
func (t *Table[V]) grow() error {
	oldCapacity := len(t.entries)
	newCapacity := 2 * oldCapacity
	if newCapacity < 1 {
		newCapacity = 1
	}

	entries, err := t.alloc(newCapacity)
	if err != nil {
		t.logger.Warn("entry buffer growth failed",
			"capacity", oldCapacity,
			"requested", newCapacity,
			"error", err,
		)
		return err
	}
	copy(entries, t.entries[:t.count])
	if oldCapacity > 0 {
		t.allocator.Free(t.entries)
	}
	t.entries = entries

	t.logger.Debug("entry buffer grown",
		"old_capacity", oldCapacity,
		"new_capacity", newCapacity,
	)
	return nil
}

func (t *Table[V]) alloc(n int) ([]Entry[V], error) {
	entries, err := t.allocator.Alloc(n)
	if err != nil {
		return nil, fmt.Errorf("allocating %d entries: %w", n, err)
	}
	if len(entries) < n {
		return nil, fmt.Errorf("allocating %d entries: got %d: %w", n, len(entries), ErrOutOfMemory)
	}
	return entries, nil
}

func (t *Table[V]) checkInvariants() {
	if invariants {
		if t.count > len(t.entries) {
			panic(fmt.Sprintf("invariant failed: count %d exceeds capacity %d\n%s",
				t.count, len(t.entries), t.debugString()))
		}

		var seen uint32
		for i := 0; i < t.count; i++ {
			e := &t.entries[i]
			if len(e.key) > maxKeyLen {
				panic(fmt.Sprintf("invariant failed: entry(%d): key length %d exceeds %d\n%s",
					i, len(e.key), maxKeyLen, t.debugString()))
			}
			if fp := fingerprint(e.key); fp != e.fingerprint {
				panic(fmt.Sprintf("invariant failed: entry(%d): fingerprint %08x, expected %08x\n%s",
					i, e.fingerprint, fp, t.debugString()))
			}
			b := bucketOf(e.key)
			seen |= 1 << b
			lo, hi, ok := t.span(b)
			if !ok || i < lo || i > hi {
				panic(fmt.Sprintf("invariant failed: entry(%d): outside range of bucket %d\n%s",
					i, b, t.debugString()))
			}
			if t.cmp == nil {
				if _, ok := t.Get(e.key, e.value); !ok {
					panic(fmt.Sprintf("invariant failed: entry(%d): %q not found\n%s",
						i, e.key, t.debugString()))
				}
			}
		}

		if seen != t.bucketInit {
			panic(fmt.Sprintf("invariant failed: initialized buckets %08x, expected %08x\n%s",
				t.bucketInit, seen, t.debugString()))
		}
		for b := 0; b < numBuckets; b++ {
			lo, hi, ok := t.span(b)
			if !ok {
				continue
			}
			if lo > hi || hi >= t.count {
				panic(fmt.Sprintf("invariant failed: bucket %d: range [%d,%d] out of bounds\n%s",
					b, lo, hi, t.debugString()))
			}
			if bucketOf(t.entries[lo].key) != b || bucketOf(t.entries[hi].key) != b {
				panic(fmt.Sprintf("invariant failed: bucket %d: range [%d,%d] not anchored\n%s",
					b, lo, hi, t.debugString()))
			}
		}
	}
}

func (t *Table[V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  count=%d  initialized=%032b\n",
		len(t.entries), t.count, t.bucketInit)
	for b := 0; b < numBuckets; b++ {
		if lo, hi, ok := t.span(b); ok {
			fmt.Fprintf(&buf, "  bucket %2d: [%d,%d]\n", b, lo, hi)
		}
	}
	for i := 0; i < t.count; i++ {
		e := &t.entries[i]
		fmt.Fprintf(&buf, "  %4d: %q [fp=%08x bucket=%d] %v\n",
			i, e.key, e.fingerprint, bucketOf(e.key), e.value)
	}
	return buf.String()
}
