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

package attrtable

import (
	"fmt"
	"log/slog"
)

// option provide an interface to do work on Table while it is being created.
type option[V any] interface {
	apply(t *Table[V])
}

// Comparator reports whether a stored value matches the context value
// supplied to Get, Set or Delete. It is used to disambiguate entries that
// share a key.
type Comparator[V any] func(stored, ctx V) bool

type comparatorOption[V any] struct {
	cmp Comparator[V]
}

func (op comparatorOption[V]) apply(t *Table[V]) {
	t.cmp = op.cmp
}

// WithComparator is an option to specify the Comparator used to match
// entries by value in addition to key. Set requires a comparator; Get and
// Delete fall back to matching on key alone when none is configured.
func WithComparator[V any](cmp Comparator[V]) option[V] {
	return comparatorOption[V]{cmp}
}

// Allocator specifies an interface for allocating and releasing the entry
// buffer used by a Table. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that entries be
// freed then Table.Close must be called in order to ensure Free is called for
// the final buffer.
type Allocator[V any] interface {
	// Alloc should return a slice equivalent to make([]Entry[V], n), or an
	// error wrapping ErrOutOfMemory if the memory is not available.
	Alloc(n int) ([]Entry[V], error)

	// Free can optionally release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by Alloc.
	Free(v []Entry[V])
}

type defaultAllocator[V any] struct{}

func (defaultAllocator[V]) Alloc(n int) ([]Entry[V], error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrOutOfMemory, n)
	}
	return make([]Entry[V], n), nil
}

func (defaultAllocator[V]) Free(v []Entry[V]) {
}

type allocatorOption[V any] struct {
	allocator Allocator[V]
}

func (op allocatorOption[V]) apply(t *Table[V]) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Table[V].
func WithAllocator[V any](allocator Allocator[V]) option[V] {
	return allocatorOption[V]{allocator}
}

type loggerOption[V any] struct {
	logger *slog.Logger
}

func (op loggerOption[V]) apply(t *Table[V]) {
	if op.logger != nil {
		t.logger = op.logger
	}
}

// WithLogger is an option to specify the logger used to report buffer growth,
// allocation failures and reindexing. The default logger discards all output.
func WithLogger[V any](logger *slog.Logger) option[V] {
	return loggerOption[V]{logger}
}
