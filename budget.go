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
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// BudgetAllocator is an Allocator that bounds the total number of entries
// outstanding across every table sharing it, modelling a fixed size memory
// pool. Alloc fails with ErrOutOfMemory rather than blocking when the budget
// is exhausted.
//
// Growth allocates the new buffer before freeing the old one, so a table
// growing from n to 2n entries briefly needs 3n entries of budget.
//
// A BudgetAllocator is safe for concurrent use by multiple tables.
type BudgetAllocator[V any] struct {
	sem   *semaphore.Weighted // nil if unlimited
	limit int64
	used  atomic.Int64
}

// NewBudgetAllocator returns a BudgetAllocator that allows at most maxEntries
// entries to be allocated at once. If maxEntries <= 0 the budget is
// unlimited and only usage is tracked.
func NewBudgetAllocator[V any](maxEntries int64) *BudgetAllocator[V] {
	a := &BudgetAllocator[V]{limit: maxEntries}
	if maxEntries > 0 {
		a.sem = semaphore.NewWeighted(maxEntries)
	}
	return a
}

// Alloc implements Allocator.
func (a *BudgetAllocator[V]) Alloc(n int) ([]Entry[V], error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrOutOfMemory, n)
	}
	if a.sem != nil && !a.sem.TryAcquire(int64(n)) {
		return nil, fmt.Errorf("%w: %d entries requested, %d of %d in use",
			ErrOutOfMemory, n, a.used.Load(), a.limit)
	}
	a.used.Add(int64(n))
	return make([]Entry[V], n), nil
}

// Free implements Allocator.
func (a *BudgetAllocator[V]) Free(v []Entry[V]) {
	n := int64(len(v))
	if n == 0 {
		return
	}
	clear(v)
	if a.sem != nil {
		a.sem.Release(n)
	}
	a.used.Add(-n)
}

// InUse returns the number of entries currently allocated.
func (a *BudgetAllocator[V]) InUse() int64 {
	return a.used.Load()
}
