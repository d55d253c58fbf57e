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

import "errors"

var (
	// ErrOutOfMemory is returned when the allocator cannot provide the entry
	// buffer a Table needs.
	ErrOutOfMemory = errors.New("attrtable: out of memory")
	// ErrNoComparator is returned by Set when the Table was created without a
	// Comparator.
	ErrNoComparator = errors.New("attrtable: no comparator configured")
	// ErrClosed is returned when adding to a Table after Close.
	ErrClosed = errors.New("attrtable: table is closed")
)
