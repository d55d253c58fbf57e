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
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
)

func BenchmarkTableGetHit(b *testing.B) {
	b.Run("impl=linearScan", benchSizes(benchmarkLinearScanGetHit))
	b.Run("impl=table", benchSizes(benchmarkTableGetHit))
}

func BenchmarkTableGetMiss(b *testing.B) {
	b.Run("impl=linearScan", benchSizes(benchmarkLinearScanGetMiss))
	b.Run("impl=table", benchSizes(benchmarkTableGetMiss))
}

func BenchmarkTableAddGrow(b *testing.B) {
	b.Run("impl=table", benchSizes(benchmarkTableAddGrow))
}

func BenchmarkTableAddPreAllocate(b *testing.B) {
	b.Run("impl=table", benchSizes(benchmarkTableAddPreAllocate))
}

func BenchmarkTableAddDelete(b *testing.B) {
	b.Run("impl=table", benchSizes(benchmarkTableAddDelete))
}

func benchSizes(f func(b *testing.B, n int)) func(*testing.B) {
	var cases = []int{
		4, 8, 16, 32,
		64,
		128,
		256,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n) })
		}
	}
}

// genHeaderKeys returns header-like keys spread across buckets.
func genHeaderKeys(start, end int) []string {
	prefixes := []string{"Accept", "Cache", "Content", "Host", "User", "Via", "X"}
	keys := make([]string, end-start)
	for i := range keys {
		j := start + i
		keys[i] = fmt.Sprintf("%s-%d", prefixes[uint(j)%uint(len(prefixes))], j)
	}
	return keys
}

// linearScan is the baseline: a slice of key/value pairs searched front to
// back with the same key comparison the table uses.
type linearScan []kv[int]

func (s linearScan) get(key string) (int, bool) {
	for i := range s {
		if equalFold(s[i].key, key) {
			return s[i].value, true
		}
	}
	return 0, false
}

func benchmarkLinearScanGetHit(b *testing.B, n int) {
	keys := genHeaderKeys(0, n)
	s := make(linearScan, 0, n)
	for i, k := range keys {
		s = append(s, kv[int]{k, i})
	}
	perfbench.Open(b)
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = s.get(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkLinearScanGetMiss(b *testing.B, n int) {
	keys := genHeaderKeys(0, n)
	miss := genHeaderKeys(n, 2*n)
	s := make(linearScan, 0, n)
	for i, k := range keys {
		s = append(s, kv[int]{k, i})
	}
	perfbench.Open(b)
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = s.get(miss[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkTableGetHit(b *testing.B, n int) {
	t, err := New[int](n)
	if err != nil {
		b.Fatal(err)
	}
	keys := genHeaderKeys(0, n)
	for i, k := range keys {
		if err := t.Add(k, i); err != nil {
			b.Fatal(err)
		}
	}
	perfbench.Open(b)
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = t.Get(keys[i%n], 0)
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkTableGetMiss(b *testing.B, n int) {
	t, err := New[int](n)
	if err != nil {
		b.Fatal(err)
	}
	keys := genHeaderKeys(0, n)
	miss := genHeaderKeys(n, 2*n)
	for i, k := range keys {
		if err := t.Add(k, i); err != nil {
			b.Fatal(err)
		}
	}
	perfbench.Open(b)
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = t.Get(miss[i%n], 0)
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkTableAddGrow(b *testing.B, n int) {
	keys := genHeaderKeys(0, n)
	perfbench.Open(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		t, _ := New[int](0)
		for j, k := range keys {
			_ = t.Add(k, j)
		}
	}
}

func benchmarkTableAddPreAllocate(b *testing.B, n int) {
	keys := genHeaderKeys(0, n)
	perfbench.Open(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		t, _ := New[int](n)
		for j, k := range keys {
			_ = t.Add(k, j)
		}
	}
}

func benchmarkTableAddDelete(b *testing.B, n int) {
	t, err := New[int](n)
	if err != nil {
		b.Fatal(err)
	}
	keys := genHeaderKeys(0, n)
	for i, k := range keys {
		if err := t.Add(k, i); err != nil {
			b.Fatal(err)
		}
	}
	perfbench.Open(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % n
		t.Delete(keys[j], 0)
		_ = t.Add(keys[j], j)
	}
}
