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

import "strings"

const (
	// maxKeyLen is the number of significant key bytes. Longer keys are
	// truncated on insert.
	maxKeyLen = 59

	numBuckets = 32
	bucketMask = numBuckets - 1

	// caseMask clears the ASCII case bit (0x20) of each fingerprint byte so
	// that keys differing only in case share a fingerprint.
	caseMask = 0xdfdfdfdf
)

// cstring returns key up to, but not including, the first NUL byte.
func cstring(key string) string {
	if i := strings.IndexByte(key, 0); i >= 0 {
		return key[:i]
	}
	return key
}

// truncateKey returns the stored form of key: NUL terminated and at most
// maxKeyLen bytes long.
func truncateKey(key string) string {
	key = cstring(key)
	if len(key) > maxKeyLen {
		key = key[:maxKeyLen]
	}
	return key
}

// bucketOf returns the locality bucket for key, taken from the low 5 bits of
// its first byte. The empty key maps to bucket 0.
func bucketOf(key string) int {
	if len(key) == 0 {
		return 0
	}
	return int(key[0] & bucketMask)
}

// fingerprint packs up to the first four bytes of key big-endian into a
// uint32, zero padded, with the case bits cleared.
func fingerprint(key string) uint32 {
	var fp uint32
	for i := 0; i < 4; i++ {
		fp <<= 8
		if i < len(key) {
			fp |= uint32(key[i])
		}
	}
	return fp & caseMask
}

// equalFold reports whether a and b are equal under ASCII case folding.
// Bytes outside A-Z and a-z must match exactly.
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca == cb {
			continue
		}
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
