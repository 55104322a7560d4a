// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package swiss

// FxHashString and FxHashUint64 are small, fast, non-cryptographic hashes in
// the style of rustc's FxHash, matching the teacher's internal/swiss/fxhash.go
// choice of hash function for a descriptor table that is never exposed to
// adversarial input.
const fxSeed = 0x51_7c_c1_b7_27_22_0a_95

// FxHashUint64 hashes a uint64 key.
func FxHashUint64(x uint64) uint64 {
	return rotl(x*fxSeed, 5) ^ x
}

// FxHashString hashes a string key eight bytes at a time, then the
// remaining tail byte-by-byte.
func FxHashString(s string) uint64 {
	h := uint64(0)
	for len(s) >= 8 {
		h = (h ^ leUint64(s)) * fxSeed
		h = rotl(h, 5)
		s = s[8:]
	}
	for i := 0; i < len(s); i++ {
		h = (h ^ uint64(s[i])) * fxSeed
	}
	return h
}

func rotl(x uint64, n uint) uint64 {
	return x<<n | x>>(64-n)
}

func leUint64(s string) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(s[i]) << (8 * i)
	}
	return v
}
