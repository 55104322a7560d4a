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

package classes

import "fmt"

// linearizeC3 computes the C3 linearization of self given its direct bases,
// each of which must already carry its own (already-linearized) MRO.
//
// The algorithm walks the classic C3 merge: self, followed by the merge of
// each base's MRO, followed by the merge of the base list itself, repeatedly
// taking the first head that does not appear in the tail of any other list
// (spec §4.D "Type construction orders bases via the C3 linearisation").
//
// Grounded on the teacher's own graph-walking style in internal/scc
// (explicit worklists and visited-sets rather than recursive closures),
// adapted here to the different algorithm C3 requires.
func linearizeC3(self *Type, bases []*Type) ([]*Type, error) {
	if len(bases) == 0 {
		return []*Type{self}, nil
	}

	seqs := make([][]*Type, 0, len(bases)+1)
	for _, b := range bases {
		seqs = append(seqs, append([]*Type(nil), b.mro...))
	}
	seqs = append(seqs, append([]*Type(nil), bases...))

	merged := []*Type{self}
	for {
		seqs = pruneEmpty(seqs)
		if len(seqs) == 0 {
			return merged, nil
		}

		head, ok := pickHead(seqs)
		if !ok {
			return nil, fmt.Errorf("pyro: cannot create a consistent method resolution order for bases of %q", self.Name)
		}

		merged = append(merged, head)
		for i, s := range seqs {
			seqs[i] = removeHead(s, head)
		}
	}
}

func pruneEmpty(seqs [][]*Type) [][]*Type {
	out := seqs[:0]
	for _, s := range seqs {
		if len(s) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// pickHead finds a candidate that appears only at the head of every
// sequence it appears in at all.
func pickHead(seqs [][]*Type) (*Type, bool) {
	for _, s := range seqs {
		cand := s[0]
		if okAsHead(cand, seqs) {
			return cand, true
		}
	}
	return nil, false
}

func okAsHead(cand *Type, seqs [][]*Type) bool {
	for _, s := range seqs {
		for _, t := range s[1:] {
			if t == cand {
				return false
			}
		}
	}
	return true
}

func removeHead(s []*Type, head *Type) []*Type {
	if len(s) > 0 && s[0] == head {
		return s[1:]
	}
	return s
}
