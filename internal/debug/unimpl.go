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

package debug

import (
	"fmt"
	"runtime"
	"strings"
)

// Unsupported returns an "unimplemented" error naming the calling function.
//
// Callers at an embedding boundary (see PYRO_RAISE_ON_UNIMPLEMENTED in
// package config) decide whether this causes a raised exception or a
// process abort; this package only names what is missing.
func Unsupported() error {
	pc, _, _, _ := runtime.Caller(1)
	return &ErrUnsupported{pc}
}

// ErrUnsupported is the error returned by Unsupported.
type ErrUnsupported struct{ pc uintptr }

func (e *ErrUnsupported) Error() string {
	name := runtime.FuncForPC(e.pc).Name()
	if name == "" {
		return "pyro: unsupported operation"
	}

	slash := strings.LastIndexByte(name, '/')
	name = name[slash+1:]
	return fmt.Sprintf("pyro: %s() is not supported", name)
}
