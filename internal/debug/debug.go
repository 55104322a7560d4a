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

// Package debug includes debugging helpers gated behind the Enabled flag,
// matching this interpreter's stance that no stray diagnostic print should
// ever reach a production build (see the open question on the bytecode
// rewriter's "fallthrough" debug print).
package debug

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/timandy/routine"
)

// Enabled is true when the PYRO_DEBUG environment variable is set.
// Production builds should leave this false; the block-map dump mentioned
// in the design notes lives behind this flag, never behind a bare
// fmt.Println in the rewriter itself.
var Enabled = os.Getenv("PYRO_DEBUG") != ""

var (
	debugPattern *regexp.Regexp
	nocapture    = flag.Bool("pyro.debug.nocapture", false, "disables capturing debug logs as test logs")
)

func init() {
	flag.Func("pyro.debug.filter", "regexp to filter debug logs by", func(s string) (err error) {
		debugPattern, err = regexp.Compile(s)
		return err
	})
}

// Log prints debugging information to stderr, or to the current test's log
// if a test logger has been installed via SetTestLogger and capturing is
// not disabled.
//
// context is optional args for fmt.Printf that are printed before
// operation, useful for identifying a group of related calls.
func Log(context []any, operation string, format string, args ...any) {
	if !Enabled {
		return
	}

	skip := 1
again:
	pc, file, line, _ := runtime.Caller(skip)
	fn := runtime.FuncForPC(pc)
	name := fn.Name()
	name = name[strings.LastIndex(name, ".")+1:]
	if strings.HasPrefix(name, "log") || strings.Contains(name, "Log") {
		skip++
		goto again
	}

	pkg := fn.Name()
	pkg = strings.TrimPrefix(pkg, "github.com/pyro-lang/pyro/")
	pkg = strings.TrimPrefix(pkg, "internal/")
	if idx := strings.Index(pkg, "."); idx >= 0 {
		pkg = pkg[:idx]
	}

	file = filepath.Base(file)

	buf := new(strings.Builder)
	fmt.Fprintf(buf, "%s/%s:%d [g%04d", pkg, file, line, routine.Goid())
	if len(context) >= 1 {
		fmt.Fprintf(buf, ", "+context[0].(string), context[1:]...)
	}
	fmt.Fprintf(buf, "] %s: ", operation)
	fmt.Fprintf(buf, format, args...)

	if debugPattern != nil && !debugPattern.MatchString(buf.String()) {
		return
	}

	if !*nocapture && activeLogger != nil {
		activeLogger.Log(buf.String())
		return
	}

	buf.WriteByte('\n')
	os.Stderr.WriteString(buf.String())
}

// testLogger is the subset of testing.TB used to capture debug logs.
type testLogger interface {
	Log(args ...any)
}

var activeLogger testLogger

// SetTestLogger routes Log output to t for the remainder of the test,
// instead of stderr. Call with nil to restore the default.
func SetTestLogger(t testLogger) {
	activeLogger = t
}

// Assert panics if cond is false, but only when Enabled.
func Assert(cond bool, format string, args ...any) {
	if Enabled && !cond {
		panic(fmt.Errorf("pyro: internal assertion failed: "+format, args...))
	}
}

// Value holds a value that is only meaningful for debugging; production
// code should not branch on its contents.
type Value[T any] struct {
	x T
}

// Get returns a pointer to the wrapped value.
func (v *Value[T]) Get() *T { return &v.x }

// Set stores x in the value.
func (v *Value[T]) Set(x T) { v.x = x }
