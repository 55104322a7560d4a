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

// Command pyro is the thin outer collaborator spec §6 names ("The
// top-level CLI is a thin collaborator outside the spec boundary"). It
// loads a compiled unit assembled from a YAML .pyroasm source
// (internal/asm, standing in for the parser/compiler front end this
// repository takes as given), executes it on a fresh interpreter
// instance, and maps the outcome onto the host-language exit code
// convention spec §6 names: "0 success, nonzero for uncaught exception
// classes (SystemExit honours its code attribute)".
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pyro-lang/pyro/internal/asm"
	"github.com/pyro-lang/pyro/internal/code"
	"github.com/pyro-lang/pyro/internal/config"
	"github.com/pyro-lang/pyro/internal/debug"
	"github.com/pyro-lang/pyro/internal/exc"
	"github.com/pyro-lang/pyro/internal/interp"
	"github.com/pyro-lang/pyro/internal/ref"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("pyro", flag.ContinueOnError)
	recursionLimit := fs.Int("recursion-limit", 0, "override the maximum call-stack depth (0 keeps the default)")
	configPath := fs.String("config", "", "path to a YAML configuration file (internal/config)")
	raiseOnUnimplemented := fs.Bool("raise-on-unimplemented", false, "set PYRO_RAISE_ON_UNIMPLEMENTED semantics for this run")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pyro [flags] <source.pyroasm>")
		return 2
	}

	var opts []config.Option
	if *recursionLimit > 0 {
		opts = append(opts, config.WithRecursionLimit(*recursionLimit))
	}
	if *raiseOnUnimplemented {
		opts = append(opts, config.WithRaiseOnUnimplemented(true))
	}

	cfg, err := loadConfig(*configPath, opts...)
	if err != nil {
		slog.Error("pyro: loading configuration", "error", err)
		return 1
	}

	src, err := loadSource(fs.Arg(0))
	if err != nil {
		slog.Error("pyro: loading source", "error", err)
		return 1
	}

	c, err := asm.Assemble(src)
	if err != nil {
		slog.Error("pyro: assembling", "error", err)
		return 1
	}

	// cfg.SearchPath is consulted by the import/front-end collaborator
	// (spec §6), not by this core; it is threaded through config alone.
	m := interp.New()
	m.RecursionLimit = cfg.RecursionLimit

	trampoline := func(fn *code.Function, args []ref.Ref, kwargs map[string]ref.Ref) (ref.Ref, error) {
		return m.Call(fn, args, kwargs)
	}
	fn := code.New(c, ref.None, trampoline)

	result, callErr := m.Call(fn, nil, nil)
	if callErr == nil {
		fmt.Println(formatResult(m, result))
		return 0
	}

	var unsupported *debug.ErrUnsupported
	if errors.As(callErr, &unsupported) && !cfg.RaiseOnUnimplemented {
		// PYRO_RAISE_ON_UNIMPLEMENTED unset: an unimplemented internal
		// path aborts the process rather than surfacing as a catchable
		// exception (spec §6).
		slog.Error("pyro: unimplemented", "error", callErr)
		return 1
	}

	e, ok := exc.As(callErr)
	if !ok {
		slog.Error("pyro: uncaught error", "error", callErr)
		return 1
	}
	if e.Name == "SystemExit" {
		return systemExitCode(e)
	}

	printTraceback(os.Stderr, e)
	return 1
}

func loadConfig(path string, opts ...config.Option) (*config.Config, error) {
	if path == "" {
		return config.New(opts...), nil
	}
	return config.LoadYAML(path, opts...)
}

func loadSource(path string) (*asm.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var src asm.Source
	if err := yaml.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("pyro: parsing %s: %w", path, err)
	}
	if src.Name == "" {
		src.Name = "<module>"
	}
	if src.Filename == "" {
		src.Filename = path
	}
	return &src, nil
}

// formatResult renders a returned ref.Ref the way an interactive top level
// would echo a non-None expression result.
func formatResult(m *interp.Machine, r ref.Ref) string {
	switch {
	case ref.IsNone(r):
		return "None"
	case ref.IsSmallInt(r):
		return fmt.Sprintf("%d", ref.AsSmallInt(r))
	case ref.IsBool(r):
		if ref.AsBool(r) {
			return "True"
		}
		return "False"
	case m.Strings.IsString(r):
		return fmt.Sprintf("%q", m.Strings.Bytes(r))
	case m.Strings.IsBytes(r):
		return fmt.Sprintf("%v", m.Strings.Bytes(r))
	default:
		return fmt.Sprintf("<object at %v>", r)
	}
}

// systemExitCode extracts the process exit code from a SystemExit
// instance's first argument (spec §6 "SystemExit honours its code
// attribute"): an int argument is used as-is, no argument means success,
// anything else prints and exits 1 (CPython treats a non-int code as a
// message printed to stderr with exit status 1).
func systemExitCode(e *exc.Exception) int {
	if len(e.Args) == 0 {
		return 0
	}
	switch v := e.Args[0].(type) {
	case int:
		return v
	case nil:
		return 0
	default:
		fmt.Fprintln(os.Stderr, v)
		return 1
	}
}

// printTraceback renders an uncaught exception the way spec §7 describes:
// "function name, filename, line number, source text if available",
// innermost frame last, matching the host convention's ordering.
func printTraceback(w *os.File, e *exc.Exception) {
	// The earlier exception in a cause/context chain is printed first,
	// matching CPython's ordering: the connector line sits between the
	// earlier exception's full traceback and the later one's.
	if cause := e.Cause(); cause != nil {
		printTraceback(w, cause)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "The above exception was the direct cause of the following exception:")
		fmt.Fprintln(w)
	} else if ctx := e.Context(); ctx != nil && !e.SuppressContext() {
		printTraceback(w, ctx)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "During handling of the above exception, another exception occurred:")
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Traceback (most recent call last):")
	frames := collectFrames(e.Traceback)
	for _, tb := range frames {
		name := "<unknown>"
		filename := "<unknown>"
		if tb.Fn != nil && tb.Fn.Code != nil {
			name = tb.Fn.Code.Name
			filename = tb.Fn.Code.Filename
		} else if tb.Fn != nil {
			name = tb.Fn.QualName
		}
		fmt.Fprintf(w, "  File %q, line %d, in %s\n", filename, tb.Line(), name)
	}
	fmt.Fprintln(w, e.Error())
}

func collectFrames(tb *exc.Traceback) []*exc.Traceback {
	var out []*exc.Traceback
	for n := tb; n != nil; n = n.Next {
		out = append(out, n)
	}
	return out
}
