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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyro-lang/pyro/internal/interp"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	c := New()
	assert.Equal(t, interp.DefaultRecursionLimit, c.RecursionLimit)
	assert.Empty(t, c.SearchPath)
}

func TestNewAppliesOptionsInOrder(t *testing.T) {
	t.Parallel()

	c := New(
		WithRecursionLimit(50),
		WithSearchPath("/a", "/b"),
		WithRaiseOnUnimplemented(true),
	)
	assert.Equal(t, 50, c.RecursionLimit)
	assert.Equal(t, []string{"/a", "/b"}, c.SearchPath)
	assert.True(t, c.RaiseOnUnimplemented)
}

func TestLoadYAMLParsesFileAndKeepsUnsetDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "pyro.yaml")
	const doc = "recursion_limit: 2000\nsearch_path:\n  - /usr/lib/pyro\n"
	require.NoError(t, writeFile(path, doc))

	c, err := LoadYAML(path)
	require.NoError(t, err)
	assert.Equal(t, 2000, c.RecursionLimit)
	assert.Equal(t, []string{"/usr/lib/pyro"}, c.SearchPath)
	assert.False(t, c.RaiseOnUnimplemented)
}

func TestLoadYAMLOptionsOverrideFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "pyro.yaml")
	require.NoError(t, writeFile(path, "recursion_limit: 2000\n"))

	c, err := LoadYAML(path, WithRecursionLimit(10))
	require.NoError(t, err)
	assert.Equal(t, 10, c.RecursionLimit)
}

func TestLoadYAMLMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}
