// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package semantic

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hintFixture = `{
  "aliases": {
    "ibm": "International Business Machines",
    "international business machines": "International Business Machines"
  },
  "label_keywords": {
    "international business machines": ["company", "organization", "technology"]
  }
}`

func writeHints(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "ontology_hints.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHintStoreResolveAlias(t *testing.T) {
	path := writeHints(t, t.TempDir(), hintFixture)
	store := NewHintStore(path, nil)

	assert.Equal(t, "International Business Machines", store.ResolveAlias("IBM"))
	assert.Equal(t, "International Business Machines", store.ResolveAlias("  ibm "))
	assert.Equal(t, "Globex", store.ResolveAlias("Globex"))
}

func TestHintStoreInferLabelHints(t *testing.T) {
	path := writeHints(t, t.TempDir(), hintFixture)
	store := NewHintStore(path, nil)

	hints := store.InferLabelHints("Who runs International Business Machines today?")
	assert.True(t, hints["company"])
	assert.True(t, hints["organization"])
	assert.Empty(t, store.InferLabelHints("Unrelated question"))
}

func TestHintStoreMissingFile(t *testing.T) {
	store := NewHintStore(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Equal(t, "IBM", store.ResolveAlias("IBM"))
	assert.Empty(t, store.InferLabelHints("any question"))
}

func TestHintStoreReloadKeepsPayloadOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeHints(t, dir, hintFixture)
	store := NewHintStore(path, nil)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	assert.Error(t, store.Reload())
	assert.Equal(t, "International Business Machines", store.ResolveAlias("IBM"))
}

func TestHintStoreWatchReload(t *testing.T) {
	dir := t.TempDir()
	path := writeHints(t, dir, `{"aliases": {}, "label_keywords": {}}`)
	store := NewHintStore(path, nil)
	assert.Equal(t, "IBM", store.ResolveAlias("IBM"))

	stop, err := store.Watch()
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte(hintFixture), 0o644))
	assert.Eventually(t, func() bool {
		return store.ResolveAlias("IBM") == "International Business Machines"
	}, 3*time.Second, 20*time.Millisecond)
}
