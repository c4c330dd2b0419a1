// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndHistory(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.Append("s1", Turn{Role: "user", Content: "hello"}))
	require.NoError(t, store.Append("s1", Turn{Role: "assistant", Content: "hi there"}))

	turns, err := store.History("s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)
	assert.False(t, turns[0].Timestamp.IsZero(), "timestamp is stamped on append")
	assert.Equal(t, "hi there", turns[1].Content)
}

func TestSessionsAreIsolated(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.Append("s1", Turn{Role: "user", Content: "a"}))
	require.NoError(t, store.Append("s2", Turn{Role: "user", Content: "b"}))

	turns, err := store.History("s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "a", turns[0].Content)
}

func TestHistoryOfUnknownSessionIsEmpty(t *testing.T) {
	store := newStore(t)
	turns, err := store.History("nope")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestTurnBound(t *testing.T) {
	store := newStore(t)

	for i := 0; i < MaxTurns+10; i++ {
		require.NoError(t, store.Append("s1", Turn{Role: "user", Content: fmt.Sprintf("turn %d", i)}))
	}

	turns, err := store.History("s1")
	require.NoError(t, err)
	require.Len(t, turns, MaxTurns)
	assert.Equal(t, "turn 10", turns[0].Content, "oldest turns are dropped")
	assert.Equal(t, fmt.Sprintf("turn %d", MaxTurns+9), turns[len(turns)-1].Content)
}

func TestClear(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.Append("s1", Turn{Role: "user", Content: "a"}))
	require.NoError(t, store.Clear("s1"))

	turns, err := store.History("s1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	assert.NoError(t, store.Clear("never-existed"))
}

func TestEmptySessionID(t *testing.T) {
	store := newStore(t)
	assert.Error(t, store.Append("", Turn{}))
	_, err := store.History("")
	assert.Error(t, err)
	assert.Error(t, store.Clear(""))
}
