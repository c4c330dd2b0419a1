// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracing

import (
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitAssignsIDs(t *testing.T) {
	e := NewEmitter()

	root, err := e.Emit(Step{Type: StepOrchestration, Agent: "DebateOrchestrator"})
	require.NoError(t, err)
	assert.Equal(t, "0", root.ID)
	assert.NotEmpty(t, root.NodeID)

	child, err := e.Emit(Step{Type: StepFanout, ParentID: root.NodeID})
	require.NoError(t, err)
	assert.Equal(t, "1", child.ID)
}

func TestEmitRejectsUnknownParent(t *testing.T) {
	e := NewEmitter()

	_, err := e.Emit(Step{Type: StepFanout, ParentID: "nope"})
	assert.Error(t, err)

	root, err := e.Emit(Step{Type: StepOrchestration})
	require.NoError(t, err)

	_, err = e.Emit(Step{Type: StepCollect, ParentIDs: []string{root.NodeID, "ghost"}})
	assert.Error(t, err)
}

func TestEmitRejectsDuplicateNodeID(t *testing.T) {
	e := NewEmitter()
	step, err := e.Emit(Step{Type: StepResolve, NodeID: "n1"})
	require.NoError(t, err)
	assert.Equal(t, "n1", step.NodeID)

	_, err = e.Emit(Step{Type: StepRoute, NodeID: "n1"})
	assert.Error(t, err)
}

func TestStepsFormDAGWithSingleRoot(t *testing.T) {
	e := NewEmitter()
	root, _ := e.Emit(Step{Type: StepOrchestration})
	fanout, _ := e.Emit(Step{Type: StepFanout, ParentID: root.NodeID})
	c1, _ := e.Emit(Step{Type: StepFanoutChild, ParentID: fanout.NodeID})
	c2, _ := e.Emit(Step{Type: StepFanoutChild, ParentID: fanout.NodeID})
	collect, _ := e.Emit(Step{Type: StepCollect, ParentIDs: []string{c1.NodeID, c2.NodeID}})
	_, err := e.Emit(Step{Type: StepSynthesis, ParentID: collect.NodeID})
	require.NoError(t, err)

	steps := e.Steps()
	require.Len(t, steps, 6)

	roots := 0
	seen := map[string]bool{}
	ids := map[string]bool{}
	for _, s := range steps {
		assert.False(t, ids[s.NodeID], "node ids must be unique")
		ids[s.NodeID] = true
		if s.ParentID == "" && len(s.ParentIDs) == 0 {
			roots++
		}
		if s.ParentID != "" {
			assert.True(t, seen[s.ParentID], "parent must precede child")
		}
		for _, p := range s.ParentIDs {
			assert.True(t, seen[p], "join parents must precede the join")
		}
		seen[s.NodeID] = true
	}
	assert.Equal(t, 1, roots, "exactly one root step")
}

func TestConcurrentChildEmission(t *testing.T) {
	e := NewEmitter()
	fanout, _ := e.Emit(Step{Type: StepFanout})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Emit(Step{Type: StepFanoutChild, ParentID: fanout.NodeID})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, e.Steps(), 9)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 80))
	assert.Equal(t, "abc", Preview("abcdef", 3))

	// Truncation never splits a multi-byte rune: "é" is two bytes, so a
	// cut inside it backs up to the previous boundary.
	assert.Equal(t, "caf", Preview("café au lait", 4))
	assert.True(t, utf8.ValidString(Preview("세계 그래프", 7)))
}

func TestRoot(t *testing.T) {
	e := NewEmitter()
	_, ok := e.Root()
	assert.False(t, ok)

	first, err := e.Emit(Step{Type: StepOrchestration})
	require.NoError(t, err)
	_, err = e.Emit(Step{Type: StepFanout, ParentID: first.NodeID})
	require.NoError(t, err)

	root, ok := e.Root()
	require.True(t, ok)
	assert.Equal(t, first.NodeID, root.NodeID)
}
