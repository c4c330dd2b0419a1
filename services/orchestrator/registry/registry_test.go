// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterAndList(t *testing.T) {
	r := New()

	assert.True(t, r.IsValid("kgnormal"))
	assert.True(t, r.IsValid("agenttraces"))
	assert.False(t, r.IsValid("kgruntime"))

	assert.NoError(t, r.Register("kgruntime"))
	assert.True(t, r.IsValid("kgruntime"))

	// Idempotent re-registration.
	assert.NoError(t, r.Register("kgruntime"))

	assert.Equal(t, []string{"kgfibo", "kgnormal", "kgruntime"}, r.ListUserDBs())
}

func TestRegisterRejectsInvalidNames(t *testing.T) {
	r := New()

	for _, name := range []string{"", "1kg", "kg fibo", "kg;DROP", "kg_fibo"} {
		assert.Error(t, r.Register(name), "name %q should be rejected", name)
		assert.False(t, r.IsValid(name))
	}
}

func TestListExcludesSystemAndTraceStore(t *testing.T) {
	r := New()
	for _, name := range r.ListUserDBs() {
		assert.NotContains(t, []string{"neo4j", "system", "agenttraces"}, name)
	}
}

func TestCaseSensitivity(t *testing.T) {
	r := NewEmpty()
	assert.NoError(t, r.Register("kgNormal"))
	assert.True(t, r.IsValid("kgNormal"))
	assert.False(t, r.IsValid("kgnormal"))
}

func TestUnregister(t *testing.T) {
	r := New()
	r.Unregister("kgnormal")
	assert.False(t, r.IsValid("kgnormal"))

	// System databases cannot be removed.
	r.Unregister("system")
	assert.True(t, r.IsValid("system"))
}

func TestConcurrentRegistration(t *testing.T) {
	r := NewEmpty()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Register("kgshared")
				_ = r.IsValid("kgshared")
				_ = r.ListUserDBs()
			}
		}()
	}
	wg.Wait()
	assert.True(t, r.IsValid("kgshared"))
}
