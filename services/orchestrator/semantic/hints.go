// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package semantic

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// hintPayload is the on-disk shape produced by the offline ontology hint
// builder: alias_key -> canonical name, and canonical_key -> keyword list.
type hintPayload struct {
	Aliases       map[string]string   `json:"aliases"`
	LabelKeywords map[string][]string `json:"label_keywords"`
}

// HintStore holds offline-built ontology hints used by the resolver for
// alias normalization and label hint inference.
//
// The store is safe for concurrent readers. Reload swaps the whole payload
// under the write lock; a malformed file leaves the previous payload in
// place.
type HintStore struct {
	mu      sync.RWMutex
	path    string
	payload hintPayload
	watcher *fsnotify.Watcher
	log     *slog.Logger
}

// NewHintStore loads hints from path. A missing file yields an empty store;
// resolution then proceeds without alias or label hints.
func NewHintStore(path string, log *slog.Logger) *HintStore {
	if log == nil {
		log = slog.Default()
	}
	s := &HintStore{path: path, log: log}
	if err := s.Reload(); err != nil {
		log.Warn("ontology hints unavailable", "path", path, "error", err)
	}
	return s
}

// Reload re-reads the hint file. On error the current payload is retained.
func (s *HintStore) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("semantic: read hints: %w", err)
	}
	var payload hintPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("semantic: parse hints: %w", err)
	}

	s.mu.Lock()
	s.payload = payload
	s.mu.Unlock()
	return nil
}

// Watch hot-reloads the hint file when the offline builder rewrites it.
// Returns a stop function. Watching a nonexistent path is a no-op.
func (s *HintStore) Watch() (func(), error) {
	if s.path == "" {
		return func() {}, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("semantic: hint watcher: %w", err)
	}
	// Watch the directory: builders typically write-then-rename, which
	// replaces the inode the file watch would be pinned to.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("semantic: watch %s: %w", s.path, err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.Reload(); err != nil {
					s.log.Warn("ontology hint reload failed", "error", err)
				} else {
					s.log.Info("ontology hints reloaded", "path", s.path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("ontology hint watcher error", "error", err)
			}
		}
	}()
	return func() { watcher.Close() }, nil
}

// ResolveAlias maps an extracted entity span to its canonical name, or
// returns the input unchanged when no alias is known.
func (s *HintStore) ResolveAlias(entity string) string {
	key := NormalizeAlias(entity)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if canonical, ok := s.payload.Aliases[key]; ok && canonical != "" {
		return canonical
	}
	return entity
}

// InferLabelHints returns the keyword hints whose canonical entry appears
// in the question text, normalized for label matching.
func (s *HintStore) InferLabelHints(question string) map[string]bool {
	q := " " + NormalizeAlias(question) + " "
	hints := make(map[string]bool)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for canonicalKey, keywords := range s.payload.LabelKeywords {
		if !strings.Contains(q, " "+canonicalKey+" ") {
			continue
		}
		for _, kw := range keywords {
			if t := normalizeToken(kw); t != "" {
				hints[t] = true
			}
		}
	}
	return hints
}

// Summary reports store shape for trace metadata.
func (s *HintStore) Summary() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	canonicals := make([]string, 0, len(s.payload.LabelKeywords))
	for key := range s.payload.LabelKeywords {
		canonicals = append(canonicals, key)
	}
	sort.Strings(canonicals)
	return map[string]any{
		"alias_count": len(s.payload.Aliases),
		"canonicals":  canonicals,
	}
}
