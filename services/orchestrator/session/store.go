// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session persists platform chat histories.
//
// Sessions live in an embedded BadgerDB so they survive restarts without an
// external dependency. Every session is bounded to MaxTurns turns; older
// turns are dropped on append. Entries expire after the configured TTL so
// abandoned sessions do not accumulate.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// MaxTurns bounds the retained history per session.
const MaxTurns = 100

// DefaultTTL is how long an idle session survives before Badger expires it.
const DefaultTTL = 24 * time.Hour

// keyPrefix namespaces session records inside the shared Badger instance.
const keyPrefix = "session/"

// Turn is one exchange in a chat session.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the chat-session persistence surface.
type Store interface {
	// Append adds a turn to the session, creating it on first use. The
	// history is truncated to the most recent MaxTurns turns.
	Append(sessionID string, turn Turn) error
	// History returns the session's turns in order; an unknown session
	// yields an empty history, not an error.
	History(sessionID string) ([]Turn, error)
	// Clear removes the session. Clearing an unknown session is a no-op.
	Clear(sessionID string) error
	Close() error
}

// BadgerStore is the embedded-storage Store implementation.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
	log *slog.Logger
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open creates a persistent store at the given directory, creating it when
// missing.
func Open(path string, log *slog.Logger) (*BadgerStore, error) {
	if path == "" {
		return nil, errors.New("session store path is required")
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("create session store directory %s: %w", path, err)
	}
	opts := badger.DefaultOptions(path).WithNumVersionsToKeep(1)
	return open(opts, log)
}

// OpenInMemory creates a volatile store. Used by tests and by deployments
// that do not need session continuity across restarts.
func OpenInMemory(log *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	return open(opts, log)
}

func open(opts badger.Options, log *slog.Logger) (*BadgerStore, error) {
	if log != nil {
		opts = opts.WithLogger(&badgerLogger{logger: log})
	} else {
		opts = opts.WithLogger(nil)
		log = slog.Default()
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &BadgerStore{db: db, ttl: DefaultTTL, log: log}, nil
}

// Append implements Store. The read-modify-write runs inside one Badger
// transaction, so concurrent appends to the same session serialize.
func (s *BadgerStore) Append(sessionID string, turn Turn) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	key := []byte(keyPrefix + sessionID)

	return s.db.Update(func(txn *badger.Txn) error {
		turns, err := readTurns(txn, key)
		if err != nil {
			return err
		}
		turns = append(turns, turn)
		if len(turns) > MaxTurns {
			turns = turns[len(turns)-MaxTurns:]
		}
		payload, err := json.Marshal(turns)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", sessionID, err)
		}
		entry := badger.NewEntry(key, payload).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
}

// History implements Store.
func (s *BadgerStore) History(sessionID string) ([]Turn, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	var turns []Turn
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		turns, err = readTurns(txn, []byte(keyPrefix+sessionID))
		return err
	})
	return turns, err
}

// Clear implements Store.
func (s *BadgerStore) Clear(sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(keyPrefix + sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func readTurns(txn *badger.Txn, key []byte) ([]Turn, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var turns []Turn
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &turns)
	})
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}
	return turns, nil
}
