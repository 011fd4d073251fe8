// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache holds recently used chats and the model catalog in memory,
// backed by a pluggable persistence store.
package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/relay-tui/internal/util"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// ErrKeyNotFound is returned when a key has no stored value.
// Use errors.Is(err, ErrKeyNotFound) to check for this error.
var ErrKeyNotFound = errors.New("key not found")

// Store persists opaque blobs by key. Implementations must tolerate
// concurrent use from a single process.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, data []byte) error
	Delete(key string) error
}

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps one JSON file per key under a directory, written
// atomically so a crash never leaves a torn blob behind.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a file store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{baseDir: baseDir}, nil
}

// DefaultFileStore creates a file store under the user's data directory.
func DefaultFileStore() (*FileStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewFileStore(filepath.Join(homeDir, ".relay", "cache"))
}

func (s *FileStore) path(key string) string {
	// Keys are internal constants, but keep path traversal out anyway.
	key = strings.ReplaceAll(key, string(os.PathSeparator), "_")
	return filepath.Join(s.baseDir, key+".json")
}

// Get retrieves the blob stored under key.
func (s *FileStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set stores a blob under key, atomically replacing any previous value.
func (s *FileStore) Set(key string, data []byte) error {
	return util.AtomicWriteFile(s.path(key), data, 0644)
}

// Delete removes the blob stored under key. Missing keys are not an error.
func (s *FileStore) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
