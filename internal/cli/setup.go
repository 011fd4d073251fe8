// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// setup.go - Shared wiring from parsed arguments to live clients.
//
// Both the subcommand handlers and the TUI entry point build their
// gateway client and cache through these helpers so flag precedence
// behaves the same everywhere.
package cli

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/jeranaias/relay-tui/internal/cache"
	"github.com/jeranaias/relay-tui/internal/config"
	"github.com/jeranaias/relay-tui/internal/gateway"
)

// LoadConfig loads configuration and applies command-line overrides.
// Flags beat environment, environment beats the config file.
func LoadConfig(args Args) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if args.BaseURL != "" {
		cfg.Gateway.BaseURL = args.BaseURL
	}
	if args.Token != "" {
		cfg.Gateway.Token = args.Token
	}
	if args.Model != "" {
		cfg.DefaultModel = args.Model
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewGateway builds a gateway client from configuration.
func NewGateway(cfg *config.Config) *gateway.Client {
	gw := gateway.NewClient(cfg.Gateway.BaseURL).
		WithMaxRetries(cfg.Gateway.MaxRetries)
	if cfg.Gateway.Token != "" {
		gw = gw.WithToken(cfg.Gateway.Token)
	}
	if cfg.Gateway.UserID != 0 {
		gw = gw.WithUserID(cfg.Gateway.UserID)
	}
	return gw
}

// OpenStore opens the cache store selected by configuration.
func OpenStore(cfg *config.Config) (cache.Store, error) {
	dir, err := cfg.CacheDir()
	if err != nil {
		return nil, err
	}

	switch cfg.Cache.Backend {
	case "sqlite":
		return cache.NewSQLiteStore(filepath.Join(dir, "cache.db"))
	case "", "file":
		return cache.NewFileStore(dir)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}
}

// OpenSessionCache opens the session cache, falling back to a file store
// in the default location when the configured backend fails to open.
func OpenSessionCache(cfg *config.Config) (*cache.SessionCache, error) {
	store, err := OpenStore(cfg)
	if err != nil {
		log.Printf("cache: backend %q unavailable, falling back to file store: %v", cfg.Cache.Backend, err)
		store, err = cache.DefaultFileStore()
		if err != nil {
			return nil, err
		}
	}
	return cache.NewSessionCache(store), nil
}
