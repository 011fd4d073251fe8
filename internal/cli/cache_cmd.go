// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cache_cmd.go - Local cache management CLI commands for relay.
//
// Command: cache [subcommand]
// Short:   Manage the local chat cache
//
// Subcommands:
//   stats (default)     Show cache statistics
//   clear               Drop all cached chats and models
//   path                Print the cache directory
//
// Examples:
//   relay cache                 Show stats (default)
//   relay cache stats --json    Stats for scripting
//   relay cache clear           Reset the local cache
//   relay cache clear --chats   Drop cached chats, keep the model catalog
//   relay cache clear --models  Drop the model catalog, keep chats
//   relay cache path            Print the cache directory
package cli

import (
	"fmt"
	"time"
)

// cacheStatsReport is the JSON shape of cache stats.
type cacheStatsReport struct {
	Chats        int    `json:"chats"`
	Materialized int    `json:"materialized"`
	Models       int    `json:"models"`
	ListUpdated  string `json:"list_updated,omitempty"`
	Dir          string `json:"dir"`
}

// HandleCache handles the "cache" command.
func HandleCache(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	parser := NewArgParser(args.Raw)

	switch parser.Subcommand() {
	case "", "stats":
		sc, err := OpenSessionCache(cfg)
		if err != nil {
			return err
		}
		stats := sc.GetStats()
		dir, _ := cfg.CacheDir()

		report := cacheStatsReport{
			Chats:        stats.Chats,
			Materialized: stats.Materialized,
			Models:       stats.Models,
			Dir:          dir,
		}
		if !stats.ListUpdated.IsZero() {
			report.ListUpdated = stats.ListUpdated.UTC().Format(time.RFC3339)
		}

		if args.JSON {
			return NewJSONResponse("cache stats", report).Print()
		}

		fmt.Println(titleStyle.Render("Cache"))
		fmt.Println(field("Directory", dir))
		fmt.Println(field("Chats", fmt.Sprintf("%d (%d with messages)", stats.Chats, stats.Materialized)))
		fmt.Println(field("Models", fmt.Sprintf("%d", stats.Models)))
		if !stats.ListUpdated.IsZero() {
			fmt.Println(field("Refreshed", formatRelativeTime(stats.ListUpdated)))
		}
		return nil

	case "clear":
		sc, err := OpenSessionCache(cfg)
		if err != nil {
			return err
		}
		what := "cache"
		switch {
		case parser.BoolFlag("chats"):
			sc.Clear()
			what = "cached chats"
		case parser.BoolFlag("models"):
			sc.ClearCatalog()
			what = "model catalog"
		default:
			sc.ClearAll()
		}
		if !args.Quiet {
			fmt.Printf("%s cleared\n", what)
		}
		return nil

	case "path":
		dir, err := cfg.CacheDir()
		if err != nil {
			return err
		}
		fmt.Println(dir)
		return nil

	default:
		return Usagef("unknown cache subcommand: %s", parser.Subcommand())
	}
}
