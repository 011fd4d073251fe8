// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Status command implementation for relay.
//
// Command: status
// Short:   Display backend and cache status
// Aliases: s
//
// Status Sections:
//   Backend:   Reachability, latency, auth mode
//   Config:    Default model, cache backend
//   Cache:     Cached chats, materialized transcripts, catalog age
//
// Flags:
//   --json              Output in JSON format
package cli

import (
	"context"
	"fmt"
	"time"
)

// statusReport is the JSON shape of the status command.
type statusReport struct {
	BaseURL       string `json:"base_url"`
	Reachable     bool   `json:"reachable"`
	LatencyMS     int64  `json:"latency_ms"`
	Authenticated bool   `json:"authenticated"`
	DefaultModel  string `json:"default_model"`
	CacheBackend  string `json:"cache_backend"`
	CachedChats   int    `json:"cached_chats"`
	Materialized  int    `json:"materialized"`
	CachedModels  int    `json:"cached_models"`
	ListUpdated   string `json:"list_updated,omitempty"`
}

// HandleStatus handles the "status" command.
func HandleStatus(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	gw := NewGateway(cfg)

	report := statusReport{
		BaseURL:       cfg.Gateway.BaseURL,
		Authenticated: gw.IsAuthenticated(),
		DefaultModel:  cfg.DefaultModel,
		CacheBackend:  cfg.Cache.Backend,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	healthErr := gw.Health(ctx)
	report.Reachable = healthErr == nil
	report.LatencyMS = time.Since(start).Milliseconds()

	sc, err := OpenSessionCache(cfg)
	if err == nil {
		stats := sc.GetStats()
		report.CachedChats = stats.Chats
		report.Materialized = stats.Materialized
		report.CachedModels = stats.Models
		if !stats.ListUpdated.IsZero() {
			report.ListUpdated = stats.ListUpdated.UTC().Format(time.RFC3339)
		}
	}

	if args.JSON {
		return NewJSONResponse("status", report).Print()
	}

	fmt.Println(titleStyle.Render("Relay Status"))

	fmt.Println(sectionStyle.Render("Backend"))
	fmt.Println(field("URL", report.BaseURL))
	if report.Reachable {
		fmt.Println(field("Health", valueGreenStyle.Render(fmt.Sprintf("ok (%dms)", report.LatencyMS))))
	} else {
		fmt.Println(field("Health", valueRedStyle.Render("unreachable")))
		fmt.Println(field("", valueDimStyle.Render(healthErr.Error())))
	}
	mode := valueYellowStyle.Render("guest")
	if report.Authenticated {
		mode = valueGreenStyle.Render("authenticated")
	}
	fmt.Println(field("Mode", mode))

	fmt.Println(sectionStyle.Render("Config"))
	model := report.DefaultModel
	if model == "" {
		model = valueDimStyle.Render("(backend default)")
	}
	fmt.Println(field("Model", model))
	fmt.Println(field("Cache", report.CacheBackend))

	fmt.Println(sectionStyle.Render("Cache"))
	fmt.Println(field("Chats", fmt.Sprintf("%d (%d with messages)", report.CachedChats, report.Materialized)))
	fmt.Println(field("Models", fmt.Sprintf("%d", report.CachedModels)))
	if report.ListUpdated != "" {
		if t, err := time.Parse(time.RFC3339, report.ListUpdated); err == nil {
			fmt.Println(field("Refreshed", formatRelativeTime(t)))
		}
	}

	return nil
}
