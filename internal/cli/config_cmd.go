// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration CLI commands for relay.
//
// Command: config [subcommand]
// Short:   Show and edit configuration
//
// Subcommands:
//   show (default)      Show current configuration
//   get <key>           Print one value (dot notation, e.g. ui.theme)
//   set <key> <value>   Set and save one value
//   path                Print the config file path
//
// Examples:
//   relay config                       Show configuration
//   relay config get gateway.base_url  Print the backend URL
//   relay config set ui.theme light    Switch theme
//   relay config path                  Print the config file path
package cli

import (
	"fmt"

	"github.com/jeranaias/relay-tui/internal/config"
)

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}

	switch args.Subcommand {
	case "", "show":
		if args.JSON {
			return NewJSONResponse("config", cfg).Print()
		}
		return configShow(cfg)

	case "get":
		if args.ConfigKey == "" {
			return Usagef("usage: relay config get <key>")
		}
		val, err := cfg.Get(args.ConfigKey)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("config get", map[string]interface{}{args.ConfigKey: val}).Print()
		}
		fmt.Println(val)
		return nil

	case "set":
		if args.ConfigKey == "" || args.ConfigVal == "" {
			return Usagef("usage: relay config set <key> <value>")
		}
		if err := cfg.Set(args.ConfigKey, args.ConfigVal); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		if !args.Quiet {
			fmt.Printf("%s = %s\n", args.ConfigKey, args.ConfigVal)
		}
		return nil

	case "path":
		path, err := config.ConfigPathTOML()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil

	default:
		return Usagef("unknown config subcommand: %s", args.Subcommand)
	}
}

// configShow prints the configuration with the token redacted.
func configShow(cfg *config.Config) error {
	fmt.Println(titleStyle.Render("Configuration"))

	fmt.Println(sectionStyle.Render("Gateway"))
	fmt.Println(field("base_url", cfg.Gateway.BaseURL))
	token := valueDimStyle.Render("(not set, guest mode)")
	if cfg.Gateway.Token != "" {
		token = "********"
	}
	fmt.Println(field("token", token))
	if cfg.Gateway.UserID != 0 {
		fmt.Println(field("user_id", fmt.Sprintf("%d", cfg.Gateway.UserID)))
	}
	fmt.Println(field("max_retries", fmt.Sprintf("%d", cfg.Gateway.MaxRetries)))

	fmt.Println(sectionStyle.Render("Cache"))
	fmt.Println(field("enabled", fmt.Sprintf("%t", cfg.Cache.Enabled)))
	fmt.Println(field("backend", cfg.Cache.Backend))
	if cfg.Cache.Dir != "" {
		fmt.Println(field("dir", cfg.Cache.Dir))
	}

	fmt.Println(sectionStyle.Render("UI"))
	fmt.Println(field("theme", cfg.UI.Theme))
	fmt.Println(field("timestamps", fmt.Sprintf("%t", cfg.UI.ShowTimestamps)))
	fmt.Println(field("compact", fmt.Sprintf("%t", cfg.UI.CompactMode)))
	fmt.Println(field("markdown", fmt.Sprintf("%t", cfg.UI.Markdown)))

	model := cfg.DefaultModel
	if model == "" {
		model = valueDimStyle.Render("(backend default)")
	}
	fmt.Println(sectionStyle.Render("General"))
	fmt.Println(field("model", model))

	return nil
}
