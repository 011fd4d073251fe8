// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for relay.
package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChats
	CmdModels
	CmdStatus
	CmdCache
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	JSON    bool // Output in JSON format
	Model   string
	BaseURL string
	Token   string

	// Command-specific
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `relay - terminal client for the Relay chat backend

Relay keeps your recent chats cached locally and streams replies token
by token. Without a token it runs in guest mode: chats stay on this
machine and completions go through the guest endpoint.

Usage:
  relay                       Start the chat TUI (default)
  relay chats [subcommand]    Chat management
  relay models                List available models
  relay status, s             Show backend and cache status
  relay cache [stats|clear]   Local cache management
  relay config [show|get|set] Configuration
  relay version               Show version
  relay help                  Show this help

Chat Commands:
  relay chats                 List chats (alias: list, ls)
  relay chats show <id>       Print a chat transcript
  relay chats rename <id> <title>
                              Rename a chat
  relay chats delete <id>     Delete a chat
    --confirm                 Required confirmation flag
  relay chats export <id>     Export a transcript to a file
    --format txt|md|json      Export format (default: txt)
    --output DIR              Output directory (default: .)

Cache Commands:
  relay cache stats           Show cache statistics (default)
  relay cache clear           Drop all cached chats and models
  relay cache path            Print the cache directory

Config Commands:
  relay config show           Show current configuration (default)
  relay config get <key>      Print one value (e.g. gateway.base_url)
  relay config set <key> <value>
                              Set and save one value
  relay config path           Print the config file path

Global Flags:
  --base-url URL   Override the backend base URL
  --token TOKEN    Override the API token
  --model NAME     Override the default model
  --json           Output in JSON format
  -q, --quiet      Minimal output
  -v, --verbose    Debug output

Environment:
  RELAY_BASE_URL, RELAY_TOKEN, RELAY_USER_ID, RELAY_MODEL,
  RELAY_CACHE_BACKEND override the config file.

Examples:
  relay                                Start the TUI
  relay --token $TOKEN                 Start authenticated
  relay chats --json                   Chat list for scripting
  relay chats show 42                  Print transcript of chat 42
  relay config set ui.theme light      Switch theme
  relay cache clear                    Reset the local cache

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("relay version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return parse(os.Args[1:])
}

func parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	// No command defaults to the TUI.
	if len(remaining) == 0 {
		return CmdTUI, args
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	args.Raw = remaining
	if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
		args.Subcommand = remaining[0]
	}

	switch cmd {
	case "tui":
		return CmdTUI, args

	case "chats", "chat":
		return CmdChats, args

	case "models", "model":
		return CmdModels, args

	case "status", "s":
		return CmdStatus, args

	case "cache":
		return CmdCache, args

	case "config":
		parseConfigArgs(&args, remaining)
		return CmdConfig, args

	case "version", "--version":
		return CmdVersion, args

	case "help", "-h", "--help":
		return CmdHelp, args

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		return CmdHelp, args
	}
}

// parseGlobalFlags strips global flags from argv, returning the rest.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var args Args
	var remaining []string

	i := 0
	for i < len(argv) {
		arg := argv[i]
		switch arg {
		case "-q", "--quiet":
			args.Quiet = true
		case "-v", "--verbose":
			args.Verbose = true
		case "--json":
			args.JSON = true
		case "--model":
			if i+1 < len(argv) {
				args.Model = argv[i+1]
				i++
			}
		case "--base-url":
			if i+1 < len(argv) {
				args.BaseURL = argv[i+1]
				i++
			}
		case "--token":
			if i+1 < len(argv) {
				args.Token = argv[i+1]
				i++
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				args.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--base-url="):
				args.BaseURL = strings.TrimPrefix(arg, "--base-url=")
			case strings.HasPrefix(arg, "--token="):
				args.Token = strings.TrimPrefix(arg, "--token=")
			default:
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, args
}

// parseConfigArgs fills in the key/value for config get/set.
func parseConfigArgs(args *Args, remaining []string) {
	switch args.Subcommand {
	case "get":
		if len(remaining) > 1 {
			args.ConfigKey = remaining[1]
		}
	case "set":
		if len(remaining) > 1 {
			args.ConfigKey = remaining[1]
		}
		if len(remaining) > 2 {
			args.ConfigVal = strings.Join(remaining[2:], " ")
		}
	}
}
