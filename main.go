// relay TUI - a terminal client for the Relay chat backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/relay-tui/internal/cli"
	"github.com/jeranaias/relay-tui/internal/config"
	"github.com/jeranaias/relay-tui/internal/controller"
	"github.com/jeranaias/relay-tui/internal/ui/chat"
	"github.com/jeranaias/relay-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	var err error
	switch cmd {
	case cli.CmdTUI:
		err = runTUI(args)
	case cli.CmdChats:
		err = cli.HandleChats(args)
	case cli.CmdModels:
		err = cli.HandleModels(args)
	case cli.CmdStatus:
		err = cli.HandleStatus(args)
	case cli.CmdCache:
		err = cli.HandleCache(args)
	case cli.CmdConfig:
		err = cli.HandleConfig(args)
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCodeFor(err))
	}
}

// runTUI wires config, gateway, cache, and controller together and runs
// the Bubble Tea program.
func runTUI(args cli.Args) error {
	cfg, err := cli.LoadConfig(args)
	if err != nil {
		return err
	}
	config.SetGlobal(cfg)

	// The TUI owns the terminal; route diagnostics to a log file instead
	// of stderr so they do not tear the screen.
	restoreLog := redirectLogOutput(args.Verbose)
	defer restoreLog()

	gw := cli.NewGateway(cfg)
	sc, err := cli.OpenSessionCache(cfg)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}

	ctrl := controller.New(gw, sc)
	if cfg.DefaultModel != "" {
		ctrl.SetModel(cfg.DefaultModel)
	}

	theme := styles.NewTheme()
	m := chat.New(ctrl, cfg, theme)

	// Pick up config file edits while the TUI is running.
	if path, err := config.ConfigPathTOML(); err == nil {
		watcher, err := config.NewWatcher(path, func(updated *config.Config) {
			config.SetGlobal(updated)
		})
		if err == nil && watcher.Watch() == nil {
			defer watcher.Close()
		}
	}

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running relay: %w", err)
	}
	return nil
}

// redirectLogOutput sends the standard logger to ~/.relay/relay.log while
// the TUI runs. Returns a restore function for after the program exits.
func redirectLogOutput(verbose bool) func() {
	if !verbose {
		log.SetOutput(io.Discard)
		return func() { log.SetOutput(os.Stderr) }
	}

	dir, err := config.ConfigDir()
	if err != nil || config.EnsureConfigDir() != nil {
		log.SetOutput(io.Discard)
		return func() { log.SetOutput(os.Stderr) }
	}

	f, err := os.OpenFile(filepath.Join(dir, "relay.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		log.SetOutput(io.Discard)
		return func() { log.SetOutput(os.Stderr) }
	}

	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}
}
