// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chats_cmd.go - Chat management CLI commands for relay.
//
// Command: chats [subcommand]
// Short:   List and manage chats on the backend
//
// Subcommands:
//   list (default)      List chats
//   show <id>           Print a chat transcript
//   rename <id> <title> Rename a chat
//   delete <id>         Delete a chat (requires --confirm)
//   export <id>         Export a transcript to a file
//
// Examples:
//   relay chats                     List chats
//   relay chats --json              Chat list for scripting
//   relay chats show 42             Print transcript of chat 42
//   relay chats rename 42 "Kernel debugging"
//   relay chats delete 42 --confirm
//   relay chats export 42 --format md --output ~/notes
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/relay-tui/internal/export"
	"github.com/jeranaias/relay-tui/internal/gateway"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/util"
)

// chatsTimeout bounds each backend call made from the command line.
const chatsTimeout = 15 * time.Second

// Narrow views of the gateway client so list rendering is testable
// without a live backend.
type chatLister interface {
	ListChats(ctx context.Context) ([]model.ChatSummary, error)
}

type messageLister interface {
	ListMessages(ctx context.Context, chatID int64) ([]model.Message, error)
}

// HandleChats handles the "chats" command.
func HandleChats(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	gw := NewGateway(cfg)
	parser := NewArgParser(args.Raw)

	ctx, cancel := context.WithTimeout(context.Background(), chatsTimeout)
	defer cancel()

	switch parser.Subcommand() {
	case "", "list", "ls":
		return chatsList(ctx, args, gw)

	case "show":
		id, err := parser.PositionalInt64(1)
		if err != nil {
			return Usagef("usage: relay chats show <id>")
		}
		return chatsShow(ctx, args, gw, id)

	case "rename":
		id, err := parser.PositionalInt64(1)
		if err != nil || parser.PositionalCount() < 3 {
			return Usagef("usage: relay chats rename <id> <title>")
		}
		title := strings.Join(parser.PositionalFrom(2), " ")
		if err := gw.RenameChat(ctx, id, title); err != nil {
			return err
		}
		if !args.Quiet {
			fmt.Printf("renamed chat %d to %q\n", id, title)
		}
		return nil

	case "delete", "rm":
		id, err := parser.PositionalInt64(1)
		if err != nil {
			return Usagef("usage: relay chats delete <id> --confirm")
		}
		if !parser.BoolFlag("confirm") {
			return Usagef("deleting a chat is permanent; re-run with --confirm")
		}
		if err := gw.DeleteChat(ctx, id); err != nil {
			return err
		}
		if !args.Quiet {
			fmt.Printf("deleted chat %d\n", id)
		}
		return nil

	case "export":
		id, err := parser.PositionalInt64(1)
		if err != nil {
			return Usagef("usage: relay chats export <id> [--format txt|md|json] [--output DIR]")
		}
		return chatsExport(ctx, args, gw, id, parser)

	default:
		return Usagef("unknown chats subcommand: %s", parser.Subcommand())
	}
}

func chatsExport(ctx context.Context, args Args, gw *gateway.Client, id int64, parser *ArgParser) error {
	summary, err := gw.GetChat(ctx, id)
	if err != nil {
		return err
	}
	messages, err := gw.ListMessages(ctx, id)
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	opts.OutputDir = parser.FlagOrDefault("output", ".")
	exporter, err := export.ForFormat(parser.Flag("format"), opts)
	if err != nil {
		return Usagef("%v", err)
	}

	path, err := export.ExportToFile(&export.Transcript{Summary: summary, Messages: messages}, exporter, opts)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("chats export", map[string]string{"path": path}).Print()
	}
	if !args.Quiet {
		fmt.Printf("exported chat %d to %s\n", id, path)
	}
	return nil
}

func chatsList(ctx context.Context, args Args, gw chatLister) error {
	summaries, err := gw.ListChats(ctx)
	if err != nil {
		if args.JSON {
			NewJSONErrorResponse("chats", err).Print()
		}
		return err
	}

	if args.JSON {
		return NewJSONResponse("chats", summaries).Print()
	}

	if len(summaries) == 0 {
		fmt.Println("no chats")
		return nil
	}

	fmt.Println(titleStyle.Render("Chats"))
	for _, s := range summaries {
		title := util.TruncateWidth(s.DisplayTitle(), 40)
		meta := fmt.Sprintf("%s, %s",
			formatCount(s.MessageCount, "message", "messages"),
			formatRelativeTime(s.LastMessageAt))
		fmt.Printf("  %s  %s  %s\n",
			valueDimStyle.Render(fmt.Sprintf("%4d", s.ID)),
			valueStyle.Render(fmt.Sprintf("%-40s", title)),
			valueDimStyle.Render(meta))
	}
	return nil
}

func chatsShow(ctx context.Context, args Args, gw messageLister, id int64) error {
	messages, err := gw.ListMessages(ctx, id)
	if err != nil {
		if args.JSON {
			NewJSONErrorResponse("chats show", err).Print()
		}
		return err
	}

	if args.JSON {
		return NewJSONResponse("chats show", messages).Print()
	}

	for i, msg := range messages {
		if i > 0 {
			fmt.Println()
		}
		label := sectionStyle.Render(msg.Role.DisplayName())
		if !msg.CreatedAt.IsZero() {
			label += "  " + valueDimStyle.Render(msg.CreatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Println(label)
		fmt.Println(msg.Content)
	}
	return nil
}
