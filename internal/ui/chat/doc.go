// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the chat view component for the relay TUI.

The package is a Bubble Tea model composed of a transcript viewport, a chat
list sidebar, a textarea input, and a status bar. All conversation state
lives in the controller; the view only renders snapshots of it.

# Streaming

Replies stream in on a background goroutine. The controller's change hook
marks a SnapshotBuffer dirty, and a 30fps tick loop pulls fresh transcript
snapshots while a reply is in flight. This keeps rendering smooth without
repainting on every token.

# Slash commands

The input accepts a few slash commands:

	/attach <file>   attach a text file to the next message
	/rename <title>  rename the active chat
	/clear           drop pending attachments

# Markdown

Assistant replies render through glamour once complete. Partial replies are
shown as plain text since truncated markdown renders poorly.
*/
package chat
