// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/relay-tui/internal/config"
	"github.com/jeranaias/relay-tui/internal/controller"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // Receiving a streaming reply
)

// maxInputChars bounds a single outgoing message.
const maxInputChars = 8192

// chatListWidth is the sidebar width when the chat list is visible.
const chatListWidth = 28

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// State
	state State

	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int
	ready  bool

	// Domain
	ctrl *controller.Controller
	cfg  *config.Config

	// Chat list
	chats    []model.ChatSummary
	selected int
	showList bool

	// Model catalog
	models   []model.ModelInfo
	modelIdx int

	// Pending attachments for the next send
	attachments []model.Attachment

	// UI components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	// Markdown rendering
	renderer *glamour.TermRenderer
	markdown bool

	// Streaming repaint coalescing
	frames *SnapshotBuffer

	// Key bindings
	keyMap KeyMap

	// Transient status line
	statusMsg string
	showHelp  bool
}

// New creates a new chat model wired to the controller.
func New(ctrl *controller.Controller, cfg *config.Config, theme *styles.Theme) *Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message... (/attach <file> to attach)"
	ta.Prompt = "> "
	ta.CharLimit = maxInputChars
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / streamFPS,
	}
	sp.Style = theme.Spinner

	m := &Model{
		state:    StateReady,
		theme:    theme,
		ctrl:     ctrl,
		cfg:      cfg,
		showList: !cfg.UI.CompactMode,
		viewport: vp,
		input:    ta,
		spinner:  sp,
		markdown: cfg.UI.Markdown,
		frames:   NewSnapshotBuffer(),
		keyMap:   DefaultKeyMap(),
	}

	// Delta callbacks arrive on the streaming goroutine; they only mark the
	// transcript dirty, the tick loop does the repainting.
	ctrl.OnChange = m.frames.Touch

	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		loadChatsCmd(m.ctrl),
		loadModelsCmd(m.ctrl),
	)
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.state != StateStreaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StreamTickMsg:
		if m.frames.Take() {
			m.refreshViewport()
			m.viewport.GotoBottom()
		}
		if m.state == StateStreaming {
			return m, streamTickCmd()
		}
		return m, nil

	case chatsLoadedMsg:
		return m.handleChatsLoaded(msg)

	case modelsLoadedMsg:
		if msg.err != nil {
			m.statusMsg = "models unavailable: " + msg.err.Error()
			return m, nil
		}
		m.models = msg.models
		m.syncModelSelection()
		return m, nil

	case chatSelectedMsg:
		if msg.err != nil {
			m.statusMsg = msg.err.Error()
			return m, nil
		}
		m.statusMsg = ""
		m.syncSelection(msg.chatID)
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case sendDoneMsg:
		m.state = StateReady
		if m.frames.Force() {
			m.refreshViewport()
			m.viewport.GotoBottom()
		}
		if msg.err != nil && !errors.Is(msg.err, controller.ErrStreamInProgress) {
			m.statusMsg = msg.err.Error()
		}
		// Titles and previews moved; refresh the sidebar.
		return m, loadChatsCmd(m.ctrl)

	case forkDoneMsg:
		if msg.err != nil {
			m.statusMsg = "fork failed: " + msg.err.Error()
			return m, nil
		}
		m.statusMsg = fmt.Sprintf("forked into chat %d", msg.chatID)
		return m, tea.Batch(selectChatCmd(m.ctrl, msg.chatID), loadChatsCmd(m.ctrl))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleChatsLoaded installs the refreshed chat list and picks an initial
// chat when none is active yet.
func (m *Model) handleChatsLoaded(msg chatsLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.statusMsg = "chat list unavailable: " + msg.err.Error()
		return m, nil
	}
	m.chats = msg.summaries
	m.syncSelection(m.ctrl.ActiveChat())

	if m.ctrl.ActiveChat() == 0 {
		if len(m.chats) > 0 {
			return m, selectChatCmd(m.ctrl, m.chats[0].ID)
		}
		m.ctrl.NewLocalChat("New Chat")
		return m, loadChatsCmd(m.ctrl)
	}
	return m, nil
}

// handleKey routes a key press.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := m.keyMap

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Cancel):
		if m.state == StateStreaming {
			m.ctrl.CancelStream()
			m.statusMsg = "stream cancelled"
		}
		return m, nil

	case key.Matches(msg, keys.Submit):
		return m.submit()

	case key.Matches(msg, keys.NewChat):
		if m.state == StateStreaming {
			return m, nil
		}
		m.ctrl.NewLocalChat("New Chat")
		m.refreshViewport()
		return m, loadChatsCmd(m.ctrl)

	case key.Matches(msg, keys.NextChat):
		return m.moveSelection(1)

	case key.Matches(msg, keys.PrevChat):
		return m.moveSelection(-1)

	case key.Matches(msg, keys.Regenerate):
		if m.state == StateStreaming {
			return m, nil
		}
		m.state = StateStreaming
		m.statusMsg = ""
		return m, tea.Batch(regenerateCmd(m.ctrl), streamTickCmd(), m.spinner.Tick)

	case key.Matches(msg, keys.Fork):
		if m.state == StateStreaming {
			return m, nil
		}
		return m, forkCmd(m.ctrl)

	case key.Matches(msg, keys.CycleModel):
		m.cycleModel()
		return m, nil

	case key.Matches(msg, keys.ToggleList):
		m.showList = !m.showList
		m.resize(m.width, m.height)
		m.refreshViewport()
		return m, nil

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, keys.PageUp), key.Matches(msg, keys.PageDown),
		key.Matches(msg, keys.Up), key.Matches(msg, keys.Down):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input, or runs it as a slash command.
func (m *Model) submit() (tea.Model, tea.Cmd) {
	if m.state == StateStreaming {
		return m, nil
	}

	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	if strings.HasPrefix(text, "/") {
		m.input.Reset()
		return m.runSlashCommand(text)
	}

	m.input.Reset()
	attachments := m.attachments
	m.attachments = nil
	m.state = StateStreaming
	m.statusMsg = ""
	return m, tea.Batch(sendCmd(m.ctrl, text, attachments), streamTickCmd(), m.spinner.Tick)
}

// runSlashCommand handles the small set of in-chat commands.
func (m *Model) runSlashCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/attach":
		if len(args) == 0 {
			m.statusMsg = "usage: /attach <file>"
			return m, nil
		}
		return m, m.attachFile(args[0])

	case "/rename":
		if len(args) == 0 {
			m.statusMsg = "usage: /rename <title>"
			return m, nil
		}
		title := strings.Join(args, " ")
		return m, func() tea.Msg {
			err := m.ctrl.RenameChat(context.Background(), title)
			if err != nil {
				return chatsLoadedMsg{err: err}
			}
			return loadChatsCmd(m.ctrl)()
		}

	case "/clear":
		m.attachments = nil
		m.statusMsg = "attachments cleared"
		return m, nil

	default:
		m.statusMsg = "unknown command: " + cmd
		return m, nil
	}
}

// attachFile reads a file into a pending attachment.
func (m *Model) attachFile(path string) tea.Cmd {
	data, err := os.ReadFile(path)
	if err != nil {
		m.statusMsg = "attach failed: " + err.Error()
		return nil
	}
	m.attachments = append(m.attachments, model.Attachment{
		Name: filepath.Base(path),
		Text: string(data),
	})
	m.statusMsg = fmt.Sprintf("attached %s (%d bytes)", filepath.Base(path), len(data))
	return nil
}

// moveSelection switches to the neighboring chat in the sidebar.
func (m *Model) moveSelection(delta int) (tea.Model, tea.Cmd) {
	if m.state == StateStreaming || len(m.chats) == 0 {
		return m, nil
	}
	next := m.selected + delta
	if next < 0 || next >= len(m.chats) {
		return m, nil
	}
	m.selected = next
	return m, selectChatCmd(m.ctrl, m.chats[next].ID)
}

// cycleModel advances to the next model in the catalog.
func (m *Model) cycleModel() {
	if len(m.models) == 0 {
		return
	}
	m.modelIdx = (m.modelIdx + 1) % len(m.models)
	m.ctrl.SetModel(m.models[m.modelIdx].ID)
	m.statusMsg = "model: " + m.models[m.modelIdx].DisplayName()
}

// syncModelSelection lines the selected index up with the controller's
// model, defaulting to the configured model or the first catalog entry.
func (m *Model) syncModelSelection() {
	current := m.ctrl.Model()
	if current == "" {
		current = m.cfg.DefaultModel
	}
	for i, info := range m.models {
		if info.ID == current {
			m.modelIdx = i
			m.ctrl.SetModel(info.ID)
			return
		}
	}
	if len(m.models) > 0 {
		m.modelIdx = 0
		m.ctrl.SetModel(m.models[0].ID)
	}
}

// syncSelection lines the sidebar selection up with the active chat.
func (m *Model) syncSelection(chatID int64) {
	for i, s := range m.chats {
		if s.ID == chatID {
			m.selected = i
			return
		}
	}
}

// resize recomputes component dimensions and rebuilds the markdown renderer
// for the new wrap width.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.ready = true
	m.theme.Resize(width, height)

	contentWidth := width
	if m.showList {
		contentWidth -= chatListWidth
	}
	if contentWidth < 20 {
		contentWidth = 20
	}

	// Header, input box, and status bar take fixed rows.
	viewportHeight := height - m.input.Height() - 5
	if viewportHeight < 3 {
		viewportHeight = 3
	}

	m.viewport.Width = contentWidth
	m.viewport.Height = viewportHeight
	m.input.SetWidth(width - 4)

	if m.markdown {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(contentWidth-4),
		)
		if err == nil {
			m.renderer = renderer
		}
	}
}

// refreshViewport re-renders the transcript into the viewport.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderTranscript())
}
