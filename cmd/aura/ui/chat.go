package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"aura/internal/api"
	"aura/internal/chat"
	"aura/internal/guest"
	"aura/internal/session"
)

const (
	headerHeight = 2
	footerHeight = 3

	historyFailed = "Couldn't load your chat history."
	signedOut     = "Your session expired. Run `aura login` to sign in again."
)

// Deps are the collaborators of the chat screen. Guest and Changes may be nil.
type Deps struct {
	Chat    *chat.Session
	Guest   *guest.Prompt
	Store   session.Store
	Changes <-chan struct{}
	Logger  *zap.Logger
	Styles  *Styles
}

type (
	hydratedMsg       struct{ err error }
	replyMsg          struct{ id string }
	guestShownMsg     struct{}
	sessionChangedMsg struct{}
)

// Model is the bubbletea model for `aura chat`.
type Model struct {
	chat    *chat.Session
	guest   *guest.Prompt
	store   session.Store
	changes <-chan struct{}
	logger  *zap.Logger
	styles  Styles

	ctx    context.Context
	cancel context.CancelFunc

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer
	rendered map[string]string

	width    int
	height   int
	ready    bool
	user     string
	status   string
	quitting bool
}

// New builds the model. Call Init (or Run) to start hydrating and the
// background listeners.
func New(d Deps) Model {
	styles := DefaultStyles()
	if d.Styles != nil {
		styles = *d.Styles
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ti := textinput.New()
	ti.Placeholder = "Ask AURA anything... (Enter to send, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 76
	ti.PromptStyle = styles.Prompt

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		chat:     d.Chat,
		guest:    d.Guest,
		store:    d.Store,
		changes:  d.Changes,
		logger:   logger,
		styles:   styles,
		ctx:      ctx,
		cancel:   cancel,
		input:    ti,
		spinner:  sp,
		viewport: viewport.New(80, 20),
		renderer: newRenderer(styles.Theme, 80),
		rendered: make(map[string]string),
		width:    80,
		height:   20 + headerHeight + footerHeight,
	}
	m.user = m.currentUser()
	m.refresh()
	return m
}

func newRenderer(theme Theme, width int) *glamour.TermRenderer {
	style := "light"
	if theme.IsDark {
		style = "dark"
	}
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.hydrate(),
		m.waitGuest(),
		m.waitChange(),
	)
}

func (m Model) hydrate() tea.Cmd {
	ctx := m.ctx
	c := m.chat
	return func() tea.Msg {
		return hydratedMsg{err: c.Hydrate(ctx)}
	}
}

func (m Model) waitGuest() tea.Cmd {
	if m.guest == nil {
		return nil
	}
	ctx := m.ctx
	shown := m.guest.Shown()
	return func() tea.Msg {
		select {
		case <-shown:
			return guestShownMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) waitChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	ctx := m.ctx
	ch := m.changes
	return func() tea.Msg {
		select {
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			return sessionChangedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) waitReply(ex *chat.Exchange) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case <-ex.Done():
			return replyMsg{id: ex.Request.ID}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := msg.Height - headerHeight - footerHeight
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.input.Width = msg.Width - 4
		m.renderer = newRenderer(m.styles.Theme, msg.Width-8)
		m.rendered = make(map[string]string)
		m.refresh()
		return m, nil

	case hydratedMsg:
		switch {
		case msg.err == nil, errors.Is(msg.err, chat.ErrNoSession), errors.Is(msg.err, chat.ErrClosed):
		case api.IsUnauthorized(msg.err):
			m.status = signedOut
		default:
			m.status = historyFailed
		}
		m.user = m.currentUser()
		m.refresh()
		return m, nil

	case replyMsg:
		m.logger.Debug("reply settled", zap.String("reply_to", msg.id))
		m.refresh()
		return m, nil

	case guestShownMsg:
		m.logger.Debug("showing guest prompt")
		return m, nil

	case sessionChangedMsg:
		m.user = m.currentUser()
		return m, m.waitChange()

	case spinner.TickMsg:
		if !m.chat.Loading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.shutdown()
		m.quitting = true
		return m, tea.Quit
	}

	if m.guestVisible() {
		switch msg.String() {
		case "esc":
			m.guest.Dismiss()
		case "g", "G":
			m.guest.ContinueAsGuest()
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEnter:
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		wasLoading := m.chat.Loading()
		m.chat.SetInput(text)
		ex, ok := m.chat.Submit(m.ctx)
		if !ok {
			return m, nil
		}
		m.input.Reset()
		m.status = ""
		m.refresh()
		cmds := []tea.Cmd{m.waitReply(ex)}
		if !wasLoading {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) shutdown() {
	m.cancel()
	m.chat.Close()
	if m.guest != nil {
		m.guest.Close()
	}
}

func (m Model) guestVisible() bool {
	return m.guest != nil && m.guest.Visible()
}

func (m Model) currentUser() string {
	sess, ok := m.store.Get()
	if !ok {
		return ""
	}
	p := sess.Profile()
	switch {
	case p.Name != "":
		return p.Name
	case p.Email != "":
		return p.Email
	default:
		return "signed in"
	}
}

// refresh re-renders the transcript into the viewport and scrolls to the end.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) renderTranscript() string {
	var b strings.Builder
	for i, msg := range m.chat.Transcript() {
		if i > 0 {
			b.WriteString("\n")
		}
		switch msg.Role {
		case chat.RoleUser:
			b.WriteString(m.styles.User.Render("You"))
			b.WriteString("\n")
			b.WriteString(msg.Content)
			b.WriteString("\n")
		default:
			b.WriteString(m.styles.Bot.Render("AURA"))
			b.WriteString("\n")
			b.WriteString(m.renderBot(msg))
		}
	}
	return b.String()
}

func (m *Model) renderBot(msg chat.Message) string {
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	out := msg.Content + "\n"
	if m.renderer != nil {
		if r, err := m.renderer.Render(msg.Content); err == nil {
			out = strings.Trim(r, "\n") + "\n"
		} else {
			m.logger.Debug("markdown render failed", zap.Error(err))
		}
	}
	m.rendered[msg.ID] = out
	return out
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	who := "guest"
	if m.user != "" {
		who = m.user
	}
	header := m.styles.Header.Width(m.width).Render(fmt.Sprintf("AURA  ·  %s", who))

	body := m.viewport.View()
	if m.guestVisible() {
		box := m.styles.Overlay.Render(strings.Join([]string{
			m.styles.Bot.Render("Sign in to keep your chat history"),
			"",
			"Run `aura login` in another terminal, or keep chatting as a guest.",
			"",
			m.styles.Muted.Render("[g] continue as guest   [esc] close"),
		}, "\n"))
		body = lipgloss.Place(m.viewport.Width, m.viewport.Height, lipgloss.Center, lipgloss.Center, box)
	}

	status := ""
	switch {
	case m.chat.Loading():
		status = m.spinner.View() + m.styles.Muted.Render(" AURA is thinking...")
	case m.status != "":
		status = m.styles.Error.Render(m.status)
	}

	footer := m.styles.Footer.Render("Enter send · PgUp/PgDn scroll · Ctrl+C quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		body,
		status,
		m.input.View(),
		footer,
	)
}

// Run drives the chat screen until the user quits. The chat session and the
// guest prompt are closed on return.
func Run(d Deps) error {
	m := New(d)
	defer m.shutdown()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}
