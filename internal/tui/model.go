// Package tui is the terminal chat client: a thread list, a virtualized
// message pane and a composer with attachment staging.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Cross4solution/MedGama-sub003/internal/attachments"
	"github.com/Cross4solution/MedGama-sub003/internal/chat"
	"github.com/Cross4solution/MedGama-sub003/internal/models"
	"github.com/Cross4solution/MedGama-sub003/internal/realtime"
	"github.com/Cross4solution/MedGama-sub003/internal/virtualizer"
)

const (
	defaultPollInterval = 3 * time.Second
	tickInterval        = time.Second
	requestTimeout      = 30 * time.Second
	eventBuffer         = 64
)

// API is the REST surface the client needs.
type API interface {
	chat.Sender
	chat.Uploader
	Threads(ctx context.Context) ([]models.Thread, error)
	Messages(ctx context.Context, threadID string) ([]models.Message, error)
}

// Realtime hands out the shared push connector. A nil connector means no
// transport is configured.
type Realtime interface {
	Connector(ctx context.Context) (realtime.Connector, error)
}

// Options configure the client.
type Options struct {
	API          API
	Uploader     chat.Uploader
	Realtime     Realtime
	Self         string
	Previews     attachments.PreviewRegistry
	PollInterval time.Duration
}

type focus int

const (
	focusComposer focus = iota
	focusThreads
)

// Run starts the client and blocks until the user quits.
func Run(opts Options) error {
	model := NewModel(opts)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	model.Close()
	return err
}

// Model implements the client UI.
type Model struct {
	api      API
	rt       Realtime
	self     string
	poll     time.Duration
	composer *chat.Composer
	lightbox chat.Lightbox

	filter    textinput.Model
	input     textarea.Model
	focus     focus
	threads   []models.Thread
	page      int
	selected  int
	current   string
	timelines map[string]*chat.Timeline

	list       *virtualizer.List
	listFor    string
	messages   []models.Message
	rendered   map[int]string
	scrollTop  int
	followTail bool

	subscribed string
	conn       realtime.Connector
	events     chan tea.Msg
	ticker     *time.Ticker
	done       chan struct{}
	lastPoll   time.Time

	status string
	width  int
	height int
}

type threadsLoadedMsg struct {
	threads []models.Thread
}

type messagesLoadedMsg struct {
	threadID string
	messages []models.Message
}

type sentMsg struct {
	threadID string
	err      error
}

type subscribedMsg struct {
	threadID string
	conn     realtime.Connector
}

type connectionLostMsg struct {
	threadID string
}

type pushMsg struct {
	threadID string
	event    string
	data     []byte
}

type tickMsg time.Time

type errMsg struct {
	err error
}

// NewModel builds the client model.
func NewModel(opts Options) *Model {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	filter := textinput.New()
	filter.Placeholder = "Search conversations"
	filter.Prompt = "⌕ "

	input := textarea.New()
	input.Placeholder = "Write a message…"
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(3)
	input.Focus()

	var uploader chat.Uploader = opts.API
	if opts.Uploader != nil {
		uploader = opts.Uploader
	}
	stage := attachments.NewStage(attachments.DefaultPolicy(), opts.Previews)
	return &Model{
		api:        opts.API,
		rt:         opts.Realtime,
		self:       opts.Self,
		poll:       poll,
		composer:   chat.NewComposer(opts.API, uploader, stage, opts.Self),
		filter:     filter,
		input:      input,
		timelines:  map[string]*chat.Timeline{},
		followTail: true,
		events:     make(chan tea.Msg, eventBuffer),
		done:       make(chan struct{}),
		status:     "Loading conversations…",
	}
}

func (m *Model) Init() tea.Cmd {
	m.ticker = time.NewTicker(tickInterval)
	return tea.Batch(textarea.Blink, m.loadThreadsCmd(), m.tickCmd(), m.waitForEvent())
}

// Close stops the tick timer and drops the thread subscription.
func (m *Model) Close() {
	select {
	case <-m.done:
		return
	default:
		close(m.done)
	}
	if m.ticker != nil {
		m.ticker.Stop()
	}
	if m.conn != nil && m.subscribed != "" {
		_ = m.conn.Unsubscribe(channelFor(m.subscribed))
	}
}

// Update applies msg and then lays out the message pane, so View only reads.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := m.update(msg)
	m.layout()
	return model, cmd
}

func (m *Model) update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case threadsLoadedMsg:
		m.threads = msg.threads
		m.status = ""
		if m.current == "" && len(msg.threads) > 0 {
			return m, m.openThread(msg.threads[0].ID)
		}
		return m, nil
	case messagesLoadedMsg:
		m.timeline(msg.threadID).Merge(msg.messages)
		return m, nil
	case sentMsg:
		if msg.err != nil && !errors.Is(msg.err, chat.ErrInFlight) {
			m.status = "Send failed: " + msg.err.Error()
		}
		return m, nil
	case subscribedMsg:
		m.conn = msg.conn
		if msg.threadID != m.current {
			_ = msg.conn.Unsubscribe(channelFor(msg.threadID))
			return m, nil
		}
		m.subscribed = msg.threadID
		return m, m.watchConnection(msg.threadID, msg.conn)
	case connectionLostMsg:
		if msg.threadID != m.subscribed {
			return m, nil
		}
		m.subscribed = ""
		m.lastPoll = time.Time{}
		m.status = "Live updates lost, reconnecting."
		return m, m.subscribeCmd(m.current)
	case pushMsg:
		m.applyPush(msg)
		return m, m.waitForEvent()
	case tickMsg:
		return m, tea.Batch(m.tickCmd(), m.pollIfDue(time.Time(msg)))
	case errMsg:
		m.status = msg.err.Error()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if m.lightbox.HandleKey(key) {
		return nil
	}
	switch key {
	case "ctrl+c":
		return tea.Quit
	case "tab":
		m.toggleFocus()
		return nil
	case "ctrl+x":
		m.composer.DismissError()
		m.status = ""
		return nil
	case "pgup":
		m.scroll(-m.messagePaneHeight() / 2)
		return nil
	case "pgdown":
		m.scroll(m.messagePaneHeight() / 2)
		return nil
	}
	if m.focus == focusThreads {
		return m.handleThreadKey(msg)
	}
	return m.handleComposerKey(msg)
}

func (m *Model) handleThreadKey(msg tea.KeyMsg) tea.Cmd {
	visible := m.visibleThreads()
	switch msg.String() {
	case "up":
		if m.selected > 0 {
			m.selected--
		}
		return nil
	case "down":
		if m.selected < len(visible)-1 {
			m.selected++
		}
		return nil
	case "left":
		m.setPage(m.page - 1)
		return nil
	case "right":
		m.setPage(m.page + 1)
		return nil
	case "enter":
		if m.selected < len(visible) {
			m.toggleFocus()
			return m.openThread(visible[m.selected].ID)
		}
		return nil
	}

	var cmd tea.Cmd
	before := m.filter.Value()
	m.filter, cmd = m.filter.Update(msg)
	if m.filter.Value() != before {
		m.page, m.selected = 0, 0
	}
	return cmd
}

func (m *Model) handleComposerKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case msg.Type == tea.KeyEnter && msg.Alt, msg.Type == tea.KeyCtrlJ:
		m.input.InsertString("\n")
		return nil
	case msg.Type == tea.KeyEnter:
		return m.send()
	case msg.Type == tea.KeyCtrlD:
		if n := len(m.composer.Staged()); n > 0 {
			_ = m.composer.RemoveFile(n - 1)
		}
		return nil
	case msg.Type == tea.KeyCtrlR:
		return m.retryLastFailed()
	case msg.Type == tea.KeyCtrlO:
		m.openLastImage()
		return nil
	case msg.Type == tea.KeyRunes && msg.Paste:
		if paths := droppedPaths(string(msg.Runes)); len(paths) > 0 {
			m.drop(paths)
			return nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// drop stages files pasted as paths, the terminal form of drag and drop.
func (m *Model) drop(paths []string) {
	m.composer.DragOver()
	batch := make([]attachments.Candidate, 0, len(paths))
	for _, p := range paths {
		c, err := attachments.FromFile(p)
		if err != nil {
			m.composer.DragLeave()
			m.status = err.Error()
			return
		}
		batch = append(batch, c)
	}
	_ = m.composer.Drop(batch)
}

func (m *Model) send() tea.Cmd {
	if m.current == "" {
		m.status = "Select a conversation first."
		return nil
	}
	m.composer.SetText(m.input.Value())
	threadID := m.current
	composer := m.composer
	if strings.TrimSpace(m.input.Value()) == "" && len(composer.Staged()) == 0 {
		return nil
	}
	m.input.Reset()
	m.followTail = true
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		err := composer.HandleKey(ctx, chat.Key{Name: "enter"})
		return sentMsg{threadID: threadID, err: err}
	}
}

func (m *Model) retryLastFailed() tea.Cmd {
	if m.current == "" {
		return nil
	}
	msgs := m.timeline(m.current).Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Status != models.MessageFailed {
			continue
		}
		id, threadID, composer := msgs[i].ID, m.current, m.composer
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			_, err := composer.Retry(ctx, id)
			return sentMsg{threadID: threadID, err: err}
		}
	}
	return nil
}

func (m *Model) openLastImage() {
	if m.current == "" {
		return
	}
	msgs := m.timeline(m.current).Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		for j := len(msgs[i].Attachments) - 1; j >= 0; j-- {
			att := msgs[i].Attachments[j]
			if chat.KindOf(att.FileType) == chat.KindImage && att.URL != "" {
				m.lightbox.Open(att.URL)
				return
			}
		}
	}
}

func (m *Model) toggleFocus() {
	if m.focus == focusComposer {
		m.focus = focusThreads
		m.input.Blur()
		m.filter.Focus()
		return
	}
	m.focus = focusComposer
	m.filter.Blur()
	m.input.Focus()
}

func (m *Model) filteredThreads() []models.Thread {
	return chat.FilterThreads(m.threads, m.filter.Value())
}

func (m *Model) visibleThreads() []models.Thread {
	return chat.Paginate(m.filteredThreads(), m.page)
}

func (m *Model) setPage(page int) {
	last := chat.Pages(len(m.filteredThreads())) - 1
	if page < 0 {
		page = 0
	}
	if page > last {
		page = last
	}
	if page != m.page {
		m.page, m.selected = page, 0
	}
}

func (m *Model) timeline(threadID string) *chat.Timeline {
	tl, ok := m.timelines[threadID]
	if !ok {
		tl = chat.NewTimeline()
		m.timelines[threadID] = tl
	}
	return tl
}

// openThread selects a thread, loads its messages and moves the push
// subscription over to it.
func (m *Model) openThread(threadID string) tea.Cmd {
	if threadID == m.current {
		return nil
	}
	if m.conn != nil && m.subscribed != "" {
		_ = m.conn.Unsubscribe(channelFor(m.subscribed))
		m.subscribed = ""
	}
	m.current = threadID
	m.composer.SetTarget(threadID, m.timeline(threadID))
	m.followTail = true
	m.scrollTop = 0
	return tea.Batch(m.loadMessagesCmd(threadID), m.subscribeCmd(threadID))
}

func (m *Model) loadThreadsCmd() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		threads, err := api.Threads(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return threadsLoadedMsg{threads: threads}
	}
}

func (m *Model) loadMessagesCmd(threadID string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		msgs, err := api.Messages(ctx, threadID)
		if err != nil {
			return errMsg{err: err}
		}
		return messagesLoadedMsg{threadID: threadID, messages: msgs}
	}
}

func (m *Model) resize() {
	threadWidth := m.threadPaneWidth()
	m.filter.Width = threadWidth - 4
	m.input.SetWidth(m.width - threadWidth - 2)
}

func (m *Model) scroll(delta int) {
	m.scrollTop += delta
	if m.scrollTop < 0 {
		m.scrollTop = 0
	}
	m.followTail = false
	if m.list != nil && m.scrollTop >= m.list.TotalHeight()-m.messagePaneHeight() {
		m.followTail = true
	}
}
