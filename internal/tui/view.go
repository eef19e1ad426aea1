package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Cross4solution/MedGama-sub003/internal/attachments"
	"github.com/Cross4solution/MedGama-sub003/internal/chat"
	"github.com/Cross4solution/MedGama-sub003/internal/models"
	"github.com/Cross4solution/MedGama-sub003/internal/virtualizer"
)

var (
	accentColor = lipgloss.Color("39")
	alertColor  = lipgloss.Color("196")
	mutedColor  = lipgloss.Color("242")
	readColor   = lipgloss.Color("45")

	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(mutedColor)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	mutedStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	alertStyle    = lipgloss.NewStyle().Foreground(alertColor).Bold(true)
	tagStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	cardStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(mutedColor).Padding(0, 1)
	outStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accentColor).Padding(0, 1)
	inStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(mutedColor).Padding(0, 1)
	dropStyle     = lipgloss.NewStyle().Foreground(accentColor).Italic(true)
)

var badgeStyles = map[chat.BadgeStyle]lipgloss.Style{
	chat.BadgeItalic:    lipgloss.NewStyle().Italic(true).Foreground(mutedColor),
	chat.BadgeAlert:     lipgloss.NewStyle().Foreground(alertColor),
	chat.BadgePlain:     lipgloss.NewStyle().Foreground(mutedColor),
	chat.BadgeHighlight: lipgloss.NewStyle().Foreground(readColor).Bold(true),
}

const (
	minThreadPaneWidth = 28
	messageGap         = 1
	overscanLines      = 10
)

func (m *Model) threadPaneWidth() int {
	w := m.width / 3
	if w < minThreadPaneWidth {
		w = minThreadPaneWidth
	}
	return w
}

func (m *Model) composerHeight() int {
	h := m.input.Height() + 2
	if n := len(m.composer.Staged()); n > 0 {
		h += n
	}
	if m.composer.Error() != "" || m.status != "" {
		h++
	}
	return h
}

func (m *Model) messagePaneHeight() int {
	h := m.height - m.composerHeight() - 2
	if h < 3 {
		h = 3
	}
	return h
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading…"
	}
	if m.lightbox.IsOpen() {
		return m.renderLightbox()
	}
	threads := m.renderThreads()
	right := lipgloss.JoinVertical(lipgloss.Left, m.renderMessages(), m.renderComposer())
	return lipgloss.JoinHorizontal(lipgloss.Top, threads, right)
}

func (m *Model) renderThreads() string {
	width := m.threadPaneWidth()
	filtered := m.filteredThreads()
	page := chat.Paginate(filtered, m.page)

	var b strings.Builder
	b.WriteString(m.filter.View())
	b.WriteString("\n\n")
	for i, t := range page {
		name := t.Name
		if t.Online {
			name += " ●"
		}
		if m.focus == focusThreads && i == m.selected {
			name = selectedStyle.Render("› " + name)
		} else if t.ID == m.current {
			name = selectedStyle.Render("  " + name)
		} else {
			name = "  " + name
		}
		b.WriteString(name + "\n")
		if len(t.Tags) > 0 {
			b.WriteString("    " + renderTags(t.Tags) + "\n")
		}
		if t.Last != "" {
			b.WriteString(mutedStyle.Render("    "+truncate(t.Last, width-8)+"  "+t.When) + "\n")
		}
	}
	if len(filtered) == 0 {
		b.WriteString(mutedStyle.Render("  No conversations") + "\n")
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("\n  page %d/%d  ←/→", m.page+1, chat.Pages(len(filtered)))))

	return paneStyle.Width(width - 2).Height(m.height - 2).Render(b.String())
}

func renderTags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if chat.TagStyle(tag) == chat.TagAlert {
			out = append(out, alertStyle.Render("["+tag+"]"))
			continue
		}
		out = append(out, tagStyle.Render("["+tag+"]"))
	}
	return strings.Join(out, " ")
}

func (m *Model) messagePaneWidth() int {
	return m.width - m.threadPaneWidth() - 2
}

// layout mounts the items intersecting the pane, measures them and keeps
// the tail in view while followTail is set. Measuring can change offsets,
// so it settles over a few rounds.
func (m *Model) layout() {
	if m.width == 0 || m.current == "" {
		return
	}
	width, height := m.messagePaneWidth(), m.messagePaneHeight()
	m.syncList()
	m.rendered = map[int]string{}
	for round := 0; round < 3; round++ {
		if m.followTail {
			m.scrollTop = max(0, m.list.TotalHeight()-height)
		}
		m.list.Update(m.list.ViewportAt(m.scrollTop, height))
		changed := false
		for i, msg := range m.messages {
			if !m.list.Mounted(i) {
				continue
			}
			if _, ok := m.rendered[i]; !ok {
				m.rendered[i] = m.renderBubble(msg, width-2)
			}
			if m.list.Measure(i, lipgloss.Height(m.rendered[i])) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}
}

// renderMessages draws only the slots that intersect the pane. Items the
// virtualizer has not mounted are blank placeholders of their cached height.
func (m *Model) renderMessages() string {
	width, height := m.messagePaneWidth(), m.messagePaneHeight()
	if m.current == "" || m.list == nil {
		return paneStyle.Width(width).Height(height).Render(mutedStyle.Render("Select a conversation"))
	}

	lines := make([]string, 0, height)
	for _, slot := range m.list.Slots() {
		if slot.Top+slot.Height <= m.scrollTop || slot.Top >= m.scrollTop+height {
			continue
		}
		var slotLines []string
		if s, ok := m.rendered[slot.Index]; ok && slot.Mounted {
			slotLines = strings.Split(s, "\n")
		} else {
			slotLines = make([]string, slot.Height)
		}
		for j, line := range slotLines {
			y := slot.Top + j
			if y >= m.scrollTop && y < m.scrollTop+height {
				lines = append(lines, line)
			}
		}
		for g := 0; g < messageGap && len(lines) < height; g++ {
			lines = append(lines, "")
		}
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return paneStyle.Width(width).Height(height).Render(strings.Join(lines, "\n"))
}

// syncList rebuilds the virtualizer when the thread or message count changes.
func (m *Model) syncList() {
	m.messages = m.timeline(m.current).Messages()
	if m.list == nil || m.listFor != m.current {
		msgs := &m.messages
		m.list = virtualizer.New(len(m.messages), func(i int) string {
			if i < len(*msgs) {
				return (*msgs)[i].ID
			}
			return ""
		}, virtualizer.Options{Overscan: overscanLines, EstimatedHeight: 4, Gap: messageGap})
		m.listFor = m.current
		return
	}
	m.list.SetLen(len(m.messages))
}

func (m *Model) renderBubble(msg models.Message, width int) string {
	outbound := msg.Sender == m.self
	var body strings.Builder
	if !outbound {
		body.WriteString(selectedStyle.Render(msg.Sender) + "\n")
	}
	if msg.Text != "" {
		body.WriteString(msg.Text)
	}
	for _, att := range msg.Attachments {
		body.WriteString("\n" + renderAttachment(att))
	}
	meta := mutedStyle.Render(msg.Time.Format("15:04"))
	if badge := chat.StatusBadge(msg, outbound); badge.Text != "" {
		meta += " " + badgeStyles[badge.Style].Render(badge.Text)
	}
	body.WriteString("\n" + meta)

	bubbleWidth := width * 3 / 4
	style := inStyle
	if outbound {
		style = outStyle
	}
	if lipgloss.Width(body.String())+4 > bubbleWidth {
		style = style.Width(bubbleWidth)
	}
	bubble := style.Render(body.String())
	if outbound {
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, bubble)
	}
	return bubble
}

func renderAttachment(att models.Attachment) string {
	switch chat.KindOf(att.FileType) {
	case chat.KindImage:
		return cardStyle.Render("🖼 " + att.FileName + mutedStyle.Render("  ctrl+o to view"))
	case chat.KindVideo:
		return cardStyle.Render("▶ " + att.FileName)
	case chat.KindAudio:
		return cardStyle.Render("♪ " + att.FileName)
	}
	return cardStyle.Render(chat.FileIcon(att.FileType) + " " + att.FileName + "  " + mutedStyle.Render(attachments.FormatSize(att.FileSize)))
}

func (m *Model) renderComposer() string {
	width := m.width - m.threadPaneWidth() - 2
	var b strings.Builder
	for i, s := range m.composer.Staged() {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("[%d] %s %s (%s)", i+1, chat.FileIcon(s.MIMEType), s.Name, attachments.FormatSize(s.Size))) + "\n")
	}
	if m.composer.DropActive() {
		b.WriteString(dropStyle.Render("Drop files to attach") + "\n")
	}
	if e := m.composer.Error(); e != "" {
		b.WriteString(alertStyle.Render(e) + mutedStyle.Render("  ctrl+x") + "\n")
	} else if m.status != "" {
		b.WriteString(mutedStyle.Render(m.status) + "\n")
	}
	b.WriteString(m.input.View())
	footer := mutedStyle.Render(string(m.composer.State()))
	return paneStyle.Width(width).Render(b.String() + "\n" + footer)
}

func (m *Model) renderLightbox() string {
	box := paneStyle.Padding(1, 2).Render(m.lightbox.URL() + "\n\n" + mutedStyle.Render("esc to close"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func truncate(s string, n int) string {
	if n <= 1 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
