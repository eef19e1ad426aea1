package chat

import (
	"strings"

	"github.com/Cross4solution/MedGama-sub003/internal/models"
)

// Kind is how an attachment is presented, decided by MIME family alone.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindFile  Kind = "file"
)

func KindOf(mimeType string) Kind {
	family, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), "/")
	switch family {
	case "image":
		return KindImage
	case "video":
		return KindVideo
	case "audio":
		return KindAudio
	default:
		return KindFile
	}
}

// FileIcon picks the icon of a generic file card.
func FileIcon(mimeType string) string {
	m := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(m, "image/"):
		return "🖼"
	case strings.HasPrefix(m, "video/"):
		return "🎞"
	case strings.HasPrefix(m, "audio/"):
		return "🎵"
	case m == "application/pdf":
		return "📕"
	case strings.Contains(m, "spreadsheet"), strings.Contains(m, "excel"), m == "text/csv":
		return "📊"
	case strings.Contains(m, "presentation"), strings.Contains(m, "powerpoint"):
		return "📽"
	case strings.Contains(m, "zip"), strings.Contains(m, "rar"), strings.Contains(m, "7z"), strings.Contains(m, "compressed"):
		return "🗜"
	case strings.HasPrefix(m, "text/"), strings.Contains(m, "word"), strings.Contains(m, "document"):
		return "📄"
	default:
		return "📎"
	}
}

// BadgeStyle tells the renderer how to draw a status badge.
type BadgeStyle string

const (
	BadgeNone      BadgeStyle = ""
	BadgeItalic    BadgeStyle = "italic"
	BadgeAlert     BadgeStyle = "alert"
	BadgePlain     BadgeStyle = "plain"
	BadgeHighlight BadgeStyle = "highlight"
)

// Badge is the delivery indicator drawn on a message bubble.
type Badge struct {
	Text  string
	Style BadgeStyle
}

// StatusBadge returns the indicator for msg. Inbound messages get none.
func StatusBadge(msg models.Message, outbound bool) Badge {
	if !outbound {
		return Badge{}
	}
	switch msg.Status {
	case models.MessageSending:
		return Badge{Text: "sending…", Style: BadgeItalic}
	case models.MessageFailed:
		return Badge{Text: "failed", Style: BadgeAlert}
	case models.MessageSent:
		return Badge{Text: "✓", Style: BadgePlain}
	case models.MessageDelivered:
		return Badge{Text: "✓✓", Style: BadgePlain}
	case models.MessageRead:
		return Badge{Text: "✓✓", Style: BadgeHighlight}
	default:
		return Badge{}
	}
}

// Lightbox is the full-screen image overlay.
type Lightbox struct {
	url string
}

func (l *Lightbox) Open(url string) {
	l.url = url
}

func (l *Lightbox) Close() {
	l.url = ""
}

func (l *Lightbox) IsOpen() bool {
	return l.url != ""
}

func (l *Lightbox) URL() string {
	return l.url
}

// HandleKey closes the overlay on escape and reports whether it consumed the key.
func (l *Lightbox) HandleKey(key string) bool {
	if !l.IsOpen() {
		return false
	}
	if key == "esc" || key == "escape" {
		l.Close()
	}
	return true
}

// ClickOutside closes the overlay.
func (l *Lightbox) ClickOutside() {
	l.Close()
}
