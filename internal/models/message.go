package models

import "time"

// MessageStatus tracks delivery of a message from the sender's point of view.
type MessageStatus string

const (
	MessageSending   MessageStatus = "sending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// Rank orders the happy-path statuses. Failed and unknown statuses rank -1.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageSending:
		return 0
	case MessageSent:
		return 1
	case MessageDelivered:
		return 2
	case MessageRead:
		return 3
	default:
		return -1
	}
}

// CanAdvance reports whether a message may move from one status to another.
// The happy path only moves forward; failed is reachable from sending alone
// and is terminal until the message is retried.
func CanAdvance(from, to MessageStatus) bool {
	if to == MessageFailed {
		return from == MessageSending
	}
	if from == MessageFailed || to.Rank() < 0 {
		return false
	}
	return to.Rank() > from.Rank()
}

// Attachment is a file carried by a message.
type Attachment struct {
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
	URL      string `json:"url"`
	ThumbURL string `json:"thumb_url,omitempty"`
}

// Message is a chat message as seen by the client.
type Message struct {
	ID          string        `json:"id"`
	Sender      string        `json:"sender"`
	Text        string        `json:"text"`
	Time        time.Time     `json:"time"`
	Status      MessageStatus `json:"status"`
	Attachments []Attachment  `json:"attachments"`
}

// StatusEvent is pushed over the real-time channel when the server acks a message.
type StatusEvent struct {
	MessageID string        `json:"message_id"`
	Status    MessageStatus `json:"status"`
}
