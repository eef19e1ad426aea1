package models

// Thread is a conversation summary shown in the thread list.
type Thread struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Avatar string   `json:"avatar,omitempty"`
	Online bool     `json:"online"`
	Tags   []string `json:"tags"`
	Last   string   `json:"last"`
	When   string   `json:"when"`
}

// ChangeEvent is the frame sent to websocket observers when a document changes.
type ChangeEvent struct {
	Type string `json:"type"`
}
