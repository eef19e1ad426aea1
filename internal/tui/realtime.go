package tui

import (
	"context"
	"encoding/json"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Cross4solution/MedGama-sub003/internal/models"
	"github.com/Cross4solution/MedGama-sub003/internal/realtime"
)

const (
	eventMessageCreated   = "message.created"
	eventMessageDelivered = "message.delivered"
	eventMessageRead      = "message.read"
)

func channelFor(threadID string) string {
	return "private-chat." + threadID
}

// subscribeCmd subscribes the thread's private channel. Without a connector
// it yields no message and the tick loop keeps polling.
func (m *Model) subscribeCmd(threadID string) tea.Cmd {
	if m.rt == nil {
		return nil
	}
	rt, events, done := m.rt, m.events, m.done
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		conn, err := rt.Connector(ctx)
		if err != nil {
			log.Printf("realtime unavailable, polling thread_id=%s err=%v", threadID, err)
			return nil
		}
		if conn == nil {
			return nil
		}
		err = conn.Subscribe(ctx, channelFor(threadID), func(event string, data []byte) {
			select {
			case events <- pushMsg{threadID: threadID, event: event, data: data}:
			case <-done:
			default:
				log.Printf("realtime event dropped thread_id=%s event=%s", threadID, event)
			}
		})
		if err != nil {
			log.Printf("realtime subscribe failed thread_id=%s err=%v", threadID, err)
			return nil
		}
		return subscribedMsg{threadID: threadID, conn: conn}
	}
}

// watchConnection reports when a subscribed connector drops so the thread
// falls back to polling and resubscribes.
func (m *Model) watchConnection(threadID string, conn realtime.Connector) tea.Cmd {
	l, ok := conn.(realtime.Liveness)
	if !ok {
		return nil
	}
	done := m.done
	return func() tea.Msg {
		select {
		case <-l.Done():
			return connectionLostMsg{threadID: threadID}
		case <-done:
			return nil
		}
	}
}

func (m *Model) waitForEvent() tea.Cmd {
	events, done := m.events, m.done
	return func() tea.Msg {
		select {
		case e := <-events:
			return e
		case <-done:
			return nil
		}
	}
}

func (m *Model) tickCmd() tea.Cmd {
	if m.ticker == nil {
		return nil
	}
	ticker, done := m.ticker, m.done
	return func() tea.Msg {
		select {
		case t := <-ticker.C:
			return tickMsg(t)
		case <-done:
			return nil
		}
	}
}

// pollIfDue refetches the open thread when no push subscription covers it.
func (m *Model) pollIfDue(now time.Time) tea.Cmd {
	if m.current == "" || m.subscribed == m.current {
		return nil
	}
	if now.Sub(m.lastPoll) < m.poll {
		return nil
	}
	m.lastPoll = now
	return m.loadMessagesCmd(m.current)
}

func (m *Model) applyPush(msg pushMsg) {
	tl := m.timeline(msg.threadID)
	switch msg.event {
	case eventMessageCreated:
		var created models.Message
		if err := json.Unmarshal(msg.data, &created); err != nil || created.ID == "" {
			log.Printf("realtime payload malformed event=%s err=%v", msg.event, err)
			return
		}
		tl.Merge([]models.Message{created})
	case eventMessageDelivered, eventMessageRead:
		var ev models.StatusEvent
		if err := json.Unmarshal(msg.data, &ev); err != nil || ev.MessageID == "" {
			log.Printf("realtime payload malformed event=%s err=%v", msg.event, err)
			return
		}
		if ev.Status == "" {
			ev.Status = models.MessageDelivered
			if msg.event == eventMessageRead {
				ev.Status = models.MessageRead
			}
		}
		tl.Apply(ev.MessageID, ev.Status)
	}
}
