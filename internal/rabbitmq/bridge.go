package rabbitmq

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Cross4solution/MedGama-sub003/internal/events"
	"github.com/Cross4solution/MedGama-sub003/internal/observability"
)

// Bridge forwards change notifications between service instances. Local
// events are published with the event name as routing key and an empty body;
// events from other instances are re-dispatched on the local bus only.
type Bridge struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	instanceID string
	bus        *events.LocalBus
	done       chan struct{}
}

// NewBridge subscribes an exclusive queue to the exchange and hooks into bus.
func NewBridge(amqpURL, exchange, instanceID string, bus *events.LocalBus) (*Bridge, error) {
	conn, ch, err := dialExchange(amqpURL, exchange)
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		closeAll(ch, conn)
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	for _, event := range []string{events.InvitesChanged, events.ConnectionsChanged} {
		if err := ch.QueueBind(q.Name, event, exchange, false, nil); err != nil {
			closeAll(ch, conn)
			return nil, fmt.Errorf("bind %s: %w", event, err)
		}
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		closeAll(ch, conn)
		return nil, fmt.Errorf("consume: %w", err)
	}

	b := &Bridge{
		conn:       conn,
		ch:         ch,
		exchange:   exchange,
		instanceID: instanceID,
		bus:        bus,
		done:       make(chan struct{}),
	}
	bus.OnDispatch(b.forward)
	go b.consume(deliveries)

	log.Printf("change bridge connected exchange=%s instance_id=%s", exchange, instanceID)
	return b, nil
}

func (b *Bridge) forward(event string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.ch.PublishWithContext(ctx, b.exchange, event, false, false, amqp.Publishing{
		AppId:     b.instanceID,
		Type:      event,
		Timestamp: time.Now(),
	})
	if err != nil {
		observability.IncAMQPPublishError()
		log.Printf("change bridge publish failed event=%s err=%v", event, err)
	}
}

func (b *Bridge) consume(deliveries <-chan amqp.Delivery) {
	defer close(b.done)
	for d := range deliveries {
		b.handle(d)
	}
}

// handle re-dispatches a delivery unless it is our own echo or an unknown event.
func (b *Bridge) handle(d amqp.Delivery) bool {
	if d.AppId == b.instanceID {
		return false
	}
	switch d.RoutingKey {
	case events.InvitesChanged, events.ConnectionsChanged:
		b.bus.DispatchLocal(d.RoutingKey)
		return true
	default:
		return false
	}
}

// Close stops consuming and closes the connection.
func (b *Bridge) Close() error {
	err := closeAll(b.ch, b.conn)
	<-b.done
	return err
}
