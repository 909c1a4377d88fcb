package sinks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sendnode/wagateway/pkg/bus"
	"github.com/sendnode/wagateway/pkg/event"
	"github.com/sendnode/wagateway/pkg/logger"
)

const (
	brokerQueueSize      = 256
	brokerPublishTimeout = 10 * time.Second
)

// BrokerMessage is the JSON body published to the broker. The key casing is
// part of the downstream wire contract; consumers match on it exactly.
type BrokerMessage struct {
	InstanceID string      `json:"instanceID"`
	CompanyID  string      `json:"companyID,omitempty"`
	WhatsappID string      `json:"whatsappID,omitempty"`
	Payload    interface{} `json:"payload"`
}

// BrokerSink publishes events to a durable AMQP topic exchange. Publishing is
// decoupled from the bus through a bounded queue; when the queue is full the
// event is dropped with a warning rather than blocking the publisher.
//
// The connection is lazy and self-healing: the first publish dials, a broker
// close observed on NotifyClose clears the cached channel, and the next
// publish dials again. At most one dial is ever in flight.
type BrokerSink struct {
	url      string
	exchange string
	queue    chan brokerItem

	mu         sync.Mutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	connecting bool
}

type brokerItem struct {
	routingKey string
	body       []byte
}

func NewBrokerSink(url, exchange string) *BrokerSink {
	s := &BrokerSink{
		url:      url,
		exchange: exchange,
		queue:    make(chan brokerItem, brokerQueueSize),
	}
	go s.run()
	return s
}

// Attach subscribes the sink to every event kind.
func (s *BrokerSink) Attach(b *bus.EventBus) {
	for _, kind := range []event.Kind{event.KindSessionStatus, event.KindQR, event.KindMessage, event.KindMessageAck} {
		b.Subscribe(kind, s.enqueue)
	}
}

func (s *BrokerSink) enqueue(evt event.Event) {
	msg := BrokerMessage{
		InstanceID: evt.Session(),
		Payload:    evt,
	}
	switch e := evt.(type) {
	case event.MessageEvent:
		msg.CompanyID = e.OwnerID
		msg.WhatsappID = e.RemoteParty
	case event.MessageAckEvent:
		msg.CompanyID = e.OwnerID
		msg.WhatsappID = e.RemoteParty
	}

	body, err := json.Marshal(msg)
	if err != nil {
		logger.ErrorCF("broker", "Message marshal failed", map[string]interface{}{
			"session": evt.Session(),
			"error":   err.Error(),
		})
		return
	}

	item := brokerItem{
		routingKey: s.RoutingKey(evt.EventKind()),
		body:       body,
	}
	select {
	case s.queue <- item:
	default:
		logger.WarnCF("broker", "Publish queue full, dropping event", map[string]interface{}{
			"session": evt.Session(),
			"kind":    string(evt.EventKind()),
		})
	}
}

// RoutingKey builds the topic key events of a kind are published under.
func (s *BrokerSink) RoutingKey(kind event.Kind) string {
	return s.exchange + ".baileys." + string(kind)
}

func (s *BrokerSink) run() {
	for item := range s.queue {
		s.publish(item)
	}
}

func (s *BrokerSink) publish(item brokerItem) {
	ch, err := s.ensureChannel()
	if err != nil {
		logger.WarnCF("broker", "Broker unavailable, dropping event", map[string]interface{}{
			"routingKey": item.routingKey,
			"error":      err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), brokerPublishTimeout)
	defer cancel()

	err = ch.PublishWithContext(ctx, s.exchange, item.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         item.body,
	})
	if err != nil {
		logger.WarnCF("broker", "Publish failed", map[string]interface{}{
			"routingKey": item.routingKey,
			"error":      err.Error(),
		})
		s.reset()
	}
}

func (s *BrokerSink) ensureChannel() (*amqp.Channel, error) {
	s.mu.Lock()
	if s.channel != nil {
		ch := s.channel
		s.mu.Unlock()
		return ch, nil
	}
	if s.connecting {
		s.mu.Unlock()
		return nil, amqp.ErrClosed
	}
	s.connecting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	closed := make(chan *amqp.Error, 1)
	ch.NotifyClose(closed)
	go func() {
		if amqpErr := <-closed; amqpErr != nil {
			logger.WarnCF("broker", "Channel closed by broker", map[string]interface{}{
				"error": amqpErr.Error(),
			})
		}
		s.reset()
	}()

	s.mu.Lock()
	s.conn = conn
	s.channel = ch
	s.mu.Unlock()

	logger.InfoCF("broker", "Connected to broker", map[string]interface{}{
		"exchange": s.exchange,
	})
	return ch, nil
}

func (s *BrokerSink) reset() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.channel = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Close stops the publish loop and drops the broker connection.
func (s *BrokerSink) Close() {
	close(s.queue)
	s.reset()
}
