package sinks

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendnode/wagateway/pkg/event"
)

// testBrokerSink builds a sink without the publish loop so enqueued items can
// be inspected on the queue directly.
func testBrokerSink(size int) *BrokerSink {
	return &BrokerSink{
		url:      "amqp://localhost:5672",
		exchange: "wagateway",
		queue:    make(chan brokerItem, size),
	}
}

func TestBrokerRoutingKeys(t *testing.T) {
	s := testBrokerSink(1)
	assert.Equal(t, "wagateway.baileys.message", s.RoutingKey(event.KindMessage))
	assert.Equal(t, "wagateway.baileys.message_ack", s.RoutingKey(event.KindMessageAck))
	assert.Equal(t, "wagateway.baileys.session_update", s.RoutingKey(event.KindSessionStatus))
	assert.Equal(t, "wagateway.baileys.qr_code", s.RoutingKey(event.KindQR))
}

func TestBrokerEnqueueBuildsMessageBody(t *testing.T) {
	s := testBrokerSink(4)

	s.enqueue(event.MessageEvent{
		SessionID:   "s1",
		OwnerID:     "acct",
		MessageType: event.TypeText,
		RemoteParty: "5511@s.whatsapp.net",
		Content:     event.Content{Text: "hi"},
	})

	var item brokerItem
	select {
	case item = <-s.queue:
	case <-time.After(time.Second):
		t.Fatal("nothing enqueued")
	}

	assert.Equal(t, "wagateway.baileys.message", item.routingKey)

	// Downstream consumers match the body keys exactly
	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(item.body, &keys))
	for _, key := range []string{"instanceID", "companyID", "whatsappID", "payload"} {
		assert.Contains(t, keys, key)
	}

	var msg BrokerMessage
	require.NoError(t, json.Unmarshal(item.body, &msg))
	assert.Equal(t, "s1", msg.InstanceID)
	assert.Equal(t, "acct", msg.CompanyID)
	assert.Equal(t, "5511@s.whatsapp.net", msg.WhatsappID)

	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hi", payload["content"].(map[string]interface{})["text"])
}

func TestBrokerEnqueueStatusEventHasNoCompany(t *testing.T) {
	s := testBrokerSink(1)
	s.enqueue(event.SessionStatusEvent{SessionID: "s1", Status: event.StatusConnected})

	item := <-s.queue
	var msg BrokerMessage
	require.NoError(t, json.Unmarshal(item.body, &msg))
	assert.Equal(t, "s1", msg.InstanceID)
	assert.Empty(t, msg.CompanyID)
	assert.Empty(t, msg.WhatsappID)
}

func TestBrokerQueueFullDropsEvent(t *testing.T) {
	s := testBrokerSink(1)

	s.enqueue(event.QREvent{SessionID: "s1", QRImage: "a"})
	// Queue is full; this must not block
	done := make(chan struct{})
	go func() {
		s.enqueue(event.QREvent{SessionID: "s1", QRImage: "b"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on full queue")
	}

	assert.Len(t, s.queue, 1)
}
