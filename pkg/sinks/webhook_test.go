package sinks

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendnode/wagateway/pkg/event"
	"github.com/sendnode/wagateway/pkg/storage"
	"github.com/sendnode/wagateway/pkg/storage/file"
	"github.com/sendnode/wagateway/pkg/storage/repository"
)

type received struct {
	signature string
	body      []byte
}

func captureServer(t *testing.T, out chan<- received) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		out <- received{signature: r.Header.Get(SignatureHeader), body: body}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestWebhookEnvelopeAndSignature(t *testing.T) {
	got := make(chan received, 1)
	srv := captureServer(t, got)
	defer srv.Close()

	sink := NewWebhookSink(nil, srv.URL, "topsecret")
	sink.deliver(event.MessageEvent{
		SessionID:        "s1",
		OwnerID:          "acct",
		MessageType:      event.TypeText,
		RemoteParty:      "5511@s.whatsapp.net",
		TimestampSeconds: 1700000000,
		Content:          event.Content{Text: "hello"},
	})

	var r received
	select {
	case r = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery received")
	}

	var envelope WebhookEnvelope
	require.NoError(t, json.Unmarshal(r.body, &envelope))
	assert.Equal(t, "message", envelope.Event)
	assert.Equal(t, "s1", envelope.SessionID)

	ts, err := time.Parse(time.RFC3339, envelope.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, time.Minute)

	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hello", data["content"].(map[string]interface{})["text"])
	assert.Equal(t, "5511@s.whatsapp.net", data["from"])

	// The signature is the HMAC of the exact wire body
	want := Sign([]byte("topsecret"), r.body)
	assert.True(t, hmac.Equal([]byte(want), []byte(r.signature)), "signature mismatch")
}

func TestWebhookSignatureDeterminism(t *testing.T) {
	body := []byte(`{"event":"message"}`)
	assert.Equal(t, Sign([]byte("k"), body), Sign([]byte("k"), body))
	assert.NotEqual(t, Sign([]byte("k"), body), Sign([]byte("other"), body))
	assert.Len(t, Sign([]byte("k"), body), 64) // hex SHA-256
}

func TestWebhookPerSessionURLWins(t *testing.T) {
	defaultHits := make(chan received, 1)
	defaultSrv := captureServer(t, defaultHits)
	defer defaultSrv.Close()

	sessionHits := make(chan received, 1)
	sessionSrv := captureServer(t, sessionHits)
	defer sessionSrv.Close()

	store := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, store.Sessions().Save(ctx, &repository.SessionRecord{
		ID:         "s1",
		OwnerID:    "acct",
		WebhookURL: sessionSrv.URL,
	}))

	sink := NewWebhookSink(store, defaultSrv.URL, "")
	sink.deliver(event.SessionStatusEvent{SessionID: "s1", Status: event.StatusConnected})
	sink.deliver(event.SessionStatusEvent{SessionID: "s2", Status: event.StatusConnected})

	select {
	case <-sessionHits:
	case <-time.After(2 * time.Second):
		t.Fatal("registered URL not hit for s1")
	}
	select {
	case r := <-defaultHits:
		var envelope WebhookEnvelope
		require.NoError(t, json.Unmarshal(r.body, &envelope))
		assert.Equal(t, "s2", envelope.SessionID, "default URL should only see s2")
	case <-time.After(2 * time.Second):
		t.Fatal("default URL not hit for s2")
	}
}

func TestWebhookPerSessionSecretOverridesDefault(t *testing.T) {
	got := make(chan received, 1)
	srv := captureServer(t, got)
	defer srv.Close()

	store := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, store.Sessions().Save(ctx, &repository.SessionRecord{
		ID:            "s1",
		OwnerID:       "acct",
		WebhookURL:    srv.URL,
		WebhookSecret: "session-key",
	}))

	sink := NewWebhookSink(store, "", "gateway-key")
	sink.deliver(event.SessionStatusEvent{SessionID: "s1", Status: event.StatusConnected})

	select {
	case r := <-got:
		want := Sign([]byte("session-key"), r.body)
		assert.True(t, hmac.Equal([]byte(want), []byte(r.signature)))
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery received")
	}
}

func TestWebhookEventFilter(t *testing.T) {
	got := make(chan received, 2)
	srv := captureServer(t, got)
	defer srv.Close()

	store := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, store.Sessions().Save(ctx, &repository.SessionRecord{
		ID:            "s1",
		OwnerID:       "acct",
		WebhookURL:    srv.URL,
		WebhookEvents: []string{"message"},
	}))

	sink := NewWebhookSink(store, "", "")
	sink.deliver(event.SessionStatusEvent{SessionID: "s1", Status: event.StatusConnected})
	sink.deliver(event.MessageEvent{SessionID: "s1", MessageType: event.TypeText})

	select {
	case r := <-got:
		var envelope WebhookEnvelope
		require.NoError(t, json.Unmarshal(r.body, &envelope))
		assert.Equal(t, "message", envelope.Event, "filtered kind must not be delivered")
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery received")
	}
	select {
	case r := <-got:
		t.Fatalf("unexpected second delivery: %s", r.body)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWebhookNoURLNoDelivery(t *testing.T) {
	sink := NewWebhookSink(nil, "", "secret")
	// Nothing configured; must be a silent no-op
	sink.deliver(event.QREvent{SessionID: "s1", QRImage: "<svg/>"})
}

func TestWebhookSkipsSignatureWithoutSecret(t *testing.T) {
	got := make(chan received, 1)
	srv := captureServer(t, got)
	defer srv.Close()

	sink := NewWebhookSink(nil, srv.URL, "")
	sink.deliver(event.SessionStatusEvent{SessionID: "s1", Status: event.StatusStopped})

	select {
	case r := <-got:
		assert.Empty(t, r.signature)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery received")
	}
}

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	store, err := file.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))
	return store
}
