// Package sinks contains the bus subscribers that push normalized events out
// of the process: HTTP webhooks and the message broker.
package sinks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sendnode/wagateway/pkg/bus"
	"github.com/sendnode/wagateway/pkg/event"
	"github.com/sendnode/wagateway/pkg/logger"
	"github.com/sendnode/wagateway/pkg/storage"
)

const webhookTimeout = 5 * time.Second

// SignatureHeader carries the HMAC of the request body.
const SignatureHeader = "X-Webhook-Signature"

// WebhookEnvelope is the JSON body of every webhook delivery.
type WebhookEnvelope struct {
	Event     string      `json:"event"`
	SessionID string      `json:"sessionId"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// WebhookSink delivers events over HTTP POST, at most once: a failed
// delivery is logged and dropped, never retried. Each session may register
// its own URL; the configured default catches the rest.
type WebhookSink struct {
	store      storage.Storage
	client     *http.Client
	secret     []byte
	defaultURL string
}

func NewWebhookSink(store storage.Storage, defaultURL, secret string) *WebhookSink {
	return &WebhookSink{
		store:      store,
		client:     &http.Client{Timeout: webhookTimeout},
		secret:     []byte(secret),
		defaultURL: defaultURL,
	}
}

// Attach subscribes the sink to every event kind. Deliveries run on their
// own goroutine so a slow endpoint never stalls the bus.
func (w *WebhookSink) Attach(b *bus.EventBus) {
	handler := func(evt event.Event) {
		go w.deliver(evt)
	}
	for _, kind := range []event.Kind{event.KindSessionStatus, event.KindQR, event.KindMessage, event.KindMessageAck} {
		b.Subscribe(kind, handler)
	}
}

func (w *WebhookSink) deliver(evt event.Event) {
	url, secret, ok := w.resolve(evt.Session(), evt.EventKind())
	if !ok {
		return
	}

	envelope := WebhookEnvelope{
		Event:     string(evt.EventKind()),
		SessionID: evt.Session(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      evt,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		logger.ErrorCF("webhook", "Envelope marshal failed", map[string]interface{}{
			"session": evt.Session(),
			"error":   err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		logger.ErrorCF("webhook", "Request build failed", map[string]interface{}{
			"session": evt.Session(),
			"error":   err.Error(),
		})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if len(secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		logger.WarnCF("webhook", "Delivery failed", map[string]interface{}{
			"session": evt.Session(),
			"kind":    string(evt.EventKind()),
			"error":   err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.WarnCF("webhook", "Delivery rejected", map[string]interface{}{
			"session": evt.Session(),
			"kind":    string(evt.EventKind()),
			"status":  resp.StatusCode,
		})
	}
}

// resolve picks the destination URL and signing secret for one delivery.
// A session registration overrides the configured defaults; a registration
// with an event list only receives the kinds it names. ok is false when no
// URL applies or the kind is filtered out.
func (w *WebhookSink) resolve(sessionID string, kind event.Kind) (url string, secret []byte, ok bool) {
	if w.store != nil {
		if record, err := w.store.Sessions().Get(context.Background(), sessionID); err == nil && record.WebhookURL != "" {
			if !subscribed(record.WebhookEvents, kind) {
				return "", nil, false
			}
			secret = w.secret
			if record.WebhookSecret != "" {
				secret = []byte(record.WebhookSecret)
			}
			return record.WebhookURL, secret, true
		}
	}
	if w.defaultURL == "" {
		return "", nil, false
	}
	return w.defaultURL, w.secret, true
}

// subscribed reports whether kind is in the registration's event list.
// An empty list subscribes to everything.
func subscribed(events []string, kind event.Kind) bool {
	if len(events) == 0 {
		return true
	}
	for _, name := range events {
		if name == string(kind) {
			return true
		}
	}
	return false
}

// Sign computes the hex HMAC-SHA256 of body. Receivers recompute it over the
// raw request body to authenticate the delivery.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
