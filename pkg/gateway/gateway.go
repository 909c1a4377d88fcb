// Package gateway is the service facade callers integrate against: session
// lifecycle, outbound sends, and directory lookups, with the connection
// plumbing hidden behind it.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/sendnode/wagateway/pkg/event"
	"github.com/sendnode/wagateway/pkg/logger"
	"github.com/sendnode/wagateway/pkg/session"
	"github.com/sendnode/wagateway/pkg/storage"
	"github.com/sendnode/wagateway/pkg/storage/repository"
	"github.com/sendnode/wagateway/pkg/wasock"
)

// SessionView is the externally visible description of one session, merging
// the persisted record with live state when the session is running.
type SessionView struct {
	ID             string       `json:"id"`
	OwnerID        string       `json:"ownerId"`
	Name           string       `json:"name,omitempty"`
	Status         event.Status `json:"status"`
	WebhookURL     string       `json:"webhookUrl,omitempty"`
	LastActivityAt time.Time    `json:"lastActivityAt"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// SendResult reports an accepted outbound send.
type SendResult struct {
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

// ExistsResult is one directory lookup answer.
type ExistsResult struct {
	ID     string `json:"id"`
	JID    string `json:"jid,omitempty"`
	Exists bool   `json:"exists"`
}

// Gateway exposes the public operations of the service.
type Gateway struct {
	manager *session.Manager
	store   storage.Storage
}

func New(manager *session.Manager, store storage.Storage) *Gateway {
	return &Gateway{manager: manager, store: store}
}

// StartSession creates and connects a session for an owner.
func (g *Gateway) StartSession(ctx context.Context, id, ownerID, name string) (*SessionView, error) {
	if id == "" || ownerID == "" {
		return nil, fmt.Errorf("session id and owner id are required")
	}

	s, err := g.manager.StartSession(ctx, id, ownerID, name)
	if err != nil {
		return nil, err
	}
	return g.view(ctx, s), nil
}

// StopSession disconnects and deregisters a session and purges its stored
// credentials; starting it again requires a fresh pairing.
func (g *Gateway) StopSession(ctx context.Context, id string) error {
	return g.manager.StopSession(ctx, id)
}

// GetSession returns one session's state, live or persisted.
func (g *Gateway) GetSession(ctx context.Context, id string) (*SessionView, error) {
	if s, err := g.manager.Get(id); err == nil {
		return g.view(ctx, s), nil
	}

	record, err := g.store.Sessions().Get(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, session.ErrSessionNotFound
		}
		return nil, err
	}
	return recordView(record), nil
}

// ListSessions returns all known sessions.
func (g *Gateway) ListSessions(ctx context.Context) ([]*SessionView, error) {
	records, err := g.store.Sessions().List(ctx)
	if err != nil {
		return nil, err
	}
	return g.recordViews(records), nil
}

// ListSessionsByOwner returns one owner's sessions.
func (g *Gateway) ListSessionsByOwner(ctx context.Context, ownerID string) ([]*SessionView, error) {
	records, err := g.store.Sessions().ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return g.recordViews(records), nil
}

// SetWebhook registers the per-session webhook: delivery URL, optional
// signing secret, and an optional event-kind subscription list. Passing a
// zero-value config unregisters the webhook.
func (g *Gateway) SetWebhook(ctx context.Context, id string, webhook repository.WebhookConfig) error {
	err := g.store.Sessions().SetWebhook(ctx, id, webhook)
	if err == repository.ErrNotFound {
		return session.ErrSessionNotFound
	}
	return err
}

// GetWebhook returns the session's webhook registration, zero-valued when
// none is set.
func (g *Gateway) GetWebhook(ctx context.Context, id string) (repository.WebhookConfig, error) {
	record, err := g.store.Sessions().Get(ctx, id)
	if err == repository.ErrNotFound {
		return repository.WebhookConfig{}, session.ErrSessionNotFound
	}
	if err != nil {
		return repository.WebhookConfig{}, err
	}
	return repository.WebhookConfig{
		URL:    record.WebhookURL,
		Secret: record.WebhookSecret,
		Events: record.WebhookEvents,
	}, nil
}

// SendText delivers a text message.
func (g *Gateway) SendText(ctx context.Context, sessionID, target, text string) (*SendResult, error) {
	return g.send(ctx, sessionID, target, wasock.OutboundContent{Text: text})
}

// EditMessage replaces the text of a previously sent message.
func (g *Gateway) EditMessage(ctx context.Context, sessionID, target, messageID, text string) (*SendResult, error) {
	return g.send(ctx, sessionID, target, wasock.OutboundContent{Text: text, EditID: messageID})
}

// SendMedia delivers a media message by URL reference.
func (g *Gateway) SendMedia(ctx context.Context, sessionID, target string, media wasock.OutboundMedia) (*SendResult, error) {
	if media.URL == "" {
		return nil, fmt.Errorf("media URL is required")
	}
	return g.send(ctx, sessionID, target, wasock.OutboundContent{Media: &media})
}

// SendLocation delivers a geo position.
func (g *Gateway) SendLocation(ctx context.Context, sessionID, target string, loc wasock.LocationPart) (*SendResult, error) {
	return g.send(ctx, sessionID, target, wasock.OutboundContent{Location: &loc})
}

// SendContact delivers a contact card.
func (g *Gateway) SendContact(ctx context.Context, sessionID, target string, contact wasock.OutboundContact) (*SendResult, error) {
	if contact.PhoneNumber == "" {
		return nil, fmt.Errorf("contact phone number is required")
	}
	return g.send(ctx, sessionID, target, wasock.OutboundContent{Contact: &contact})
}

// SendTemplate delivers a text message with quick-reply buttons.
func (g *Gateway) SendTemplate(ctx context.Context, sessionID, target string, tpl wasock.OutboundTemplate) (*SendResult, error) {
	if tpl.Text == "" {
		return nil, fmt.Errorf("template text is required")
	}
	if len(tpl.Buttons) == 0 {
		return nil, fmt.Errorf("template requires at least one button")
	}
	for _, b := range tpl.Buttons {
		if b.Text == "" {
			return nil, fmt.Errorf("template button text is required")
		}
	}
	return g.send(ctx, sessionID, target, wasock.OutboundContent{Template: &tpl})
}

func (g *Gateway) send(ctx context.Context, sessionID, target string, content wasock.OutboundContent) (*SendResult, error) {
	sock, s, err := g.connectedSocket(sessionID)
	if err != nil {
		return nil, err
	}

	receipt, err := sock.Send(ctx, target, content)
	if err != nil {
		logger.WarnCF("gateway", "Send failed", map[string]interface{}{
			"session": sessionID,
			"target":  target,
			"error":   err.Error(),
		})
		return nil, err
	}

	g.touch(ctx, s)
	return &SendResult{MessageID: receipt.MessageID, Timestamp: receipt.Timestamp}, nil
}

// CheckExists reports which of the given phone numbers are reachable.
func (g *Gateway) CheckExists(ctx context.Context, sessionID string, numbers []string) ([]ExistsResult, error) {
	sock, s, err := g.connectedSocket(sessionID)
	if err != nil {
		return nil, err
	}

	found, err := sock.Lookup(ctx, numbers)
	if err != nil {
		return nil, err
	}
	g.touch(ctx, s)

	results := make([]ExistsResult, 0, len(found))
	for _, f := range found {
		results = append(results, ExistsResult{ID: f.ID, JID: f.JID, Exists: f.Exists})
	}
	return results, nil
}

// GetAvatar returns the target's profile picture URL, empty when unset or
// hidden by privacy settings.
func (g *Gateway) GetAvatar(ctx context.Context, sessionID, target string) (string, error) {
	sock, _, err := g.connectedSocket(sessionID)
	if err != nil {
		return "", err
	}
	return sock.ProfilePictureURL(ctx, target)
}

// GetStatus returns the target's status text.
func (g *Gateway) GetStatus(ctx context.Context, sessionID, target string) (string, error) {
	sock, _, err := g.connectedSocket(sessionID)
	if err != nil {
		return "", err
	}
	return sock.FetchStatus(ctx, target)
}

func (g *Gateway) connectedSocket(sessionID string) (wasock.Socket, *session.Session, error) {
	s, err := g.manager.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !s.Connected() {
		return nil, nil, session.ErrNotConnected
	}
	sock := s.Socket()
	if sock == nil {
		return nil, nil, session.ErrNotConnected
	}
	return sock, s, nil
}

func (g *Gateway) touch(ctx context.Context, s *session.Session) {
	at := s.Touch()
	if err := g.store.Sessions().TouchActivity(ctx, s.ID, at); err != nil && err != repository.ErrNotFound {
		logger.WarnCF("gateway", "Activity timestamp update failed", map[string]interface{}{
			"session": s.ID,
			"error":   err.Error(),
		})
	}
}

func (g *Gateway) view(ctx context.Context, s *session.Session) *SessionView {
	v := &SessionView{
		ID:             s.ID,
		OwnerID:        s.OwnerID,
		Name:           s.Name,
		Status:         s.Status(),
		LastActivityAt: s.LastActivity(),
		CreatedAt:      s.Created,
	}
	if record, err := g.store.Sessions().Get(ctx, s.ID); err == nil {
		v.WebhookURL = record.WebhookURL
	}
	return v
}

func (g *Gateway) recordViews(records []*repository.SessionRecord) []*SessionView {
	views := make([]*SessionView, 0, len(records))
	for _, record := range records {
		v := recordView(record)
		// Live state wins over the persisted snapshot.
		if s, err := g.manager.Get(record.ID); err == nil {
			v.Status = s.Status()
			v.LastActivityAt = s.LastActivity()
		}
		views = append(views, v)
	}
	return views
}

func recordView(record *repository.SessionRecord) *SessionView {
	return &SessionView{
		ID:             record.ID,
		OwnerID:        record.OwnerID,
		Name:           record.Name,
		Status:         event.Status(record.Status),
		WebhookURL:     record.WebhookURL,
		LastActivityAt: record.LastActivityAt,
		CreatedAt:      record.Created,
	}
}
