package session

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sendnode/wagateway/pkg/blob"
	"github.com/sendnode/wagateway/pkg/event"
	"github.com/sendnode/wagateway/pkg/logger"
	"github.com/sendnode/wagateway/pkg/wasock"
)

// mimeExtensions maps document MIME types that clients commonly send with
// missing or useless filenames.
var mimeExtensions = map[string]string{
	"text/plain":                    "txt",
	"application/vnd.ms-excel":      "xls",
	"application/msword":            "doc",
	"application/vnd.ms-powerpoint": "ppt",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         "xlsx",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "docx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",
}

// Processor turns raw protocol messages into normalized events, archiving
// media attachments into the blob store along the way.
type Processor struct {
	blobs blob.Store
}

func NewProcessor(blobs blob.Store) *Processor {
	return &Processor{blobs: blobs}
}

// Classify normalizes one raw inbound message. Messages missing an
// identifying key, a counterpart, or a body carry nothing deliverable and
// yield nil. Media archiving failures degrade to an event without a MediaURL
// rather than dropping the message.
func (p *Processor) Classify(ctx context.Context, s *Session, sock wasock.Socket, raw *wasock.RawMessage) *event.MessageEvent {
	payload := raw.Message
	if raw.Key.ID == "" || raw.Key.RemoteJID == "" || payload == nil {
		return nil
	}

	evt := &event.MessageEvent{
		SessionID:        s.ID,
		OwnerID:          s.OwnerID,
		RemoteParty:      raw.Key.RemoteJID,
		TimestampSeconds: normalizeTimestamp(raw.Timestamp),
	}

	switch {
	case payload.Conversation != "":
		evt.MessageType = event.TypeText
		evt.Content.Text = payload.Conversation
	case payload.ExtendedText != nil:
		evt.MessageType = event.TypeText
		evt.Content.Text = payload.ExtendedText.Text
		if ci := payload.ExtendedText.ContextInfo; ci != nil {
			evt.Content.QuotedMessage = ci.QuotedMessage
			evt.Content.MentionedIDs = ci.MentionedJIDs
		}
	case payload.Image != nil:
		evt.MessageType = event.TypeImage
		evt.Content.Caption = payload.Image.Caption
		evt.Content.MimeType = payload.Image.MimeType
		evt.Content.MediaURL = p.archiveMedia(ctx, s, sock, raw, "jpeg", payload.Image.MimeType)
	case payload.Video != nil:
		evt.MessageType = event.TypeVideo
		evt.Content.Caption = payload.Video.Caption
		evt.Content.MimeType = payload.Video.MimeType
		evt.Content.MediaURL = p.archiveMedia(ctx, s, sock, raw, "mp4", payload.Video.MimeType)
	case payload.Audio != nil:
		evt.MessageType = event.TypeAudio
		evt.Content.MimeType = payload.Audio.MimeType
		evt.Content.MediaURL = p.archiveMedia(ctx, s, sock, raw, "ogg", payload.Audio.MimeType)
	case payload.Document != nil:
		evt.MessageType = event.TypeDocument
		evt.Content.Caption = payload.Document.Caption
		evt.Content.MimeType = payload.Document.MimeType
		ext := documentExtension(payload.Document.FileName, payload.Document.MimeType)
		evt.Content.MediaURL = p.archiveMedia(ctx, s, sock, raw, ext, payload.Document.MimeType)
	case payload.Sticker != nil:
		evt.MessageType = event.TypeSticker
		evt.Content.MimeType = payload.Sticker.MimeType
		evt.Content.MediaURL = p.archiveMedia(ctx, s, sock, raw, "webp", payload.Sticker.MimeType)
	case payload.Contact != nil:
		evt.MessageType = event.TypeContact
		evt.Content.Text = payload.Contact.VCard
		evt.Content.Caption = payload.Contact.DisplayName
	case payload.Location != nil:
		evt.MessageType = event.TypeLocation
		evt.Content.Location = &event.Location{
			Latitude:  payload.Location.Latitude,
			Longitude: payload.Location.Longitude,
			Name:      payload.Location.Name,
			Address:   payload.Location.Address,
		}
	default:
		evt.MessageType = event.TypeUnknown
	}

	return evt
}

// archiveMedia downloads the attachment and uploads it into the blob store.
// Returns an empty URL on any failure.
func (p *Processor) archiveMedia(ctx context.Context, s *Session, sock wasock.Socket, raw *wasock.RawMessage, ext, contentType string) string {
	if p.blobs == nil || sock == nil {
		return ""
	}

	data, err := sock.DownloadMedia(ctx, raw)
	if err != nil {
		logger.WarnCF("session", "Media download failed", map[string]interface{}{
			"session": s.ID,
			"message": raw.Key.ID,
			"error":   err.Error(),
		})
		return ""
	}

	key := s.ID + "/uploads/" + uuid.NewString() + "." + ext
	url, err := p.blobs.Put(ctx, key, data, contentType)
	if err != nil {
		logger.WarnCF("session", "Media upload failed", map[string]interface{}{
			"session": s.ID,
			"message": raw.Key.ID,
			"error":   err.Error(),
		})
		return ""
	}
	return url
}

// ClassifyAck normalizes one delivery status update. Returns nil when the
// update carried no status.
func (p *Processor) ClassifyAck(s *Session, u wasock.StatusUpdate) *event.MessageAckEvent {
	if u.Status == nil {
		return nil
	}
	return &event.MessageAckEvent{
		SessionID:   s.ID,
		OwnerID:     s.OwnerID,
		MessageID:   u.Key.ID,
		RemoteParty: u.Key.RemoteJID,
		FromMe:      u.Key.FromMe,
		AckStatus:   *u.Status,
		AckLabel:    AckLabelFor(*u.Status),
	}
}

// AckLabelFor maps a numeric delivery status to its label.
func AckLabelFor(status int) event.AckLabel {
	switch status {
	case 0:
		return event.AckError
	case 1:
		return event.AckPending
	case 2:
		return event.AckServer
	case 3:
		return event.AckDelivery
	case 4:
		return event.AckRead
	case 5:
		return event.AckPlayed
	default:
		return event.AckUnknown
	}
}

// documentExtension picks a file extension for a document attachment: the
// filename's own suffix wins, then the MIME map, then the MIME subtype.
func documentExtension(fileName, mimeType string) string {
	if idx := strings.LastIndex(fileName, "."); idx >= 0 && idx < len(fileName)-1 {
		return strings.ToLower(fileName[idx+1:])
	}

	mime := mimeType
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	if ext, ok := mimeExtensions[mime]; ok {
		return ext
	}
	if idx := strings.Index(mime, "/"); idx >= 0 && idx < len(mime)-1 {
		return mime[idx+1:]
	}
	return "bin"
}

// normalizeTimestamp accepts the wire timestamp in whichever encoding the
// transport produced (integer, float, string, json.Number) and returns Unix
// seconds. Missing or unparseable timestamps fall back to the current time.
func normalizeTimestamp(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case uint64:
		return int64(t)
	case float64:
		return int64(t)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return time.Now().Unix()
		}
		return n
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return time.Now().Unix()
		}
		return n
	default:
		return time.Now().Unix()
	}
}
