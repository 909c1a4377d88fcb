package wasock

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/lib/pq"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/sendnode/wagateway/pkg/logger"
)

// downloadCacheSize bounds how many recent inbound messages stay available
// for DownloadMedia.
const downloadCacheSize = 1024

// MeowConfig configures the whatsmeow device store backing all sessions.
type MeowConfig struct {
	// StoreType is "sqlite" or "postgres".
	StoreType string
	// StorePath is the sqlite database path (sqlite only).
	StorePath string
	// DatabaseURL is the postgres connection string (postgres only).
	DatabaseURL string
}

// MeowDialer opens whatsmeow-backed protocol sockets. One dialer serves all
// sessions; each Open picks or creates a device in the shared store.
type MeowDialer struct {
	container *sqlstore.Container
}

// NewMeowDialer initializes the device store and returns a dialer.
func NewMeowDialer(ctx context.Context, cfg MeowConfig) (*MeowDialer, error) {
	dbLog := waLog.Stdout("wasock-db", "WARN", true)

	var container *sqlstore.Container
	switch cfg.StoreType {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open device store: %w", err)
		}
		container = sqlstore.NewWithDB(db, "postgres", dbLog)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", cfg.StorePath)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open device store: %w", err)
		}
		// Serialize all database access through a single connection to prevent SQLITE_BUSY
		db.SetMaxOpenConns(1)
		container = sqlstore.NewWithDB(db, "sqlite", dbLog)
	}

	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("failed to upgrade device store: %w", err)
	}

	return &MeowDialer{container: container}, nil
}

// Open resolves the session's device (creds holds the device JID from a
// previous pairing, nil for a fresh session), wires the event streams, and
// starts connecting. QR pairing is triggered automatically for new devices.
func (d *MeowDialer) Open(ctx context.Context, sessionID string, creds []byte, h Handlers) (Socket, error) {
	device, err := d.resolveDevice(ctx, creds)
	if err != nil {
		return nil, err
	}

	clientLog := waLog.Stdout("wasock", "WARN", true)
	client := whatsmeow.NewClient(device, clientLog)

	sock := &meowSocket{
		sessionID: sessionID,
		client:    client,
		handlers:  h,
		recent:    make(map[string]*events.Message, downloadCacheSize),
	}
	client.AddEventHandler(sock.dispatch)

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get QR channel: %w", err)
		}
		sock.emitConnection(ConnectionUpdate{Connection: ConnConnecting})
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect for QR: %w", err)
		}
		go sock.pumpQR(qrChan)
	} else {
		sock.emitConnection(ConnectionUpdate{Connection: ConnConnecting})
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
	}

	return sock, nil
}

func (d *MeowDialer) resolveDevice(ctx context.Context, creds []byte) (*store.Device, error) {
	if len(creds) == 0 {
		return d.container.NewDevice(), nil
	}
	jid, err := types.ParseJID(string(creds))
	if err != nil {
		return nil, fmt.Errorf("invalid stored device reference: %w", err)
	}
	device, err := d.container.GetDevice(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	if device == nil {
		return d.container.NewDevice(), nil
	}
	return device, nil
}

type meowSocket struct {
	sessionID string
	client    *whatsmeow.Client
	handlers  Handlers

	mu     sync.Mutex
	recent map[string]*events.Message
	order  []string
	closed bool
}

func (s *meowSocket) emitConnection(u ConnectionUpdate) {
	if s.handlers.ConnectionUpdate != nil {
		s.handlers.ConnectionUpdate(u)
	}
}

// pumpQR forwards pairing challenges from the whatsmeow QR channel onto the
// normalized connection-update stream.
func (s *meowSocket) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for evt := range ch {
		switch evt.Event {
		case "code":
			s.emitConnection(ConnectionUpdate{QR: evt.Code})
		case "timeout":
			logger.WarnCF("wasock", "QR pairing timed out", map[string]interface{}{
				"session": s.sessionID,
			})
			s.emitConnection(ConnectionUpdate{Connection: ConnClose, DisconnectCode: CodeConnectionLost})
		}
		// "success" is covered by the PairSuccess event.
	}
}

// dispatch translates whatsmeow events into the normalized streams.
func (s *meowSocket) dispatch(evt interface{}) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		s.emitConnection(ConnectionUpdate{PairingConfirmed: true, IsNewLogin: true})
		if s.handlers.CredsUpdate != nil {
			s.handlers.CredsUpdate([]byte(v.ID.String()))
		}
	case *events.Connected:
		if s.handlers.CredsUpdate != nil && s.client.Store.ID != nil {
			s.handlers.CredsUpdate([]byte(s.client.Store.ID.String()))
		}
		s.emitConnection(ConnectionUpdate{Connection: ConnOpen})
	case *events.Disconnected:
		s.emitConnection(ConnectionUpdate{Connection: ConnClose, DisconnectCode: CodeConnectionLost})
	case *events.StreamReplaced:
		s.emitConnection(ConnectionUpdate{Connection: ConnClose, DisconnectCode: CodeConnectionReplaced})
	case *events.LoggedOut:
		s.emitConnection(ConnectionUpdate{Connection: ConnClose, DisconnectCode: CodeLoggedOut})
	case *events.Message:
		s.handleMessage(v)
	case *events.Receipt:
		s.handleReceipt(v)
	case *events.HistorySync:
		// History backfill is never forwarded; only live notifications are.
	}
}

func (s *meowSocket) handleMessage(v *events.Message) {
	if v.Info.Chat.Server == types.BroadcastServer {
		return
	}

	raw := convertMessage(v)
	s.remember(v)

	if s.handlers.MessagesUpsert != nil {
		s.handlers.MessagesUpsert(MessageBatch{
			Messages: []*RawMessage{raw},
			Type:     UpsertNotify,
		})
	}
}

func (s *meowSocket) handleReceipt(v *events.Receipt) {
	if s.handlers.MessagesUpdate == nil || len(v.MessageIDs) == 0 {
		return
	}

	code := 3 // delivered
	switch v.Type {
	case types.ReceiptTypeRead:
		code = 4
	case types.ReceiptTypePlayed:
		code = 5
	}

	updates := make([]StatusUpdate, 0, len(v.MessageIDs))
	for _, id := range v.MessageIDs {
		status := code
		updates = append(updates, StatusUpdate{
			Key: MessageKey{
				ID:        id,
				RemoteJID: v.Chat.String(),
				FromMe:    true,
			},
			Status: &status,
		})
	}
	s.handlers.MessagesUpdate(updates)
}

// remember keeps the original event so DownloadMedia can fetch its
// attachment later. Oldest entries are evicted first.
func (s *meowSocket) remember(v *events.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recent[v.Info.ID]; ok {
		return
	}
	if len(s.order) >= downloadCacheSize {
		delete(s.recent, s.order[0])
		s.order = s.order[1:]
	}
	s.recent[v.Info.ID] = v
	s.order = append(s.order, v.Info.ID)
}

func convertMessage(v *events.Message) *RawMessage {
	raw := &RawMessage{
		Key: MessageKey{
			ID:        v.Info.ID,
			RemoteJID: v.Info.Chat.String(),
			FromMe:    v.Info.IsFromMe,
		},
		Timestamp: v.Info.Timestamp.Unix(),
		Message:   &MessagePayload{},
	}

	msg := v.Message
	if msg == nil {
		raw.Message = nil
		return raw
	}

	p := raw.Message
	p.Conversation = msg.GetConversation()

	if ext := msg.GetExtendedTextMessage(); ext != nil {
		p.ExtendedText = &ExtendedTextMessage{Text: ext.GetText()}
		if ci := ext.GetContextInfo(); ci != nil {
			info := &ContextInfo{MentionedJIDs: ci.GetMentionedJID()}
			if quoted := ci.GetQuotedMessage(); quoted != nil {
				info.QuotedMessage = quoted
			}
			if info.QuotedMessage != nil || len(info.MentionedJIDs) > 0 {
				p.ExtendedText.ContextInfo = info
			}
		}
	}
	if img := msg.GetImageMessage(); img != nil {
		p.Image = &MediaPart{Caption: img.GetCaption(), MimeType: img.GetMimetype()}
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		p.Video = &MediaPart{Caption: vid.GetCaption(), MimeType: vid.GetMimetype()}
	}
	if audio := msg.GetAudioMessage(); audio != nil {
		p.Audio = &MediaPart{MimeType: audio.GetMimetype()}
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		p.Document = &DocumentPart{
			MediaPart: MediaPart{Caption: doc.GetCaption(), MimeType: doc.GetMimetype()},
			FileName:  doc.GetFileName(),
		}
	}
	if sticker := msg.GetStickerMessage(); sticker != nil {
		p.Sticker = &MediaPart{MimeType: sticker.GetMimetype()}
	}
	if contact := msg.GetContactMessage(); contact != nil {
		p.Contact = &ContactPart{DisplayName: contact.GetDisplayName(), VCard: contact.GetVcard()}
	}
	if loc := msg.GetLocationMessage(); loc != nil {
		p.Location = &LocationPart{
			Latitude:  loc.GetDegreesLatitude(),
			Longitude: loc.GetDegreesLongitude(),
			Name:      loc.GetName(),
			Address:   loc.GetAddress(),
		}
	}

	return raw
}

func (s *meowSocket) Send(ctx context.Context, target string, content OutboundContent) (SendReceipt, error) {
	if !s.client.IsConnected() {
		return SendReceipt{}, fmt.Errorf("socket not connected")
	}

	jid, err := parseTarget(target)
	if err != nil {
		return SendReceipt{}, err
	}

	msg, err := s.buildMessage(ctx, jid, content)
	if err != nil {
		return SendReceipt{}, err
	}

	_ = s.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, "")
	resp, err := s.client.SendMessage(ctx, jid, msg)
	_ = s.client.SendChatPresence(ctx, jid, types.ChatPresencePaused, "")
	if err != nil {
		return SendReceipt{}, fmt.Errorf("failed to send message: %w", err)
	}

	return SendReceipt{MessageID: resp.ID, Timestamp: resp.Timestamp.Unix()}, nil
}

func (s *meowSocket) buildMessage(ctx context.Context, jid types.JID, content OutboundContent) (*waE2E.Message, error) {
	switch {
	case content.EditID != "":
		return s.client.BuildEdit(jid, content.EditID, &waE2E.Message{
			Conversation: proto.String(content.Text),
		}), nil
	case content.Media != nil:
		return s.buildMediaMessage(ctx, content.Media)
	case content.Location != nil:
		return &waE2E.Message{
			LocationMessage: &waE2E.LocationMessage{
				DegreesLatitude:  proto.Float64(content.Location.Latitude),
				DegreesLongitude: proto.Float64(content.Location.Longitude),
				Name:             proto.String(content.Location.Name),
				Address:          proto.String(content.Location.Address),
			},
		}, nil
	case content.Contact != nil:
		return &waE2E.Message{
			ContactMessage: &waE2E.ContactMessage{
				DisplayName: proto.String(content.Contact.FullName),
				Vcard:       proto.String(buildVCard(content.Contact)),
			},
		}, nil
	case content.Template != nil:
		return buildButtonsMessage(content.Template), nil
	default:
		return &waE2E.Message{Conversation: proto.String(content.Text)}, nil
	}
}

func buildButtonsMessage(tpl *OutboundTemplate) *waE2E.Message {
	buttons := make([]*waE2E.ButtonsMessage_Button, 0, len(tpl.Buttons))
	for _, b := range tpl.Buttons {
		buttons = append(buttons, &waE2E.ButtonsMessage_Button{
			ButtonID:   proto.String(b.ID),
			ButtonText: &waE2E.ButtonsMessage_Button_ButtonText{DisplayText: proto.String(b.Text)},
			Type:       waE2E.ButtonsMessage_Button_RESPONSE.Enum(),
		})
	}
	msg := &waE2E.ButtonsMessage{
		ContentText: proto.String(tpl.Text),
		Buttons:     buttons,
		HeaderType:  waE2E.ButtonsMessage_EMPTY.Enum(),
	}
	if tpl.Footer != "" {
		msg.FooterText = proto.String(tpl.Footer)
	}
	return &waE2E.Message{ButtonsMessage: msg}
}

func (s *meowSocket) buildMediaMessage(ctx context.Context, media *OutboundMedia) (*waE2E.Message, error) {
	data, err := fetchMedia(ctx, media.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}

	var mediaType whatsmeow.MediaType
	switch media.Kind {
	case "image":
		mediaType = whatsmeow.MediaImage
	case "video":
		mediaType = whatsmeow.MediaVideo
	case "audio":
		mediaType = whatsmeow.MediaAudio
	case "sticker":
		mediaType = whatsmeow.MediaImage
	default:
		mediaType = whatsmeow.MediaDocument
	}

	uploaded, err := s.client.Upload(ctx, data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload media: %w", err)
	}

	mime := media.MimeType
	size := proto.Uint64(uint64(len(data)))

	switch media.Kind {
	case "image":
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(media.Caption),
			Mimetype:      proto.String(mime),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    size,
		}}, nil
	case "video":
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       proto.String(media.Caption),
			Mimetype:      proto.String(mime),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    size,
		}}, nil
	case "audio":
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype:      proto.String(mime),
			PTT:           proto.Bool(true),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    size,
		}}, nil
	case "sticker":
		return &waE2E.Message{StickerMessage: &waE2E.StickerMessage{
			Mimetype:      proto.String(mime),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    size,
		}}, nil
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       proto.String(media.Caption),
			FileName:      proto.String(media.FileName),
			Mimetype:      proto.String(mime),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    size,
		}}, nil
	}
}

func fetchMedia(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("media fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func buildVCard(c *OutboundContact) string {
	var sb strings.Builder
	sb.WriteString("BEGIN:VCARD\nVERSION:3.0\n")
	sb.WriteString("FN:" + c.FullName + "\n")
	sb.WriteString(fmt.Sprintf("TEL;type=CELL;type=VOICE;waid=%s:%s\n", c.PhoneNumber, c.PhoneNumber))
	if c.Organization != "" {
		sb.WriteString("ORG:" + c.Organization + "\n")
	}
	if c.Email != "" {
		sb.WriteString("EMAIL:" + c.Email + "\n")
	}
	sb.WriteString("END:VCARD")
	return sb.String()
}

func (s *meowSocket) Lookup(ctx context.Context, ids []string) ([]Existence, error) {
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		cleaned = append(cleaned, cleanPhone(id))
	}

	resp, err := s.client.IsOnWhatsApp(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("lookup failed: %w", err)
	}

	results := make([]Existence, 0, len(resp))
	for _, r := range resp {
		results = append(results, Existence{ID: r.Query, JID: r.JID.String(), Exists: r.IsIn})
	}
	return results, nil
}

func (s *meowSocket) ProfilePictureURL(ctx context.Context, target string) (string, error) {
	jid, err := parseTarget(target)
	if err != nil {
		return "", err
	}
	info, err := s.client.GetProfilePictureInfo(ctx, jid, &whatsmeow.GetProfilePictureParams{})
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

func (s *meowSocket) FetchStatus(ctx context.Context, target string) (string, error) {
	jid, err := parseTarget(target)
	if err != nil {
		return "", err
	}
	resp, err := s.client.GetUserInfo(ctx, []types.JID{jid})
	if err != nil {
		return "", err
	}
	if info, ok := resp[jid]; ok {
		return info.Status, nil
	}
	return "", nil
}

func (s *meowSocket) DownloadMedia(ctx context.Context, msg *RawMessage) ([]byte, error) {
	s.mu.Lock()
	original, ok := s.recent[msg.Key.ID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("message %s no longer available for download", msg.Key.ID)
	}

	downloadable := downloadablePart(original.Message)
	if downloadable == nil {
		return nil, fmt.Errorf("message %s carries no media", msg.Key.ID)
	}

	return s.client.Download(ctx, downloadable)
}

func downloadablePart(msg *waE2E.Message) whatsmeow.DownloadableMessage {
	if msg == nil {
		return nil
	}
	if img := msg.GetImageMessage(); img != nil {
		return img
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid
	}
	if audio := msg.GetAudioMessage(); audio != nil {
		return audio
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		return doc
	}
	if sticker := msg.GetStickerMessage(); sticker != nil {
		return sticker
	}
	return nil
}

func (s *meowSocket) Close(reason error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	logger.InfoCF("wasock", "Closing socket", map[string]interface{}{
		"session": s.sessionID,
		"reason":  fmt.Sprintf("%v", reason),
	})
	s.client.Disconnect()
	return nil
}

func parseTarget(target string) (types.JID, error) {
	if strings.Contains(target, "@") {
		jid, err := types.ParseJID(target)
		if err != nil {
			return types.EmptyJID, fmt.Errorf("invalid target %q: %w", target, err)
		}
		return jid, nil
	}
	phone := cleanPhone(target)
	if phone == "" {
		return types.EmptyJID, fmt.Errorf("invalid target %q", target)
	}
	return types.NewJID(phone, types.DefaultUserServer), nil
}

func cleanPhone(phone string) string {
	var sb strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
