package wasock

import "context"

// Connection states reported on the connection-update stream. Empty means the
// update carried no connection transition (QR-only ticks).
const (
	ConnConnecting = "connecting"
	ConnOpen       = "open"
	ConnClose      = "close"
)

// Disconnect codes carried by close updates. The values mirror the wire
// protocol's status codes.
const (
	CodeStreamError        = 515
	CodeLoggedOut          = 401
	CodeForbidden          = 403
	CodeDeviceMismatch     = 411
	CodeConnectionReplaced = 440
	CodeConnectionLost     = 408
)

// TerminalCode reports whether a disconnect code means the session can never
// resume with its current credentials. Logged-out is terminal too but is
// handled separately by callers because it purges differently.
func TerminalCode(code int) bool {
	switch code {
	case CodeForbidden, CodeDeviceMismatch:
		return true
	default:
		return false
	}
}

// ConnectionUpdate is one tick of the socket's lifecycle stream.
type ConnectionUpdate struct {
	// Connection is one of ConnConnecting, ConnOpen, ConnClose, or empty.
	Connection string
	// QR carries the raw pairing challenge when the transport issued one.
	QR string
	// PairingConfirmed is set when the transport acknowledged a completed
	// QR pairing. The connection restarts right after.
	PairingConfirmed bool
	IsNewLogin       bool
	// DisconnectCode is only meaningful when Connection is ConnClose.
	DisconnectCode int
}

// MessageKey identifies one message on the wire.
type MessageKey struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

// MediaPart is a binary attachment reference (image, video, audio, sticker).
type MediaPart struct {
	Caption  string `json:"caption,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	// DirectPath and MediaKey are opaque transport references used by
	// DownloadMedia; the gateway never interprets them.
	DirectPath string `json:"directPath,omitempty"`
	MediaKey   []byte `json:"mediaKey,omitempty"`
}

// DocumentPart is a document attachment with its declared name.
type DocumentPart struct {
	MediaPart
	FileName string `json:"fileName,omitempty"`
}

// ContactPart is a shared contact card.
type ContactPart struct {
	DisplayName string `json:"displayName,omitempty"`
	VCard       string `json:"vcard,omitempty"`
}

// LocationPart is a shared geo position.
type LocationPart struct {
	Latitude  float64 `json:"degreesLatitude"`
	Longitude float64 `json:"degreesLongitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ContextInfo carries reply/mention metadata on extended text messages.
type ContextInfo struct {
	QuotedMessage interface{} `json:"quotedMessage,omitempty"`
	MentionedJIDs []string    `json:"mentionedJid,omitempty"`
}

// ExtendedTextMessage is a text body with context metadata.
type ExtendedTextMessage struct {
	Text        string       `json:"text,omitempty"`
	ContextInfo *ContextInfo `json:"contextInfo,omitempty"`
}

// MessagePayload holds the payload variants of one raw message. Exactly one
// variant is expected to be populated; classification probes them in a fixed
// order.
type MessagePayload struct {
	Conversation string               `json:"conversation,omitempty"`
	ExtendedText *ExtendedTextMessage `json:"extendedTextMessage,omitempty"`
	Image        *MediaPart           `json:"imageMessage,omitempty"`
	Video        *MediaPart           `json:"videoMessage,omitempty"`
	Audio        *MediaPart           `json:"audioMessage,omitempty"`
	Document     *DocumentPart        `json:"documentMessage,omitempty"`
	Sticker      *MediaPart           `json:"stickerMessage,omitempty"`
	Contact      *ContactPart         `json:"contactMessage,omitempty"`
	Location     *LocationPart        `json:"locationMessage,omitempty"`
}

// RawMessage is one inbound protocol message before normalization.
// Timestamp keeps the wire encoding, which is numeric or string depending on
// the transport build; the processor normalizes it.
type RawMessage struct {
	Key       MessageKey      `json:"key"`
	Timestamp interface{}     `json:"messageTimestamp,omitempty"`
	Message   *MessagePayload `json:"message,omitempty"`
}

// UpsertType flags whether a batch is a live notification or history backfill.
const (
	UpsertNotify = "notify"
	UpsertAppend = "append"
)

// MessageBatch is one messages.upsert delivery.
type MessageBatch struct {
	Messages []*RawMessage
	Type     string
}

// StatusUpdate is one messages.update entry. Status is nil when the update
// carried no numeric status.
type StatusUpdate struct {
	Key    MessageKey
	Status *int
}

// Handlers receives the socket's event streams. The socket guarantees
// in-order invocation per stream; handlers must not block indefinitely.
// Any handler may be nil.
type Handlers struct {
	ConnectionUpdate func(ConnectionUpdate)
	CredsUpdate      func(creds []byte)
	MessagesUpsert   func(MessageBatch)
	MessagesUpdate   func([]StatusUpdate)
}

// Existence is one lookup result.
type Existence struct {
	ID     string
	JID    string
	Exists bool
}

// OutboundMedia describes a media send by reference.
type OutboundMedia struct {
	Kind     string // image, video, document, audio, sticker
	URL      string
	Caption  string
	FileName string
	MimeType string
}

// TemplateButton is one quick-reply choice on a template send. ID comes back
// verbatim in the counterpart's button response.
type TemplateButton struct {
	ID   string
	Text string
}

// OutboundTemplate is a text message with quick-reply buttons.
type OutboundTemplate struct {
	Text    string
	Footer  string
	Buttons []TemplateButton
}

// OutboundContact is a contact card send.
type OutboundContact struct {
	FullName     string
	PhoneNumber  string
	Organization string
	Email        string
}

// OutboundContent is the union of sendable payloads; exactly one of Text,
// Media, Location, Contact, Template is set. EditID turns a text send into
// an edit.
type OutboundContent struct {
	Text     string
	Media    *OutboundMedia
	Location *LocationPart
	Contact  *OutboundContact
	Template *OutboundTemplate
	EditID   string
}

// SendReceipt is the transport's acknowledgment of an accepted send.
type SendReceipt struct {
	MessageID string
	Timestamp int64
}

// Socket is one live protocol connection. Implementations deliver their event
// streams to the Handlers wired at dial time and stay safe for concurrent use.
type Socket interface {
	// Send delivers content to target (a JID or bare phone number).
	Send(ctx context.Context, target string, content OutboundContent) (SendReceipt, error)
	// Lookup resolves which of the given ids exist on the network.
	Lookup(ctx context.Context, ids []string) ([]Existence, error)
	// ProfilePictureURL returns the target's avatar URL, empty when unset.
	ProfilePictureURL(ctx context.Context, target string) (string, error)
	// FetchStatus returns the target's status text, empty when unset.
	FetchStatus(ctx context.Context, target string) (string, error)
	// DownloadMedia fetches the attachment bytes of a raw message.
	DownloadMedia(ctx context.Context, msg *RawMessage) ([]byte, error)
	// Close tears the connection down with a reason. It is idempotent.
	Close(reason error) error
}

// Dialer opens protocol sockets. creds is the persisted credential blob for
// the session, nil on first pairing.
type Dialer interface {
	Open(ctx context.Context, sessionID string, creds []byte, h Handlers) (Socket, error)
}
