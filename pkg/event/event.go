package event

// Kind discriminates the four normalized event variants carried by the bus.
type Kind string

const (
	KindSessionStatus Kind = "session_update"
	KindQR            Kind = "qr_code"
	KindMessage       Kind = "message"
	KindMessageAck    Kind = "message_ack"
)

// Status is the lifecycle state of a managed session.
type Status string

const (
	StatusStarting     Status = "starting"
	StatusConnecting   Status = "connecting"
	StatusScanningQR   Status = "scanning_qr"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusStopped      Status = "stopped"
	StatusFailed       Status = "failed"
)

// MessageType classifies the content of an inbound message.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypeDocument MessageType = "document"
	TypeSticker  MessageType = "sticker"
	TypeContact  MessageType = "contact"
	TypeLocation MessageType = "location"
	TypeUnknown  MessageType = "unknown"
)

// Event is implemented by all four normalized variants. Consumers route on
// Kind plus SessionID alone; no registry lookup is needed.
type Event interface {
	EventKind() Kind
	Session() string
}

// SessionStatusEvent reports a lifecycle transition for one session.
type SessionStatusEvent struct {
	SessionID string `json:"sessionId"`
	Status    Status `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

func (e SessionStatusEvent) EventKind() Kind { return KindSessionStatus }
func (e SessionStatusEvent) Session() string { return e.SessionID }

// QREvent carries the current pairing challenge, already encoded as an
// embeddable image string.
type QREvent struct {
	SessionID string `json:"sessionId"`
	QRImage   string `json:"qr"`
	// Code is the raw challenge string, kept off the wire. Local tooling
	// renders it on the terminal.
	Code string `json:"-"`
}

func (e QREvent) EventKind() Kind { return KindQR }
func (e QREvent) Session() string { return e.SessionID }

// Location is a shared geo coordinate attached to location messages.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// Content is the normalized bag of message payload fields. Only the fields
// relevant to the message type are populated.
type Content struct {
	Text          string      `json:"text,omitempty"`
	Caption       string      `json:"caption,omitempty"`
	MimeType      string      `json:"mimeType,omitempty"`
	MediaURL      string      `json:"mediaUrl,omitempty"`
	QuotedMessage interface{} `json:"quotedMessage,omitempty"`
	MentionedIDs  []string    `json:"mentionedIds,omitempty"`
	Location      *Location   `json:"location,omitempty"`
}

// MessageEvent is one normalized inbound message.
type MessageEvent struct {
	SessionID        string      `json:"sessionId"`
	OwnerID          string      `json:"ownerId"`
	MessageType      MessageType `json:"messageType"`
	RemoteParty      string      `json:"from"`
	TimestampSeconds int64       `json:"timestamp"`
	Content          Content     `json:"content"`
}

func (e MessageEvent) EventKind() Kind { return KindMessage }
func (e MessageEvent) Session() string { return e.SessionID }

// AckLabel names a delivery acknowledgment status code.
type AckLabel string

const (
	AckError    AckLabel = "ERROR"
	AckPending  AckLabel = "PENDING"
	AckServer   AckLabel = "SERVER_ACK"
	AckDelivery AckLabel = "DELIVERY_ACK"
	AckRead     AckLabel = "READ"
	AckPlayed   AckLabel = "PLAYED"
	AckUnknown  AckLabel = "UNKNOWN"
)

// MessageAckEvent reports a delivery/read confirmation for a sent message.
type MessageAckEvent struct {
	SessionID   string   `json:"sessionId"`
	OwnerID     string   `json:"ownerId"`
	MessageID   string   `json:"messageId"`
	RemoteParty string   `json:"remoteJid"`
	FromMe      bool     `json:"fromMe"`
	AckStatus   int      `json:"status"`
	AckLabel    AckLabel `json:"statusDescription"`
}

func (e MessageAckEvent) EventKind() Kind { return KindMessageAck }
func (e MessageAckEvent) Session() string { return e.SessionID }
