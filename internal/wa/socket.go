// Package wa abstracts the WhatsApp multi-device protocol client behind
// small interfaces so the session engine never depends on the concrete
// client's types, only on the event shapes and status-code vocabulary.
package wa

import (
	"context"

	"github.com/zapdesk/wabridge/internal/core/domain"
)

// Status codes carried by connection close events. The numeric values
// are the multi-device protocol's stream error codes; CodeLoggedOut is
// a local sentinel synthesized by adapters for explicit logout, it is
// never produced by the remote network.
const (
	CodeLoggedOut       = -1
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeTerminated      = 428
	CodeConflict        = 440
	CodeRestartRequired = 515
)

// ConnState is the connection field of a connection update.
type ConnState string

const (
	StateConnecting ConnState = "connecting"
	StateOpen       ConnState = "open"
	StateClose      ConnState = "close"
)

// ConnectionUpdate is the shape of a connection-update event. Exactly
// one of the following is meaningful per event: a QR payload, an open
// transition (RemoteID resolved), or a close carrying the error code
// and message.
type ConnectionUpdate struct {
	State    ConnState
	QRCode   string
	RemoteID string

	StatusCode int
	Message    string
}

// Content carries the candidate body fields of an inbound message, one
// per protocol content type. The intake pipeline's extractor table
// decides which field wins.
type Content struct {
	Conversation  string
	ExtendedText  string
	ImageCaption  string
	VideoCaption  string
	DocumentTitle string
	AudioSeconds  uint32
	HasAudio      bool
	HasSticker    bool
	ContactVCard  string
	Latitude      float64
	Longitude     float64
	HasLocation   bool
	Reaction      string
}

// InboundMessage is the shape of one messages-upsert entry.
type InboundMessage struct {
	ProtocolID string
	From       string // remote phone number (bare, no server suffix)
	PushName   string
	FromMe     bool
	Content    Content
	Raw        []byte // serialized protocol payload, stored for later reference
}

// MessageAck is the shape of one messages-update entry.
type MessageAck struct {
	ProtocolID string
	Ack        int
}

// Handlers receives protocol events. Subscribe must be called before
// Connect; handlers for one socket are invoked sequentially.
type Handlers struct {
	ConnectionUpdate func(ConnectionUpdate)
	CredsUpdate      func()
	MessagesUpsert   func([]InboundMessage)
	MessagesUpdate   func([]MessageAck)
}

// Socket is one live protocol connection. Close tears the connection
// down without touching stored credentials and must not emit further
// events; Logout additionally invalidates the pairing on the remote
// side. SendText returns the serialized payload alongside the protocol
// id so callers can cache it for retry lookups.
type Socket interface {
	Subscribe(h Handlers)
	Connect(ctx context.Context) error
	SendText(ctx context.Context, to, body string) (protocolID string, raw []byte, err error)
	Presence(ctx context.Context) error
	RemoteID() string
	Logout(ctx context.Context) error
	Close() error
}

// Dialer produces sockets for sessions.
type Dialer interface {
	Dial(ctx context.Context, sess *domain.Session) (Socket, error)
}

// CredentialStore owns the pairing credentials and on-disk artifacts of
// a session.
type CredentialStore interface {
	HasCredentials(ctx context.Context, sessionID int64) bool
	WipeCredentials(ctx context.Context, sessionID int64) error
	RemoveSessionDirectory(sessionID int64) error
}
