package wa

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/zapdesk/wabridge/internal/core/domain"
)

// deviceMarker tags a whatsmeow device row with the session that owns
// it. The marker lives in the device's BusinessName field, which the
// protocol never populates for personal accounts.
func deviceMarker(sessionID int64) string {
	return fmt.Sprintf("wabridge:%d", sessionID)
}

// MeowDialer creates whatsmeow-backed sockets. All sessions share one
// credential container; each session owns at most one device row,
// identified by its marker.
type MeowDialer struct {
	container *sqlstore.Container
	log       *slog.Logger

	// lookup answers protocol-level message retry requests from the
	// in-flight payload cache. Optional.
	lookup func(ctx context.Context, protocolID string) ([]byte, error)
}

// NewMeowDialer wraps an existing SQL handle so the credential tables
// live in the application database, and runs the container migrations.
func NewMeowDialer(ctx context.Context, db *sql.DB, driver string, log *slog.Logger) (*MeowDialer, error) {
	container := sqlstore.NewWithDB(db, driver, newWALog(log))
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("credential store upgrade: %w", err)
	}
	return &MeowDialer{container: container, log: log}, nil
}

// Container exposes the underlying sqlstore for the credential store.
func (d *MeowDialer) Container() *sqlstore.Container {
	return d.container
}

// SetPayloadLookup installs the cache lookup used to re-serve sent
// messages when the remote side requests a retry.
func (d *MeowDialer) SetPayloadLookup(fn func(ctx context.Context, protocolID string) ([]byte, error)) {
	d.lookup = fn
}

func (d *MeowDialer) deviceFor(ctx context.Context, sessionID int64) (*store.Device, error) {
	devices, err := d.container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	marker := deviceMarker(sessionID)
	for _, dev := range devices {
		if dev.BusinessName == marker {
			return dev, nil
		}
	}
	return nil, nil
}

func (d *MeowDialer) Dial(ctx context.Context, sess *domain.Session) (Socket, error) {
	dev, err := d.deviceFor(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("device lookup: %w", err)
	}
	if dev == nil {
		dev = d.container.NewDevice()
		dev.BusinessName = deviceMarker(sess.ID)
		dev.PushName = sess.Name
		if err := d.container.PutDevice(ctx, dev); err != nil {
			return nil, fmt.Errorf("device provision: %w", err)
		}
	}

	cli := whatsmeow.NewClient(dev, newWALog(d.log.With("session", sess.ID)))
	// Reconnection is owned by the session controller.
	cli.EnableAutoReconnect = false
	cli.AutoTrustIdentity = true
	if d.lookup != nil {
		cli.GetMessageForRetry = func(requester, to types.JID, id types.MessageID) *waE2E.Message {
			raw, err := d.lookup(context.Background(), id)
			if err != nil || raw == nil {
				return nil
			}
			var msg waE2E.Message
			if err := proto.Unmarshal(raw, &msg); err != nil {
				return nil
			}
			return &msg
		}
	}

	return &meowSocket{cli: cli, sessionID: sess.ID}, nil
}

// meowSocket adapts one whatsmeow client to the Socket interface.
type meowSocket struct {
	cli       *whatsmeow.Client
	sessionID int64

	mu      sync.Mutex
	h       Handlers
	closed  bool
	handler uint32
}

func (s *meowSocket) Subscribe(h Handlers) {
	s.mu.Lock()
	s.h = h
	s.mu.Unlock()
	s.handler = s.cli.AddEventHandler(s.dispatch)
}

func (s *meowSocket) handlers() (Handlers, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h, !s.closed
}

func (s *meowSocket) dispatch(rawEvt any) {
	h, live := s.handlers()
	if !live {
		return
	}
	switch evt := rawEvt.(type) {
	case *events.Connected:
		if h.ConnectionUpdate != nil {
			h.ConnectionUpdate(ConnectionUpdate{State: StateOpen, RemoteID: s.RemoteID()})
		}
	case *events.PairSuccess:
		if h.CredsUpdate != nil {
			h.CredsUpdate()
		}
	case *events.LoggedOut:
		// Surfaced as the local sentinel, not the raw reason code, so
		// the session never auto-retries an explicit logout.
		if h.ConnectionUpdate != nil {
			h.ConnectionUpdate(ConnectionUpdate{
				State:      StateClose,
				StatusCode: CodeLoggedOut,
				Message:    evt.Reason.String(),
			})
		}
	case *events.StreamError:
		code, _ := strconv.Atoi(evt.Code)
		if h.ConnectionUpdate != nil {
			h.ConnectionUpdate(ConnectionUpdate{
				State:      StateClose,
				StatusCode: code,
				Message:    "stream error " + evt.Code,
			})
		}
	case *events.Disconnected:
		if h.ConnectionUpdate != nil {
			h.ConnectionUpdate(ConnectionUpdate{State: StateClose, Message: "connection closed"})
		}
	case *events.TemporaryBan:
		if h.ConnectionUpdate != nil {
			h.ConnectionUpdate(ConnectionUpdate{
				State:      StateClose,
				StatusCode: CodeForbidden,
				Message:    "temporary ban: " + evt.String(),
			})
		}
	case *events.Message:
		if h.MessagesUpsert != nil {
			h.MessagesUpsert([]InboundMessage{inboundFrom(evt)})
		}
	case *events.Receipt:
		if h.MessagesUpdate == nil {
			return
		}
		ack, ok := ackFromReceipt(evt.Type)
		if !ok {
			return
		}
		acks := make([]MessageAck, 0, len(evt.MessageIDs))
		for _, id := range evt.MessageIDs {
			acks = append(acks, MessageAck{ProtocolID: id, Ack: ack})
		}
		h.MessagesUpdate(acks)
	}
}

func (s *meowSocket) Connect(ctx context.Context) error {
	// The QR channel must be requested before Connect when no pairing
	// exists yet; whatsmeow refuses it afterwards.
	if s.cli.Store.ID == nil {
		qrChan, err := s.cli.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		go s.forwardQR(qrChan)
	}
	if err := s.cli.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (s *meowSocket) forwardQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		if item.Event != "code" {
			continue
		}
		h, live := s.handlers()
		if !live {
			return
		}
		if h.ConnectionUpdate != nil {
			h.ConnectionUpdate(ConnectionUpdate{State: StateConnecting, QRCode: item.Code})
		}
	}
}

func (s *meowSocket) SendText(ctx context.Context, to, body string) (string, []byte, error) {
	jid := types.NewJID(to, types.DefaultUserServer)
	msg := &waE2E.Message{Conversation: proto.String(body)}
	resp, err := s.cli.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", nil, fmt.Errorf("send to %s: %w", to, err)
	}
	raw, _ := proto.Marshal(msg)
	return resp.ID, raw, nil
}

func (s *meowSocket) Presence(ctx context.Context) error {
	return s.cli.SendPresence(ctx, types.PresenceAvailable)
}

func (s *meowSocket) RemoteID() string {
	if s.cli.Store.ID == nil {
		return ""
	}
	return s.cli.Store.ID.User
}

func (s *meowSocket) Logout(ctx context.Context) error {
	s.silence()
	return s.cli.Logout(ctx)
}

func (s *meowSocket) Close() error {
	s.silence()
	s.cli.Disconnect()
	return nil
}

func (s *meowSocket) silence() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cli.RemoveEventHandler(s.handler)
}

func inboundFrom(evt *events.Message) InboundMessage {
	raw, _ := proto.Marshal(evt.Message)
	return InboundMessage{
		ProtocolID: evt.Info.ID,
		From:       evt.Info.Chat.User,
		PushName:   evt.Info.PushName,
		FromMe:     evt.Info.IsFromMe,
		Content:    contentFrom(evt.Message),
		Raw:        raw,
	}
}

func contentFrom(msg *waE2E.Message) Content {
	var c Content
	if msg == nil {
		return c
	}
	c.Conversation = msg.GetConversation()
	c.ExtendedText = msg.GetExtendedTextMessage().GetText()
	c.ImageCaption = msg.GetImageMessage().GetCaption()
	c.VideoCaption = msg.GetVideoMessage().GetCaption()
	c.DocumentTitle = msg.GetDocumentMessage().GetTitle()
	if audio := msg.GetAudioMessage(); audio != nil {
		c.HasAudio = true
		c.AudioSeconds = audio.GetSeconds()
	}
	c.HasSticker = msg.GetStickerMessage() != nil
	c.ContactVCard = msg.GetContactMessage().GetVcard()
	if loc := msg.GetLocationMessage(); loc != nil {
		c.HasLocation = true
		c.Latitude = loc.GetDegreesLatitude()
		c.Longitude = loc.GetDegreesLongitude()
	}
	c.Reaction = msg.GetReactionMessage().GetText()
	return c
}

func ackFromReceipt(t types.ReceiptType) (int, bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return domain.AckDelivered, true
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		return domain.AckRead, true
	default:
		return 0, false
	}
}

// newWALog bridges whatsmeow's logger interface onto slog.
func newWALog(log *slog.Logger) waLog.Logger {
	return slogWALog{log: log}
}

type slogWALog struct {
	log *slog.Logger
}

func (l slogWALog) Errorf(msg string, args ...any) { l.log.Error(fmt.Sprintf(msg, args...)) }
func (l slogWALog) Warnf(msg string, args ...any)  { l.log.Warn(fmt.Sprintf(msg, args...)) }
func (l slogWALog) Infof(msg string, args ...any)  { l.log.Debug(fmt.Sprintf(msg, args...)) }
func (l slogWALog) Debugf(msg string, args ...any) { l.log.Debug(fmt.Sprintf(msg, args...)) }
func (l slogWALog) Sub(module string) waLog.Logger {
	return slogWALog{log: l.log.With("module", module)}
}
