package chat

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Tyrowin/roomchat/internal/metrics"
)

// Broadcaster fans payloads out to the members of a room. A failing peer is
// logged and skipped; it never aborts delivery to the rest of the room.
type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewBroadcaster creates a Broadcaster over registry. logger and m may be nil.
func NewBroadcaster(registry *Registry, logger *zap.Logger, m *metrics.Metrics) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{registry: registry, logger: logger, metrics: m}
}

// Broadcast encodes msg and delivers it to every member of room. It returns
// the number of connections that accepted the payload.
func (b *Broadcaster) Broadcast(room string, msg Message) int {
	payload, err := msg.Encode()
	if err != nil {
		b.logger.Error("encode broadcast message", zap.String("room", room), zap.Error(err))
		return 0
	}
	return b.BroadcastRaw(room, msg.Type, payload)
}

// BroadcastRaw delivers payload unchanged to the members of room at call time.
// Connections that turn out to be closed are detached from the room.
func (b *Broadcaster) BroadcastRaw(room string, msgType MessageType, payload []byte) int {
	members := b.registry.MembersOf(room)
	if len(members) == 0 {
		return 0
	}

	delivered := 0
	var dead []Conn
	for _, conn := range members {
		ok, closed := b.deliver(conn, msgType, payload)
		if ok {
			delivered++
		}
		if closed {
			dead = append(dead, conn)
		}
	}

	for _, conn := range dead {
		if b.registry.Detach(conn) {
			b.logger.Debug("detached dead connection", zap.String("room", room), zap.String("conn", conn.ID()))
		}
	}

	b.logger.Debug("broadcast",
		zap.String("room", room),
		zap.String("type", string(msgType)),
		zap.Int("targets", len(members)),
		zap.Int("delivered", delivered))
	return delivered
}

// deliver sends payload to a single connection. closed reports that the
// connection is no longer usable and should be pruned.
func (b *Broadcaster) deliver(conn Conn, msgType MessageType, payload []byte) (ok, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("recovered from panic during send", zap.String("conn", conn.ID()), zap.Any("panic", r))
			b.metrics.Dropped("panic")
			ok, closed = false, true
		}
	}()

	if !conn.IsOpen() {
		b.metrics.Dropped("closed")
		return false, true
	}

	if err := conn.Send(payload); err != nil {
		b.logger.Warn("send failed", zap.String("conn", conn.ID()), zap.Error(err))
		b.metrics.Dropped("send_failed")
		return false, !conn.IsOpen()
	}

	b.metrics.Delivered(string(msgType))
	return true, false
}

// SendTo delivers msg to a single connection outside of any room fan-out.
func (b *Broadcaster) SendTo(conn Conn, msg Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if ok, _ := b.deliver(conn, msg.Type, payload); !ok {
		return fmt.Errorf("deliver to %s: %w", conn.ID(), ErrNotDelivered)
	}
	return nil
}
