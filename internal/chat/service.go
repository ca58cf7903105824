package chat

import (
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/roomchat/internal/metrics"
)

// Option configures a Service.
type Option func(*options)

type options struct {
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	historySize int
	replay      bool
}

// WithLogger sets the logger used by the service and its broadcaster.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the collectors updated by the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHistorySize sets how many messages each room retains.
func WithHistorySize(n int) Option {
	return func(o *options) { o.historySize = n }
}

// WithHistoryReplay controls whether a joining connection is sent the room's
// retained messages right after the join notification.
func WithHistoryReplay(enabled bool) Option {
	return func(o *options) { o.replay = enabled }
}

// Service drives the per-connection lifecycle: join on open, relay and record
// on message, leave on close. It also answers the read-only room queries.
type Service struct {
	registry    *Registry
	broadcaster *Broadcaster
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	replay      bool
}

// NewService builds a Service with its own Registry and Broadcaster.
func NewService(opts ...Option) *Service {
	o := options{
		now:         time.Now,
		historySize: DefaultHistorySize,
		replay:      true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	registry := NewRegistry(o.historySize)
	return &Service{
		registry:    registry,
		broadcaster: NewBroadcaster(registry, o.logger, o.metrics),
		logger:      o.logger,
		metrics:     o.metrics,
		now:         o.now,
		replay:      o.replay,
	}
}

// Registry exposes the service's registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// OnOpen joins conn to room as user and announces the join to the room,
// the joining connection included.
//
// Callers should deliver OnOpen before OnClose for a connection. If the
// connection closes while OnOpen runs, the join is undone here so the
// registry and the connection gauge stay balanced.
func (s *Service) OnOpen(conn Conn, user, room string) {
	if !conn.IsOpen() {
		s.logger.Info("connection closed before join", zap.String("conn", conn.ID()), zap.String("user", user))
		return
	}

	s.registry.Join(conn, room, user)
	s.metrics.ConnectionOpened()
	if !conn.IsOpen() {
		if _, _, ok := s.registry.Leave(conn); ok {
			s.metrics.ConnectionClosed()
		}
		s.logger.Info("connection closed during join", zap.String("conn", conn.ID()), zap.String("user", user))
		return
	}
	s.metrics.SetRooms(s.registry.RoomCount())

	s.logger.Info("user joined room",
		zap.String("user", user),
		zap.String("room", room),
		zap.String("conn", conn.ID()),
		zap.Int("online", s.registry.OnlineCount(room)),
		zap.Int("connections", s.registry.ConnectionCount()))

	s.broadcaster.Broadcast(room, presenceMessage(room, user, TypeJoin, s.now()))

	if s.replay {
		s.replayHistory(conn, room)
	}
}

func (s *Service) replayHistory(conn Conn, room string) {
	snapshot := s.registry.HistorySnapshot(room)
	if len(snapshot) == 0 {
		return
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Error("encode history replay", zap.String("room", room), zap.Error(err))
		return
	}

	msg := Message{
		Room:      room,
		Timestamp: s.now().Format(TimeLayout),
		Body:      string(body),
		Type:      TypeHistory,
	}
	if err := s.broadcaster.SendTo(conn, msg); err != nil {
		s.logger.Warn("history replay not delivered", zap.String("conn", conn.ID()), zap.Error(err))
	}
}

// OnMessage relays a client payload to its room and then records it in the
// room history. Payloads without a sender are logged and dropped.
func (s *Service) OnMessage(conn Conn, raw []byte) error {
	msg, err := ParseMessage(raw)
	if err != nil {
		s.discard(conn, raw, err)
		return err
	}
	if msg.IsServerOnly() {
		s.discard(conn, raw, ErrServerOnlyType)
		return ErrServerOnlyType
	}

	if msg.Room == "" {
		room, _, ok := s.registry.Lookup(conn)
		if !ok {
			s.discard(conn, raw, ErrMissingRoom)
			return ErrMissingRoom
		}
		msg.Room = room
	}

	s.broadcaster.BroadcastRaw(msg.Room, msg.Type, raw)

	msg.Timestamp = s.now().Format(TimeLayout)
	if s.registry.History(msg.Room).Append(msg) {
		s.metrics.Evicted()
	}

	s.logger.Info("message relayed",
		zap.String("room", msg.Room),
		zap.String("user", msg.Sender),
		zap.String("type", string(msg.Type)))
	return nil
}

func (s *Service) discard(conn Conn, raw []byte, err error) {
	reason := "malformed"
	switch {
	case errors.Is(err, ErrMissingSender):
		reason = "no_sender"
	case errors.Is(err, ErrMissingRoom):
		reason = "no_room"
	case errors.Is(err, ErrServerOnlyType):
		reason = "forged_type"
	}
	s.metrics.Discarded(reason)
	s.logger.Info("discarding message",
		zap.String("conn", conn.ID()),
		zap.String("reason", reason),
		zap.ByteString("payload", raw),
		zap.Error(err))
}

// OnClose removes conn from the registry and tells the remaining members of
// its room that the user left. A connection that never joined is ignored.
func (s *Service) OnClose(conn Conn) {
	room, user, ok := s.registry.Leave(conn)
	if !ok {
		s.logger.Debug("close for unregistered connection", zap.String("conn", conn.ID()))
		return
	}
	s.metrics.ConnectionClosed()
	s.metrics.SetRooms(s.registry.RoomCount())

	if user != "" {
		s.broadcaster.Broadcast(room, presenceMessage(room, user, TypeQuit, s.now()))
	}

	s.logger.Info("connection closed",
		zap.String("user", user),
		zap.String("room", room),
		zap.String("conn", conn.ID()),
		zap.Int("connections", s.registry.ConnectionCount()))
}

// SendTo delivers msg to the first open connection of user in any room.
func (s *Service) SendTo(user string, msg Message) error {
	for _, conn := range s.registry.ConnsOf(user) {
		if !conn.IsOpen() {
			continue
		}
		if err := s.broadcaster.SendTo(conn, msg); err != nil {
			s.logger.Warn("direct send failed", zap.String("user", user), zap.Error(err))
			continue
		}
		return nil
	}
	return ErrNotDelivered
}

// OnlineCount returns the number of connections in room.
func (s *Service) OnlineCount(room string) int {
	return s.registry.OnlineCount(room)
}

// ChatHistory returns the retained messages of room, oldest first.
func (s *Service) ChatHistory(room string) []Message {
	return s.registry.HistorySnapshot(room)
}

// ChatHistoryJSON returns ChatHistory encoded as a JSON array.
func (s *Service) ChatHistoryJSON(room string) ([]byte, error) {
	return json.Marshal(s.ChatHistory(room))
}
