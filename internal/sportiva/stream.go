package sportiva

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/stridehq/sportiva-adapter/internal/session"
	"github.com/stridehq/sportiva-adapter/pkg/model"
)

// UpdateHandler is called for each frame received on the live updates stream.
type UpdateHandler func(msg *UpdateMessage)

// Stream consumes Sportiva's live updates WebSocket (check-ins recorded by
// coaches' devices, photo uploads) and dispatches them to handlers. The
// poller remains the source of truth; the stream just lowers latency.
type Stream struct {
	logger         *zap.Logger
	url            string
	sessions       session.Store
	service        *Service
	handlers       map[string]UpdateHandler
	handlersMu     sync.RWMutex
	reconnectDelay time.Duration
}

// NewStream creates a live updates subscriber.
func NewStream(logger *zap.Logger, url string, sessions session.Store, service *Service) *Stream {
	s := &Stream{
		logger:         logger,
		url:            url,
		sessions:       sessions,
		service:        service,
		handlers:       make(map[string]UpdateHandler),
		reconnectDelay: 5 * time.Second,
	}

	s.RegisterHandler("checkin.recorded", s.handleCheckInRecorded)
	return s
}

// RegisterHandler registers a handler for a specific update type.
func (s *Stream) RegisterHandler(updateType string, handler UpdateHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[updateType] = handler
}

// Run connects and consumes frames until the context is canceled,
// reconnecting with a fixed delay on any failure.
func (s *Stream) Run(ctx context.Context) {
	for {
		if err := s.connectAndRead(ctx); err != nil {
			s.logger.Warn("stream.disconnected", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("stream.stopped")
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	pair, err := s.sessions.Tokens(ctx)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{"Authorization": []string{"Bearer " + pair.AccessToken}}

	conn, _, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck
	s.logger.Info("stream.connected", zap.String("url", s.url))

	// Unblock ReadMessage when the context goes away. The done channel lets
	// the watcher exit when this connection ends for any other reason, so
	// reconnect cycles do not pile up goroutines.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var msg UpdateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("stream.decode_failed", zap.Error(err))
			continue
		}
		s.dispatch(&msg)
	}
}

func (s *Stream) dispatch(msg *UpdateMessage) {
	s.handlersMu.RLock()
	handler, ok := s.handlers[msg.Type]
	s.handlersMu.RUnlock()

	if !ok {
		s.logger.Debug("stream.unhandled_update", zap.String("type", msg.Type))
		return
	}
	handler(msg)
}

// handleCheckInRecorded fans a streamed check-in out through the service.
func (s *Stream) handleCheckInRecorded(msg *UpdateMessage) {
	var ci model.CheckIn
	if err := json.Unmarshal(msg.Payload, &ci); err != nil {
		s.logger.Warn("stream.checkin_decode_failed", zap.Error(err))
		return
	}
	if ci.ClubID == "" {
		ci.ClubID = msg.ClubID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.service.propagateCheckIn(ctx, &ci)

	s.logger.Debug("stream.checkin_propagated",
		zap.String("checkin_id", ci.ID),
		zap.String("session_id", ci.SessionID))
}
