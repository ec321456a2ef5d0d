package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/pubsub"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamReadLimit  = 512
)

// parseTopics reads ?topics=alerts,blockades. Empty means every topic.
func parseTopics(raw string) ([]pubsub.Topic, error) {
	var topics []pubsub.Topic
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t := pubsub.Topic(part)
		if !slices.Contains(pubsub.Topics, t) {
			return nil, fmt.Errorf("unknown topic %q", part)
		}
		topics = append(topics, t)
	}
	return topics, nil
}

// handleStream upgrades to a websocket and relays hub events as JSON
// frames until either side goes away. Clients only send control frames.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	topics, err := parseTopics(r.URL.Query().Get("topics"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	session := uuid.NewString()
	logger := s.logger.With(logging.String("session", session))

	// The request context ends when the handler returns, not when the
	// peer disconnects; the read loop below cancels on disconnect.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	sub, err := s.hub.Subscribe(ctx, topics...)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(streamWriteWait))
		return
	}
	defer sub.Unsubscribe()

	s.metricsRegistry.WebsocketClients.Inc()
	defer s.metricsRegistry.WebsocketClients.Dec()
	logger.Info("stream client connected", logging.Int("topics", len(topics)))

	go s.readPump(conn, cancel)

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
					time.Now().Add(streamWriteWait))
				logger.Info("stream client disconnected", logging.Int("dropped", int(sub.Dropped())))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(streamMessage(ev)); err != nil {
				logger.Debug("stream write failed", logging.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-ctx.Done():
			logger.Info("stream client disconnected", logging.Int("dropped", int(sub.Dropped())))
			return
		}
	}
}

// readPump consumes control frames so pongs and close frames are
// processed, and cancels the stream when the peer goes away.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
