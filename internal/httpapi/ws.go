package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/amical/internal/chat"
	"github.com/ent0n29/amical/internal/inference"
	"github.com/ent0n29/amical/internal/protocol"
	"github.com/ent0n29/amical/internal/store"
	"github.com/ent0n29/amical/internal/views"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 120 * time.Second
	wsPingPeriod = 30 * time.Second
)

// handleChatWS owns one chat view per connection: the view opens on connect
// and closes on disconnect.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	personaID := strings.TrimSpace(chi.URLParam(r, "id"))
	view := views.NewChatView(s.store, s.hub, s.chat, personaID)
	if err := view.Open(r.Context()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "persona_not_found", views.NoticeLoadFailed)
			return
		}
		log.Printf("chat view open failed persona=%s: %v", personaID, err)
		respondError(w, http.StatusInternalServerError, "load_failed", views.NoticeLoadFailed)
		return
	}
	defer view.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := s.sessions.Create(personaID, cancel)
	s.metrics.ActiveSubscriptions.Set(float64(s.sessions.ActiveCount()))
	defer func() {
		_, _ = s.sessions.End(sess.ID)
		s.metrics.ActiveSubscriptions.Set(float64(s.sessions.ActiveCount()))
	}()

	outbound := make(chan any, 64)
	push := func(msg any) {
		select {
		case outbound <- msg:
		case <-ctx.Done():
		}
	}

	persona := view.Persona()
	outbound <- protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sess.ID,
		Code:      "ready",
		Persona:   &persona,
		History:   view.Turns(),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, cancel, conn, sess.ID, view, outbound)
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = s.sessions.Touch(sess.ID)

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			push(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}

		switch msg := parsed.(type) {
		case protocol.SendMessage:
			_ = s.sessions.RecordSend(sess.ID)
			go s.runSend(ctx, view, sess.ID, msg.Content, push)
		case protocol.Ping:
		}
	}

	cancel()
	<-writerDone
}

// runSend executes one send off the read loop so a second send can be
// rejected as busy while the first is in flight. Status frames are only
// emitted for accepted sends, always as a busy/idle pair.
func (s *Server) runSend(ctx context.Context, view *views.ChatView, sessionID, content string, push func(any)) {
	accepted := false
	_, err := view.SendAccepted(ctx, content, func() {
		accepted = true
		push(protocol.SendStatus{Type: protocol.TypeSendStatus, Busy: true})
	})
	if accepted {
		push(protocol.SendStatus{Type: protocol.TypeSendStatus, Busy: false})
	}
	if err != nil {
		push(sendErrorEvent(sessionID, err))
	}
}

func sendErrorEvent(sessionID string, err error) protocol.ErrorEvent {
	code := "send_failed"
	switch {
	case errors.Is(err, views.ErrBusy):
		code = "busy"
	case errors.Is(err, chat.ErrEmptyMessage):
		code = "empty_message"
	case errors.Is(err, store.ErrNotFound):
		code = "persona_not_found"
	}
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    "chat",
		Retryable: errors.Is(err, inference.ErrUpstream) || errors.Is(err, views.ErrBusy),
		Detail:    views.SendNotice(err),
	}
}

// writeLoop is the only goroutine writing to conn.
func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sessionID string, view *views.ChatView, outbound <-chan any) {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	// Closing the connection unblocks the read loop.
	defer conn.Close()
	updates := view.Updates()

	write := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			cancel()
			return false
		}
		if t, ok := messageTypeOf(msg); ok {
			s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case msg := <-outbound:
			if !write(msg) {
				return
			}
		case turn, ok := <-updates:
			if !ok {
				write(protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: sessionID,
					Code:      "stream_lost",
					Source:    "realtime",
					Retryable: true,
					Detail:    views.NoticeStreamLost,
				})
				cancel()
				updates = nil
				continue
			}
			if !write(protocol.TurnInserted{Type: protocol.TypeTurnInserted, Turn: turn}) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				cancel()
				return
			}
		}
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.SendMessage:
		return m.Type, true
	case protocol.Ping:
		return m.Type, true
	case protocol.TurnInserted:
		return m.Type, true
	case protocol.SendStatus:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
