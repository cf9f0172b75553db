// Package realtime serves live conversation listeners over websockets. Each
// frame carries a full snapshot, never a delta.
package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"rallyup/backend/internal/domain"
	"rallyup/backend/internal/domain/conversation"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
)

// Frame is the JSON envelope written for every snapshot.
type Frame struct {
	Type    string `json:"type"` // messages | conversations | error
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StreamObserver tracks open streams; the returned func is called on close.
type StreamObserver interface {
	StreamOpened(stream string) func()
}

type Streamer struct {
	convs    *conversation.Service
	log      *slog.Logger
	obs      StreamObserver
	upgrader websocket.Upgrader
}

// New builds a Streamer. allowedOrigins mirrors the CORS configuration; an
// empty list accepts any origin.
func New(convs *conversation.Service, allowedOrigins []string, log *slog.Logger) *Streamer {
	if log == nil {
		log = slog.Default()
	}
	allowed := map[string]bool{}
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Streamer{
		convs: convs,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
	}
}

func (s *Streamer) SetObserver(obs StreamObserver) {
	s.obs = obs
}

// Messages streams a conversation's messages to viewer and marks the ones
// addressed to viewer read as they arrive. Errors before the upgrade are
// returned for the caller to write; afterwards the stream owns the
// connection and nil is returned.
func (s *Streamer) Messages(w http.ResponseWriter, r *http.Request, convID, viewer string) error {
	conv, err := s.convs.Get(r.Context(), convID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(viewer) {
		return conversation.ErrNotParticipant
	}

	return s.serve(w, r, "messages", func(ctx context.Context, conn *websocket.Conn) error {
		snaps := s.convs.ListenForMessages(ctx, convID)
		return pump(ctx, conn, snaps, func(snap conversation.MessagesSnapshot) Frame {
			if snap.Err != nil {
				return Frame{Type: "error", Error: domain.Message(snap.Err)}
			}
			s.markRead(ctx, convID, viewer, snap.Messages)
			return Frame{Type: "messages", Payload: snap}
		})
	})
}

// Conversations streams viewer's inbox.
func (s *Streamer) Conversations(w http.ResponseWriter, r *http.Request, viewer string) error {
	return s.serve(w, r, "conversations", func(ctx context.Context, conn *websocket.Conn) error {
		snaps := s.convs.ListenForConversations(ctx, viewer)
		return pump(ctx, conn, snaps, func(snap conversation.ConversationsSnapshot) Frame {
			if snap.Err != nil {
				return Frame{Type: "error", Error: domain.Message(snap.Err)}
			}
			return Frame{Type: "conversations", Payload: snap}
		})
	})
}

func (s *Streamer) markRead(ctx context.Context, convID, viewer string, msgs []conversation.Message) {
	var ids []string
	for _, m := range msgs {
		if m.ReceiverID == viewer && !m.IsRead {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if _, err := s.convs.MarkRead(ctx, convID, ids, viewer); err != nil && ctx.Err() == nil {
		s.log.Warn("realtime: mark read failed", "conversation_id", convID, "uid", viewer, "error", err)
	}
}

func (s *Streamer) serve(w http.ResponseWriter, r *http.Request, stream string, run func(context.Context, *websocket.Conn) error) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.log.Warn("realtime: upgrade failed", "stream", stream, "error", err)
		return nil
	}
	defer conn.Close()

	if s.obs != nil {
		defer s.obs.StreamOpened(stream)()
	}

	// Detach from the handshake request; the read pump decides the lifetime.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go readPump(conn, cancel)

	s.log.Debug("realtime: stream opened", "stream", stream, "path", r.URL.Path)
	err = run(ctx, conn)
	if err != nil && ctx.Err() == nil {
		s.log.Info("realtime: stream closed", "stream", stream, "error", err)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return nil
}

// readPump discards client frames, answers pongs and cancels on disconnect.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func pump[T any](ctx context.Context, conn *websocket.Conn, snaps <-chan T, frame func(T) Frame) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame(snap)); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}
