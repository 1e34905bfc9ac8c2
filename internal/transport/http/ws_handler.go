package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"live-quiz-service/internal/app"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WSHandler plays a quiz over a websocket: session events flow out, answer
// selections and submissions flow in.
type WSHandler struct {
	service  *app.QuizService
	profiles *app.Profiles
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, profiles *app.Profiles) *WSHandler {
	return &WSHandler{
		service:  service,
		profiles: profiles,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	QuestionID string `json:"questionId"`
	Content    string `json:"content"`
	ImageURL   string `json:"imageUrl"`
}

// submitPayload may carry the final answer so a client can select and
// submit in one message.
type submitPayload struct {
	QuestionID string  `json:"questionId"`
	Content    *string `json:"content"`
	ImageURL   string  `json:"imageUrl"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: toPayload(err)}
}

// ServeWS upgrades an authenticated request and binds the connection to the
// caller's session for the quiz named by the code query parameter.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromRequest(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	session, err := h.service.Join(ctx, code, principal)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	if h.profiles != nil {
		if _, err := h.profiles.EnsureProfile(ctx, principal); err != nil {
			log.Printf("quiz %s: ensure profile of %s: %v", session.QuizID(), principal.UserID, err)
		}
	}

	out := newOutbox()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, out)
	}()

	// the listener runs under the session lock, so it only enqueues
	detach := session.Attach(func(ev app.SessionEvent) {
		out.push(outboundMessage[any]{Type: ev.Type, Payload: ev})
	})

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	left := false
	for !left {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		left = h.handle(ctx, session, inbound, out)
	}

	if left {
		h.service.Leave(session.QuizID(), principal.UserID)
	} else {
		detach()
	}
	out.close()
	<-writerDone
}

// handle applies one client message and reports whether the client left.
func (h *WSHandler) handle(ctx context.Context, session *app.Session, inbound inboundMessage, out *outbox) bool {
	var err error
	switch inbound.Type {
	case "select":
		var payload selectPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			out.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid select payload"}})
			return false
		}
		err = session.Select(payload.QuestionID, payload.Content, payload.ImageURL)
	case "submit":
		var payload submitPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			out.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid submit payload"}})
			return false
		}
		if payload.Content != nil {
			err = session.Select(payload.QuestionID, *payload.Content, payload.ImageURL)
		}
		if err == nil {
			err = session.Submit(ctx, payload.QuestionID)
		}
	case "refresh":
		err = h.service.Refresh(ctx, session)
	case "leave":
		return true
	default:
		out.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		return false
	}
	if err != nil {
		out.push(errorMessage(err))
	}
	return false
}

func (h *WSHandler) writeLoop(conn *websocket.Conn, out *outbox) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-out.ready:
			msgs, closed := out.drain()
			for _, msg := range msgs {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			}
			if closed {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// outbox is an unbounded queue between producers that must not block and
// the single connection writer.
type outbox struct {
	mu     sync.Mutex
	queue  []any
	closed bool
	ready  chan struct{}
}

func newOutbox() *outbox {
	return &outbox{ready: make(chan struct{}, 1)}
}

func (o *outbox) push(msg any) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, msg)
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) drain() ([]any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := o.queue
	o.queue = nil
	return msgs, o.closed
}

func (o *outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}
