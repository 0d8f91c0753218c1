package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/clipwise/clipwise/internal/events"
	"github.com/clipwise/clipwise/internal/services"
	"github.com/clipwise/clipwise/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

type WSHandler struct {
	sessions services.SessionService
	live     services.LiveService
	queue    services.QueueService
	redis    *redis.Client
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions services.SessionService, live services.LiveService, queue services.QueueService, rdb *redis.Client) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		live:     live,
		queue:    queue,
		redis:    rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsClientMsg struct {
	Type        string   `json:"type"`
	AudioBase64 string   `json:"audio_base64"`
	Label       string   `json:"label"`
	Start       float64  `json:"start"`
	End         *float64 `json:"end"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

// SessionWS is the realtime surface of a live session: inbound audio chunks
// and markers, outbound the session's event channel.
func (h *WSHandler) SessionWS(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	if sessionID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "WSHandler.SessionWS", "missing session_id", nil))
		return
	}

	sess, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, "WSHandler.SessionWS", "forbidden", nil))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Subscribe Redis -> WS
	pubsub := h.redis.Subscribe(ctx, events.SessionChannel(sessionID))
	defer pubsub.Close()

	// reader: WS -> pipeline
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"invalid json"}`))
				continue
			}

			switch msg.Type {
			case "audio_chunk":
				if msg.AudioBase64 == "" {
					_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"audio_base64 required"}`))
					continue
				}
				audio, err := base64.StdEncoding.DecodeString(msg.AudioBase64)
				if err != nil {
					_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"invalid base64"}`))
					continue
				}
				if err := h.live.SendAudio(sessionID, audio); err != nil {
					_ = wc.writeText([]byte(`{"type":"error","code":"UNAVAILABLE","message":"no running pipeline"}`))
				}

			case "marker":
				item, err := h.queue.EnqueueManual(ctx, sessionID, msg.Label, msg.Start, msg.End)
				if err != nil {
					_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"invalid marker"}`))
					continue
				}
				if b, err := json.Marshal(gin.H{"type": "marker_accepted", "item_id": item.ItemID}); err == nil {
					_ = wc.writeText(b)
				}

			case "end_session":
				_ = h.live.EndPipeline(sessionID)
				_, _ = h.sessions.End(ctx, sessionID)
				_ = wc.writeText([]byte(`{"type":"status","status":"ended","message":"session ended"}`))
				return

			default:
				_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"unknown message type"}`))
			}
		}
	}()

	// writer: Redis Pub/Sub -> WS. Channel() keeps the loop selectable so a
	// closed reader ends the connection even when no events are flowing.
	ch := pubsub.Channel()
	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			// forward as-is (envelopes are published as JSON)
			if werr := wc.writeText([]byte(m.Payload)); werr != nil {
				return
			}
		}
	}
}
