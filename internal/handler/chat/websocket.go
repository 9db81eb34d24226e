package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// wsTimeouts bounds an idle connection. The read deadline does not apply while
// an exchange is in flight.
type wsTimeouts struct {
	read  time.Duration
	ping  time.Duration
	write time.Duration
}

type inboundFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingFrame struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket 每个连接对应一次页面加载：新建会话，逐条处理用户消息
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conversation := h.chatSvc.StartConversation(ctx)
	defer h.chatSvc.EndConversation(context.Background(), conversation.ID)

	log.Info().Str("conversation_id", conversation.ID).Msg("websocket connected")

	conn.SetReadDeadline(time.Now().Add(h.timeouts.read))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.timeouts.read))
		return nil
	})

	writes := make(chan outgoingFrame, 8)
	go h.writeLoop(ctx, cancel, conn, writes)

	send := func(kind string, data interface{}) {
		select {
		case writes <- newFrame(kind, data):
		case <-ctx.Done():
		}
	}

	send("conversation", conversation)

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conversation_id", conversation.ID).Msg("websocket read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.timeouts.read))

		if frame.Type != "" && frame.Type != "message" {
			send("error", map[string]string{"error": "unsupported frame type"})
			continue
		}

		// Reading stops while the exchange runs, so a connection never has
		// more than one message in flight. Pongs are not processed meanwhile,
		// so the read deadline is lifted until the reply is queued.
		send("typing", nil)
		conn.SetReadDeadline(time.Time{})
		reply, err := h.chatSvc.Send(ctx, conversation.ID, frame.Text)
		conn.SetReadDeadline(time.Now().Add(h.timeouts.read))
		if err != nil {
			send("error", map[string]string{"error": err.Error()})
			continue
		}
		send("message", reply)
	}
}

// writeLoop 串行写出消息并定时发送 ping
func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, writes <-chan outgoingFrame) {
	ticker := time.NewTicker(h.timeouts.ping)
	defer ticker.Stop()

	// a dead writer must also unblock the reader
	fail := func() {
		cancel()
		conn.Close()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-writes:
			conn.SetWriteDeadline(time.Now().Add(h.timeouts.write))
			if err := conn.WriteJSON(frame); err != nil {
				log.Warn().Err(err).Msg("websocket write failed")
				fail()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.timeouts.write)); err != nil {
				fail()
				return
			}
		}
	}
}

func newFrame(kind string, data interface{}) outgoingFrame {
	return outgoingFrame{Type: kind, Data: data, Timestamp: time.Now().UnixMilli()}
}
