package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"callbridge/internal/auth"
	"callbridge/internal/call"
	"callbridge/internal/coordinator"
	"callbridge/internal/presence"
	"callbridge/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// clientFrame is what participants send over the socket. Lifecycle frames
// carry a call_id; signal frames additionally carry an opaque payload.
type clientFrame struct {
	Type    string          `json:"type"`
	CallID  string          `json:"call_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type errorFrame struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Error  string `json:"error"`
}

type supersededFrame struct {
	Type string `json:"type"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Controller upgrades authenticated clients and wires their connection into
// presence, signaling and the call façade. One connection per identity: a
// newer connection supersedes the older one.
type Controller struct {
	Registry    *presence.Registry
	Relay       *relay.Relay
	Coordinator *coordinator.Coordinator
	SendBuffer  int
	Log         *slog.Logger
}

func (ctl *Controller) Handle(c *gin.Context) {
	identity, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ctl.Log.Warn("ws upgrade failed", slog.String("identity", identity), slog.Any("error", err))
		return
	}

	conn := newConn(identity, sock, ctl.SendBuffer)
	if superseded, _ := ctl.Registry.Register(identity, conn); superseded != nil {
		_ = superseded.TrySend(supersededFrame{Type: "superseded"})
		superseded.Close()
	}

	ctl.Log.Info("ws connected", slog.String("identity", identity))
	go conn.writePump()
	go ctl.readPump(conn)
}

// readPump drives the connection until it drops, then unwinds presence and
// any active call. Deregister is handle-matched: if a newer connection has
// replaced this one, its presence (and calls) stay untouched.
func (ctl *Controller) readPump(conn *Conn) {
	defer func() {
		conn.Close()
		if ctl.Registry.Deregister(conn.identity, conn) {
			ctl.Coordinator.OnDisconnect(context.Background(), conn.identity)
			ctl.Log.Info("ws disconnected", slog.String("identity", conn.identity))
		}
	}()

	conn.sock.SetReadLimit(maxMessageSize)
	_ = conn.sock.SetReadDeadline(time.Now().Add(pongWait))
	conn.sock.SetPongHandler(func(string) error {
		return conn.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.sock.ReadMessage()
		if err != nil {
			return
		}
		ctl.dispatch(conn, data)
	}
}

func (ctl *Controller) dispatch(conn *Conn, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		_ = conn.TrySend(errorFrame{Type: "error", Error: "invalid frame"})
		return
	}
	if frame.CallID == "" {
		_ = conn.TrySend(errorFrame{Type: "error", Error: "call_id required"})
		return
	}

	ctx := context.Background()
	var err error
	switch frame.Type {
	case "signal":
		// Best-effort: drops are silent to the sender.
		ctl.Relay.Forward(frame.CallID, conn.identity, frame.Payload)
		return
	case "answer":
		_, err = ctl.Coordinator.Answer(ctx, frame.CallID, conn.identity)
	case "reject":
		_, err = ctl.Coordinator.Reject(ctx, frame.CallID, conn.identity)
	case "cancel":
		_, err = ctl.Coordinator.Cancel(ctx, frame.CallID, conn.identity)
	case "end":
		_, err = ctl.Coordinator.End(ctx, frame.CallID, conn.identity)
	default:
		_ = conn.TrySend(errorFrame{Type: "error", CallID: frame.CallID, Error: "unknown frame type"})
		return
	}

	if err != nil {
		_ = conn.TrySend(errorFrame{Type: "error", CallID: frame.CallID, Error: userFacing(err)})
	}
}

// userFacing keeps lifecycle sentinel text and hides everything else.
func userFacing(err error) string {
	switch {
	case isLifecycleError(err):
		return err.Error()
	default:
		return "internal error"
	}
}

func isLifecycleError(err error) bool {
	for _, sentinel := range []error{
		call.ErrNotFound,
		call.ErrUnauthorized,
		call.ErrInvalidTransition,
		call.ErrAlreadyActive,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
