package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signal/internal/app/orch"
	"github.com/dkeye/Signal/internal/config"
	"github.com/dkeye/Signal/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

type SignalWSController struct {
	Orch    *orch.Orchestrator
	cfg     *config.Config
	limiter *SessionRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		cfg:     cfg,
		limiter: NewSessionRateLimiter(64, time.Second),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	if _, err := ctl.Orch.Connect(ctx, sid, conn, cancel); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("session create")
		cancel()
		conn.Close()
		return
	}

	ctl.sendJSON(conn, struct {
		Type      string         `json:"type"`
		SessionId core.SessionID `json:"sessionId"`
	}{
		Type:      "connection-success",
		SessionId: sid,
	})

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}
