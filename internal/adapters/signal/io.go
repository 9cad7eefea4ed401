package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/metrics"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		c.Close()
		ctl.limiter.Forget(sid)
		// Only the session this connection still owns; a replaced connection's
		// cleanup must not reach the fresh session under the same identity.
		ctl.Orch.DisconnectConn(sid, c)
	}()

	// The peer must answer pings within the pong window or the read times out.
	pongWait := ctl.cfg.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(ctx, sid, c, data)
		}
	}
}

// envelope is the common head of every request. Id correlates the response;
// the rest of the payload is parsed per type.
type envelope struct {
	Type string  `json:"type"`
	Id   *uint64 `json:"id,omitempty"`
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	var handler func()
	switch env.Type {
	case "getRouterRtpCapabilities":
		handler = func() { ctl.handleGetCapabilities(ctx, sid, c, env) }
	case "createTransport":
		handler = func() { ctl.handleCreateTransport(ctx, sid, c, env, data) }
	case "connectProducerTransport":
		handler = func() { ctl.handleConnectTransport(ctx, sid, c, env, data, core.DirectionSend) }
	case "connectConsumerTransport":
		handler = func() { ctl.handleConnectTransport(ctx, sid, c, env, data, core.DirectionRecv) }
	case "transport-produce":
		handler = func() { ctl.handleProduce(ctx, sid, c, env, data) }
	case "consumeMedia":
		handler = func() { ctl.handleConsume(ctx, sid, c, env, data) }
	case "resumePausedConsumer":
		handler = func() { ctl.handleResume(ctx, sid, c, env, data) }
	case "ping":
		handler = func() { ctl.handlePing(c) }
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		return
	}

	if !ctl.limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", env.Type).Msg("rate limited")
		return
	}
	metrics.SignalRequests.WithLabelValues(env.Type).Inc()
	handler()
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// respond sends a correlated success payload.
func (ctl *SignalWSController) respond(c *WsSignalConn, typ string, id *uint64, payload any) {
	resp := struct {
		Type string  `json:"type"`
		Id   *uint64 `json:"id,omitempty"`
		Data any     `json:"data,omitempty"`
	}{
		Type: typ,
		Id:   id,
		Data: payload,
	}
	ctl.sendJSON(c, resp)
}

// respondError sends a correlated structured error. The session stays up;
// only the offending request fails.
func (ctl *SignalWSController) respondError(c *WsSignalConn, id *uint64, err error) {
	kind := core.KindOf(err)
	metrics.RequestErrors.WithLabelValues(string(kind)).Inc()
	resp := struct {
		Type  string  `json:"type"`
		Id    *uint64 `json:"id,omitempty"`
		Error struct {
			Kind    core.ErrorKind `json:"kind"`
			Message string         `json:"message"`
		} `json:"error"`
	}{
		Type: "error",
		Id:   id,
	}
	resp.Error.Kind = kind
	resp.Error.Message = err.Error()
	ctl.sendJSON(c, resp)
}
