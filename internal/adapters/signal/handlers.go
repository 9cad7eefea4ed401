package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signal/internal/core"
)

func (ctl *SignalWSController) handlePing(c *WsSignalConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(c, resp)
}

func (ctl *SignalWSController) handleGetCapabilities(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	env envelope,
) {
	caps, err := ctl.Orch.GetRouterRtpCapabilities(ctx, sid)
	if err != nil {
		ctl.respondError(conn, env.Id, err)
		return
	}
	ctl.respond(conn, "routerRtpCapabilities", env.Id, struct {
		Capabilities core.RtpCapabilities `json:"capabilities"`
	}{caps})
}

func (ctl *SignalWSController) handleCreateTransport(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	env envelope,
	data []byte,
) {
	type createPayload struct {
		Direction core.TransportDirection `json:"direction"`
	}
	var p createPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad createTransport payload")
		ctl.respondError(conn, env.Id, core.NewError(core.KindInvalidState, "bad payload"))
		return
	}
	if !p.Direction.Valid() {
		ctl.respondError(conn, env.Id, core.NewError(core.KindInvalidState,
			"direction must be %q or %q", core.DirectionSend, core.DirectionRecv))
		return
	}

	desc, err := ctl.Orch.CreateTransport(ctx, sid, p.Direction)
	if err != nil {
		ctl.respondError(conn, env.Id, err)
		return
	}
	ctl.respond(conn, "transportCreated", env.Id, desc)
}

func (ctl *SignalWSController) handleConnectTransport(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	env envelope,
	data []byte,
	direction core.TransportDirection,
) {
	type connectPayload struct {
		DtlsParameters core.DtlsParameters `json:"dtlsParameters"`
	}
	var p connectPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad connect payload")
		ctl.respondError(conn, env.Id, core.NewError(core.KindInvalidState, "bad payload"))
		return
	}

	if err := ctl.Orch.ConnectTransport(ctx, sid, direction, p.DtlsParameters); err != nil {
		ctl.respondError(conn, env.Id, err)
		return
	}
	ctl.respond(conn, "transportConnected", env.Id, struct {
		Direction core.TransportDirection `json:"direction"`
	}{direction})
}

func (ctl *SignalWSController) handleProduce(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	env envelope,
	data []byte,
) {
	type producePayload struct {
		Kind          core.MediaKind     `json:"kind"`
		RtpParameters core.RtpParameters `json:"rtpParameters"`
	}
	var p producePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad produce payload")
		ctl.respondError(conn, env.Id, core.NewError(core.KindInvalidState, "bad payload"))
		return
	}

	id, err := ctl.Orch.Produce(ctx, sid, p.Kind, p.RtpParameters)
	if err != nil {
		ctl.respondError(conn, env.Id, err)
		return
	}
	ctl.respond(conn, "producerCreated", env.Id, struct {
		Id core.ProducerID `json:"id"`
	}{id})
}

func (ctl *SignalWSController) handleConsume(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	env envelope,
	data []byte,
) {
	type consumePayload struct {
		RtpCapabilities core.RtpCapabilities `json:"rtpCapabilities"`
		ProducerId      core.ProducerID      `json:"producerId,omitempty"`
	}
	var p consumePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad consume payload")
		ctl.respondError(conn, env.Id, core.NewError(core.KindInvalidState, "bad payload"))
		return
	}

	desc, err := ctl.Orch.Consume(ctx, sid, p.ProducerId, p.RtpCapabilities)
	if err != nil {
		ctl.respondError(conn, env.Id, err)
		return
	}
	ctl.respond(conn, "consumerCreated", env.Id, desc)
}

func (ctl *SignalWSController) handleResume(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	env envelope,
	data []byte,
) {
	type resumePayload struct {
		ConsumerId core.ConsumerID `json:"consumerId,omitempty"`
	}
	var p resumePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad resume payload")
		ctl.respondError(conn, env.Id, core.NewError(core.KindInvalidState, "bad payload"))
		return
	}

	id, err := ctl.Orch.ResumeConsumer(ctx, sid, p.ConsumerId)
	if err != nil {
		ctl.respondError(conn, env.Id, err)
		return
	}
	ctl.respond(conn, "consumerResumed", env.Id, struct {
		ConsumerId core.ConsumerID `json:"consumerId"`
	}{id})
}
