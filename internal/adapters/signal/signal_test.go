package signal

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Signal/internal/app"
	"github.com/dkeye/Signal/internal/app/orch"
	"github.com/dkeye/Signal/internal/config"
	"github.com/dkeye/Signal/internal/engine"
)

func newTestController(t *testing.T, readLimit int64) *SignalWSController {
	t.Helper()
	eng, err := engine.New(engine.Options{
		ListenIps: []string{"127.0.0.1"},
		MinPort:   44000,
		MaxPort:   44999,
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	o := &orch.Orchestrator{
		Registry:    app.NewRegistry(),
		Producers:   app.NewProducerIndex(),
		Engine:      eng,
		MediaCodecs: engine.DefaultMediaCodecs(1000),
	}
	return NewSignalWSController(o, &config.Config{
		ReadLimit:  readLimit,
		PingPeriod: 54 * time.Second,
	})
}

func dialTestServer(t *testing.T, ctl *SignalWSController) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("client_token", "tok")
		ctl.HandleSignal(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSignalRoundTripWithinReadLimit(t *testing.T) {
	ctl := newTestController(t, 512)
	conn := dialTestServer(t, ctl)

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), "connection-success")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), "pong")
}

func TestOversizeFrameClosesConnection(t *testing.T) {
	ctl := newTestController(t, 256)
	conn := dialTestServer(t, ctl)

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), "connection-success")

	frame := append([]byte(`{"type":"ping","pad":"`), bytes.Repeat([]byte("a"), 1024)...)
	frame = append(frame, '"', '}')
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	// The server drops the connection instead of reading the frame.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	require.Error(t, err)
}
