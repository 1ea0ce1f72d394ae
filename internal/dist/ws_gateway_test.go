package dist

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"main/internal/model"
	"main/internal/obs"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialGateway(t *testing.T, g *Gateway) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(g.Handle))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) wsReply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestGatewaySubscribeAndPush(t *testing.T) {
	g := NewGateway(nil, 0, obs.NewMetrics())
	conn := dialGateway(t, g)

	assert.Equal(t, "welcome", readReply(t, conn).Type)

	require.NoError(t, conn.WriteJSON(wsCommand{Op: "subscribe", Symbol: "EURUSD"}))
	ack := readReply(t, conn)
	assert.Equal(t, "ack", ack.Type)
	assert.Equal(t, "Subscribed to EURUSD", ack.Message)

	g.Push(model.Rate{Name: "EURUSD", Bid: 1.1, Ask: 1.1002, Ts: time.UnixMilli(1756600000000)})
	frame := readReply(t, conn)
	assert.Equal(t, "rate", frame.Type)
	assert.Equal(t, "EURUSD", frame.Symbol)
	assert.InDelta(t, 1.1, frame.Bid, 1e-9)
	assert.InDelta(t, 1.1002, frame.Ask, 1e-9)
	assert.Equal(t, int64(1756600000000), frame.Ts)
}

func TestGatewayUnsubscribeErrors(t *testing.T) {
	g := NewGateway(nil, 0, obs.NewMetrics())
	conn := dialGateway(t, g)
	readReply(t, conn)

	require.NoError(t, conn.WriteJSON(wsCommand{Op: "unsubscribe", Symbol: "USDJPY"}))
	reply := readReply(t, conn)
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "You are not subscribed to: USDJPY", reply.Message)

	require.NoError(t, conn.WriteJSON(wsCommand{Op: "bogus", Symbol: "USDJPY"}))
	assert.Equal(t, "Invalid request format", readReply(t, conn).Message)

	require.NoError(t, conn.WriteJSON(wsCommand{Op: "subscribe"}))
	assert.Equal(t, "Invalid request format", readReply(t, conn).Message)
}

func TestGatewaySnapshot(t *testing.T) {
	source := mapSource{
		"EURUSD": {Name: "EURUSD", Bid: 1.1, Ask: 1.1002, Ts: time.UnixMilli(1756600000000)},
	}
	g := NewGateway(source, 0, obs.NewMetrics())
	conn := dialGateway(t, g)
	readReply(t, conn)

	require.NoError(t, conn.WriteJSON(wsCommand{Op: "snapshot", Symbol: "EURUSD"}))
	frame := readReply(t, conn)
	assert.Equal(t, "rate", frame.Type)
	assert.InDelta(t, 1.1, frame.Bid, 1e-9)

	require.NoError(t, conn.WriteJSON(wsCommand{Op: "snapshot", Symbol: "XAUUSD"}))
	reply := readReply(t, conn)
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "Rate not found: XAUUSD", reply.Message)
}

func TestGatewayCleansUpClosedSession(t *testing.T) {
	g := NewGateway(nil, 0, obs.NewMetrics())
	conn := dialGateway(t, g)
	readReply(t, conn)

	require.NoError(t, conn.WriteJSON(wsCommand{Op: "subscribe", Symbol: "EURUSD"}))
	readReply(t, conn)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return g.SessionCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}
