package subscriber

import (
	"context"
	"testing"
	"time"

	"main/internal/dist"
	"main/internal/model"
	"main/internal/obs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPAdapterSubscribesAndReceives(t *testing.T) {
	metrics := obs.NewMetrics()
	srv, err := dist.NewServer("127.0.0.1:0", 4, nil, metrics)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Listen(ctx))
	defer srv.Close()

	listener := &recordListener{}
	adapter, err := NewTCPAdapter("UPSTREAM", srv.Addr().String(), []string{"EURUSD"}, time.Second, listener, metrics.Adapter("UPSTREAM"))
	require.NoError(t, err)
	require.NoError(t, adapter.Connect(ctx))
	defer adapter.Disconnect()

	rate := model.Rate{Name: "EURUSD", Bid: 1.1, Ask: 1.1002, Ts: time.Now()}
	require.Eventually(t, func() bool {
		srv.Push(rate)
		available, updates := listener.counts()
		return available+updates >= 1
	}, 2*time.Second, 10*time.Millisecond, "subscribed symbol never arrived")

	listener.mu.Lock()
	defer listener.mu.Unlock()
	require.NotEmpty(t, listener.available)
	assert.Equal(t, "EURUSD", listener.available[0].Symbol)
	assert.Equal(t, "UPSTREAM", listener.available[0].Platform)
	assert.InDelta(t, 1.1, listener.available[0].Bid, 1e-9)
	assert.Empty(t, listener.errs, "welcome and ack lines must not reach the tick parser")
}

func TestControlLinesAreNotRateRecords(t *testing.T) {
	assert.True(t, isControlLine("WELCOME|Connected to Rate TCP Server"))
	assert.True(t, isControlLine("Subscribed to EURUSD"))
	assert.True(t, isControlLine("Unsubscribed from EURUSD"))
	assert.False(t, isControlLine("EURUSD|1.10000000|1.10020000|0"))
}
