package pub

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"main/internal/bus"
	"main/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func testEvent() bus.Event {
	return bus.Event{
		Rate:     model.Rate{Name: "EURUSD", Bid: 1.1, Ask: 1.1002, Ts: time.UnixMilli(1756600000000)},
		Platform: "SIM",
	}
}

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestKafkaPublisherKeysBySymbol(t *testing.T) {
	writer := &captureWriter{}
	p := &KafkaPublisher{writer: writer}

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, writer.msgs, 1)
	assert.Equal(t, "EURUSD", string(writer.msgs[0].Key))

	var body payload
	require.NoError(t, json.Unmarshal(writer.msgs[0].Value, &body))
	assert.Equal(t, "EURUSD", body.Symbol)
	assert.InDelta(t, 1.1, body.Bid, 1e-9)
	assert.InDelta(t, 1.1002, body.Ask, 1e-9)
	assert.Equal(t, int64(1756600000000), body.Ts)
	assert.Equal(t, "SIM", body.Platform)
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &captureWriter{err: errors.New("broker down")}}
	err := p.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.ErrorContains(t, err, "broker down")
}

func TestRedisPublisherStoresLatestAndFansOut(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p, err := NewRedisPublisher(client)
	require.NoError(t, err)

	ctx := context.Background()
	sub := client.Subscribe(ctx, "rates.EURUSD")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, testEvent()))

	assert.Equal(t, "1.1", mr.HGet("rate:EURUSD", "bid"))
	assert.Equal(t, "1.1002", mr.HGet("rate:EURUSD", "ask"))

	select {
	case msg := <-sub.Channel():
		var body payload
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &body))
		assert.Equal(t, "EURUSD", body.Symbol)
	case <-time.After(time.Second):
		t.Fatal("no pubsub message")
	}
}

type flakyPublisher struct {
	calls atomic.Int32
	fail  bool
}

func (p *flakyPublisher) Publish(ctx context.Context, event bus.Event) error {
	p.calls.Add(1)
	if p.fail {
		return errors.New("sink down")
	}
	return nil
}

func (p *flakyPublisher) Close() error { return nil }

func TestFanoutContinuesPastFailingSink(t *testing.T) {
	bad := &flakyPublisher{fail: true}
	good := &flakyPublisher{}
	f := NewFanout(bad, good)

	err := f.Publish(context.Background(), testEvent())
	assert.Error(t, err)
	assert.Equal(t, int32(1), bad.calls.Load())
	assert.Equal(t, int32(1), good.calls.Load(), "healthy sink still receives the event")
}

func TestDrainFeedsPublisherFromQueue(t *testing.T) {
	queue := bus.NewQueue(8)
	sink := &flakyPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Drain(ctx, queue, sink)
		close(done)
	}()

	require.NoError(t, queue.TryPublish(testEvent()))
	require.NoError(t, queue.TryPublish(testEvent()))
	require.Eventually(t, func() bool { return sink.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain did not stop")
	}
}
