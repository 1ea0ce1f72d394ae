package subscriber

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/model"
	"main/internal/obs"
	"main/pkg/exception"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

// WSAdapter consumes a remote websocket quote stream. Every configured
// symbol is subscribed after connect; inbound quote frames are normalized
// into raw ticks.
type WSAdapter struct {
	mu       sync.Mutex
	url      string
	platform string
	symbols  []string
	listener Listener
	metrics  *obs.AdapterMetrics
	status   atomic.Uint32
	wss      *ws.WebSocket
	cancel   func()
}

type wsSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type wsSubscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

type wsQuote struct {
	Type   string          `json:"type"`
	Symbol string          `json:"s"`
	Bid    decimal.Decimal `json:"b"`
	Ask    decimal.Decimal `json:"a"`
	TsMill int64           `json:"t"`
}

// NewWSAdapter builds a websocket feed adapter.
func NewWSAdapter(platform, url string, symbols []string, listener Listener, metrics *obs.AdapterMetrics) (*WSAdapter, error) {
	if listener == nil {
		return nil, exception.ErrSubscriberNilListener
	}
	if url == "" || len(symbols) == 0 {
		return nil, exception.ErrInvalidArgument
	}
	return &WSAdapter{
		url:      url,
		platform: platform,
		symbols:  symbols,
		listener: listener,
		metrics:  metrics,
	}, nil
}

func (a *WSAdapter) Platform() string { return a.platform }

func (a *WSAdapter) Status() Status { return Status(a.status.Load()) }

func (a *WSAdapter) Connected() bool { return a.Status() == StatusConnected }

// Connect opens the stream and subscribes every symbol. Idempotent while
// connected.
func (a *WSAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Connected() {
		return nil
	}
	a.status.Store(uint32(StatusConnecting))

	wss := ws.New(ctx, a.url)
	if err := wss.Start(ctx); err != nil {
		a.status.Store(uint32(StatusError))
		return errors.Wrap(err, "start wss").With("url", a.url)
	}

	for _, symbol := range a.symbols {
		if err := a.subscribe(ctx, wss, symbol); err != nil {
			wss.Close()
			a.status.Store(uint32(StatusError))
			return err
		}
	}

	ch, cancel := wss.Subscribe()
	a.wss = wss
	a.cancel = cancel
	a.status.Store(uint32(StatusConnected))
	a.metrics.SetConnected(true)
	a.listener.OnRateStatus(a.platform, true)

	go a.observe(ctx, ch)
	return nil
}

// Disconnect closes the stream, which ends the observe loop.
func (a *WSAdapter) Disconnect() {
	a.mu.Lock()
	wss := a.wss
	cancel := a.cancel
	a.wss = nil
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if wss != nil {
		wss.Close()
	}
}

func (a *WSAdapter) subscribe(ctx context.Context, wss *ws.WebSocket, symbol string) error {
	if err := wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			if err := client.WriteJSON(wsSubscribeRequest{
				Method: "SUBSCRIBE",
				Params: []string{symbol},
				ID:     1,
			}); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("symbol", symbol)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp wsSubscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != 1 {
				return false, nil
			}
			if resp.Result != nil {
				return false, errors.Errorf("subscribe rejected, err: %+v", resp.Result)
			}
			return true, nil
		},
	}); err != nil {
		return errors.Wrap(err, "send and wait").With("symbol", symbol)
	}
	return nil
}

func (a *WSAdapter) observe(ctx context.Context, ch <-chan ws.Message) {
	defer func() {
		a.status.Store(uint32(StatusDisconnected))
		a.metrics.SetConnected(false)
		a.listener.OnRateStatus(a.platform, false)
	}()

	em := newEmitter(a.listener, a.platform)
	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			quote, ok := ws.ReadMessage[wsQuote](m)
			if !ok || quote.Type != "quote" {
				continue
			}
			tick, err := quote.toTick()
			if err != nil {
				a.listener.OnRateError(a.platform, err)
				continue
			}
			a.metrics.IncReceived()
			em.emit(tick)
		}
	}
}

func (q wsQuote) toTick() (model.RawTick, error) {
	bid, err := strconv.ParseFloat(q.Bid.String(), 64)
	if err != nil {
		return model.RawTick{}, errors.Wrap(err, "parse quote bid")
	}
	ask, err := strconv.ParseFloat(q.Ask.String(), 64)
	if err != nil {
		return model.RawTick{}, errors.Wrap(err, "parse quote ask")
	}
	ts := time.UnixMilli(q.TsMill).UTC()
	if q.TsMill == 0 {
		ts = time.Now().UTC()
		logs.Debugf("quote for %s missing timestamp, stamped locally", q.Symbol)
	}
	return model.RawTick{Symbol: q.Symbol, Bid: bid, Ask: ask, Ts: ts}, nil
}
