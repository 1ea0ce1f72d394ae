package subscriber

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/model"
	"main/internal/obs"
	"main/pkg/exception"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
)

// RESTAdapter polls an HTTP endpoint returning a JSON array of quotes and
// emits each as a raw tick.
type RESTAdapter struct {
	mu       sync.Mutex
	url      string
	platform string
	interval time.Duration
	client   *http.Client
	listener Listener
	metrics  *obs.AdapterMetrics
	status   atomic.Uint32
	cancel   context.CancelFunc
}

type restQuote struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	TsMill int64           `json:"ts"`
}

// NewRESTAdapter builds a polling adapter for the given URL.
func NewRESTAdapter(platform, url string, interval time.Duration, listener Listener, metrics *obs.AdapterMetrics) (*RESTAdapter, error) {
	if listener == nil {
		return nil, exception.ErrSubscriberNilListener
	}
	if url == "" {
		return nil, exception.ErrInvalidArgument
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &RESTAdapter{
		url:      url,
		platform: platform,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		listener: listener,
		metrics:  metrics,
	}, nil
}

func (a *RESTAdapter) Platform() string { return a.platform }

func (a *RESTAdapter) Status() Status { return Status(a.status.Load()) }

func (a *RESTAdapter) Connected() bool { return a.Status() == StatusConnected }

// Connect verifies the endpoint with one fetch, then starts polling.
// Idempotent while connected.
func (a *RESTAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Connected() {
		return nil
	}
	a.status.Store(uint32(StatusConnecting))

	if _, err := a.fetch(ctx); err != nil {
		a.status.Store(uint32(StatusError))
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.status.Store(uint32(StatusConnected))
	a.metrics.SetConnected(true)
	a.listener.OnRateStatus(a.platform, true)

	go a.poll(loopCtx)
	return nil
}

// Disconnect stops the polling loop.
func (a *RESTAdapter) Disconnect() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *RESTAdapter) poll(ctx context.Context) {
	defer func() {
		a.status.Store(uint32(StatusDisconnected))
		a.metrics.SetConnected(false)
		a.listener.OnRateStatus(a.platform, false)
	}()

	em := newEmitter(a.listener, a.platform)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			quotes, err := a.fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				a.listener.OnRateError(a.platform, err)
				continue
			}
			for _, q := range quotes {
				tick, err := q.toTick()
				if err != nil {
					a.listener.OnRateError(a.platform, err)
					continue
				}
				a.metrics.IncReceived()
				em.emit(tick)
			}
		}
	}
}

func (a *RESTAdapter) fetch(ctx context.Context) ([]restQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build quote request")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch quotes").With("url", a.url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch quotes: unexpected status %d", resp.StatusCode)
	}

	var quotes []restQuote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, errors.Wrap(err, "decode quotes")
	}
	return quotes, nil
}

func (q restQuote) toTick() (model.RawTick, error) {
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
	}
	return model.RawTick{Symbol: q.Symbol, Bid: bid, Ask: ask, Ts: ts}, nil
}
