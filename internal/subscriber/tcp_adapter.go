package subscriber

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/model"
	"main/internal/obs"
	"main/pkg/exception"

	"github.com/yanun0323/errors"
)

// TCPAdapter consumes a remote line-oriented rate feed, one
// NAME|bid|ask|tsMillis record per line. The protocol matches the
// distribution server, so one instance can feed another: after dialing,
// the adapter subscribes every configured symbol and skips the welcome
// and ack lines the server replies with.
type TCPAdapter struct {
	mu       sync.Mutex
	addr     string
	platform string
	symbols  []string
	listener Listener
	metrics  *obs.AdapterMetrics
	timeout  time.Duration
	status   atomic.Uint32
	conn     net.Conn
	cancel   context.CancelFunc
}

// NewTCPAdapter builds an adapter for the given remote address. symbols
// may be empty for feeds that stream without subscriptions.
func NewTCPAdapter(platform, addr string, symbols []string, dialTimeout time.Duration, listener Listener, metrics *obs.AdapterMetrics) (*TCPAdapter, error) {
	if listener == nil {
		return nil, exception.ErrSubscriberNilListener
	}
	if addr == "" {
		return nil, exception.ErrInvalidArgument
	}
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &TCPAdapter{
		addr:     addr,
		platform: platform,
		symbols:  symbols,
		listener: listener,
		metrics:  metrics,
		timeout:  dialTimeout,
	}, nil
}

func (a *TCPAdapter) Platform() string { return a.platform }

func (a *TCPAdapter) Status() Status { return Status(a.status.Load()) }

func (a *TCPAdapter) Connected() bool { return a.Status() == StatusConnected }

// Connect dials the feed and starts the receive loop. Idempotent while
// connected.
func (a *TCPAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Connected() {
		return nil
	}
	a.status.Store(uint32(StatusConnecting))

	dialer := net.Dialer{Timeout: a.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", a.addr)
	if err != nil {
		a.status.Store(uint32(StatusError))
		return errors.Wrap(err, "dial rate feed").With("addr", a.addr)
	}

	for _, symbol := range a.symbols {
		if _, err := fmt.Fprintf(conn, "subscribe|%s\r\n", symbol); err != nil {
			_ = conn.Close()
			a.status.Store(uint32(StatusError))
			return errors.Wrap(err, "subscribe rate feed").With("symbol", symbol)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.conn = conn
	a.cancel = cancel
	a.status.Store(uint32(StatusConnected))
	a.metrics.SetConnected(true)
	a.listener.OnRateStatus(a.platform, true)

	go a.receive(loopCtx, conn)
	return nil
}

// Disconnect closes the socket, which unblocks the receive loop.
func (a *TCPAdapter) Disconnect() {
	a.mu.Lock()
	conn := a.conn
	cancel := a.cancel
	a.conn = nil
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (a *TCPAdapter) receive(ctx context.Context, conn net.Conn) {
	defer func() {
		_ = conn.Close()
		a.status.Store(uint32(StatusDisconnected))
		a.metrics.SetConnected(false)
		a.listener.OnRateStatus(a.platform, false)
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	em := newEmitter(a.listener, a.platform)
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if isControlLine(line) {
			continue
		}
		if strings.HasPrefix(line, "ERROR|") {
			a.listener.OnRateError(a.platform, errors.Errorf("rate feed: %s", strings.TrimPrefix(line, "ERROR|")))
			continue
		}
		tick, err := parseFeedLine(line)
		if err != nil {
			a.listener.OnRateError(a.platform, err)
			continue
		}
		a.metrics.IncReceived()
		em.emit(tick)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		a.listener.OnRateError(a.platform, errors.Wrap(err, "read rate feed"))
		a.status.Store(uint32(StatusError))
	}
}

// isControlLine reports whether the line is a server greeting or a
// subscribe/unsubscribe ack rather than a rate record.
func isControlLine(line string) bool {
	return strings.HasPrefix(line, "WELCOME|") ||
		strings.HasPrefix(line, "Subscribed to ") ||
		strings.HasPrefix(line, "Unsubscribed from ")
}

// parseFeedLine decodes NAME|bid|ask|tsMillis.
func parseFeedLine(line string) (model.RawTick, error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, "|")
	if len(parts) != 4 {
		return model.RawTick{}, errors.Errorf("malformed feed line: %q", line)
	}
	bid, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return model.RawTick{}, errors.Wrap(err, "parse bid").With("line", line)
	}
	ask, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return model.RawTick{}, errors.Wrap(err, "parse ask").With("line", line)
	}
	millis, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return model.RawTick{}, errors.Wrap(err, "parse timestamp").With("line", line)
	}
	return model.RawTick{
		Symbol: parts[0],
		Bid:    bid,
		Ask:    ask,
		Ts:     time.UnixMilli(millis).UTC(),
	}, nil
}
