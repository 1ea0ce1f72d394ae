package dist

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"main/internal/model"
	"main/internal/obs"
	"main/pkg/exception"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsCommand is one inbound gateway request.
type wsCommand struct {
	Op     string `json:"op"`
	Symbol string `json:"symbol"`
}

// wsReply is one outbound gateway frame. Rate frames carry the quote
// fields, control frames carry Message.
type wsReply struct {
	Type    string  `json:"type"`
	Message string  `json:"message,omitempty"`
	Symbol  string  `json:"symbol,omitempty"`
	Bid     float64 `json:"bid,omitempty"`
	Ask     float64 `json:"ask,omitempty"`
	Ts      int64   `json:"ts,omitempty"`
}

// Gateway exposes the subscribe/unsubscribe surface over websocket with
// the same semantics as the TCP server.
type Gateway struct {
	source       SnapshotSource
	metrics      *obs.Metrics
	maxConns     int
	writeTimeout time.Duration

	mu       sync.RWMutex
	srv      *http.Server
	sessions map[string]*wsSession
	bySymbol map[string]map[string]*wsSession
}

type wsSession struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	subs   map[string]struct{}
	closed bool
}

// NewGateway builds a websocket gateway. maxConns of 0 uses the shared
// default bound.
func NewGateway(source SnapshotSource, maxConns int, metrics *obs.Metrics) *Gateway {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	return &Gateway{
		source:       source,
		metrics:      metrics,
		maxConns:     maxConns,
		writeTimeout: defaultWriteTimeout,
		sessions:     make(map[string]*wsSession),
		bySymbol:     make(map[string]map[string]*wsSession),
	}
}

// Listen serves the gateway on addr until the context is done.
func (g *Gateway) Listen(ctx context.Context, addr string) error {
	if g == nil {
		return exception.ErrDistNilServer
	}
	if addr == "" {
		return exception.ErrInvalidArgument
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.Handle)

	g.mu.Lock()
	if g.srv != nil {
		g.mu.Unlock()
		return exception.ErrDistAlreadyListening
	}
	g.srv = &http.Server{Addr: addr, Handler: mux}
	srv := g.srv
	g.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		g.closeAll()
	}()

	logs.Infof("rate websocket gateway listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "serve websocket gateway").With("addr", addr)
	}
	return nil
}

// Handle upgrades one HTTP request into a gateway session. It is exported
// so the gateway can also be mounted on an existing mux.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request) {
	g.mu.RLock()
	full := len(g.sessions) >= g.maxConns
	g.mu.RUnlock()
	if full {
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Warnf("websocket upgrade failed: %v", err)
		return
	}

	sess := &wsSession{
		id:   uuid.NewString(),
		conn: conn,
		subs: make(map[string]struct{}),
	}
	g.mu.Lock()
	g.sessions[sess.id] = sess
	g.mu.Unlock()

	_ = sess.write(wsReply{Type: "welcome", Message: "Connected to Rate WS Server"}, g.writeTimeout)
	go g.serve(sess)
}

// SessionCount reports the number of live sessions.
func (g *Gateway) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// Push delivers a rate to every session subscribed to its name.
func (g *Gateway) Push(rate model.Rate) {
	g.mu.RLock()
	var targets []*wsSession
	for _, sess := range g.bySymbol[rate.Name] {
		targets = append(targets, sess)
	}
	g.mu.RUnlock()

	frame := wsReply{
		Type:   "rate",
		Symbol: rate.Name,
		Bid:    rate.Bid,
		Ask:    rate.Ask,
		Ts:     rate.Ts.UnixMilli(),
	}
	for _, sess := range targets {
		err := sess.write(frame, g.writeTimeout)
		g.metrics.IncBroadcast(err != nil)
		if err != nil {
			logs.Warnf("drop ws session %s: write failed: %v", sess.id, err)
			g.dropSession(sess)
		}
	}
}

func (g *Gateway) serve(sess *wsSession) {
	defer g.dropSession(sess)

	for {
		var cmd wsCommand
		if err := sess.conn.ReadJSON(&cmd); err != nil {
			return
		}
		g.handleCommand(sess, cmd)
	}
}

func (g *Gateway) handleCommand(sess *wsSession, cmd wsCommand) {
	symbol := strings.TrimSpace(cmd.Symbol)
	if symbol == "" {
		_ = sess.write(wsReply{Type: "error", Message: "Invalid request format"}, g.writeTimeout)
		return
	}

	switch strings.ToLower(cmd.Op) {
	case "subscribe":
		sess.mu.Lock()
		_, already := sess.subs[symbol]
		sess.subs[symbol] = struct{}{}
		sess.mu.Unlock()
		if !already {
			g.mu.Lock()
			set := g.bySymbol[symbol]
			if set == nil {
				set = make(map[string]*wsSession)
				g.bySymbol[symbol] = set
			}
			set[sess.id] = sess
			g.mu.Unlock()
		}
		_ = sess.write(wsReply{Type: "ack", Message: "Subscribed to " + symbol}, g.writeTimeout)
	case "unsubscribe":
		sess.mu.Lock()
		_, ok := sess.subs[symbol]
		delete(sess.subs, symbol)
		sess.mu.Unlock()
		if !ok {
			_ = sess.write(wsReply{Type: "error", Message: "You are not subscribed to: " + symbol}, g.writeTimeout)
			return
		}
		g.mu.Lock()
		if set := g.bySymbol[symbol]; set != nil {
			delete(set, sess.id)
			if len(set) == 0 {
				delete(g.bySymbol, symbol)
			}
		}
		g.mu.Unlock()
		_ = sess.write(wsReply{Type: "ack", Message: "Unsubscribed from " + symbol}, g.writeTimeout)
	case "snapshot":
		if g.source == nil {
			_ = sess.write(wsReply{Type: "error", Message: "Rate not found: " + symbol}, g.writeTimeout)
			return
		}
		rate, ok := g.source.Latest(symbol)
		if !ok {
			_ = sess.write(wsReply{Type: "error", Message: "Rate not found: " + symbol}, g.writeTimeout)
			return
		}
		_ = sess.write(wsReply{
			Type:   "rate",
			Symbol: rate.Name,
			Bid:    rate.Bid,
			Ask:    rate.Ask,
			Ts:     rate.Ts.UnixMilli(),
		}, g.writeTimeout)
	default:
		_ = sess.write(wsReply{Type: "error", Message: "Invalid request format"}, g.writeTimeout)
	}
}

func (g *Gateway) dropSession(sess *wsSession) {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	sess.closed = true
	symbols := make([]string, 0, len(sess.subs))
	for symbol := range sess.subs {
		symbols = append(symbols, symbol)
	}
	sess.subs = nil
	sess.mu.Unlock()

	_ = sess.conn.Close()

	g.mu.Lock()
	delete(g.sessions, sess.id)
	for _, symbol := range symbols {
		if set := g.bySymbol[symbol]; set != nil {
			delete(set, sess.id)
			if len(set) == 0 {
				delete(g.bySymbol, symbol)
			}
		}
	}
	g.mu.Unlock()
}

func (g *Gateway) closeAll() {
	g.mu.Lock()
	sessions := make([]*wsSession, 0, len(g.sessions))
	for _, sess := range g.sessions {
		sessions = append(sessions, sess)
	}
	g.mu.Unlock()
	for _, sess := range sessions {
		g.dropSession(sess)
	}
}

func (sess *wsSession) write(frame wsReply, timeout time.Duration) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return exception.ErrDistSessionClosed
	}
	if timeout > 0 {
		_ = sess.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := sess.conn.WriteJSON(frame); err != nil {
		return errors.Wrap(err, "write session frame")
	}
	return nil
}
