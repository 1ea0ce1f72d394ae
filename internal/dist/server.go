package dist

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"main/internal/model"
	"main/internal/obs"
	"main/pkg/exception"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	welcomeLine         = "WELCOME|Connected to Rate TCP Server"
	defaultMaxConns     = 1024
	defaultWriteTimeout = 5 * time.Second
)

// SnapshotSource resolves the latest cached rate for a name.
type SnapshotSource interface {
	Latest(name string) (model.Rate, bool)
}

// Server distributes rates to TCP clients over a line protocol. Each
// accepted connection gets its own session goroutine; broadcast walks the
// per-symbol registry and drops sessions whose writes fail.
type Server struct {
	addr         string
	maxConns     int
	writeTimeout time.Duration
	source       SnapshotSource
	metrics      *obs.Metrics

	mu       sync.RWMutex
	ln       net.Listener
	sessions map[string]*session
	bySymbol map[string]map[string]*session
	wg       sync.WaitGroup
}

type session struct {
	id   string
	conn net.Conn

	mu     sync.Mutex // guards writes and subs
	subs   map[string]struct{}
	closed bool
}

// NewServer builds a distribution server. maxConns of 0 uses the default
// bound; source may be nil when snapshots are not served.
func NewServer(addr string, maxConns int, source SnapshotSource, metrics *obs.Metrics) (*Server, error) {
	if addr == "" {
		return nil, exception.ErrInvalidArgument
	}
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	return &Server{
		addr:         addr,
		maxConns:     maxConns,
		writeTimeout: defaultWriteTimeout,
		source:       source,
		metrics:      metrics,
		sessions:     make(map[string]*session),
		bySymbol:     make(map[string]map[string]*session),
	}, nil
}

// Listen binds the address and starts accepting. It returns once the
// listener is up; Serve runs on its own goroutine per connection.
func (s *Server) Listen(ctx context.Context) error {
	if s == nil {
		return exception.ErrDistNilServer
	}
	s.mu.Lock()
	if s.ln != nil {
		s.mu.Unlock()
		return exception.ErrDistAlreadyListening
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "listen").With("addr", s.addr)
	}
	s.ln = ln
	s.mu.Unlock()

	logs.Infof("rate tcp server listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx, ln)
	}()
	return nil
}

// Close stops the listener and tears down every session.
func (s *Server) Close() error {
	if s == nil {
		return exception.ErrDistNilServer
	}
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	if ln == nil {
		return exception.ErrDistNotListening
	}
	err := ln.Close()
	for _, sess := range sessions {
		s.dropSession(sess)
	}
	s.wg.Wait()
	return err
}

// Addr returns the bound listener address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// SessionCount reports the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Push delivers a rate to every session subscribed to its name. Failed
// writes drop the offending session without affecting the rest.
func (s *Server) Push(rate model.Rate) {
	s.mu.RLock()
	var targets []*session
	for _, sess := range s.bySymbol[rate.Name] {
		targets = append(targets, sess)
	}
	s.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	line := rate.Line()
	for _, sess := range targets {
		err := sess.writeLine(line, s.writeTimeout)
		s.metrics.IncBroadcast(err != nil)
		if err != nil {
			logs.Warnf("drop session %s: write failed: %v", sess.id, err)
			s.dropSession(sess)
		}
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logs.Errorf("accept: %v", err)
			continue
		}
		s.admit(conn)
	}
}

// admit registers the connection as a session unless the connection bound
// is reached.
func (s *Server) admit(conn net.Conn) {
	sess := &session{
		id:   uuid.NewString(),
		conn: conn,
		subs: make(map[string]struct{}),
	}

	s.mu.Lock()
	if len(s.sessions) >= s.maxConns {
		s.mu.Unlock()
		logs.Warnf("refuse connection from %s: %v", conn.RemoteAddr(), exception.ErrDistConnLimit)
		_ = conn.Close()
		return
	}
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serve(sess)
	}()
}

func (s *Server) serve(sess *session) {
	defer s.dropSession(sess)

	if err := sess.writeLine(welcomeLine, s.writeTimeout); err != nil {
		return
	}
	logs.Debugf("session %s connected from %s", sess.id, sess.conn.RemoteAddr())

	scanner := bufio.NewScanner(sess.conn)
	for scanner.Scan() {
		reply := s.handleCommand(sess, scanner.Text())
		if reply == "" {
			continue
		}
		if err := sess.writeLine(reply, s.writeTimeout); err != nil {
			return
		}
	}
	logs.Debugf("session %s disconnected", sess.id)
}

// handleCommand executes one protocol line and returns the reply. Bad
// input yields an error line, never a dropped connection.
func (s *Server) handleCommand(sess *session, line string) string {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return ""
	}
	parts := strings.SplitN(line, "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "ERROR|Invalid request format"
	}
	verb, symbol := strings.ToLower(parts[0]), parts[1]

	switch verb {
	case "subscribe":
		s.subscribe(sess, symbol)
		return "Subscribed to " + symbol
	case "unsubscribe":
		if !s.unsubscribe(sess, symbol) {
			return "ERROR|You are not subscribed to: " + symbol
		}
		return "Unsubscribed from " + symbol
	case "snapshot":
		if s.source == nil {
			return "ERROR|Rate not found: " + symbol
		}
		rate, ok := s.source.Latest(symbol)
		if !ok {
			return "ERROR|Rate not found: " + symbol
		}
		return rate.Line()
	default:
		return "ERROR|Invalid request format"
	}
}

// subscribe is idempotent per session.
func (s *Server) subscribe(sess *session, symbol string) {
	sess.mu.Lock()
	_, already := sess.subs[symbol]
	sess.subs[symbol] = struct{}{}
	sess.mu.Unlock()
	if already {
		return
	}

	s.mu.Lock()
	set := s.bySymbol[symbol]
	if set == nil {
		set = make(map[string]*session)
		s.bySymbol[symbol] = set
	}
	set[sess.id] = sess
	s.mu.Unlock()
}

func (s *Server) unsubscribe(sess *session, symbol string) bool {
	sess.mu.Lock()
	_, ok := sess.subs[symbol]
	delete(sess.subs, symbol)
	sess.mu.Unlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	if set := s.bySymbol[symbol]; set != nil {
		delete(set, sess.id)
		if len(set) == 0 {
			delete(s.bySymbol, symbol)
		}
	}
	s.mu.Unlock()
	return true
}

// dropSession closes the socket and purges the session from every
// symbol's subscriber set. Safe to call more than once.
func (s *Server) dropSession(sess *session) {
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

	s.mu.Lock()
	delete(s.sessions, sess.id)
	for _, symbol := range symbols {
		if set := s.bySymbol[symbol]; set != nil {
			delete(set, sess.id)
			if len(set) == 0 {
				delete(s.bySymbol, symbol)
			}
		}
	}
	s.mu.Unlock()
}

func (sess *session) writeLine(line string, timeout time.Duration) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return exception.ErrDistSessionClosed
	}
	if timeout > 0 {
		_ = sess.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	_, err := sess.conn.Write([]byte(line + "\r\n"))
	if timeout > 0 {
		_ = sess.conn.SetWriteDeadline(time.Time{})
	}
	if err != nil {
		return errors.Wrap(err, "write session line")
	}
	return nil
}
