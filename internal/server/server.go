// Package server accepts action peers over WebSocket.
//
// Each connection gets its own read loop. Peers register actions, answer
// execute requests, push environmental context and force actions; every
// inbound message is acknowledged with {ok, message}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/flynn-ai/vox/internal/action"
	"github.com/flynn-ai/vox/internal/convo"
	"github.com/flynn-ai/vox/internal/remote"
	"github.com/flynn-ai/vox/internal/stats"
	"github.com/flynn-ai/vox/pkg/protocol"
)

// Config holds connection manager settings.
type Config struct {
	Addr           string
	AnnounceDelay  time.Duration
	ActionTimeout  time.Duration
	MaxConnections int
	ReadLimit      int64
}

// Manager routes peer messages into the dispatcher, the context log and
// the pending-call table.
type Manager struct {
	cfg        Config
	dispatcher *action.Dispatcher
	log        *convo.Log
	table      *remote.Table
	stats      *stats.Collector
	logger     *zap.Logger
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	conns   map[*conn]struct{}
	closing bool // set by closeAll; later upgrades are turned away
	wg      sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithStats records connection and protocol counters in c.
func WithStats(c *stats.Collector) Option {
	return func(m *Manager) {
		if c != nil {
			m.stats = c
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a manager registering remote actions on d and appending
// environmental context to log.
func New(cfg Config, d *action.Dispatcher, log *convo.Log, opts ...Option) *Manager {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = remote.DefaultTimeout
	}
	m := &Manager{
		cfg:        cfg,
		dispatcher: d,
		log:        log,
		table:      remote.NewTable(),
		stats:      stats.NewCollector(),
		logger:     zap.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Table returns the pending-call table shared by this manager's proxies.
func (m *Manager) Table() *remote.Table { return m.table }

// Handler serves the WebSocket endpoint on "/" and counters on "/stats".
func (m *Manager) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleWebSocket)
	mux.HandleFunc("GET /stats", m.handleStats)
	return mux
}

// ListenAndServe listens on the configured address and serves until ctx
// is cancelled.
func (m *Manager) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.cfg.Addr, err)
	}
	return m.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes
// every peer connection and waits for their read loops to end.
func (m *Manager) Serve(ctx context.Context, ln net.Listener) error {
	if m.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, m.cfg.MaxConnections)
	}

	srv := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	m.logger.Info("connection manager listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		m.closeAll()
		m.wg.Wait()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	m.closeAll()
	m.wg.Wait()
	<-errCh
	return err
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	m.closing = true
	conns := make([]*conn, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (m *Manager) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.stats.Collect()); err != nil {
		m.logger.Warn("encode stats", zap.Error(err))
	}
}

func (m *Manager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		m.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newConn(ws)
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		c.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	m.conns[c] = struct{}{}
	m.wg.Add(1)
	m.mu.Unlock()
	m.stats.ConnectionOpened()

	defer func() {
		c.close(websocket.CloseNormalClosure, "")
		m.mu.Lock()
		delete(m.conns, c)
		m.mu.Unlock()
		m.stats.ConnectionClosed()
		m.wg.Done()
	}()

	m.serveConn(r.Context(), c)
}

// serveConn runs the read loop. It returns when the peer goes away; the
// peer's registered actions and pending calls are left to time out.
func (m *Manager) serveConn(ctx context.Context, c *conn) {
	logger := m.logger.With(zap.String("peer", c.remote))
	logger.Info("peer connected")

	if m.cfg.ReadLimit > 0 {
		c.ws.SetReadLimit(m.cfg.ReadLimit)
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.keepalive(m.cfg.AnnounceDelay, func() {
		if err := c.Send(ctx, protocol.NewSendAllActions()); err != nil {
			logger.Warn("announce failed", zap.Error(err))
		}
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				logger.Warn("peer read failed", zap.Error(err))
			}
			logger.Info("peer disconnected")
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		ack := m.route(c, data, logger)
		if !ack.OK {
			m.stats.RecordProtocolError()
		}
		if err := c.Send(ctx, ack); err != nil {
			logger.Warn("ack failed", zap.Error(err))
			return
		}
	}
}
