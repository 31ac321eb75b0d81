// Package webbridge lets browser content scripts join the hub as widget
// instances over a loopback WebSocket.
package webbridge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/brendandebeasi/floatchart/pkg/hub"
	"github.com/brendandebeasi/floatchart/pkg/paths"
)

const writeTimeout = time.Second

type Config struct {
	Addr  string // host:port, loopback only
	Token string // required ?token= on /ws
}

type client struct {
	id   string
	conn *websocket.Conn
	sess *hub.Session
}

// Bridge serves /ws for browser tabs and /connect with pairing details.
type Bridge struct {
	cfg      Config
	hub      *hub.Hub
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu         sync.RWMutex
	clients    map[string]*client
	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
}

func New(h *hub.Hub, cfg Config, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bridge{
		cfg:     cfg,
		hub:     h,
		log:     log,
		clients: make(map[string]*client),
	}
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     b.checkOrigin,
	}
	return b
}

// Handler returns the bridge's routes.
func (b *Bridge) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", b.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/connect", b.handleConnect).Methods(http.MethodGet)
	r.HandleFunc("/healthz", b.handleHealth).Methods(http.MethodGet)
	return r
}

func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "ok %d\n", b.ClientCount())
}

// Start listens on cfg.Addr and serves in the background.
func (b *Bridge) Start() error {
	ln, err := net.Listen("tcp", b.cfg.Addr)
	if err != nil {
		return fmt.Errorf("webbridge listen: %w", err)
	}
	b.listener = ln
	b.httpServer = &http.Server{
		Handler:           b.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := b.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.log.Error("webbridge server error", zap.Error(err))
		}
	}()
	b.log.Info("webbridge listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (b *Bridge) Addr() string {
	if b.listener == nil {
		return b.cfg.Addr
	}
	return b.listener.Addr().String()
}

// Stop closes the listener and every connected tab.
func (b *Bridge) Stop() {
	if b.httpServer != nil {
		_ = b.httpServer.Close()
	}
	// Hijacked connections are not closed by the http server.
	b.mu.RLock()
	for _, c := range b.clients {
		_ = c.conn.Close()
	}
	b.mu.RUnlock()
	b.wg.Wait()
}

// ClientCount returns the number of connected tabs.
func (b *Bridge) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Bridge) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if !b.validateToken(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	var writeMu sync.Mutex
	sess := b.hub.NewSession(uuid.NewString(), func(ctx context.Context, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		deadline := time.Now().Add(writeTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		conn.SetWriteDeadline(deadline)
		return conn.WriteMessage(websocket.TextMessage, data)
	})

	c := &client{id: sess.ID(), conn: conn, sess: sess}
	b.mu.Lock()
	b.clients[c.id] = c
	b.mu.Unlock()

	b.wg.Add(1)
	go b.readLoop(c)
}

func (b *Bridge) readLoop(c *client) {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		delete(b.clients, c.id)
		b.mu.Unlock()
		c.sess.Close()
		_ = c.conn.Close()
	}()

	conn, sess := c.conn, c.sess

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !sess.HandleFrame(data) {
			return
		}
	}
}

func (b *Bridge) validateToken(r *http.Request) bool {
	if b.cfg.Token == "" {
		return true
	}
	return r.URL.Query().Get("token") == b.cfg.Token
}

// checkOrigin accepts same-host pages, localhost and extension origins.
func (b *Bridge) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch originURL.Scheme {
	case "chrome-extension", "moz-extension":
		return true
	}
	originHost := originURL.Hostname()
	if originHost == "" {
		return false
	}
	requestHost, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		requestHost = r.Host
	}
	if originHost == requestHost {
		return true
	}
	return originHost == "localhost" || originHost == "127.0.0.1"
}

func isLoopbackRequest(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

// TokenPath is where the generated token lives when the config sets none.
func TokenPath() string {
	return paths.StatePath("web-token")
}

// LoadOrGenerateToken reads the token at path, creating one if the file is
// missing or empty.
func LoadOrGenerateToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
	}
	return RegenerateToken(path)
}

// RegenerateToken writes a fresh random token to path.
func RegenerateToken(path string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return "", err
	}
	return token, nil
}
