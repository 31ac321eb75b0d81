package hub

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brendandebeasi/floatchart/pkg/paths"
)

// writeTimeout bounds a single frame write so a stuck peer cannot stall a
// broadcast.
const writeTimeout = time.Second

// Server accepts widget and command-surface connections on a unix socket.
type Server struct {
	hub        *Hub
	log        *zap.Logger
	socketPath string
	pidPath    string
	listener   net.Listener
	sessions   map[string]*Session
	sessionsMu sync.RWMutex
	done       chan struct{}
	wg         sync.WaitGroup

	// OnPanic, when set, is deferred in every connection goroutine.
	OnPanic func(context string)
}

// NewServer creates a server for the given profile.
func NewServer(h *Hub, profile string) *Server {
	return &Server{
		hub:        h,
		log:        h.log,
		socketPath: paths.SocketPath(profile),
		pidPath:    paths.PidPath(profile),
		sessions:   make(map[string]*Session),
		done:       make(chan struct{}),
	}
}

// Start begins listening for client connections
func (s *Server) Start() error {
	// Check if another hub is already running
	if err := s.checkAndClaimPid(); err != nil {
		return err
	}

	// Remove stale socket if exists (safe now that we own the pidfile)
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		os.Remove(s.pidPath)
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// checkAndClaimPid checks for an existing hub and claims the pidfile
func (s *Server) checkAndClaimPid() error {
	if data, err := os.ReadFile(s.pidPath); err == nil {
		pidStr := strings.TrimSpace(string(data))
		if pid, err := strconv.Atoi(pidStr); err == nil && pid > 0 && pid != os.Getpid() {
			if process, err := os.FindProcess(pid); err == nil {
				// Signal 0 probes liveness; EPERM means it exists but isn't ours
				if err := process.Signal(syscall.Signal(0)); err == nil || errors.Is(err, syscall.EPERM) {
					return fmt.Errorf("hub already running with pid %d", pid)
				}
			}
		}
		os.Remove(s.pidPath)
	}

	if err := os.WriteFile(s.pidPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	return nil
}

// Stop shuts down the server and waits for connection goroutines to exit.
func (s *Server) Stop() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
	os.Remove(s.pidPath)
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

// SocketPath returns the socket path
func (s *Server) SocketPath() string {
	return s.socketPath
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	var conns sync.WaitGroup
	defer conns.Wait()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.log.Debug("accept failed", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}

		conns.Add(1)
		go func() {
			defer conns.Done()
			s.handleClient(conn)
		}()
	}
}

func (s *Server) handleClient(conn net.Conn) {
	if s.OnPanic != nil {
		defer s.OnPanic("socket-client")
	}
	defer conn.Close()

	var writeMu sync.Mutex
	sess := s.hub.NewSession(uuid.NewString(), func(ctx context.Context, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		deadline := time.Now().Add(writeTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		conn.SetWriteDeadline(deadline)
		_, err := conn.Write(append(data, '\n'))
		return err
	})

	key := sess.ID()
	s.sessionsMu.Lock()
	s.sessions[key] = sess
	s.sessionsMu.Unlock()
	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, key)
		s.sessionsMu.Unlock()
		sess.Close()
	}()

	// Close the connection on shutdown so the scanner unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-s.done:
			conn.Close()
		case <-stop:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if !sess.HandleFrame(scanner.Bytes()) {
			return
		}
	}
}
