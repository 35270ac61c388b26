package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/stuntsim/simcore/internal/dispatcher"
	"github.com/stuntsim/simcore/internal/queue"
)

const (
	reply     = "OK"
	writeWait = 5 * time.Second
	maxMsg    = 512

	// EnqueueRoute is the buffered route every command is forwarded to. A
	// single worker drains it, so commands reach the queue in arrival order.
	EnqueueRoute = "remote.enqueue"

	defaultBuffer = 64
)

var errQueueFull = errors.New("command queue full")

// Config holds the listener settings. Buffer sizes the dispatcher queue in
// front of the command queue.
type Config struct {
	Address string
	Path    string
	Buffer  int
}

// Server accepts websocket clients on a loopback address. It never touches
// simulation state; commands only reach the queue.
type Server struct {
	cfg    Config
	logger *slog.Logger
	disp   *dispatcher.Dispatcher
	queue  *queue.Queue[Command]

	upgrader ws.Upgrader
	httpSrv  *http.Server
	ln       net.Listener
	done     chan struct{}
	stop     sync.Once

	mu      sync.Mutex
	closing bool
	conns   sync.WaitGroup
}

// NewServer wires every Command into d so that dispatching it pushes onto q.
func NewServer(cfg Config, d *dispatcher.Dispatcher, q *queue.Queue[Command], logger *slog.Logger) *Server {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		disp:   d,
		queue:  q,
		upgrader: ws.Upgrader{
			// loopback only, any local page may drive the car
			CheckOrigin: func(*http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}

	d.Register(EnqueueRoute, func(req dispatcher.Request) (any, error) {
		if len(req.Args) != 1 || !Known(req.Args[0]) {
			return nil, fmt.Errorf("not a command: %q", req.Args)
		}
		if !q.Push(Command(req.Args[0])) {
			return nil, errQueueFull
		}
		return reply, nil
	}, dispatcher.Buffered(cfg.Buffer), dispatcher.Blocking())

	for _, c := range Commands {
		cmd := c
		d.Register(string(cmd), func(req dispatcher.Request) (any, error) {
			req.Command = EnqueueRoute
			req.Args = []string{string(cmd)}
			return d.Dispatch(req)
		}, dispatcher.Logged())
	}
	return s
}

// Start listens on the configured address and serves in the background.
// The address must be a loopback one.
func (s *Server) Start() error {
	host, _, err := net.SplitHostPort(s.cfg.Address)
	if err != nil {
		return fmt.Errorf("remote address %q: %w", s.cfg.Address, err)
	}
	if !isLoopback(host) {
		return fmt.Errorf("remote address %q is not loopback", s.cfg.Address)
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("remote listen: %w", err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handle)
	s.httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Remote command service stopped", "error", err)
		}
	}()
	s.logger.Info("Remote command service listening", "address", ln.Addr().String(), "path", s.cfg.Path)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close stops the listener, drops open clients and waits for their
// handlers to return. It is safe to call more than once.
func (s *Server) Close(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	s.stop.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		close(s.done)
	})
	err := s.httpSrv.Shutdown(ctx)

	waited := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Remote upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.conns.Add(1)
	s.mu.Unlock()
	defer s.conns.Done()

	conn.SetReadLimit(maxMsg)

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-s.done:
			_ = conn.Close()
		case <-closed:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				s.logger.Debug("Remote client gone", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		req := dispatcher.Request{
			Command:  strings.TrimSpace(string(msg)),
			Source:   r.RemoteAddr,
			Received: time.Now(),
		}
		if _, err := s.disp.Dispatch(req); err != nil {
			s.logger.Debug("Remote command ignored", "command", req.Command, "error", err)
		}

		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := conn.WriteMessage(ws.TextMessage, []byte(reply)); err != nil {
			s.logger.Debug("Remote reply failed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
