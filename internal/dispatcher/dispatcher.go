package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Request is one command received from a control client.
type Request struct {
	Command  string
	Args     []string
	Source   string
	Received time.Time
}

// HandlerFunc processes a request and returns a result.
type HandlerFunc func(Request) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*route)

type route struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered runs the handler on its own goroutine behind a queue of size.
func Buffered(size int) Option {
	return func(r *route) { r.bufferSize = size }
}

// Blocking makes a buffered handler wait for room instead of dropping.
func Blocking() Option {
	return func(r *route) { r.blocking = true }
}

// Logged adds debug logging around the handler.
func Logged() Option {
	return func(r *route) { r.logged = true }
}

// Dispatcher routes requests to registered handlers. Dispatch is safe to
// call from many connection goroutines at once.
type Dispatcher struct {
	logger Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	buffers  map[string]chan Request
	wg       sync.WaitGroup
	closed   bool

	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	unknown   metric.Int64Counter
}

// New creates a Dispatcher using the global OTel meter (no-op if unset).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Request),
	}

	m := meter()
	var err error

	d.queueSize, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Requests waiting in a buffered handler queue"))
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		for cmd, buf := range d.buffers {
			o.ObserveInt64(d.queueSize, int64(len(buf)), metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, d.queueSize)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	if d.processed, err = m.Int64Counter("dispatcher.requests.processed",
		metric.WithDescription("Requests handled")); err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	if d.dropped, err = m.Int64Counter("dispatcher.requests.dropped",
		metric.WithDescription("Requests dropped because a queue was full")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	if d.unknown, err = m.Int64Counter("dispatcher.requests.unknown",
		metric.WithDescription("Requests naming no registered command")); err != nil {
		return nil, fmt.Errorf("creating unknown counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for command. A later registration replaces an
// earlier one.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	r := &route{}
	for _, opt := range opts {
		opt(r)
	}

	handler := h
	if r.bufferSize > 0 {
		handler = d.withBuffer(command, r.bufferSize, r.blocking, handler)
	}
	if r.logged {
		handler = d.withLogging(command, handler)
	}

	d.mu.Lock()
	d.handlers[command] = handler
	d.mu.Unlock()
}

// Dispatch routes a request to its registered handler.
func (d *Dispatcher) Dispatch(req Request) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[req.Command]
	d.mu.RUnlock()
	if !ok {
		d.unknown.Add(context.Background(), 1)
		return nil, fmt.Errorf("unknown command: %q", req.Command)
	}
	return h(req)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Close stops accepting requests for buffered handlers and waits for
// their queues to drain. Callers stop dispatching before Close.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for cmd, buf := range d.buffers {
		close(buf)
		delete(d.handlers, cmd)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) withBuffer(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Request, size)

	d.mu.Lock()
	d.buffers[command] = buffer
	d.mu.Unlock()

	cmdAttr := metric.WithAttributes(attribute.String("command", command))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for req := range buffer {
			if _, err := h(req); err != nil {
				d.logger.Error("buffered request failed", "command", command, "error", err)
			}
			d.processed.Add(context.Background(), 1, cmdAttr)
		}
	}()

	if blocking {
		return func(req Request) (any, error) {
			buffer <- req
			return "queued", nil
		}
	}

	return func(req Request) (any, error) {
		select {
		case buffer <- req:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, cmdAttr)
			return nil, fmt.Errorf("queue full: %s", command)
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(req Request) (any, error) {
		start := time.Now()
		d.logger.Debug("handling request", "command", command, "source", req.Source)

		result, err := h(req)
		if err != nil {
			d.logger.Error("request failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("request complete", "command", command, "duration", time.Since(start))
		}
		return result, err
	}
}
