// Package toolpool manages a bounded pool of subprocess connections to
// external tool servers, each speaking line-framed JSON-RPC 2.0 over
// stdin/stdout, with category affinity, health checks, retrying tool
// calls, and graceful shutdown.
package toolpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/galdaer/clinical-orchestrator/internal/backoff"
)

var tracer = otel.Tracer("toolpool")

// Options configures a Pool.
type Options struct {
	Capacity        int
	AcquireTimeout  time.Duration
	CallTimeout     time.Duration
	ShutdownGrace   time.Duration
	RetryAttempts   int
	RetryPolicy     backoff.Policy
	Specs           []ServerSpec
	Logger          *slog.Logger
}

// Pool hands out Connection values to callers by category, starting new
// subprocess connections up to Capacity and reusing idle ones.
type Pool struct {
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	connections []*Connection
}

// New constructs a Pool. No subprocesses are started until acquire is
// first called for a category.
func New(opts Options) *Pool {
	if opts.Capacity <= 0 {
		opts.Capacity = 3
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 5 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 5 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 2
	}
	if opts.RetryPolicy == (backoff.Policy{}) {
		opts.RetryPolicy = backoff.ToolRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Pool{
		opts:   opts,
		logger: opts.Logger.With("component", "toolpool"),
	}
}

func (p *Pool) specFor(category string) (ServerSpec, bool) {
	for _, s := range p.opts.Specs {
		if s.Category == category {
			return s, true
		}
	}
	return ServerSpec{}, false
}

// acquire returns an idle healthy connection for category, spawning a
// new one if capacity allows, or blocks until AcquireTimeout elapses.
func (p *Pool) acquire(ctx context.Context, category string) (*Connection, error) {
	ctx, span := tracer.Start(ctx, "toolpool.acquire")
	span.SetAttributes(attribute.String("category", category))
	defer span.End()

	deadline := time.Now().Add(p.opts.AcquireTimeout)

	for {
		p.mu.Lock()
		for _, c := range p.connections {
			if c.Category == category && c.State() == StateIdle {
				c.setState(StateInUse)
				p.mu.Unlock()
				return c, nil
			}
		}
		canSpawn := len(p.connections) < p.opts.Capacity
		p.mu.Unlock()

		if canSpawn {
			conn, err := p.spawn(ctx, category)
			if err == nil {
				return conn, nil
			}
			span.RecordError(err)
			p.logger.Warn("spawn failed", "category", category, "error", err)
		}

		if time.Now().After(deadline) {
			span.SetStatus(codes.Error, "pool exhausted")
			return nil, &PoolExhaustedError{Category: category, Waited: p.opts.AcquireTimeout.String()}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (p *Pool) spawn(ctx context.Context, category string) (*Connection, error) {
	spec, ok := p.specFor(category)
	if !ok {
		return nil, &ToolUnavailableError{ToolName: category, Cause: fmt.Errorf("no server registered for category %q", category)}
	}

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn := newConnection(uuid.NewString(), spec, p.logger)
	if err := conn.initialize(startCtx); err != nil {
		return nil, err
	}
	conn.setState(StateInUse)

	p.mu.Lock()
	p.connections = append(p.connections, conn)
	p.mu.Unlock()

	return conn, nil
}

// release returns a connection to the idle pool, or drops it if it was
// marked unhealthy while in use.
func (p *Pool) release(conn *Connection) {
	if conn.State() == StateUnhealthy {
		p.drop(conn)
		return
	}
	conn.setState(StateIdle)
}

func (p *Pool) drop(conn *Connection) {
	p.mu.Lock()
	for i, c := range p.connections {
		if c.ID == conn.ID {
			p.connections = append(p.connections[:i], p.connections[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	conn.terminate(p.opts.ShutdownGrace)
}

// CallTool acquires a connection for the tool's category, invokes the
// tool with retry-with-backoff on transport failure, and releases the
// connection. An error reply from the tool server leaves the connection
// in sync: it goes back to the pool and the error is returned without a
// retry. Cancellation or timeout abandons the in-flight call and
// marks the connection unhealthy rather than risking a desynchronized
// subprocess being reused.
func (p *Pool) CallTool(ctx context.Context, category, toolName string, args map[string]any) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "toolpool.call_tool")
	span.SetAttributes(attribute.String("tool", toolName), attribute.String("category", category))
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= p.opts.RetryAttempts+1; attempt++ {
		conn, err := p.acquire(ctx, category)
		if err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
		result, callErr := conn.callTool(callCtx, toolName, args)
		cancel()

		if callErr == nil {
			p.release(conn)
			return result, nil
		}

		lastErr = callErr
		span.RecordError(callErr)
		if callCtx.Err() == nil && conn.transport.connected.Load() {
			p.release(conn)
			span.SetStatus(codes.Error, "tool returned an error")
			return nil, callErr
		}
		p.drop(conn)

		if callCtx.Err() != nil {
			// Timeout terminates the connection and is surfaced directly,
			// never retried: a slow tool server isn't made faster by
			// calling it again.
			timeoutErr := &ToolTimeoutError{ToolName: toolName, After: p.opts.CallTimeout.String()}
			span.SetStatus(codes.Error, "tool call timed out")
			return nil, timeoutErr
		}

		if attempt <= p.opts.RetryAttempts {
			if sleepErr := backoff.SleepForAttempt(ctx, p.opts.RetryPolicy, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
	}

	span.SetStatus(codes.Error, "tool call failed")
	return nil, &ToolUnavailableError{ToolName: toolName, Cause: lastErr}
}

// ListTools returns the raw tools/list result for one healthy
// connection of the given category, spawning one if needed.
func (p *Pool) ListTools(ctx context.Context, category string) ([]byte, error) {
	conn, err := p.acquire(ctx, category)
	if err != nil {
		return nil, err
	}
	defer p.release(conn)

	result, err := conn.listTools(ctx)
	if err != nil {
		p.drop(conn)
		return nil, err
	}
	return result, nil
}

// Ping checks liveness of every idle pooled connection, dropping any
// that fail; in-use connections are skipped. Nothing in the pool calls
// Ping, so acquire hands out idle connections without pinging them.
func (p *Pool) Ping(ctx context.Context) {
	p.mu.Lock()
	conns := make([]*Connection, len(p.connections))
	copy(conns, p.connections)
	p.mu.Unlock()

	for _, c := range conns {
		if c.State() != StateIdle {
			continue
		}
		if err := c.ping(ctx); err != nil {
			p.logger.Warn("ping failed, dropping connection", "connection", c.ID, "error", err)
			p.drop(c)
		}
	}
}

// Shutdown terminates every pooled connection, SIGTERM then SIGKILL
// after ShutdownGrace.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	conns := make([]*Connection, len(p.connections))
	copy(conns, p.connections)
	p.connections = nil
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			c.terminate(p.opts.ShutdownGrace)
		}(c)
	}
	wg.Wait()
}

// Size reports the current number of live pooled connections, for
// metrics/tests.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.connections)
}
