package toolpool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// State is a connection's position in its lifecycle:
// spawned -> initialized -> idle <-> in_use -> draining -> terminated,
// with a transition to unhealthy from any of initialized/idle/in_use.
type State string

const (
	StateSpawned     State = "spawned"
	StateInitialized State = "initialized"
	StateIdle        State = "idle"
	StateInUse       State = "in_use"
	StateUnhealthy   State = "unhealthy"
	StateDraining    State = "draining"
	StateTerminated  State = "terminated"
)

// Connection is one pooled subprocess connection to a tool server.
type Connection struct {
	ID       string
	Category string
	ServerID string

	transport *stdioTransport
	logger    *slog.Logger

	state atomic.Value // State
}

func newConnection(id string, spec ServerSpec, logger *slog.Logger) *Connection {
	c := &Connection{
		ID:        id,
		Category:  spec.Category,
		ServerID:  spec.ID,
		transport: newStdioTransport(spec, logger),
		logger:    logger.With("connection", id, "server", spec.ID),
	}
	c.state.Store(StateSpawned)
	return c
}

func (c *Connection) State() State {
	return c.state.Load().(State)
}

func (c *Connection) setState(s State) {
	c.state.Store(s)
}

// initialize starts the subprocess and performs the protocol handshake.
func (c *Connection) initialize(ctx context.Context) error {
	if err := c.transport.start(ctx); err != nil {
		c.setState(StateUnhealthy)
		return fmt.Errorf("start transport: %w", err)
	}

	_, err := c.transport.call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]string{"name": "clinical-orchestrator", "version": "1"},
	})
	if err != nil {
		c.setState(StateUnhealthy)
		return fmt.Errorf("initialize handshake: %w", err)
	}

	if err := c.notifyInitialized(ctx); err != nil {
		c.logger.Warn("initialized notification failed", "error", err)
	}

	c.setState(StateInitialized)
	return nil
}

func (c *Connection) notifyInitialized(ctx context.Context) error {
	return c.transport.notify("notifications/initialized", nil)
}

// listTools calls the standard tools/list method.
func (c *Connection) listTools(ctx context.Context) (json.RawMessage, error) {
	return c.transport.call(ctx, "tools/list", nil)
}

// callTool invokes a named tool with arguments and returns its raw
// result payload.
func (c *Connection) callTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	return c.transport.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
}

// ping issues a lightweight tools/list call to confirm liveness.
func (c *Connection) ping(ctx context.Context) error {
	_, err := c.transport.call(ctx, "tools/list", nil)
	if err != nil {
		c.setState(StateUnhealthy)
		return err
	}
	return nil
}

func (c *Connection) healthy() bool {
	s := c.State()
	return s == StateIdle || s == StateInUse || s == StateInitialized
}

// terminate abandons any in-flight read and kills the subprocess. A
// terminated connection is never reused; desynchronized protocol state
// (a response arriving after the caller stopped waiting) is never
// resumed.
func (c *Connection) terminate(grace time.Duration) {
	c.setState(StateDraining)
	_ = c.transport.shutdown(grace)
	c.setState(StateTerminated)
}
