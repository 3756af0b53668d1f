package toolpool

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	p := New(Options{})

	if p.opts.Capacity != 3 {
		t.Errorf("expected default capacity 3, got %d", p.opts.Capacity)
	}
	if p.opts.AcquireTimeout != 5*time.Second {
		t.Errorf("expected default acquire timeout 5s, got %v", p.opts.AcquireTimeout)
	}
	if p.opts.RetryAttempts != 2 {
		t.Errorf("expected default retry attempts 2, got %d", p.opts.RetryAttempts)
	}
	if p.opts.CallTimeout != 30*time.Second {
		t.Errorf("expected default call timeout 30s, got %v", p.opts.CallTimeout)
	}
}

func TestSpecForMatchesCategory(t *testing.T) {
	p := New(Options{
		Specs: []ServerSpec{
			{ID: "pubmed", Category: "search"},
			{ID: "rxnorm", Category: "pharmaceutical"},
		},
	})

	spec, ok := p.specFor("pharmaceutical")
	if !ok || spec.ID != "rxnorm" {
		t.Fatalf("expected rxnorm spec for pharmaceutical, got %+v, ok=%v", spec, ok)
	}

	_, ok = p.specFor("nonexistent")
	if ok {
		t.Fatal("expected no spec for unregistered category")
	}
}

func TestReleaseIdlesHealthyConnection(t *testing.T) {
	p := New(Options{})
	conn := newConnection("c1", ServerSpec{ID: "s1", Category: "search"}, slog.Default())
	conn.setState(StateInUse)

	p.release(conn)

	if conn.State() != StateIdle {
		t.Errorf("expected idle after release, got %s", conn.State())
	}
}

func TestReleaseDropsUnhealthyConnection(t *testing.T) {
	p := New(Options{})
	conn := newConnection("c1", ServerSpec{ID: "s1", Category: "search"}, slog.Default())
	conn.setState(StateUnhealthy)
	p.connections = append(p.connections, conn)

	p.release(conn)

	if p.Size() != 0 {
		t.Errorf("expected dropped connection removed from pool, size=%d", p.Size())
	}
	if conn.State() != StateTerminated {
		t.Errorf("expected terminated state after drop, got %s", conn.State())
	}
}

func TestPoolExhaustedErrorMessage(t *testing.T) {
	err := &PoolExhaustedError{Category: "clinical", Waited: "5s"}
	want := `toolpool: exhausted waiting 5s for a "clinical" connection`
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestToolUnavailableErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ToolUnavailableError{ToolName: "pubmed_search", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestConnectionHealthy(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateIdle, true},
		{StateInUse, true},
		{StateInitialized, true},
		{StateUnhealthy, false},
		{StateDraining, false},
		{StateTerminated, false},
		{StateSpawned, false},
	}

	for _, tt := range tests {
		c := newConnection("c", ServerSpec{ID: "s", Category: "search"}, slog.Default())
		c.setState(tt.state)
		if got := c.healthy(); got != tt.want {
			t.Errorf("state %s: healthy() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
