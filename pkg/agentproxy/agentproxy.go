// Package agentproxy wraps an agent graph with intent enforcement.
//
// The proxy sits between the caller and a compiled agent graph. Every
// state the graph emits is inspected for fresh tool calls; each call is
// turned into an intent event and sent to the gateway before the graph
// takes its next step. Blocked calls either halt the stream (hard mode)
// or are logged and let through (soft mode).
//
// Quick start:
//
//	enforcer := agentproxy.NewHTTPClient("http://127.0.0.1:8080", apiKey)
//	proxy, err := agentproxy.Wrap(graph, "agent-1", "boundary-prod",
//	    agentproxy.WithEnforcer(enforcer),
//	    agentproxy.WithRegistrar(enforcer),
//	)
//	if err != nil {
//	    return err
//	}
//
//	final, err := proxy.Invoke(ctx, state)
//	if err != nil {
//	    var blocked *agentproxy.BlockedError
//	    if errors.As(err, &blocked) {
//	        fmt.Printf("blocked tool %s: %s\n", blocked.ToolName, blocked.Reason)
//	    }
//	}
package agentproxy

import (
	"context"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
	"github.com/Intent-Gate/Intentgate/internal/domain/intent"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	// ID is the model-assigned call identifier. It keys the
	// per-invocation enforcement set; calls without an ID fall back
	// to the tool name.
	ID string `json:"id,omitempty"`

	// Name is the tool being called.
	Name string `json:"name"`

	// Method optionally names the tool method. Defaults to "call".
	Method string `json:"method,omitempty"`

	// Args carries the call arguments.
	Args map[string]any `json:"args,omitempty"`
}

func (tc ToolCall) key() string {
	if tc.ID != "" {
		return tc.ID
	}
	return tc.Name
}

// Message is a single entry in the graph's message history.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// State is a values-mode snapshot of the graph: the full message
// history plus any extra channel values.
type State struct {
	Messages []Message      `json:"messages"`
	Values   map[string]any `json:"values,omitempty"`
}

// latestToolCalls returns the tool calls of the most recent message
// that has any. Earlier messages have already been seen in a previous
// snapshot.
func latestToolCalls(st State) []ToolCall {
	for i := len(st.Messages) - 1; i >= 0; i-- {
		if len(st.Messages[i].ToolCalls) > 0 {
			return st.Messages[i].ToolCalls
		}
	}
	return nil
}

// Graph is the agent graph being wrapped. Stream emits full state
// snapshots after each step; Invoke runs to completion.
type Graph interface {
	Invoke(ctx context.Context, state State) (State, error)
	Stream(ctx context.Context, state State) (<-chan State, <-chan error)
}

// Enforcer evaluates one intent event against the installed
// boundaries. Both the management-plane HTTP client and the data-plane
// gRPC client satisfy it.
type Enforcer interface {
	Enforce(ctx context.Context, ev *intent.Event) (*boundary.ComparisonResult, error)
}

// Registration describes the agent to the management plane.
type Registration struct {
	ID         string `json:"id"`
	SDKVersion string `json:"sdk_version,omitempty"`
	Framework  string `json:"framework,omitempty"`
	BoundaryID string `json:"boundary_id,omitempty"`
}

// Registrar announces the agent to the gateway. Registration is best
// effort; a failed registrar never fails Wrap.
type Registrar interface {
	RegisterAgent(ctx context.Context, reg Registration) error
}

// Mode selects what happens when a tool call is blocked.
type Mode string

const (
	// ModeHard halts the stream with a BlockedError.
	ModeHard Mode = "hard"
	// ModeSoft reports the violation and lets the call through.
	ModeSoft Mode = "soft"
)
