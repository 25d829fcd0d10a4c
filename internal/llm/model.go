// Package llm defines the vendor-neutral language-model boundary and the
// Gemini-backed implementation the agent ships with. The orchestration loop
// depends only on the shapes here, never on a particular SDK.
package llm

import (
	"context"

	"github.com/molviz/pymol-agent/internal/tools"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Call is a model-issued request to execute one tool.
type Call struct {
	// ID correlates the call with its result across a dispatch round.
	ID   string
	Name string
	Args map[string]any
}

// CallResult carries a tool's outcome back to the model.
type CallResult struct {
	ID       string
	Name     string
	Response map[string]any
}

// Message is one entry of the working transcript for a single turn.
// A user message carries Text or Results (never both); a model message
// carries Text and/or Calls.
type Message struct {
	Role    Role
	Text    string
	Calls   []Call
	Results []CallResult
}

// Request is a structured model request: system instructions, the tool
// signatures the model may invoke, and the turn transcript so far.
type Request struct {
	System   string
	Tools    []tools.Spec
	Messages []Message
}

// Reply is the model's structured response. Calls non-empty means the model
// wants tools dispatched; otherwise Text is the terminal answer. Both empty
// is a malformed response and the loop reports it to the caller.
type Reply struct {
	Text  string
	Calls []Call
}

// Model generates one reply for a request. Implementations must be safe for
// sequential reuse; the loop never has more than one request in flight.
type Model interface {
	Generate(ctx context.Context, req *Request) (*Reply, error)
}

// Embedder generates text embeddings for similarity recall.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
