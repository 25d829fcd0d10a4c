package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molviz/pymol-agent/internal/llm"
	"github.com/molviz/pymol-agent/internal/tools"
)

// scriptModel replays canned replies and records every request it saw.
type scriptModel struct {
	replies  []*llm.Reply
	err      error
	requests []*llm.Request
}

func (m *scriptModel) Generate(_ context.Context, req *llm.Request) (*llm.Reply, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	// The last reply replays forever so budget tests can loop.
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return reply, nil
}

func echoRegistry(t *testing.T, calls *int) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(
		tools.Spec{
			Name:        "echo",
			Description: "echoes text back",
			Params:      []tools.Param{{Name: "text", Type: tools.TypeString, Required: true}},
		},
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			if calls != nil {
				*calls++
			}
			return map[string]any{"echoed": args["text"]}, nil
		},
	))
	return reg
}

func newTestLoop(t *testing.T, model llm.Model, reg *tools.Registry, maxRounds int) *Loop {
	t.Helper()
	mem := newTestMemory()
	guard := NewGuard(reg, mem, time.Second, allowAll(), nil)
	return NewLoop(LoopConfig{
		Model:     model,
		Registry:  reg,
		Guard:     guard,
		State:     NewState(mem),
		MaxRounds: maxRounds,
	})
}

func TestProcessTerminalText(t *testing.T) {
	model := &scriptModel{replies: []*llm.Reply{{Text: "All set."}}}
	loop := newTestLoop(t, model, echoRegistry(t, nil), 8)

	answer, err := loop.Process(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "All set.", answer)
	assert.Equal(t, 1, loop.State().Turns())
	assert.Equal(t, 2, recordCount(loop.State().Memory))

	require.Len(t, model.requests, 1)
	req := model.requests[0]
	assert.Contains(t, req.System, "echo")
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Text, "hello")
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "echo", req.Tools[0].Name)
}

func TestProcessToolRoundThenTerminal(t *testing.T) {
	model := &scriptModel{replies: []*llm.Reply{
		{Calls: []llm.Call{{Name: "echo", Args: map[string]any{"text": "hi"}}}},
		{Text: "done"},
	}}
	var calls int
	loop := newTestLoop(t, model, echoRegistry(t, &calls), 8)

	answer, err := loop.Process(context.Background(), "say hi")
	require.NoError(t, err)
	assert.Equal(t, "done", answer)
	assert.Equal(t, 1, calls)
	// user input, one tool result, terminal answer
	assert.Equal(t, 3, recordCount(loop.State().Memory))

	require.Len(t, model.requests, 2)
	second := model.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, llm.RoleModel, second[1].Role)
	require.Len(t, second[2].Results, 1)

	result := second[2].Results[0]
	assert.Equal(t, "echo", result.Name)
	assert.NotEmpty(t, result.ID, "calls without an ID get one assigned")
	assert.Equal(t, true, result.Response["success"])
	assert.Equal(t, "hi", result.Response["echoed"])
}

func TestProcessFoldsToolFailuresIntoResults(t *testing.T) {
	model := &scriptModel{replies: []*llm.Reply{
		{Calls: []llm.Call{
			{ID: "c1", Name: "echo", Args: map[string]any{}},
			{ID: "c2", Name: "no_such_tool"},
		}},
		{Text: "recovered"},
	}}
	loop := newTestLoop(t, model, echoRegistry(t, nil), 8)

	answer, err := loop.Process(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)

	results := model.requests[1].Messages[2].Results
	require.Len(t, results, 2)
	assert.Equal(t, false, results[0].Response["success"])
	assert.Contains(t, results[0].Response["error"], "missing required parameter")
	assert.Equal(t, "unknown tool", results[1].Response["error"])
}

func TestProcessInvalidModelResponse(t *testing.T) {
	model := &scriptModel{replies: []*llm.Reply{{}}}
	loop := newTestLoop(t, model, echoRegistry(t, nil), 8)

	_, err := loop.Process(context.Background(), "hello")
	var agentErr *Error
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, KindModelResponseInvalid, agentErr.Kind)
}

func TestProcessTurnBudgetExceeded(t *testing.T) {
	// The script keeps replaying its last reply, so the model asks for the
	// same tool forever.
	model := &scriptModel{replies: []*llm.Reply{
		{Calls: []llm.Call{{Name: "echo", Args: map[string]any{"text": "again"}}}},
	}}
	var calls int
	loop := newTestLoop(t, model, echoRegistry(t, &calls), 3)

	_, err := loop.Process(context.Background(), "loop forever")
	var agentErr *Error
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, KindTurnBudgetExceeded, agentErr.Kind)
	assert.Equal(t, 3, calls)

	// The conversation stays usable after a failed turn.
	model.replies = []*llm.Reply{{Text: "fine now"}}
	answer, err := loop.Process(context.Background(), "still there?")
	require.NoError(t, err)
	assert.Equal(t, "fine now", answer)
	assert.Equal(t, 2, loop.State().Turns())
}

func TestProcessHonorsCancellation(t *testing.T) {
	model := &scriptModel{replies: []*llm.Reply{{Text: "never"}}}
	loop := newTestLoop(t, model, echoRegistry(t, nil), 8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loop.Process(ctx, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, model.requests)
}

func TestProcessModelFailure(t *testing.T) {
	model := &scriptModel{err: errors.New("quota exhausted")}
	loop := newTestLoop(t, model, echoRegistry(t, nil), 8)

	_, err := loop.Process(context.Background(), "hello")
	require.Error(t, err)
	var agentErr *Error
	assert.False(t, errors.As(err, &agentErr), "transport failures are not classified turn errors")
	assert.Contains(t, err.Error(), "quota exhausted")
}

func TestProcessInjectsDigestOnLaterTurns(t *testing.T) {
	model := &scriptModel{replies: []*llm.Reply{{Text: "noted"}}}
	loop := newTestLoop(t, model, echoRegistry(t, nil), 8)

	_, err := loop.Process(context.Background(), "remember the kinase")
	require.NoError(t, err)
	_, err = loop.Process(context.Background(), "what did I say?")
	require.NoError(t, err)

	require.Len(t, model.requests, 2)
	text := model.requests[1].Messages[0].Text
	assert.Contains(t, text, "Context:")
	assert.Contains(t, text, "remember the kinase")
	assert.Contains(t, text, "User message: what did I say?")
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := buildSystemPrompt([]tools.Spec{{Name: "echo", Description: "echoes text back"}})
	assert.Contains(t, prompt, "PyMOL")
	assert.Contains(t, prompt, "- echo: echoes text back")

	bare := buildSystemPrompt(nil)
	assert.NotContains(t, bare, "Available tools")
}
