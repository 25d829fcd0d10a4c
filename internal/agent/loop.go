package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/molviz/pymol-agent/internal/llm"
	"github.com/molviz/pymol-agent/internal/memory"
	"github.com/molviz/pymol-agent/internal/tools"
)

// LoopConfig configures the orchestration loop.
type LoopConfig struct {
	Model    llm.Model
	Registry *tools.Registry
	Guard    *Guard
	State    *State
	// MaxRounds caps tool-dispatch rounds per user turn so a misbehaving
	// model cannot loop forever. Default 8.
	MaxRounds int
	// DigestBudget bounds the memory digest injected into each model
	// request. Default 2000.
	DigestBudget int
	Logger       *zap.Logger
}

// Loop is the turn-processing state machine. Each turn walks
// AwaitingInput -> ModelRequested -> {ToolsPending | Terminal}; ToolsPending
// cycles back to ModelRequested with results folded into the transcript
// until the model answers in plain text or the round budget runs out.
type Loop struct {
	model        llm.Model
	registry     *tools.Registry
	guard        *Guard
	state        *State
	system       string
	maxRounds    int
	digestBudget int
	logger       *zap.Logger
}

// NewLoop creates an orchestration loop. The system prompt is built once
// from the registry's specs; the registry is read-only from here on.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 8
	}
	if cfg.DigestBudget <= 0 {
		cfg.DigestBudget = 2000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Loop{
		model:        cfg.Model,
		registry:     cfg.Registry,
		guard:        cfg.Guard,
		state:        cfg.State,
		system:       buildSystemPrompt(cfg.Registry.Specs()),
		maxRounds:    cfg.MaxRounds,
		digestBudget: cfg.DigestBudget,
		logger:       cfg.Logger,
	}
}

// State returns the conversation state owned by this loop.
func (l *Loop) State() *State { return l.state }

// Process handles one user turn and returns the model's terminal text.
// Turn-aborting failures come back as *Error; the conversation state stays
// valid either way. Cancellation is honored between dispatch rounds.
func (l *Loop) Process(ctx context.Context, userInput string) (string, error) {
	l.state.turns++
	mem := l.state.Memory
	mem.Add(userInput, memory.KindUser, memory.ImportanceUser)

	digest := mem.Digest(l.digestBudget)
	messages := []llm.Message{{Role: llm.RoleUser, Text: composeUserText(digest, userInput)}}

	l.logger.Info("turn started",
		zap.Int("turn", l.state.turns),
		zap.Int("digest_len", len(digest)))

	for round := 0; round < l.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		reply, err := l.model.Generate(ctx, &llm.Request{
			System:   l.system,
			Tools:    l.registry.Specs(),
			Messages: messages,
		})
		if err != nil {
			return "", fmt.Errorf("model request failed: %w", err)
		}

		switch {
		case len(reply.Calls) > 0:
			l.logger.Debug("tools pending",
				zap.Int("round", round),
				zap.Int("calls", len(reply.Calls)))
			results := l.dispatch(ctx, reply.Calls)
			messages = append(messages,
				llm.Message{Role: llm.RoleModel, Text: reply.Text, Calls: reply.Calls},
				llm.Message{Role: llm.RoleUser, Results: results},
			)

		case reply.Text != "":
			mem.Add(reply.Text, memory.KindAssistant, memory.ImportanceAssistant)
			l.logger.Info("turn completed", zap.Int("rounds", round+1))
			return reply.Text, nil

		default:
			// Retrying a non-deterministic model call without caller
			// awareness is explicitly avoided.
			return "", &Error{
				Kind: KindModelResponseInvalid,
				Err:  errors.New("model returned neither text nor tool calls"),
			}
		}
	}

	return "", &Error{
		Kind: KindTurnBudgetExceeded,
		Err:  fmt.Errorf("no terminal text after %d tool-dispatch rounds", l.maxRounds),
	}
}

// dispatch runs a batch of tool calls concurrently and collects every result
// before returning. Order of execution is unspecified; each result keeps the
// invocation ID so the model can correlate.
func (l *Loop) dispatch(ctx context.Context, calls []llm.Call) []llm.CallResult {
	results := make([]llm.CallResult, len(calls))

	var g errgroup.Group
	for i, call := range calls {
		inv := Invocation{ID: call.ID, Tool: call.Name, Args: call.Args}
		if inv.ID == "" {
			inv.ID = uuid.NewString()
		}
		g.Go(func() error {
			res := l.guard.Invoke(ctx, inv)
			results[i] = llm.CallResult{
				ID:       res.ID,
				Name:     res.Tool,
				Response: res.Response(),
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func composeUserText(digest, userInput string) string {
	if digest == "" {
		return userInput
	}
	return fmt.Sprintf("Context:\n%s\n\nUser message: %s", digest, userInput)
}
