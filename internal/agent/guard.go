package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/molviz/pymol-agent/internal/memory"
	"github.com/molviz/pymol-agent/internal/tools"
)

// Invocation is one model-issued tool call, consumed once by the guard.
type Invocation struct {
	ID   string
	Tool string
	Args map[string]any
}

// Result is the uniform outcome shape of every invocation.
type Result struct {
	ID      string
	Tool    string
	Success bool
	Data    map[string]any
	Err     string
}

// Response renders the result as the mapping fed back to the model.
func (r Result) Response() map[string]any {
	resp := map[string]any{"success": r.Success}
	if r.Err != "" {
		resp["error"] = r.Err
	}
	for k, v := range r.Data {
		if k == "success" || k == "error" {
			continue
		}
		resp[k] = v
	}
	return resp
}

// Confirmer decides whether a destructive tool may run. A nil confirmer
// rejects every destructive call.
type Confirmer interface {
	Confirm(ctx context.Context, spec tools.Spec, args map[string]any) bool
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, spec tools.Spec, args map[string]any) bool

func (f ConfirmerFunc) Confirm(ctx context.Context, spec tools.Spec, args map[string]any) bool {
	return f(ctx, spec, args)
}

// Guard wraps every tool call with lookup, argument validation, the
// destructive-tool confirmation policy, a timeout, and failure
// normalization. A tool failure never terminates the orchestration loop.
type Guard struct {
	registry  *tools.Registry
	memory    *memory.System
	timeout   time.Duration
	confirmer Confirmer
	logger    *zap.Logger
}

// NewGuard creates a dispatch guard. confirmer may be nil.
func NewGuard(registry *tools.Registry, mem *memory.System, timeout time.Duration, confirmer Confirmer, logger *zap.Logger) *Guard {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		registry:  registry,
		memory:    mem,
		timeout:   timeout,
		confirmer: confirmer,
		logger:    logger,
	}
}

// Invoke executes one invocation and always returns a Result, recording
// exactly one tool-result memory record regardless of outcome.
func (g *Guard) Invoke(ctx context.Context, inv Invocation) Result {
	result := g.invoke(ctx, inv)

	if g.memory != nil {
		g.memory.Add(summarize(result), memory.KindToolResult, memory.ImportanceToolResult)
	}
	if result.Success {
		g.logger.Info("tool dispatched", zap.String("tool", inv.Tool), zap.String("invocation_id", inv.ID))
	} else {
		g.logger.Warn("tool dispatch failed",
			zap.String("tool", inv.Tool),
			zap.String("invocation_id", inv.ID),
			zap.String("error", result.Err))
	}
	return result
}

func (g *Guard) invoke(ctx context.Context, inv Invocation) Result {
	result := Result{ID: inv.ID, Tool: inv.Tool}

	exec, spec, err := g.registry.Resolve(inv.Tool)
	if err != nil {
		// The model may hallucinate tool names; report, never propagate.
		result.Err = "unknown tool"
		return result
	}

	args, err := tools.ValidateArgs(spec, inv.Args)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	if spec.Destructive {
		if g.confirmer == nil || !g.confirmer.Confirm(ctx, spec, args) {
			result.Err = "confirmation required"
			return result
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type outcome struct {
		data map[string]any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", p)}
			}
		}()
		data, err := exec(execCtx, args)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			result.Err = out.err.Error()
			return result
		}
		result.Success = true
		result.Data = out.data
		return result

	case <-execCtx.Done():
		// No automatic retry: side-effecting tools are not idempotent.
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			result.Err = "timeout"
		} else {
			result.Err = "canceled"
		}
		return result
	}
}

// summarize renders a result as a single memory-record line. Payloads and
// error messages are truncated; the transcript needs the fact of the call,
// not the bytes.
func summarize(r Result) string {
	if !r.Success {
		return fmt.Sprintf("tool %s failed: %s", r.Tool, truncate(r.Err))
	}
	payload := ""
	if len(r.Data) > 0 {
		if b, err := json.Marshal(r.Data); err == nil {
			payload = string(b)
		}
	}
	if payload == "" {
		return fmt.Sprintf("tool %s succeeded", r.Tool)
	}
	return fmt.Sprintf("tool %s succeeded: %s", r.Tool, truncate(payload))
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) > 200 {
		return string(runes[:200]) + "..."
	}
	return s
}
