// Command pymol-agent is the conversational PyMOL learning agent. It wires
// the Gemini model, the two-tier conversation memory with an optional durable
// archive, and the tool packs into the orchestration loop, then runs an
// interactive chat session.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/molviz/pymol-agent/internal/agent"
	"github.com/molviz/pymol-agent/internal/config"
	"github.com/molviz/pymol-agent/internal/llm"
	"github.com/molviz/pymol-agent/internal/memory"
	"github.com/molviz/pymol-agent/internal/tools"
	"github.com/molviz/pymol-agent/internal/tools/desktop"
	"github.com/molviz/pymol-agent/internal/tools/pymol"
	"github.com/molviz/pymol-agent/internal/tools/vision"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "pymol-agent",
		Short:         "Conversational agent for the PyMOL molecular viewer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(chatCmd(), toolsCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger, err := buildLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runChat(ctx, cfg, logger)
		},
	}
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the agent can dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// A throwaway memory system keeps the listing identical to what a
			// chat session dispatches, recall_memory included.
			reg, err := buildRegistry(cfg, memory.NewSystem(memory.Config{}), nil, nil, zap.NewNop())
			if err != nil {
				return err
			}
			for _, spec := range reg.Specs() {
				marker := " "
				if spec.Destructive {
					marker = "!"
				}
				fmt.Printf("%s %-32s %s\n", marker, spec.Name, spec.Description)
			}
			fmt.Printf("\n%d tools (! requires confirmation)\n", reg.Len())
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("pymol-agent", version)
		},
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func runChat(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	gemini, err := llm.NewGemini(ctx, llm.GeminiConfig{
		APIKey:            cfg.Model.APIKey,
		Model:             cfg.Model.Name,
		EmbeddingModel:    cfg.Model.EmbeddingModel,
		Temperature:       cfg.Model.Temperature,
		RequestsPerMinute: cfg.Model.RequestsPerMinute,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	archive, err := openArchive(ctx, cfg, gemini)
	if err != nil {
		return err
	}
	if archive != nil {
		defer archive.Close()
	}

	var measure memory.Measure
	if cfg.Memory.DigestTokenBudget {
		measure = llm.NewTokenMeasure("")
	}
	mem := memory.NewSystem(memory.Config{
		ShortTermCapacity:  cfg.Memory.ShortTermCapacity,
		LongTermCapacity:   cfg.Memory.LongTermCapacity,
		PromotionThreshold: cfg.Memory.PromotionThreshold,
		Measure:            measure,
		Archive:            archive,
		Logger:             logger,
	})

	if archive != nil {
		records, err := archive.Load(ctx, cfg.Memory.LongTermCapacity)
		if err != nil {
			logger.Warn("failed to load archived memory", zap.Error(err))
		} else if len(records) > 0 {
			mem.Preload(records)
			logger.Info("restored archived memory", zap.Int("records", len(records)))
		}
	}

	reg, err := buildRegistry(cfg, mem, archive, gemini, logger)
	if err != nil {
		return err
	}

	stdin := bufio.NewScanner(os.Stdin)
	var confirmer agent.Confirmer
	if cfg.Agent.AutoConfirm {
		confirmer = agent.ConfirmerFunc(func(context.Context, tools.Spec, map[string]any) bool { return true })
	} else {
		confirmer = &promptConfirmer{in: stdin}
	}

	guard := agent.NewGuard(reg, mem, cfg.Agent.ToolTimeout.Std(), confirmer, logger)
	loop := agent.NewLoop(agent.LoopConfig{
		Model:        gemini,
		Registry:     reg,
		Guard:        guard,
		State:        agent.NewState(mem),
		MaxRounds:    cfg.Agent.MaxRounds,
		DigestBudget: cfg.Memory.DigestBudget,
		Logger:       logger,
	})

	fmt.Printf("PyMOL agent ready (%d tools). Type 'exit' to quit.\n", reg.Len())
	for {
		fmt.Print("> ")
		if !stdin.Scan() {
			fmt.Println()
			return stdin.Err()
		}
		input := strings.TrimSpace(stdin.Text())
		switch input {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "status":
			printStatus(loop)
			continue
		}

		answer, err := loop.Process(ctx, input)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			var agentErr *agent.Error
			if errors.As(err, &agentErr) {
				fmt.Printf("turn failed (%s), conversation continues\n", agentErr.Kind)
				continue
			}
			fmt.Println("error:", err)
			continue
		}
		fmt.Println(answer)
	}
}

// openArchive creates the configured archive backend, or nil when memory
// should stay in-process only.
func openArchive(ctx context.Context, cfg config.Config, embedder memory.Embedder) (memory.Archive, error) {
	switch cfg.Archive.Driver {
	case "sqlite":
		return memory.NewSQLiteArchive(ctx, cfg.Archive.DSN, embedder)
	case "postgres":
		return memory.NewPostgresArchive(ctx, cfg.Archive.DSN, embedder)
	default:
		return nil, nil
	}
}

// buildRegistry registers every enabled tool pack. mem, archive and embedder
// may be nil, e.g. when only listing tools.
func buildRegistry(cfg config.Config, mem *memory.System, archive memory.Archive, embedder memory.Embedder, logger *zap.Logger) (*tools.Registry, error) {
	reg := tools.NewRegistry()

	client := pymol.NewClient(cfg.PyMOL.Endpoint, cfg.PyMOL.Timeout.Std(), logger)
	if err := pymol.Register(reg, client); err != nil {
		return nil, err
	}
	if err := vision.Register(reg); err != nil {
		return nil, err
	}
	if cfg.Desktop.Enabled {
		if err := desktop.Register(reg, desktop.NewExecDriver()); err != nil {
			return nil, err
		}
	}
	if mem != nil {
		if err := tools.RegisterRecall(reg, mem, archive, embedder); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func printStatus(loop *agent.Loop) {
	st := loop.State()
	shortN, longN := st.Memory.Counts()
	fmt.Printf("turns: %d, short-term records: %d, long-term records: %d\n",
		st.Turns(), shortN, longN)
}

// promptConfirmer asks the user on stdin before a destructive tool runs.
// Concurrent dispatches serialize on the prompt so questions do not
// interleave.
type promptConfirmer struct {
	mu sync.Mutex
	in *bufio.Scanner
}

func (c *promptConfirmer) Confirm(ctx context.Context, spec tools.Spec, args map[string]any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	fmt.Printf("tool %s wants to run with %v. Allow? [y/N] ", spec.Name, args)
	if !c.in.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(c.in.Text()))
	return answer == "y" || answer == "yes"
}
