package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/molviz/pymol-agent/internal/tools"
)

// GeminiConfig configures the Gemini-backed Model and Embedder.
type GeminiConfig struct {
	APIKey         string
	Model          string // e.g. gemini-2.5-pro
	EmbeddingModel string // e.g. text-embedding-004
	Temperature    float32
	// RequestsPerMinute throttles outbound calls; 0 disables throttling.
	RequestsPerMinute int
	Logger            *zap.Logger
}

// Gemini talks to the Gemini API. It implements Model and Embedder.
type Gemini struct {
	client  *genai.Client
	cfg     GeminiConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

var (
	_ Model    = (*Gemini)(nil)
	_ Embedder = (*Gemini)(nil)
)

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Gemini{client: client, cfg: cfg, limiter: limiter, logger: cfg.Logger}, nil
}

// Generate sends the request transcript to the model and classifies the
// response into terminal text and/or tool calls.
func (g *Gemini) Generate(ctx context.Context, req *Request) (*Reply, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	contents := toContents(req.Messages)
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.cfg.Temperature),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(req.Tools)}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	reply := &Reply{}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				reply.Text += part.Text
			}
			if part.FunctionCall != nil {
				reply.Calls = append(reply.Calls, Call{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				})
			}
		}
	}

	g.logger.Debug("model reply",
		zap.Int("text_len", len(reply.Text)),
		zap.Int("tool_calls", len(reply.Calls)))
	return reply, nil
}

// Embed generates an embedding vector for text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.cfg.EmbeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Embeddings[0].Values, nil
}

func (g *Gemini) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func toContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		var parts []*genai.Part

		if m.Text != "" {
			parts = append(parts, genai.NewPartFromText(m.Text))
		}
		for _, c := range m.Calls {
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   c.ID,
				Name: c.Name,
				Args: c.Args,
			}})
		}
		for _, r := range m.Results {
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       r.ID,
				Name:     r.Name,
				Response: r.Response,
			}})
		}
		if len(parts) == 0 {
			continue
		}

		role := genai.RoleUser
		if m.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

func toDeclarations(specs []tools.Spec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		properties := make(map[string]*genai.Schema, len(spec.Params))
		var required []string
		for _, p := range spec.Params {
			properties[p.Name] = &genai.Schema{
				Type:        toSchemaType(p.Type),
				Description: p.Description,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   required,
			},
		})
	}
	return decls
}

func toSchemaType(t tools.ParamType) genai.Type {
	switch t {
	case tools.TypeNumber:
		return genai.TypeNumber
	case tools.TypeInteger:
		return genai.TypeInteger
	case tools.TypeBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
