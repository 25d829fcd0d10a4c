// Package pymol registers the PyMOL command tools. Commands are issued to a
// PyMOL remote command endpoint over HTTP; the agent core never links
// against PyMOL itself.
package pymol

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/molviz/pymol-agent/internal/tools"
)

// validRepresentations are the display modes set_molecular_representation
// accepts.
var validRepresentations = []string{"lines", "sticks", "spheres", "surface", "cartoon", "ribbon"}

// Client issues commands to a PyMOL remote endpoint.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// commandRequest is the wire shape of POST /run.
type commandRequest struct {
	Command string `json:"command"`
}

// commandResponse is the remote's uniform reply.
type commandResponse struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewClient creates a client for the PyMOL remote at endpoint.
func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	http := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{http: http, logger: logger}
}

// Run executes one PyMOL command on the remote.
func (c *Client) Run(ctx context.Context, command string) (map[string]any, error) {
	var reply commandResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(commandRequest{Command: command}).
		SetResult(&reply).
		Post("/run")
	if err != nil {
		return nil, fmt.Errorf("pymol remote unreachable: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("pymol remote returned %s", resp.Status())
	}
	if !reply.Success {
		return nil, fmt.Errorf("pymol command failed: %s", reply.Error)
	}

	c.logger.Debug("pymol command executed", zap.String("command", command))
	return map[string]any{"output": reply.Output, "command": command}, nil
}

// Register adds the PyMOL tool pack to the registry.
func Register(reg *tools.Registry, client *Client) error {
	packs := []struct {
		spec tools.Spec
		exec tools.Executor
	}{
		{
			spec: tools.Spec{
				Name:        "execute_pymol_command",
				Description: "Execute a raw PyMOL command. Use the dedicated tools for common operations.",
				Params: []tools.Param{
					{Name: "command", Type: tools.TypeString, Description: "The PyMOL command to execute", Required: true},
				},
				Destructive: true,
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return client.Run(ctx, tools.StringArg(args, "command"))
			},
		},
		{
			spec: tools.Spec{
				Name:        "load_molecule",
				Description: "Load a molecular structure file (PDB, SDF, MOL2, ...) into PyMOL.",
				Params: []tools.Param{
					{Name: "path", Type: tools.TypeString, Description: "Path to the structure file", Required: true},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				path := tools.StringArg(args, "path")
				return client.Run(ctx, fmt.Sprintf("load %q", path))
			},
		},
		{
			spec: tools.Spec{
				Name:        "set_molecular_representation",
				Description: "Set the display representation (lines, sticks, spheres, surface, cartoon, ribbon) for an object.",
				Params: []tools.Param{
					{Name: "object_name", Type: tools.TypeString, Description: "Name of the loaded object", Required: true},
					{Name: "representation", Type: tools.TypeString, Description: "One of: lines, sticks, spheres, surface, cartoon, ribbon", Required: true},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				rep := strings.ToLower(tools.StringArg(args, "representation"))
				if !slices.Contains(validRepresentations, rep) {
					return nil, fmt.Errorf("invalid representation %q, valid options: %s", rep, strings.Join(validRepresentations, ", "))
				}
				return client.Run(ctx, fmt.Sprintf("show %s, %s", rep, tools.StringArg(args, "object_name")))
			},
		},
		{
			spec: tools.Spec{
				Name:        "color_molecule",
				Description: "Apply a color to a molecular object.",
				Params: []tools.Param{
					{Name: "object_name", Type: tools.TypeString, Description: "Name of the loaded object", Required: true},
					{Name: "color", Type: tools.TypeString, Description: "PyMOL color name, e.g. red, marine, yellow", Required: true},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return client.Run(ctx, fmt.Sprintf("color %s, %s",
					tools.StringArg(args, "color"), tools.StringArg(args, "object_name")))
			},
		},
		{
			spec: tools.Spec{
				Name:        "zoom_to_object",
				Description: "Zoom the camera to a specific object.",
				Params: []tools.Param{
					{Name: "object_name", Type: tools.TypeString, Description: "Name of the loaded object", Required: true},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return client.Run(ctx, fmt.Sprintf("zoom %s", tools.StringArg(args, "object_name")))
			},
		},
		{
			spec: tools.Spec{
				Name:        "save_view_image",
				Description: "Render the current view to a PNG image file.",
				Params: []tools.Param{
					{Name: "filename", Type: tools.TypeString, Description: "Output PNG path", Required: true},
					{Name: "width", Type: tools.TypeInteger, Description: "Image width in pixels (default 800)", Required: false},
					{Name: "height", Type: tools.TypeInteger, Description: "Image height in pixels (default 600)", Required: false},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				width := tools.IntArg(args, "width", 800)
				height := tools.IntArg(args, "height", 600)
				return client.Run(ctx, fmt.Sprintf("png %s, %d, %d",
					tools.StringArg(args, "filename"), width, height))
			},
		},
		{
			spec: tools.Spec{
				Name:        "get_molecule_info",
				Description: "Report atom count, bond count and center of mass for a selection.",
				Params: []tools.Param{
					{Name: "selection", Type: tools.TypeString, Description: "PyMOL selection expression (default: all)", Required: false},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				sel := tools.StringArg(args, "selection")
				if sel == "" {
					sel = "all"
				}
				return client.Run(ctx, fmt.Sprintf(
					"print(cmd.count_atoms(%q), cmd.count_bonds(%q), cmd.get_center_of_mass(%q))", sel, sel, sel))
			},
		},
		{
			spec: tools.Spec{
				Name:        "list_loaded_objects",
				Description: "List the objects currently loaded in the PyMOL session.",
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return client.Run(ctx, "print(cmd.get_object_list())")
			},
		},
	}

	for _, p := range packs {
		if err := reg.Register(p.spec, p.exec); err != nil {
			return fmt.Errorf("failed to register %s: %w", p.spec.Name, err)
		}
	}
	return nil
}
