// Package desktop registers mouse/keyboard automation and GUI inspection
// tools. All platform access goes through the Driver interface so the agent
// core stays portable and testable; the input-synthesizing tools are marked
// destructive since they act on the user's live session.
package desktop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/molviz/pymol-agent/internal/tools"
)

// WindowInfo describes one top-level window.
type WindowInfo struct {
	Title  string
	X      int
	Y      int
	Width  int
	Height int
	Active bool
}

// ElementInfo describes one GUI element reported by the accessibility layer.
type ElementInfo struct {
	Role      string
	Title     string
	X         int
	Y         int
	Width     int
	Height    int
	Clickable bool
}

// Driver is the platform boundary for desktop automation.
type Driver interface {
	ScreenSize(ctx context.Context) (width, height int, err error)
	ListWindows(ctx context.Context) ([]WindowInfo, error)
	ActivateWindow(ctx context.Context, title string) error
	Click(ctx context.Context, x, y int, button string) error
	Drag(ctx context.Context, fromX, fromY, toX, toY int, button string) error
	TypeText(ctx context.Context, text string, interval time.Duration) error
	PressKey(ctx context.Context, key string) error
	// Screenshot captures the screen to filename (generated when empty) and
	// returns the path written.
	Screenshot(ctx context.Context, filename string) (string, error)
	MousePosition(ctx context.Context) (x, y int, err error)
	// Elements reports accessibility elements of the window matching title,
	// or of the frontmost window when title is empty.
	Elements(ctx context.Context, windowTitle string) ([]ElementInfo, error)
	ElementAt(ctx context.Context, x, y int) (*ElementInfo, error)
}

// Register adds the desktop tool pack to the registry.
func Register(reg *tools.Registry, driver Driver) error {
	packs := []struct {
		spec tools.Spec
		exec tools.Executor
	}{
		{
			spec: tools.Spec{
				Name:        "get_desktop_info",
				Description: "Report screen dimensions and the number of visible windows.",
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				w, h, err := driver.ScreenSize(ctx)
				if err != nil {
					return nil, err
				}
				windows, err := driver.ListWindows(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"screen_width": w, "screen_height": h, "window_count": len(windows)}, nil
			},
		},
		{
			spec: tools.Spec{
				Name:        "find_application_window",
				Description: "Find windows whose title contains the given pattern, case-insensitive.",
				Params: []tools.Param{
					{Name: "title_pattern", Type: tools.TypeString, Description: "Substring to match against window titles", Required: true},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				pattern := strings.ToLower(tools.StringArg(args, "title_pattern"))
				windows, err := driver.ListWindows(ctx)
				if err != nil {
					return nil, err
				}
				var matches []map[string]any
				for _, w := range windows {
					if strings.Contains(strings.ToLower(w.Title), pattern) {
						matches = append(matches, windowMap(w))
					}
				}
				return map[string]any{"windows": matches, "count": len(matches)}, nil
			},
		},
		{
			spec: tools.Spec{
				Name:        "activate_application_window",
				Description: "Bring the window with the given title to the foreground.",
				Params: []tools.Param{
					{Name: "title", Type: tools.TypeString, Description: "Exact window title", Required: true},
				},
				Destructive: true,
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				title := tools.StringArg(args, "title")
				if err := driver.ActivateWindow(ctx, title); err != nil {
					return nil, err
				}
				return map[string]any{"activated": title}, nil
			},
		},
		{
			spec: tools.Spec{
				Name:        "click_at_coordinates",
				Description: "Click the mouse at the given screen coordinates.",
				Params: []tools.Param{
					{Name: "x", Type: tools.TypeInteger, Description: "Screen X coordinate", Required: true},
					{Name: "y", Type: tools.TypeInteger, Description: "Screen Y coordinate", Required: true},
					{Name: "button", Type: tools.TypeString, Description: "Mouse button: left, right or middle (default left)", Required: false},
				},
				Destructive: true,
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				button := tools.StringArg(args, "button")
				if button == "" {
					button = "left"
				}
				x := int(tools.IntArg(args, "x", 0))
				y := int(tools.IntArg(args, "y", 0))
				if err := driver.Click(ctx, x, y, button); err != nil {
					return nil, err
				}
				return map[string]any{"clicked": fmt.Sprintf("%s@%d,%d", button, x, y)}, nil
			},
		},
		{
			spec: tools.Spec{
				Name:        "drag_mouse_coordinates",
				Description: "Drag the mouse from a start position to an end position.",
				Params: []tools.Param{
					{Name: "start_x", Type: tools.TypeInteger, Description: "Drag start X coordinate", Required: true},
					{Name: "start_y", Type: tools.TypeInteger, Description: "Drag start Y coordinate", Required: true},
					{Name: "end_x", Type: tools.TypeInteger, Description: "Drag end X coordinate", Required: true},
					{Name: "end_y", Type: tools.TypeInteger, Description: "Drag end Y coordinate", Required: true},
					{Name: "button", Type: tools.TypeString, Description: "Mouse button: left, right or middle (default left)", Required: false},
				},
				Destructive: true,
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				button := tools.StringArg(args, "button")
				if button == "" {
					button = "left"
				}
				fromX := int(tools.IntArg(args, "start_x", 0))
				fromY := int(tools.IntArg(args, "start_y", 0))
				toX := int(tools.IntArg(args, "end_x", 0))
				toY := int(tools.IntArg(args, "end_y", 0))
				if err := driver.Drag(ctx, fromX, fromY, toX, toY, button); err != nil {
					return nil, err
				}
				return map[string]any{"dragged": fmt.Sprintf("%d,%d->%d,%d", fromX, fromY, toX, toY)}, nil
			},
		},
		{
			spec: tools.Spec{
				Name:        "type_keyboard_text",
				Description: "Type text using the keyboard at the current focus.",
				Params: []tools.Param{
					{Name: "text", Type: tools.TypeString, Description: "Text to type", Required: true},
					{Name: "interval_ms", Type: tools.TypeInteger, Description: "Delay between keystrokes in milliseconds (default 100)", Required: false},
				},
				Destructive: true,
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				text := tools.StringArg(args, "text")
				interval := time.Duration(tools.IntArg(args, "interval_ms", 100)) * time.Millisecond
				if err := driver.TypeText(ctx, text, interval); err != nil {
					return nil, err
				}
				return map[string]any{"typed_chars": len(text)}, nil
			},
		},
		{
			spec: tools.Spec{
				Name:        "press_keyboard_key",
				Description: "Press a single key or key combination, e.g. enter, escape, ctrl+s.",
				Params: []tools.Param{
					{Name: "key", Type: tools.TypeString, Description: "Key name or combination", Required: true},
				},
				Destructive: true,
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				key := tools.StringArg(args, "key")
				if err := driver.PressKey(ctx, key); err != nil {
					return nil, err
				}
				return map[string]any{"pressed": key}, nil
			},
		},
		{
			spec: tools.Spec{
				Name:        "capture_screenshot",
				Description: "Capture the screen to a PNG file and return the path written.",
				Params: []tools.Param{
					{Name: "filename", Type: tools.TypeString, Description: "Output path (generated when omitted)", Required: false},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				path, err := driver.Screenshot(ctx, tools.StringArg(args, "filename"))
				if err != nil {
					return nil, err
				}
				return map[string]any{"path": path}, nil
			},
		},
		{
			spec: tools.Spec{
				Name:        "get_current_mouse_position",
				Description: "Report the current mouse cursor position.",
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				x, y, err := driver.MousePosition(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"x": x, "y": y}, nil
			},
		},
		{
			spec: tools.Spec{
				Name:        "list_visible_windows",
				Description: "List all visible top-level windows with their geometry.",
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				windows, err := driver.ListWindows(ctx)
				if err != nil {
					return nil, err
				}
				out := make([]map[string]any, 0, len(windows))
				for _, w := range windows {
					out = append(out, windowMap(w))
				}
				return map[string]any{"windows": out, "count": len(out)}, nil
			},
		},
		{
			spec: tools.Spec{
				Name:        "find_clickable_elements",
				Description: "List clickable GUI elements of a window via the accessibility layer.",
				Params: []tools.Param{
					{Name: "window_title", Type: tools.TypeString, Description: "Window title (frontmost window when omitted)", Required: false},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				elems, err := driver.Elements(ctx, tools.StringArg(args, "window_title"))
				if err != nil {
					return nil, err
				}
				var clickable []map[string]any
				for _, e := range elems {
					if e.Clickable {
						clickable = append(clickable, elementMap(e))
					}
				}
				return map[string]any{"elements": clickable, "count": len(clickable)}, nil
			},
		},
		{
			spec: tools.Spec{
				Name:        "inspect_window_hierarchy",
				Description: "Report a window's geometry and the GUI elements the accessibility layer exposes.",
				Params: []tools.Param{
					{Name: "window_title", Type: tools.TypeString, Description: "Window title substring (frontmost window when omitted)", Required: false},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return windowHierarchy(ctx, driver, tools.StringArg(args, "window_title"))
			},
		},
		{
			spec: tools.Spec{
				Name:        "capture_window_state",
				Description: "Capture a window's current state: geometry, elements and screen resolution.",
				Params: []tools.Param{
					{Name: "window_title", Type: tools.TypeString, Description: "Window title substring (frontmost window when omitted)", Required: false},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				state, err := windowHierarchy(ctx, driver, tools.StringArg(args, "window_title"))
				if err != nil {
					return nil, err
				}
				if w, h, err := driver.ScreenSize(ctx); err == nil {
					state["screen_width"] = w
					state["screen_height"] = h
				}
				state["captured_at"] = time.Now().Format(time.RFC3339)
				return state, nil
			},
		},
		{
			spec: tools.Spec{
				Name:        "get_element_at_coordinates",
				Description: "Report the GUI element under the given screen coordinates.",
				Params: []tools.Param{
					{Name: "x", Type: tools.TypeInteger, Description: "Screen X coordinate", Required: true},
					{Name: "y", Type: tools.TypeInteger, Description: "Screen Y coordinate", Required: true},
				},
			},
			exec: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				elem, err := driver.ElementAt(ctx, int(tools.IntArg(args, "x", 0)), int(tools.IntArg(args, "y", 0)))
				if err != nil {
					return nil, err
				}
				if elem == nil {
					return map[string]any{"found": false}, nil
				}
				out := elementMap(*elem)
				out["found"] = true
				return out, nil
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

// windowHierarchy locates the target window and attaches its accessibility
// elements. Drivers without accessibility support degrade to geometry plus a
// note rather than failing the whole inspection.
func windowHierarchy(ctx context.Context, driver Driver, title string) (map[string]any, error) {
	window, err := findWindow(ctx, driver, title)
	if err != nil {
		return nil, err
	}

	out := map[string]any{"window": windowMap(window)}
	elems, err := driver.Elements(ctx, window.Title)
	if err != nil {
		out["note"] = err.Error()
		return out, nil
	}

	mapped := make([]map[string]any, 0, len(elems))
	for _, e := range elems {
		mapped = append(mapped, elementMap(e))
	}
	out["elements"] = mapped
	out["element_count"] = len(mapped)
	return out, nil
}

func findWindow(ctx context.Context, driver Driver, title string) (WindowInfo, error) {
	windows, err := driver.ListWindows(ctx)
	if err != nil {
		return WindowInfo{}, err
	}

	if title == "" {
		for _, w := range windows {
			if w.Active {
				return w, nil
			}
		}
		return WindowInfo{}, fmt.Errorf("no active window found")
	}

	pattern := strings.ToLower(title)
	for _, w := range windows {
		if strings.Contains(strings.ToLower(w.Title), pattern) {
			return w, nil
		}
	}
	return WindowInfo{}, fmt.Errorf("window not found: %s", title)
}

func windowMap(w WindowInfo) map[string]any {
	return map[string]any{
		"title": w.Title, "x": w.X, "y": w.Y,
		"width": w.Width, "height": w.Height, "active": w.Active,
	}
}

func elementMap(e ElementInfo) map[string]any {
	return map[string]any{
		"role": e.Role, "title": e.Title, "x": e.X, "y": e.Y,
		"width": e.Width, "height": e.Height, "clickable": e.Clickable,
	}
}
