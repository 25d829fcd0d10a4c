package desktop

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ExecDriver implements Driver by shelling out to xdotool and wmctrl, the
// common X11 automation pair. Accessibility inspection is not available
// through these tools, so Elements and ElementAt report unsupported.
type ExecDriver struct{}

// NewExecDriver creates a driver backed by xdotool/wmctrl.
func NewExecDriver() *ExecDriver { return &ExecDriver{} }

func run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (d *ExecDriver) ScreenSize(ctx context.Context) (int, int, error) {
	out, err := run(ctx, "xdotool", "getdisplaygeometry")
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected geometry output: %q", out)
	}
	w, _ := strconv.Atoi(fields[0])
	h, _ := strconv.Atoi(fields[1])
	return w, h, nil
}

func (d *ExecDriver) ListWindows(ctx context.Context) ([]WindowInfo, error) {
	out, err := run(ctx, "wmctrl", "-lG")
	if err != nil {
		return nil, err
	}

	active, _ := run(ctx, "xdotool", "getactivewindow", "getwindowname")

	var windows []WindowInfo
	for line := range strings.Lines(out) {
		// wmctrl -lG: id desktop x y w h host title...
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 8 {
			continue
		}
		x, _ := strconv.Atoi(fields[2])
		y, _ := strconv.Atoi(fields[3])
		w, _ := strconv.Atoi(fields[4])
		h, _ := strconv.Atoi(fields[5])
		title := strings.Join(fields[7:], " ")
		windows = append(windows, WindowInfo{
			Title: title, X: x, Y: y, Width: w, Height: h,
			Active: title != "" && title == active,
		})
	}
	return windows, nil
}

func (d *ExecDriver) ActivateWindow(ctx context.Context, title string) error {
	_, err := run(ctx, "wmctrl", "-a", title)
	return err
}

func (d *ExecDriver) Click(ctx context.Context, x, y int, button string) error {
	buttons := map[string]string{"left": "1", "middle": "2", "right": "3"}
	b, ok := buttons[button]
	if !ok {
		return fmt.Errorf("invalid button %q", button)
	}
	_, err := run(ctx, "xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y), "click", b)
	return err
}

func (d *ExecDriver) Drag(ctx context.Context, fromX, fromY, toX, toY int, button string) error {
	buttons := map[string]string{"left": "1", "middle": "2", "right": "3"}
	b, ok := buttons[button]
	if !ok {
		return fmt.Errorf("invalid button %q", button)
	}
	// One xdotool invocation chains the press, move and release.
	_, err := run(ctx, "xdotool",
		"mousemove", strconv.Itoa(fromX), strconv.Itoa(fromY),
		"mousedown", b,
		"mousemove", strconv.Itoa(toX), strconv.Itoa(toY),
		"mouseup", b)
	return err
}

func (d *ExecDriver) TypeText(ctx context.Context, text string, interval time.Duration) error {
	delay := strconv.Itoa(int(interval.Milliseconds()))
	_, err := run(ctx, "xdotool", "type", "--delay", delay, "--", text)
	return err
}

func (d *ExecDriver) PressKey(ctx context.Context, key string) error {
	_, err := run(ctx, "xdotool", "key", key)
	return err
}

func (d *ExecDriver) Screenshot(ctx context.Context, filename string) (string, error) {
	if filename == "" {
		filename = fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	}
	if _, err := run(ctx, "import", "-window", "root", filename); err != nil {
		return "", err
	}
	return filename, nil
}

func (d *ExecDriver) MousePosition(ctx context.Context) (int, int, error) {
	out, err := run(ctx, "xdotool", "getmouselocation")
	if err != nil {
		return 0, 0, err
	}
	// Output: x:512 y:384 screen:0 window:1234
	var x, y int
	for _, field := range strings.Fields(out) {
		if v, ok := strings.CutPrefix(field, "x:"); ok {
			x, _ = strconv.Atoi(v)
		}
		if v, ok := strings.CutPrefix(field, "y:"); ok {
			y, _ = strconv.Atoi(v)
		}
	}
	return x, y, nil
}

func (d *ExecDriver) Elements(ctx context.Context, windowTitle string) ([]ElementInfo, error) {
	return nil, fmt.Errorf("accessibility inspection is not supported by the xdotool driver")
}

func (d *ExecDriver) ElementAt(ctx context.Context, x, y int) (*ElementInfo, error) {
	return nil, fmt.Errorf("accessibility inspection is not supported by the xdotool driver")
}

var _ Driver = (*ExecDriver)(nil)
