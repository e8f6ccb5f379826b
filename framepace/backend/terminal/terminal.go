package terminal

import (
	"fmt"
	"log/slog"

	"github.com/gdamore/tcell/v2"

	"github.com/valerio/go-framepace/framepace/backend"
	"github.com/valerio/go-framepace/framepace/backend/terminal/render"
	"github.com/valerio/go-framepace/framepace/timing"
)

const (
	minTermWidth  = 40
	minTermHeight = 12
	hudTop        = 1
	logBufferSize = 100
)

// Backend implements the Backend interface using tcell for terminal rendering.
// A terminal has no presentation fence, so each frame waits for the next
// refresh of a virtual display clocked at BackendConfig.RefreshHz.
type Backend struct {
	screen    tcell.Screen
	active    bool // screen initialised, not yet finalised
	running   bool
	config    backend.BackendConfig
	vblank    *backend.VBlank
	logBuffer *render.LogBuffer
	logLevel  slog.Level
	prevLog   *slog.Logger
}

type Options struct {
	// Screen defaults to the process terminal. It must not be initialised yet.
	Screen tcell.Screen
	// Logs, when set, is a buffer the caller already routes logs into. When
	// nil, Init installs a buffering default logger until Cleanup.
	Logs *render.LogBuffer
}

func New(opts Options) *Backend {
	return &Backend{
		screen:    opts.Screen,
		logBuffer: opts.Logs,
		logLevel:  slog.LevelInfo,
	}
}

func (t *Backend) Init(config backend.BackendConfig) error {
	t.config = config
	t.vblank = backend.NewVBlank(config.RefreshHz)

	if t.screen == nil {
		screen, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("failed to initialize terminal: %w", err)
		}
		t.screen = screen
	}
	if err := t.screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize terminal: %w", err)
	}
	t.active = true
	t.running = true

	// The screen owns the terminal, so logs go to the on-screen panel.
	if t.logBuffer == nil {
		t.logBuffer = render.NewLogBuffer(logBufferSize)
		t.prevLog = slog.Default()
		slog.SetDefault(slog.New(render.NewLogBufferHandler(t.logBuffer, slog.LevelDebug)))
	}

	t.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	t.screen.Clear()

	slog.Info("Terminal backend initialized", "refresh", t.vblank.Period())
	return nil
}

// Render draws the HUD and returns a wait for the next virtual refresh.
func (t *Backend) Render(frame backend.Frame) (timing.FenceWaitAction, error) {
	if !t.running {
		return nil, nil
	}

	for t.screen.HasPendingEvent() {
		switch ev := t.screen.PollEvent().(type) {
		case *tcell.EventKey:
			t.processKeyEvent(ev)
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
	if !t.running {
		return nil, nil
	}

	t.render(frame)
	t.screen.Show()
	return t.vblank.WaitAction(), nil
}

func (t *Backend) Cleanup() error {
	if t.active {
		t.screen.Fini()
		t.active = false
	}
	t.running = false
	if t.prevLog != nil {
		slog.SetDefault(t.prevLog)
		t.prevLog = nil
	}
	return nil
}

// Logs exposes the on-screen log panel contents.
func (t *Backend) Logs() *render.LogBuffer {
	return t.logBuffer
}

func (t *Backend) processKeyEvent(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		t.quit()
		return
	case tcell.KeyRune:
	default:
		return
	}

	switch ev.Rune() {
	case 'q', 'Q':
		t.quit()
	case '+', '=':
		t.changeLogLevel(1)
	case '-', '_':
		t.changeLogLevel(-1)
	}
}

func (t *Backend) quit() {
	t.running = false
	slog.Info("Quit requested from terminal")
	t.config.Callbacks.Quit()
}

// changeLogLevel moves the panel filter one level more (+1) or less (-1) verbose.
func (t *Backend) changeLogLevel(direction int) {
	oldLevel := t.logLevel
	switch direction {
	case -1:
		if t.logLevel < slog.LevelError {
			t.logLevel += 4
		}
	case 1:
		if t.logLevel > slog.LevelDebug {
			t.logLevel -= 4
		}
	}
	if oldLevel != t.logLevel {
		slog.Info("Log filter changed", "from", oldLevel, "to", t.logLevel)
	}
}

func (t *Backend) render(frame backend.Frame) {
	t.screen.Clear()
	termWidth, termHeight := t.screen.Size()
	if termWidth < minTermWidth || termHeight < minTermHeight {
		msg := fmt.Sprintf("Terminal too small! Need at least %dx%d", minTermWidth, minTermHeight)
		t.drawText(0, termHeight/2, termWidth, msg, tcell.StyleDefault.Foreground(tcell.ColorRed))
		return
	}

	titleStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	textStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite)
	barStyle := tcell.StyleDefault.Foreground(tcell.ColorGreen)

	title := " " + t.config.Title + " (q to quit, +/- log level) "
	t.drawText(1, 0, termWidth-2, title, titleStyle)

	y := hudTop
	for _, line := range render.StatsLines(frame.Number, frame.Stats) {
		t.drawText(1, y, termWidth-2, line, textStyle)
		y++
	}
	t.drawText(1, y, termWidth-2, render.ProgressBar(termWidth-2, frame.Number), barStyle)
	y += 2

	t.drawLogs(1, y, termWidth-2, termHeight)
}

func (t *Backend) drawLogs(startX, startY, width, termHeight int) {
	availableHeight := termHeight - startY
	if width <= 0 || availableHeight <= 0 {
		return
	}

	debugStyle := tcell.StyleDefault.Foreground(tcell.ColorGray)
	infoStyle := tcell.StyleDefault.Foreground(tcell.ColorBlue)
	warnStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	errStyle := tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)

	y := startY
	for _, entry := range t.logBuffer.GetRecent(0) {
		if y >= termHeight {
			break
		}
		if entry.Level < t.logLevel {
			continue
		}

		style := infoStyle
		switch {
		case entry.Level >= slog.LevelError:
			style = errStyle
		case entry.Level >= slog.LevelWarn:
			style = warnStyle
		case entry.Level < slog.LevelInfo:
			style = debugStyle
		}
		t.drawText(startX, y, width, render.FormatLogEntry(entry), style)
		y++
	}
}

// drawText writes text on row y, truncated to width cells.
func (t *Backend) drawText(x, y, width int, text string, style tcell.Style) {
	runes := []rune(text)
	if len(runes) > width {
		if width > 3 {
			runes = append(runes[:width-3], '.', '.', '.')
		} else if width > 0 {
			runes = runes[:width]
		} else {
			return
		}
	}
	for i, r := range runes {
		t.screen.SetContent(x+i, y, r, nil, style)
	}
}
