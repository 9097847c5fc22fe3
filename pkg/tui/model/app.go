package model

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/pricewatch/pkg/core"
	"github.com/modoterra/pricewatch/pkg/transport/uds"
)

// maxLogLines bounds the lines kept for the log pane.
const maxLogLines = 500

// eventBuffer is how many socket events may wait for the UI loop.
const eventBuffer = 256

// Pane identifies which TUI pane is focused.
type Pane int

const (
	PaneWorkers Pane = iota
	PaneDetail
	PaneLogs
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeFilter
	ModeImport
)

// App is the root Bubble Tea model.
type App struct {
	// Connection
	client     *uds.Client
	events     chan uds.Message
	socketPath string
	connected  bool

	// State
	workers     []core.Worker
	selectedIdx int
	logLines    []core.LogLine // oldest first
	logPaused   bool

	// UI
	activePane Pane
	mode       Mode
	filter     textinput.Model
	width      int
	height     int

	prompt *ImportPrompt

	statusMsg string
}

// New creates a new TUI app model.
func New(socketPath string) App {
	fi := textinput.New()
	fi.Placeholder = "filter log..."
	fi.CharLimit = 64

	return App{
		socketPath: socketPath,
		filter:     fi,
		activePane: PaneWorkers,
		mode:       ModeNormal,
	}
}

// Init connects to the daemon.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(a.socketPath),
		tea.SetWindowTitle("pricewatch"),
	)
}

// tickMsg triggers periodic refresh.
type tickMsg time.Time

// connectedMsg indicates successful daemon connection.
type connectedMsg struct {
	client *uds.Client
	events chan uds.Message
}

// disconnectedMsg reports that the daemon closed the connection.
type disconnectedMsg struct{}

// workersMsg carries the worker list from the daemon.
type workersMsg struct{ workers []core.Worker }

// logHistoryMsg carries the ring contents, most recent first.
type logHistoryMsg struct{ lines []core.LogLine }

// logLineMsg carries a log line pushed by the daemon.
type logLineMsg core.LogLine

// eventMsg is any other socket event.
type eventMsg uds.Message

// errorMsg carries an error to display.
type errorMsg struct{ err error }

// actionResultMsg carries the result of an action.
type actionResultMsg struct{ msg string }

func connectCmd(socketPath string) tea.Cmd {
	return func() tea.Msg {
		client, err := uds.Dial(socketPath)
		if err != nil {
			return errorMsg{err}
		}
		events := make(chan uds.Message, eventBuffer)
		client.OnEvent(func(m uds.Message) {
			select {
			case events <- m:
			default: // UI is behind; the next history fetch catches up
			}
		})
		return connectedMsg{client: client, events: events}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitEventCmd delivers the next socket event, or disconnectedMsg once the
// connection is gone.
func waitEventCmd(client *uds.Client, events <-chan uds.Message) tea.Cmd {
	return func() tea.Msg {
		select {
		case m := <-events:
			if m.Method == uds.EventLogsLine {
				var line core.LogLine
				if err := m.UnmarshalData(&line); err != nil {
					return errorMsg{err}
				}
				return logLineMsg(line)
			}
			return eventMsg(m)
		case <-client.Done():
			return disconnectedMsg{}
		}
	}
}

func fetchWorkersCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		var workers []core.Worker
		if err := client.Call(ctx, uds.MethodWorkers, nil, &workers); err != nil {
			return errorMsg{err}
		}
		sortWorkers(workers)
		return workersMsg{workers}
	}
}

func fetchLogCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		var lines []core.LogLine
		if err := client.Call(ctx, uds.MethodLogEntries, nil, &lines); err != nil {
			return errorMsg{err}
		}
		return logHistoryMsg{lines}
	}
}

// callCmd sends method and reports done on success.
func callCmd(client *uds.Client, method string, data any, done string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Call(ctx, method, data, nil); err != nil {
			return errorMsg{err}
		}
		return actionResultMsg{msg: done}
	}
}

func importCmd(client *uds.Client, link string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var resp uds.RunImportResponse
		if err := client.Call(ctx, uds.MethodRunImport, uds.RunImportRequest{Link: link}, &resp); err != nil {
			return errorMsg{err}
		}
		return actionResultMsg{msg: resp.Message + " (" + resp.ID + ")"}
	}
}

// sortWorkers puts the main worker first, then imports newest first.
func sortWorkers(workers []core.Worker) {
	sort.SliceStable(workers, func(i, j int) bool {
		if workers[i].Kind != workers[j].Kind {
			return workers[i].Kind == core.KindMain
		}
		return workers[i].StartedAt.After(workers[j].StartedAt)
	})
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case connectedMsg:
		if a.client != nil {
			msg.client.Close()
			return a, nil
		}
		a.client = msg.client
		a.events = msg.events
		a.connected = true
		a.statusMsg = "connected"
		return a, tea.Batch(
			tickCmd(),
			fetchWorkersCmd(a.client),
			fetchLogCmd(a.client),
			waitEventCmd(a.client, a.events),
		)

	case disconnectedMsg:
		a.client = nil
		a.events = nil
		a.connected = false
		a.statusMsg = "daemon disconnected, retrying"
		return a, nil

	case tickMsg:
		if a.client != nil {
			return a, tea.Batch(tickCmd(), fetchWorkersCmd(a.client))
		}
		return a, tea.Batch(tickCmd(), connectCmd(a.socketPath))

	case workersMsg:
		a.workers = msg.workers
		if a.selectedIdx >= len(a.workers) {
			a.selectedIdx = max(0, len(a.workers)-1)
		}
		return a, nil

	case logHistoryMsg:
		lines := make([]core.LogLine, 0, min(len(msg.lines), maxLogLines))
		for i := min(len(msg.lines), maxLogLines) - 1; i >= 0; i-- {
			lines = append(lines, msg.lines[i])
		}
		a.logLines = lines
		return a, nil

	case logLineMsg:
		if !a.logPaused {
			a.logLines = append(a.logLines, core.LogLine(msg))
			if len(a.logLines) > maxLogLines {
				a.logLines = a.logLines[len(a.logLines)-maxLogLines:]
			}
		}
		return a, a.nextEvent()

	case eventMsg:
		return a, a.nextEvent()

	case actionResultMsg:
		a.statusMsg = msg.msg
		return a, nil

	case errorMsg:
		a.statusMsg = "error: " + errorText(msg.err)
		if a.client == nil {
			a.connected = false
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a App) nextEvent() tea.Cmd {
	if a.client == nil {
		return nil
	}
	return waitEventCmd(a.client, a.events)
}

func errorText(err error) string {
	var remote *uds.RemoteError
	if errors.As(err, &remote) {
		return remote.Msg
	}
	return err.Error()
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.mode == ModeFilter {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.filter.SetValue("")
			a.filter.Blur()
			return a, nil
		case "enter":
			a.mode = ModeNormal
			a.filter.Blur()
			return a, nil
		default:
			var cmd tea.Cmd
			a.filter, cmd = a.filter.Update(msg)
			return a, cmd
		}
	}

	if a.mode == ModeImport && a.prompt != nil {
		return a.prompt.HandleKey(a, msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "j", "down":
		if a.activePane == PaneWorkers && len(a.workers) > 0 {
			a.selectedIdx = min(a.selectedIdx+1, len(a.workers)-1)
		}
	case "k", "up":
		if a.activePane == PaneWorkers && a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "tab":
		a.activePane = (a.activePane + 1) % 3

	case "l":
		a.activePane = PaneLogs

	case " ":
		a.logPaused = !a.logPaused
		if !a.logPaused && a.client != nil {
			return a, fetchLogCmd(a.client)
		}

	case "/":
		a.mode = ModeFilter
		a.filter.Focus()
		return a, textinput.Blink

	case "i":
		a.prompt = NewImportPrompt()
		a.mode = ModeImport
		return a, textinput.Blink

	case "t":
		return a.call(uds.MethodStartMain, nil, "main worker started")
	case "s":
		return a.call(uds.MethodStopMain, nil, "main worker stopped")
	case "x":
		w := a.selectedWorker()
		if w == nil {
			return a, nil
		}
		return a.call(uds.MethodCancelWorker, uds.CancelWorkerRequest{ID: w.ID}, "canceled "+w.ID)
	}

	return a, nil
}

func (a App) call(method string, data any, done string) (tea.Model, tea.Cmd) {
	if a.client == nil {
		a.statusMsg = "not connected"
		return a, nil
	}
	return a, callCmd(a.client, method, data, done)
}

// visibleLogs returns the lines matching the filter, most recent first.
func (a App) visibleLogs() []core.LogLine {
	q := strings.ToLower(a.filter.Value())
	out := make([]core.LogLine, 0, len(a.logLines))
	for i := len(a.logLines) - 1; i >= 0; i-- {
		l := a.logLines[i]
		if q != "" &&
			!strings.Contains(strings.ToLower(l.Line), q) &&
			!strings.Contains(strings.ToLower(l.WorkerID), q) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (a App) selectedWorker() *core.Worker {
	if a.selectedIdx < len(a.workers) {
		return &a.workers[a.selectedIdx]
	}
	return nil
}
