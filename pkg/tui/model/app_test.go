package model

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/pricewatch/pkg/core"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, a App, msg tea.Msg) App {
	t.Helper()
	m, _ := a.Update(msg)
	return m.(App)
}

func line(n int) core.LogLine {
	return core.LogLine{
		Time:     time.Date(2024, 1, 2, 3, 4, n%60, 0, time.UTC),
		WorkerID: "main:scraper",
		Stream:   core.StreamStdout,
		Line:     fmt.Sprintf("line %d", n),
	}
}

func TestLogHistoryMostRecentFirst(t *testing.T) {
	a := New("/nonexistent.sock")
	// LogEntries returns most recent first.
	a = update(t, a, logHistoryMsg{lines: []core.LogLine{line(3), line(2), line(1)}})
	a = update(t, a, logLineMsg(line(4)))

	got := a.visibleLogs()
	want := []string{"line 4", "line 3", "line 2", "line 1"}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Line != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i].Line, want[i])
		}
	}
}

func TestLogLinesBounded(t *testing.T) {
	a := New("/nonexistent.sock")
	for i := range maxLogLines + 10 {
		a = update(t, a, logLineMsg(line(i)))
	}
	if len(a.logLines) != maxLogLines {
		t.Fatalf("kept %d lines, want %d", len(a.logLines), maxLogLines)
	}
	if a.logLines[0].Line != "line 10" {
		t.Errorf("oldest = %q, want line 10", a.logLines[0].Line)
	}
}

func TestPauseDropsLiveLines(t *testing.T) {
	a := New("/nonexistent.sock")
	a = update(t, a, key(" "))
	if !a.logPaused {
		t.Fatal("space should pause the log")
	}
	a = update(t, a, logLineMsg(line(1)))
	if len(a.logLines) != 0 {
		t.Errorf("paused log received %d lines", len(a.logLines))
	}
}

func TestFilter(t *testing.T) {
	a := New("/nonexistent.sock")
	a = update(t, a, logLineMsg(core.LogLine{WorkerID: "main:scraper", Line: "price updated"}))
	a = update(t, a, logLineMsg(core.LogLine{WorkerID: "import:abc", Line: "product imported"}))

	a = update(t, a, key("/"))
	if a.mode != ModeFilter {
		t.Fatal("/ should enter filter mode")
	}
	a = update(t, a, key("import"))
	a = update(t, a, key("enter"))

	got := a.visibleLogs()
	if len(got) != 1 || got[0].WorkerID != "import:abc" {
		t.Errorf("filtered = %+v", got)
	}

	a = update(t, a, key("/"))
	a = update(t, a, key("esc"))
	if n := len(a.visibleLogs()); n != 2 {
		t.Errorf("after esc got %d lines, want 2", n)
	}
}

func TestImportPromptValidation(t *testing.T) {
	a := New("/nonexistent.sock")
	a = update(t, a, key("i"))
	if a.mode != ModeImport || a.prompt == nil {
		t.Fatal("i should open the import prompt")
	}

	a = update(t, a, key("ftp://example.com"))
	a = update(t, a, key("enter"))
	if a.mode != ModeImport {
		t.Fatal("invalid link should keep the prompt open")
	}
	if a.prompt.err == "" {
		t.Error("invalid link should show an error")
	}

	a = update(t, a, key("esc"))
	a = update(t, a, key("i"))
	a = update(t, a, key("https://shop.example.com/p/1"))
	a = update(t, a, key("enter"))
	if a.mode != ModeNormal || a.prompt != nil {
		t.Fatal("valid link should close the prompt")
	}
	if a.statusMsg != "not connected" {
		t.Errorf("status = %q, want not connected", a.statusMsg)
	}
}

func TestActionsNeedConnection(t *testing.T) {
	for _, k := range []string{"t", "s"} {
		a := update(t, New("/nonexistent.sock"), key(k))
		if a.statusMsg != "not connected" {
			t.Errorf("%s: status = %q", k, a.statusMsg)
		}
	}
}

func TestWorkersClampSelection(t *testing.T) {
	a := New("/nonexistent.sock")
	a = update(t, a, workersMsg{workers: []core.Worker{{ID: "main:scraper"}, {ID: "import:a"}, {ID: "import:b"}}})
	a = update(t, a, key("j"))
	a = update(t, a, key("j"))
	a = update(t, a, key("j"))
	if a.selectedIdx != 2 {
		t.Fatalf("selected = %d, want 2", a.selectedIdx)
	}
	a = update(t, a, workersMsg{workers: []core.Worker{{ID: "main:scraper"}}})
	if a.selectedIdx != 0 {
		t.Errorf("selected = %d after shrink, want 0", a.selectedIdx)
	}
}

func TestSortWorkers(t *testing.T) {
	now := time.Now()
	workers := []core.Worker{
		{ID: "import:old", Kind: core.KindImport, StartedAt: now.Add(-time.Hour)},
		{ID: "import:new", Kind: core.KindImport, StartedAt: now},
		{ID: "main:scraper", Kind: core.KindMain, StartedAt: now.Add(-2 * time.Hour)},
	}
	sortWorkers(workers)
	var ids []string
	for _, w := range workers {
		ids = append(ids, w.ID)
	}
	if got := strings.Join(ids, ","); got != "main:scraper,import:new,import:old" {
		t.Errorf("order = %s", got)
	}
}

func TestViewRenders(t *testing.T) {
	a := New("/nonexistent.sock")
	if a.View() != "loading..." {
		t.Fatal("view before size should be loading")
	}
	code := 1
	a = update(t, a, tea.WindowSizeMsg{Width: 120, Height: 40})
	a = update(t, a, workersMsg{workers: []core.Worker{{ID: "main:scraper", Kind: core.KindMain, Status: core.StatusCoolingDown, ExitCode: &code}}})
	a = update(t, a, logLineMsg(core.LogLine{Stream: core.StreamStderr, Line: "boom"}))

	view := a.View()
	for _, want := range []string{"Workers", "main:scraper", "cooling-down", "boom"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestDetailPane(t *testing.T) {
	code := 3
	a := New("/nonexistent.sock")
	a = update(t, a, workersMsg{workers: []core.Worker{{
		ID:       "main:scraper",
		Kind:     core.KindMain,
		Status:   core.StatusExited,
		PID:      4242,
		Args:     []string{"main.py", "config.json", "scrape"},
		ExitCode: &code,
		Restarts: 2,
	}}})

	detail := a.renderDetail(80, 20)
	for _, want := range []string{"main:scraper", "Status:   exited", "4242", "main.py config.json scrape", "Exit:     3", "Restarts: 2"} {
		if !strings.Contains(detail, want) {
			t.Errorf("detail missing %q:\n%s", want, detail)
		}
	}
}
