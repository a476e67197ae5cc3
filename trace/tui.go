package trace

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// TUI is the text console's full-screen view: a register panel, a
// disassembly/execution log, and a command line, wired to a Console.
type TUI struct {
	Console *Console
	App     *tview.Application
	Pages   *tview.Pages

	MainLayout *tview.Flex

	RegisterView *tview.TextView
	LogView      *tview.TextView
	OutputView   *tview.TextView
	CommandInput *tview.InputField
}

// NewTUI builds a TUI bound to console.
func NewTUI(console *Console) *TUI {
	t := &TUI{
		Console: console,
		App:     tview.NewApplication(),
	}
	t.initializeViews()
	t.buildLayout()
	t.setupKeyBindings()
	return t
}

func (t *TUI) initializeViews() {
	t.RegisterView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	t.RegisterView.SetBorder(true).SetTitle(" Registers ")

	t.LogView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	t.LogView.SetBorder(true).SetTitle(" Execution Log ")

	t.OutputView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	t.OutputView.SetBorder(true).SetTitle(" Output ")

	t.CommandInput = tview.NewInputField().
		SetLabel("> ").
		SetFieldWidth(0)
	t.CommandInput.SetBorder(true).SetTitle(" Command ")
	t.CommandInput.SetDoneFunc(t.handleCommand)
}

func (t *TUI) buildLayout() {
	top := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(t.RegisterView, 0, 1, false).
		AddItem(t.LogView, 0, 2, false)

	t.MainLayout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(top, 0, 3, false).
		AddItem(t.OutputView, 8, 0, false).
		AddItem(t.CommandInput, 3, 0, true)

	t.Pages = tview.NewPages().
		AddPage("main", t.MainLayout, true, true)
}

func (t *TUI) setupKeyBindings() {
	t.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			t.App.Stop()
			return nil
		case tcell.KeyCtrlL:
			t.RefreshAll()
			return nil
		}
		return event
	})
}

func (t *TUI) handleCommand(key tcell.Key) {
	if key != tcell.KeyEnter {
		return
	}
	cmd := t.CommandInput.GetText()
	if cmd == "" {
		return
	}
	t.executeCommand(cmd)
	t.CommandInput.SetText("")
}

func (t *TUI) executeCommand(cmd string) {
	err := t.Console.ExecuteCommand(cmd)
	output := t.Console.GetOutput()
	if err != nil {
		t.WriteOutput(fmt.Sprintf("[red]Error:[white] %v\n", err))
	}
	if output != "" {
		t.WriteOutput(output)
	}
	t.RefreshAll()
}

// WriteOutput appends text to the output view.
func (t *TUI) WriteOutput(text string) {
	_, _ = t.OutputView.Write([]byte(text))
	t.OutputView.ScrollToEnd()
}

// RefreshAll redraws every panel from the console's current state.
func (t *TUI) RefreshAll() {
	t.UpdateRegisterView()
	t.UpdateLogView()
	t.App.Draw()
}

func (t *TUI) UpdateRegisterView() {
	t.RegisterView.Clear()
	var lines []string
	for _, ref := range t.Console.registerRefs() {
		value, err := t.Console.Harness.Read(ref)
		if err != nil {
			lines = append(lines, fmt.Sprintf("[red]%s: <error>[white]", ref))
			continue
		}
		lines = append(lines, fmt.Sprintf("%-20s 0x%X", ref, value))
	}
	t.RegisterView.SetText(strings.Join(lines, "\n"))
}

func (t *TUI) UpdateLogView() {
	t.LogView.Clear()
	var lines []string
	for _, exec := range t.Console.LastExecuted {
		lines = append(lines, fmt.Sprintf("0x%08X: %s", exec.Address, exec.Mnemonic))
	}
	if t.Console.LastError != nil {
		lines = append(lines, fmt.Sprintf("[red]error: %v[white]", t.Console.LastError))
	}
	t.LogView.SetText(strings.Join(lines, "\n"))
}

// Run starts the TUI's event loop.
func (t *TUI) Run() error {
	t.RefreshAll()
	t.WriteOutput("[green]isaforge trace console[white]\n")
	t.WriteOutput("Type 'help' for a command list\n\n")
	return t.App.SetRoot(t.Pages, true).SetFocus(t.CommandInput).Run()
}

// Stop ends the TUI's event loop.
func (t *TUI) Stop() {
	t.App.Stop()
}
