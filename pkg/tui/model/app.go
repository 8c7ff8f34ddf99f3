package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jasonish/meerkat-desktop/pkg/core"
	"github.com/jasonish/meerkat-desktop/pkg/transport/uds"
)

const maxOutputLines = 1000

// Pane identifies which TUI pane is focused.
type Pane int

const (
	PaneList Pane = iota
	PaneDetail
	PaneOutput
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
	ModeConfirmQuit
)

// App is the root Bubble Tea model.
type App struct {
	// Connection
	client     *uds.Client
	socketPath string
	connected  bool
	events     chan uds.Message

	// State
	items        []core.Item
	selectedIdx  int
	output       []core.OutputLine
	outputPaused bool
	tail         uds.TailStatusResponse
	alerts       uint64

	// UI
	activePane Pane
	mode       Mode
	search     textinput.Model
	outputView viewport.Model
	width      int
	height     int

	statusMsg string
}

// New creates a new TUI app model.
func New(socketPath string) App {
	si := textinput.New()
	si.Placeholder = "search..."
	si.CharLimit = 64

	return App{
		socketPath: socketPath,
		search:     si,
		outputView: viewport.New(0, 0),
		activePane: PaneList,
		mode:       ModeNormal,
	}
}

// Init connects to the daemon.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(a.socketPath),
		tea.SetWindowTitle("Meerkat"),
	)
}

// tickMsg triggers periodic refresh.
type tickMsg time.Time

// connectedMsg indicates successful daemon connection.
type connectedMsg struct {
	client *uds.Client
	events chan uds.Message
}

// itemsMsg carries updated items from daemon.
type itemsMsg struct{ items []core.Item }

// tailStatusMsg carries the tailer state.
type tailStatusMsg uds.TailStatusResponse

// eventMsg wraps one event pushed by the daemon.
type eventMsg uds.Message

// disconnectedMsg reports that the daemon went away.
type disconnectedMsg struct{}

// errorMsg carries an error to display.
type errorMsg struct{ err error }

// actionResultMsg carries the result of an action.
type actionResultMsg struct{ msg string }

// reapedMsg is sent once the daemon has reaped every process.
type reapedMsg struct{ resp uds.ReapResponse }

func connectCmd(socketPath string) tea.Cmd {
	return func() tea.Msg {
		client, err := uds.Dial(socketPath)
		if err != nil {
			return errorMsg{err}
		}
		events := make(chan uds.Message, 256)
		client.OnEvent(func(m uds.Message) {
			select {
			case events <- m:
			default:
			}
		})
		return connectedMsg{client: client, events: events}
	}
}

// waitEventCmd delivers the next daemon event. It is re-issued after every
// event so exactly one reader is pending.
func waitEventCmd(client *uds.Client, events <-chan uds.Message) tea.Cmd {
	return func() tea.Msg {
		select {
		case m := <-events:
			return eventMsg(m)
		case <-client.Done():
			return disconnectedMsg{}
		}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchItemsCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		var items []core.Item
		if err := client.Call(ctx, uds.MethodListItems, nil, &items); err != nil {
			return errorMsg{err}
		}
		return itemsMsg{items}
	}
}

func fetchTailCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		var st uds.TailStatusResponse
		if err := client.Call(ctx, uds.MethodTailStatus, nil, &st); err != nil {
			return errorMsg{err}
		}
		return tailStatusMsg(st)
	}
}

func actionCmd(client *uds.Client, item core.Item, action string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := client.Call(ctx, uds.MethodAction, uds.ActionRequest{
			ItemID: item.ID,
			Action: action,
		}, nil)
		if err != nil {
			return errorMsg{err}
		}
		return actionResultMsg{msg: action + " → " + item.Name}
	}
}

func toggleTailCmd(client *uds.Client, running bool) tea.Cmd {
	method := uds.MethodTailStart
	if running {
		method = uds.MethodTailStop
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var st uds.TailStatusResponse
		if err := client.Call(ctx, method, nil, &st); err != nil {
			return errorMsg{err}
		}
		return tailStatusMsg(st)
	}
}

func reapCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var resp uds.ReapResponse
		if err := client.Call(ctx, uds.MethodReap, nil, &resp); err != nil {
			return errorMsg{err}
		}
		return reapedMsg{resp}
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.outputView.Width, a.outputView.Height = a.outputSize()
		a.refreshOutput()
		return a, nil

	case connectedMsg:
		a.client = msg.client
		a.events = msg.events
		a.connected = true
		a.statusMsg = "connected"
		return a, tea.Batch(
			tickCmd(),
			fetchItemsCmd(a.client),
			fetchTailCmd(a.client),
			waitEventCmd(a.client, a.events),
		)

	case disconnectedMsg:
		a.connected = false
		a.statusMsg = "daemon disconnected"
		return a, nil

	case tickMsg:
		if a.client != nil && a.connected {
			return a, tea.Batch(tickCmd(), fetchItemsCmd(a.client), fetchTailCmd(a.client))
		}
		return a, tickCmd()

	case itemsMsg:
		a.items = msg.items
		if a.selectedIdx >= len(a.items) {
			a.selectedIdx = max(0, len(a.items)-1)
		}
		return a, nil

	case tailStatusMsg:
		a.tail = uds.TailStatusResponse(msg)
		return a, nil

	case eventMsg:
		a.handleEvent(uds.Message(msg))
		return a, waitEventCmd(a.client, a.events)

	case actionResultMsg:
		a.statusMsg = msg.msg
		return a, fetchItemsCmd(a.client)

	case reapedMsg:
		return a, tea.Quit

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		if a.mode == ModeConfirmQuit {
			return a, tea.Quit
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a *App) handleEvent(m uds.Message) {
	switch m.Method {
	case uds.EventProcessOutput:
		var line core.OutputLine
		if err := json.Unmarshal(m.Data, &line); err != nil {
			return
		}
		a.appendOutput(line)
	case uds.EventTail:
		var rec struct {
			EventType string `json:"event_type"`
			SrcIP     string `json:"src_ip"`
			DestIP    string `json:"dest_ip"`
			Alert     struct {
				Signature string `json:"signature"`
			} `json:"alert"`
		}
		if err := json.Unmarshal(m.Data, &rec); err != nil || rec.EventType != "alert" {
			return
		}
		a.alerts++
		a.appendOutput(core.OutputLine{
			Slot: "eve",
			Type: core.ChannelInfo,
			Line: fmt.Sprintf("alert %s → %s %s", rec.SrcIP, rec.DestIP, rec.Alert.Signature),
		})
	}
}

func (a *App) appendOutput(line core.OutputLine) {
	if a.outputPaused {
		return
	}
	a.output = append(a.output, line)
	if len(a.output) > maxOutputLines {
		a.output = a.output[len(a.output)-maxOutputLines:]
	}
	a.refreshOutput()
}

func (a *App) refreshOutput() {
	w := a.outputView.Width
	lines := make([]string, len(a.output))
	for i, l := range a.output {
		lines[i] = renderOutputLine(l, w)
	}
	a.outputView.SetContent(strings.Join(lines, "\n"))
	a.outputView.GotoBottom()
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.mode == ModeSearch {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.search.SetValue("")
			a.search.Blur()
			return a, nil
		case "enter":
			a.mode = ModeNormal
			a.search.Blur()
			return a, nil
		default:
			var cmd tea.Cmd
			a.search, cmd = a.search.Update(msg)
			return a, cmd
		}
	}

	if a.mode == ModeConfirmQuit {
		switch msg.String() {
		case "y", "Y":
			if a.client == nil || !a.connected {
				return a, tea.Quit
			}
			a.statusMsg = "stopping everything..."
			return a, reapCmd(a.client)
		case "n", "N":
			// leave the daemon and its processes running
			return a, tea.Quit
		default:
			a.mode = ModeNormal
			a.statusMsg = "quit cancelled"
			return a, nil
		}
	}

	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit
	case "q":
		a.mode = ModeConfirmQuit
		a.statusMsg = "Stop Suricata and EveBox before quitting? (y/n, esc to cancel)"
		return a, nil

	case "j", "down":
		switch a.activePane {
		case PaneList:
			if len(a.items) > 0 {
				a.selectedIdx = min(a.selectedIdx+1, len(a.filteredItems())-1)
			}
		case PaneOutput:
			a.outputView.LineDown(1)
		}
	case "k", "up":
		switch a.activePane {
		case PaneList:
			if a.selectedIdx > 0 {
				a.selectedIdx--
			}
		case PaneOutput:
			a.outputView.LineUp(1)
		}

	case "tab":
		a.activePane = (a.activePane + 1) % 3

	case "/":
		a.mode = ModeSearch
		a.search.Focus()
		return a, textinput.Blink

	case "r":
		return a.doAction("restart")
	case "s":
		return a.doAction("stop")
	case "t":
		return a.doAction("start")
	case "X":
		return a.doAction("kill")

	case "f":
		if a.client != nil {
			return a, toggleTailCmd(a.client, a.tail.Running)
		}

	case "o":
		a.activePane = PaneOutput

	case "c":
		a.output = nil
		a.refreshOutput()

	case " ":
		if a.activePane == PaneOutput {
			a.outputPaused = !a.outputPaused
		}
	}

	return a, nil
}

func (a App) doAction(action string) (tea.Model, tea.Cmd) {
	item := a.selectedItem()
	if a.client == nil || item == nil {
		return a, nil
	}
	a.statusMsg = action + " " + item.Name + "..."
	return a, actionCmd(a.client, *item, action)
}

func (a App) filteredItems() []core.Item {
	q := strings.ToLower(a.search.Value())
	if q == "" {
		return a.items
	}
	var filtered []core.Item
	for _, item := range a.items {
		if strings.Contains(strings.ToLower(item.Name), q) ||
			strings.Contains(strings.ToLower(string(item.Kind)), q) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func (a App) selectedItem() *core.Item {
	items := a.filteredItems()
	if a.selectedIdx < len(items) {
		return &items[a.selectedIdx]
	}
	return nil
}
