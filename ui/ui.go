package ui

import (
	"fmt"

	termui "github.com/gizak/termui/v3"
	widgets "github.com/gizak/termui/v3/widgets"
)

// TrackInfo is one row of the monitor.
type TrackInfo struct {
	Idx     uint8
	Prog    uint8
	Vol     uint8
	Pan     int8
	Running bool
	Voices  int
	Error   string
}

// Snapshot is what the playback loop hands to the monitor each
// refresh. The UI never touches the generator itself.
type Snapshot struct {
	Title  string
	SongNo int
	Tempo  uint16
	Tick   uint64
	Time   string
	Ended  bool
	Tracks []TrackInfo
}

var headerStyle = termui.NewStyle(termui.ColorBlack, termui.ColorCyan)

func Init() error {
	return termui.Init()
}

func Close() {
	termui.Close()
}

// UpdateScreen redraws the whole monitor from the snapshot.
func UpdateScreen(s Snapshot) {
	width, height := termui.TerminalDimensions()

	header := widgets.NewParagraph()
	header.Border = false
	header.TextStyle = headerStyle
	status := "playing"
	if s.Ended {
		status = "ended"
	}
	header.Text = fmt.Sprintf(" %s | song %d | %d BPM | tick %d | %s | %s",
		s.Title, s.SongNo, s.Tempo, s.Tick, s.Time, status)
	header.SetRect(0, 0, width, 1)

	table := widgets.NewTable()
	table.Border = true
	table.Title = "Tracks"
	table.RowSeparator = false
	table.Rows = [][]string{
		{"#", "prog", "vol", "pan", "voices", "state"},
	}
	for _, t := range s.Tracks {
		state := "run"
		if !t.Running {
			state = "fine"
		}
		if t.Error != "" {
			state = "error"
		}
		table.Rows = append(table.Rows, []string{
			fmt.Sprintf("%d", t.Idx),
			fmt.Sprintf("%d", t.Prog),
			fmt.Sprintf("%d", t.Vol),
			fmt.Sprintf("%+d", t.Pan),
			meter(t.Voices),
			state,
		})
	}
	table.SetRect(0, 1, width, height-1)

	helpLine := widgets.NewParagraph()
	helpLine.Border = false
	helpLine.TextStyle = headerStyle
	helpLine.Text = " [q/ESC:](fg:black) Quit [|](fg:white,bg:black) [space:](fg:black) Pause "
	helpLine.SetRect(0, height-1, width, height)

	termui.Render(header, table, helpLine)
}

func meter(voices int) string {
	if voices > 8 {
		voices = 8
	}
	bar := ""
	for i := 0; i < voices; i++ {
		bar += "|"
	}
	return bar
}

/*
Returns an event id string for events the playback loop cares about
(quit, pause), empty string otherwise.
*/
func HandleEvent(ev termui.Event) string {
	switch ev.ID {
	case "q", "<Escape>", "<C-c>":
		return "quit"
	case "<Space>":
		return "pause"
	case "<Resize>":
		return "redraw"
	}
	return ""
}

// PollEvents exposes the termui event channel to the playback loop.
func PollEvents() <-chan termui.Event {
	return termui.PollEvents()
}
