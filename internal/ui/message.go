package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/iasync/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgBatchEvent MsgKind = iota
	MsgStreamClosed
)

// batchEventMsg is the constructor for [MsgBatchEvent]
func batchEventMsg(ev tasks.Event) Msg {
	return Msg{kind: MsgBatchEvent, data: ev}
}

// streamClosedMsg is the constructor for [MsgStreamClosed]
func streamClosedMsg() Msg {
	return Msg{kind: MsgStreamClosed}
}
