package ui

import (
	"github.com/LosAICode/neurogen-client/internal/track"
)

// updateMsg carries one accepted session change into the Elm loop.
type updateMsg track.Update

// terminalMsg carries the single terminal notice for the tracked task.
type terminalMsg track.TerminalNotice

// cancelResultMsg reports the outcome of a cancellation request made from the
// watch view.
type cancelResultMsg struct {
	err error
}
