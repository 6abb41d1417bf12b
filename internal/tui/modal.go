package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/naqsh/internal/shop"
)

// modal is a dialog layered over the order detail screen. Results of the
// requests a modal starts carry its order id; a result arriving after the
// modal closed is dropped.
type modal interface {
	// Title is shown in the dialog border.
	Title() string

	// OrderID identifies the order the dialog acts on.
	OrderID() int64

	// Busy reports whether a request is in flight.
	Busy() bool

	// Update handles a key press and may start a request.
	Update(msg tea.KeyMsg) tea.Cmd

	// View renders the dialog body.
	View(width int) string
}

// env is what dialogs need to talk to the API.
type env struct {
	svc     *shop.Service
	timeout time.Duration
}

func (e *env) context() (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), e.timeout)
}
