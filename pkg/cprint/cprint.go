// Package cprint renders sync status events as colorized status lines. The
// core engine never prints; this is an optional observer applications can
// attach to a status stream.
package cprint

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/fatih/color"

	"github.com/kong/go-offline-sync/pkg/op"
)

var mu sync.Mutex

// DisableOutput, while true, silences the colorized output of every Printer.
// Printers in Plain mode are not affected.
var DisableOutput bool

var (
	syncingPrintln = color.New(color.FgYellow).PrintlnFunc()
	idlePrintln    = color.New(color.FgGreen).PrintlnFunc()
	errorPrintln   = color.New(color.FgRed).PrintlnFunc()
)

func conditionalPrintln(fn func(...interface{}), a ...interface{}) {
	if DisableOutput {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fn(a...)
}

// Printer renders SyncStatusEvents as status lines, colorized by default.
// Colorized lines are printed through fatih/color's color.Output; in Plain
// mode lines are written to the Printer's io.Writer.
type Printer struct {
	w     io.Writer
	plain bool
}

// NewPrinter builds a Printer whose Plain-mode lines go to w. w defaults to
// os.Stdout when nil. Colorized output does not use w.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w}
}

// Plain makes subsequent Render calls strip ANSI color codes before
// writing, for log sinks that can't render them.
func (p *Printer) Plain() *Printer {
	p.plain = true
	return p
}

// Render writes one status line for event.
func (p *Printer) Render(event op.SyncStatusEvent) {
	line := formatLine(event)
	if p.plain {
		line = stripansi.Strip(line)
		fmt.Fprintln(p.w, line)
		return
	}
	switch event.Status {
	case op.SyncingPhase:
		conditionalPrintln(syncingPrintln, line)
	case op.ErrorPhase:
		conditionalPrintln(errorPrintln, line)
	default:
		conditionalPrintln(idlePrintln, line)
	}
}

// Watch renders every event received on ch until it closes.
func (p *Printer) Watch(ch <-chan op.SyncStatusEvent) {
	for event := range ch {
		p.Render(event)
	}
}

func formatLine(event op.SyncStatusEvent) string {
	switch event.Status {
	case op.SyncingPhase:
		return fmt.Sprintf("syncing %d/%d", event.Completed, event.Total)
	case op.ErrorPhase:
		if event.Err != nil {
			return fmt.Sprintf("sync error: %v", event.Err)
		}
		return "sync error"
	default:
		return "idle"
	}
}
