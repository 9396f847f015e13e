package chatnode

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// Printer is where user-facing output goes. Implementations must be safe
// for concurrent use; the command reader and Run both print.
type Printer interface {
	Printf(format string, args ...any)
	Println(args ...any)
}

// StdPrinter serializes writes to w and, unless color is on, strips ANSI
// color sequences so logs and pipes stay readable.
type StdPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func NewStdPrinter(w io.Writer, color bool) *StdPrinter {
	return &StdPrinter{w: w, color: color}
}

func (p *StdPrinter) Printf(format string, args ...any) {
	p.write(fmt.Sprintf(format, args...))
}

func (p *StdPrinter) Println(args ...any) {
	p.write(fmt.Sprintln(args...))
}

func (p *StdPrinter) write(s string) {
	if !p.color {
		s = ansi.Strip(s)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.w, s)
}
