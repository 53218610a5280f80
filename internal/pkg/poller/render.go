package poller

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// TextRenderer writes each snapshot as a short block of plain text.
type TextRenderer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) Render(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.w, Format(s))
}

// Format renders a snapshot. Appliances are numbered from 1 so they can be
// toggled by index.
func Format(s Snapshot) string {
	var b strings.Builder
	b.WriteString("\n")
	if !s.IsOnline {
		b.WriteString("!! disconnected from control service\n")
	}
	if len(s.Appliances) == 0 {
		if s.IsLoading {
			b.WriteString("loading...\n")
		} else {
			b.WriteString("no appliances, press r to retry\n")
		}
	}
	for i, a := range s.Appliances {
		fmt.Fprintf(&b, "%d) %-6s %s\n", i+1, a.Name, strings.ToUpper(a.State.String()))
	}

	status := "idle"
	if s.IsLoading {
		status = "refreshing"
	}
	last := "never"
	if !s.LastUpdate.IsZero() {
		last = s.LastUpdate.Format(time.TimeOnly)
	}
	fmt.Fprintf(&b, "[%s] last update %s\n", status, last)
	return b.String()
}
