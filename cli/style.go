package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// styles renders for one writer; colors are dropped when it is not a
// terminal.
type styles struct {
	ok     lipgloss.Style
	failed lipgloss.Style
	warn   lipgloss.Style
	detail lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		ok:     r.NewStyle().Foreground(lipgloss.Color("#5FD787")).Bold(true),
		failed: r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		warn:   r.NewStyle().Foreground(lipgloss.Color("#FFD75F")),
		detail: r.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true),
	}
}
