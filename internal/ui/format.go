package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// padR pads s with spaces to n visible columns. Styled strings are measured
// without their escape codes.
func padR(s string, n int) string {
	w := lipgloss.Width(s)
	if w >= n {
		return s
	}
	return s + strings.Repeat(" ", n-w)
}

// TrimErr shortens a transport error for a table cell.
func TrimErr(s string) string {
	for _, prefix := range []string{
		"Post \"", "dial tcp", "connection refused", "context deadline",
	} {
		if idx := strings.Index(s, prefix); idx >= 0 {
			s = s[idx:]
			break
		}
	}
	if len(s) > 30 {
		return s[:30] + "…"
	}
	return s
}

// FormatGwei renders a gas price with precision matched to its size.
func FormatGwei(g float64) string {
	switch {
	case g == 0:
		return "0"
	case g < 0.001:
		return fmt.Sprintf("%.6f", g)
	case g < 1:
		return fmt.Sprintf("%.4f", g)
	case g < 100:
		return fmt.Sprintf("%.2f", g)
	default:
		return fmt.Sprintf("%.0f", g)
	}
}

// FormatLatency renders d in milliseconds.
func FormatLatency(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}
