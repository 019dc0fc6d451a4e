package ui

import (
	"fmt"
	"io"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerTick = 80 * time.Millisecond

// Wait shows a spinner with msg on w while fn runs and returns fn's error.
func Wait(w io.Writer, msg string, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	ticker := time.NewTicker(spinnerTick)
	defer ticker.Stop()
	for i := 0; ; i++ {
		fmt.Fprintf(w, "\r%s  %s", StyleChain.Render(spinnerFrames[i%len(spinnerFrames)]), msg)
		select {
		case err := <-done:
			fmt.Fprintf(w, "\r%-*s\r", len(msg)+4, "")
			return err
		case <-ticker.C:
		}
	}
}
