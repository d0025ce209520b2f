package progress

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

var frames = []string{"|", "/", "-", `\`}

// Interval between spinner frames.
const Interval = 100 * time.Millisecond

// Spinner renders a processing indicator until its done flag is set.
type Spinner struct {
	w        io.Writer
	done     *atomic.Bool
	interval time.Duration
	finished chan struct{}
}

// Start spawns the spinner goroutine. The goroutine only reads done; the
// caller sets it once when the work is finished and then calls Wait.
func Start(w io.Writer, done *atomic.Bool) *Spinner {
	return StartWithInterval(w, done, Interval)
}

func StartWithInterval(w io.Writer, done *atomic.Bool, interval time.Duration) *Spinner {
	s := &Spinner{
		w:        w,
		done:     done,
		interval: interval,
		finished: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Spinner) run() {
	defer close(s.finished)

	spinner, err := pterm.DefaultSpinner.
		WithSequence(frames...).
		WithDelay(s.interval).
		WithWriter(s.w).
		Start("Processing")
	if err != nil {
		s.waitDone()
		pterm.Success.WithWriter(s.w).Println("Scan completed.")
		return
	}

	s.waitDone()
	spinner.Success("Scan completed.")
}

func (s *Spinner) waitDone() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for !s.done.Load() {
		<-ticker.C
	}
}

// Wait blocks until the completion line has been printed.
func (s *Spinner) Wait() {
	<-s.finished
}

// Summary prints the run counters below the spinner.
func Summary(w io.Writer, rows [][2]string) {
	pterm.Fprintln(w, pterm.DefaultSection.Sprint("Summary"))
	for _, row := range rows {
		pterm.Info.WithWriter(w).Printf("%s: %s\n", row[0], row[1])
	}
}
