package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows "<prefix> (<phase> Ns)" on one line, counting down
// from duration, until Stop or a stop phase arrives via Callback.
//
// A ProgressPrinter is single-use.
type ProgressPrinter struct {
	out        io.Writer
	prefix     string
	duration   time.Duration
	stopPhases map[string]struct{}

	mu    sync.Mutex
	phase string
	start time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewCountdownProgressPrinter creates a progress printer that counts down from the duration.
// stopPhases are phase names that will trigger automatic cleanup when set via Callback.
func NewCountdownProgressPrinter(out io.Writer, prefix, phase string, duration time.Duration, stopPhases ...string) *ProgressPrinter {
	stopSet := make(map[string]struct{}, len(stopPhases))
	for _, p := range stopPhases {
		stopSet[p] = struct{}{}
	}
	return &ProgressPrinter{
		out:        out,
		prefix:     prefix,
		phase:      phase,
		duration:   duration,
		stopPhases: stopSet,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressPrinter) Start() {
	p.mu.Lock()
	p.start = time.Now()
	p.mu.Unlock()
	p.print()

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.print()
			}
		}
	}()
}

func (p *ProgressPrinter) print() {
	p.mu.Lock()
	phase := p.phase
	remaining := p.duration - time.Since(p.start)
	p.mu.Unlock()

	if seconds := int(remaining.Seconds() + 0.5); p.duration > 0 && seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// Callback returns a progress callback function that updates the phase.
// If the new phase is a stop phase, Stop() is called automatically.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.mu.Lock()
		p.phase = phase
		p.mu.Unlock()
		if _, ok := p.stopPhases[phase]; ok {
			p.Stop()
		}
	}
}

// Stop stops the progress display and clears the line. Safe to call more
// than once.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		select {
		case <-p.done:
		case <-time.After(time.Second):
		}
		fmt.Fprint(p.out, clearLineSequence)
	})
}
