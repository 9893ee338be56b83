package common

import (
	"fmt"
	"log"
	"time"
)

// Log is a logger customised for this engine's output: it prints the
// time elapsed since the log was created alongside every message.
// Callers that do not care about log output can pass
// NewLogTo(log.New(io.Discard, "", 0)).
type Log struct {
	start  time.Time
	logger *log.Logger
}

// NewLog creates a new Log writing through the standard logger.
func NewLog() *Log {
	return &Log{start: time.Now(), logger: log.Default()}
}

// NewLogTo creates a new Log writing to the given standard logger,
// letting callers redirect output (e.g. to io.Discard in tests).
func NewLogTo(logger *log.Logger) *Log {
	return &Log{start: time.Now(), logger: logger}
}

// Print logs a message prefixed with the elapsed time since creation.
func (l *Log) Print(msg string) {
	now := time.Now()
	t := uint64(now.Sub(l.start).Seconds())
	l.logger.Printf("[t=%4d:%02d] %s\n", t/60, t%60, msg)
}

// Printf logs a formatted message prefixed with the elapsed time since
// creation.
func (l *Log) Printf(format string, v ...any) {
	l.Print(fmt.Sprintf(format, v...))
}

// ProgressLogger tracks and periodically reports progress of a
// long-running operation, such as a full rebuild's user-store scan or a
// sync's bulk key transfer.
type ProgressLogger struct {
	log            *Log
	start          time.Time
	format         string
	window         int
	counter, steps int
}

// NewProgressTracker creates a ProgressLogger reporting every window
// items processed, using format as the Printf format string (expects a
// count and a rate).
func (l *Log) NewProgressTracker(format string, window int) *ProgressLogger {
	return &ProgressLogger{log: l, start: time.Now(), format: format, window: window}
}

// Step advances the progress counter by increment, logging once the
// configured window has been crossed.
func (p *ProgressLogger) Step(increment int) {
	p.counter += increment
	p.steps += increment

	if p.steps >= p.window {
		now := time.Now()
		count := p.counter / p.window * p.window
		p.log.Printf(p.format, count, float64(p.steps)/now.Sub(p.start).Seconds())
		p.steps = 0
		p.start = now
	}
}

// GetCounter returns the total number of items processed so far.
func (p *ProgressLogger) GetCounter() int {
	return p.counter
}
