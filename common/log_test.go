package common

import (
	"bytes"
	"log"
	"regexp"
	"testing"
)

func newTestLog(buf *bytes.Buffer) *Log {
	return NewLogTo(log.New(buf, "", 0))
}

func TestPrintIncludesElapsedTimePrefix(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLog(&buf)
	l.Print("hello")

	want := regexp.MustCompile(`^\[t=\s*\d+:\d{2}\] hello\n$`)
	if !want.MatchString(buf.String()) {
		t.Fatalf("Print output = %q, want match of %s", buf.String(), want)
	}
}

func TestPrintfFormatsMessage(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLog(&buf)
	l.Printf("count=%d name=%s", 3, "seg")

	if !bytes.Contains(buf.Bytes(), []byte("count=3 name=seg")) {
		t.Fatalf("Printf output = %q, want it to contain formatted message", buf.String())
	}
}

func TestProgressLoggerAccumulatesCounter(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLog(&buf)
	p := l.NewProgressTracker("processed %d (%.1f/s)", 1000)

	p.Step(100)
	p.Step(50)
	if got := p.GetCounter(); got != 150 {
		t.Fatalf("GetCounter = %d, want 150", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output below window, got %q", buf.String())
	}
}

func TestProgressLoggerLogsOnceWindowCrossed(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLog(&buf)
	p := l.NewProgressTracker("processed %d", 10)

	p.Step(4)
	if buf.Len() != 0 {
		t.Fatalf("expected no output before window crossed, got %q", buf.String())
	}
	p.Step(7)
	if buf.Len() == 0 {
		t.Fatal("expected output once window crossed")
	}
	if got := p.GetCounter(); got != 11 {
		t.Fatalf("GetCounter = %d, want 11", got)
	}
}
