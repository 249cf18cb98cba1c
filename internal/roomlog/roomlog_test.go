package roomlog

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelGating(t *testing.T) {
	defer DelLogger("t-gating")

	sink := new(bytes.Buffer)
	AddLogger("t-gating", sink, WARN)

	Debug("should not appear")
	if strings.Contains(sink.String(), "should not appear") {
		t.Fatalf("debug message leaked through a WARN-gated logger: %q", sink.String())
	}

	Warn("should appear")
	if !strings.Contains(sink.String(), "should appear") {
		t.Fatalf("warn message missing from sink: %q", sink.String())
	}
}

func TestMultiSinkFanOut(t *testing.T) {
	defer DelLogger("t-sink1")
	defer DelLogger("t-sink2")

	sink1 := new(bytes.Buffer)
	sink2 := new(bytes.Buffer)
	AddLogger("t-sink1", sink1, DEBUG)
	AddLogger("t-sink2", sink2, DEBUG)

	Info("fan out message")

	if !strings.Contains(sink1.String(), "fan out message") {
		t.Errorf("sink1 missing message: %q", sink1.String())
	}
	if !strings.Contains(sink2.String(), "fan out message") {
		t.Errorf("sink2 missing message: %q", sink2.String())
	}
}

func TestNamedDispatchIncludesName(t *testing.T) {
	defer DelLogger("t-named")

	sink := new(bytes.Buffer)
	AddLogger("t-named", sink, DEBUG)

	InfoNamed("room-alpha", "spawned")

	if !strings.Contains(sink.String(), "room-alpha: spawned") {
		t.Fatalf("named message malformed: %q", sink.String())
	}
}

func TestLogAllFromRelaysLines(t *testing.T) {
	defer DelLogger("t-relay")

	sink := new(bytes.Buffer)
	AddLogger("t-relay", sink, DEBUG)

	LogAllFrom("room-beta", strings.NewReader("line one\nline two\n\n"))

	got := sink.String()
	if !strings.Contains(got, "room-beta: line one") || !strings.Contains(got, "room-beta: line two") {
		t.Fatalf("relayed lines missing: %q", got)
	}
}

func TestDelLoggerStopsDispatch(t *testing.T) {
	sink := new(bytes.Buffer)
	AddLogger("t-del", sink, DEBUG)
	DelLogger("t-del")

	Info("after delete")
	if sink.Len() != 0 {
		t.Fatalf("expected no output after DelLogger, got %q", sink.String())
	}
}
