package psi

import (
	"strings"
	"testing"
)

func TestReadSomeLine(t *testing.T) {
	fixture := "some avg10=12.34 avg60=5.67 avg300=1.00 total=98765\n" +
		"full avg10=1.00 avg60=0.50 avg300=0.10 total=1234\n"

	line, err := readSomeLine(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.Avg10 != 12.34 || line.Avg60 != 5.67 || line.Avg300 != 1.00 || line.Total != 98765 {
		t.Errorf("got %+v, want avg10=12.34 avg60=5.67 avg300=1.00 total=98765", line)
	}
}

func TestReadSomeLineMissing(t *testing.T) {
	_, err := readSomeLine(strings.NewReader("full avg10=1.00 avg60=0.50 avg300=0.10 total=1\n"))
	if err == nil {
		t.Fatal("expected error when no \"some\" line is present")
	}
}

func TestCritical(t *testing.T) {
	w := NewWatcher("/proc", 10.0)

	snap := Snapshot{
		CPU:    {Avg10: 2.0},
		Memory: {Avg10: 15.0},
	}

	resource, avg10, ok := w.Critical(snap)
	if !ok || resource != Memory || avg10 != 15.0 {
		t.Errorf("Critical() = %v, %v, %v; want memory, 15.0, true", resource, avg10, ok)
	}
}

func TestCriticalNoneOverThreshold(t *testing.T) {
	w := NewWatcher("/proc", 50.0)
	snap := Snapshot{CPU: {Avg10: 2.0}, Memory: {Avg10: 15.0}}

	_, _, ok := w.Critical(snap)
	if ok {
		t.Error("expected no resource to be critical")
	}
}
