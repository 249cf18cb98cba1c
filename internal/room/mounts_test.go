package room

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseMountpointsUnder(t *testing.T) {
	fixture := strings.Join([]string{
		"sysfs /sys sysfs rw 0 0",
		"/dev/sda1 /run/rooms/alpha/root squashfs ro 0 0",
		"tmpfs /run/rooms/alpha/run tmpfs rw 0 0",
		"proc /run/rooms/alpha/root/proc proc rw 0 0",
		"tmpfs /run/rooms/beta/run tmpfs rw 0 0",
	}, "\n") + "\n"

	got, err := parseMountpointsUnder(strings.NewReader(fixture), "/run/rooms/alpha")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"/run/rooms/alpha/root/proc",
		"/run/rooms/alpha/root",
		"/run/rooms/alpha/run",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseMountpointsUnderNoMatch(t *testing.T) {
	fixture := "sysfs /sys sysfs rw 0 0\n"
	got, err := parseMountpointsUnder(strings.NewReader(fixture), "/run/rooms/alpha")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}
