package room

import "testing"

func TestPaths(t *testing.T) {
	p := NewPaths("/run/rooms")

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"room dir", p.RoomDir("alpha"), "/run/rooms/alpha"},
		{"image root", p.ImageRoot("alpha"), "/run/rooms/alpha/root"},
		{"run dir", p.RunDir("alpha"), "/run/rooms/alpha/run"},
		{"pid file", p.PidFile("alpha"), "/run/rooms/alpha/pid"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if c.got != c.want {
				t.Errorf("got %q, want %q", c.got, c.want)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	cases := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid", "alpha", false},
		{"valid with dash", "room-1", false},
		{"empty", "", true},
		{"path separator", "../../etc", true},
		{"nested separator", "alpha/beta", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateID(c.id)
			if (err != nil) != c.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", c.id, err, c.wantErr)
			}
		})
	}
}
