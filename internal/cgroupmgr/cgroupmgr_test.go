package cgroupmgr

import "testing"

func TestGroupPath(t *testing.T) {
	cases := []struct {
		root, id, want string
	}{
		{"/sys/fs/cgroup/anchor", "alpha", "/sys/fs/cgroup/anchor/alpha"},
		{"/sys/fs/cgroup/anchor", "room-1", "/sys/fs/cgroup/anchor/room-1"},
	}

	for _, c := range cases {
		t.Run(c.id, func(t *testing.T) {
			m := New(c.root)
			if got := m.groupPath(c.id); got != c.want {
				t.Errorf("groupPath(%q) = %q, want %q", c.id, got, c.want)
			}
		})
	}
}
