package policy

import "testing"

func TestValidateTarget(t *testing.T) {
	cases := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{"valid absolute", "/nix/store", false},
		{"valid root-adjacent", "/workspace", false},
		{"empty", "", true},
		{"relative", "nix/store", true},
		{"dotdot segment", "/nix/../etc", true},
		{"double slash", "/nix//store", true},
		{"root itself", "/", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateTarget(c.target)
			if (err != nil) != c.wantErr {
				t.Errorf("ValidateTarget(%q) error = %v, wantErr %v", c.target, err, c.wantErr)
			}
		})
	}
}
