// Package policy parses and validates the vault-mount policy file a
// room may be spawned with: a TOML document declaring zero or more
// host-to-room bind mounts.
package policy

import (
	"strings"

	"github.com/BurntSushi/toml"

	"anchoros/bay0/internal/bayerr"
)

// VaultMount describes one host-to-room bind mount.
type VaultMount struct {
	Source   string `toml:"source"`
	Target   string `toml:"target"`
	Readonly bool   `toml:"readonly"`
}

// Policy is the decoded policy file: zero or more vault mounts.
type Policy struct {
	Vaults []VaultMount `toml:"vaults"`
}

// Load parses the TOML policy file at path and validates every vault
// target. readonly defaults to true when the key is absent from the
// source document, matching spec.md §3's stated default.
func Load(path string) (Policy, error) {
	var raw struct {
		Vaults []rawVault `toml:"vaults"`
	}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return Policy{}, bayerr.PolicyParse(path, err)
	}

	pol := Policy{}
	for _, v := range raw.Vaults {
		readonly := true
		if v.Readonly != nil {
			readonly = *v.Readonly
		}
		vm := VaultMount{Source: v.Source, Target: v.Target, Readonly: readonly}
		if err := ValidateTarget(vm.Target); err != nil {
			return Policy{}, bayerr.PolicyParse(path, err)
		}
		pol.Vaults = append(pol.Vaults, vm)
	}
	return pol, nil
}

// rawVault lets Readonly's absence be distinguished from an explicit
// false, since the zero value of bool cannot carry that distinction.
type rawVault struct {
	Source   string `toml:"source"`
	Target   string `toml:"target"`
	Readonly *bool  `toml:"readonly"`
}

// ValidateTarget enforces spec.md §6's target invariants: non-empty,
// starts with /, no .. segment, no // run.
func ValidateTarget(target string) error {
	if target == "" {
		return &targetError{target, "empty target"}
	}
	if !strings.HasPrefix(target, "/") {
		return &targetError{target, "must start with /"}
	}
	if strings.Contains(target, "//") {
		return &targetError{target, "contains empty segment"}
	}
	for _, seg := range strings.Split(target, "/") {
		if seg == ".." {
			return &targetError{target, "contains .. segment"}
		}
	}
	return nil
}

type targetError struct {
	target string
	reason string
}

func (e *targetError) Error() string {
	return "invalid vault target " + e.target + ": " + e.reason
}
