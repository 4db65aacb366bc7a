package main

import (
	"os"
	"os/user"
)

// hostUser returns the operator account and its home directory. Under sudo
// that is the invoking user, not root.
func hostUser() (name, home string) {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" && sudoUser != "root" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.Username, u.HomeDir
		}
	}
	if u, err := user.Current(); err == nil {
		return u.Username, u.HomeDir
	}
	home, _ = os.UserHomeDir()
	return os.Getenv("USER"), home
}
