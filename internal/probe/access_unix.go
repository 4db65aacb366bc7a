//go:build unix

package probe

import (
	"errors"
	"io/fs"

	"golang.org/x/sys/unix"
)

// checkWritable asks access(2) for W_OK. Denials and read-only mounts are a
// plain "no"; anything else is an error.
func checkWritable(path string) (bool, error) {
	err := unix.Access(path, unix.W_OK)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM), errors.Is(err, unix.EROFS):
		return false, nil
	}
	return false, &fs.PathError{Op: "access", Path: path, Err: err}
}
