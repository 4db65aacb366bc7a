//go:build !unix

package probe

import "os"

func checkWritable(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.Mode().Perm()&0o200 != 0, nil
}
