package probe

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

// LookPath is satisfied when command resolves on PATH.
func LookPath(command string) Probe {
	return Func(func(ctx context.Context) Result {
		path, err := exec.LookPath(command)
		if err != nil {
			return Missing("command not found: %s", command)
		}
		return Ok("%s found at %s", command, path)
	})
}

// Dir is satisfied when path exists and is a directory.
func Dir(step, path string) Probe {
	return Func(func(ctx context.Context) Result {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Missing("directory %s does not exist", path)
			}
			return Failed(hosterrors.NewProbeError(step, "stat "+path, err), "cannot inspect %s", path)
		}
		if !info.IsDir() {
			return Missing("%s exists but is not a directory", path)
		}
		return Ok("directory %s exists", path)
	})
}

// File is satisfied when path exists and is a regular file.
func File(step, path string) Probe {
	return Func(func(ctx context.Context) Result {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Missing("file %s does not exist", path)
			}
			return Failed(hosterrors.NewProbeError(step, "stat "+path, err), "cannot inspect %s", path)
		}
		if info.IsDir() {
			return Missing("%s is a directory, expected a file", path)
		}
		return Ok("file %s exists", path)
	})
}

// WritableDir is satisfied when the current user may create files in path.
// It only asks the kernel and never writes.
func WritableDir(step, path string) Probe {
	return Func(func(ctx context.Context) Result {
		if res := Dir(step, path).Probe(ctx); res.Status != Satisfied {
			return res
		}
		ok, err := checkWritable(path)
		if err != nil {
			return Failed(hosterrors.NewProbeError(step, "access "+path, err), "cannot check %s", path)
		}
		if !ok {
			return Missing("directory %s is not writable", path)
		}
		return Ok("directory %s is writable", filepath.Clean(path))
	})
}

// FileMatches is satisfied when the file content matches pattern.
func FileMatches(step, path string, pattern *regexp.Regexp) Probe {
	return Func(func(ctx context.Context) Result {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Missing("file %s does not exist", path)
			}
			return Failed(hosterrors.NewProbeError(step, "read "+path, err), "cannot read %s", path)
		}
		if !pattern.Match(data) {
			return Missing("pattern %q not found in %s", pattern.String(), path)
		}
		return Ok("%s matches %q", path, pattern.String())
	})
}
