package lineinfileplugin

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	newFileMode   fs.FileMode = 0o644
	backupStamp               = "20060102T150405"
	tempPattern               = ".whisperhost-*"
	parentDirMode fs.FileMode = 0o755
)

// fileState is the target file as read before any change. path is the
// symlink-resolved location that gets written.
type fileState struct {
	path            string
	exists          bool
	perm            fs.FileMode
	raw             []byte
	lines           []string
	trailingNewline bool
}

func readFileState(target, encodingName string) (*fileState, error) {
	resolved, err := resolveTarget(target)
	if err != nil {
		return nil, err
	}
	st := &fileState{path: resolved, perm: newFileMode}

	info, err := os.Stat(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return st, nil
	case err != nil:
		return nil, err
	case info.IsDir():
		return nil, fmt.Errorf("%s is a directory", resolved)
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, err
	}
	text, err := decodeContent(raw, encodingName)
	if err != nil {
		return nil, fmt.Errorf("decode %s as %s: %w", resolved, encodingName, err)
	}

	st.exists, st.perm, st.raw = true, info.Mode().Perm(), raw
	st.lines, st.trailingNewline = splitLines(text)
	return st, nil
}

// resolveTarget follows symlinks so the link itself survives the rewrite.
// A dangling or missing path is written as given.
func resolveTarget(target string) (string, error) {
	resolved, err := filepath.EvalSymlinks(target)
	if errors.Is(err, fs.ErrNotExist) {
		return target, nil
	}
	return resolved, err
}

func splitLines(text string) ([]string, bool) {
	body, trailing := strings.CutSuffix(text, "\n")
	if body == "" {
		return nil, trailing
	}
	return strings.Split(body, "\n"), trailing
}

func joinLines(lines []string, trailing bool) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	if trailing && len(lines) > 0 {
		b.WriteByte('\n')
	}
	return b.String()
}

// writeFileAtomic stages data in a sibling temp file and renames it over path.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, parentDirMode); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	for _, step := range []func() error{
		func() error { _, werr := tmp.Write(data); return werr },
		func() error { return tmp.Chmod(perm) },
		tmp.Sync,
		tmp.Close,
	} {
		if err = step(); err != nil {
			return err
		}
	}
	return os.Rename(tmp.Name(), path)
}

// createBackup saves the previous bytes as <path>.<UTC stamp>.bak.
func createBackup(path string, content []byte, perm fs.FileMode, now time.Time) (string, error) {
	name := path + "." + now.UTC().Format(backupStamp) + ".bak"
	return name, os.WriteFile(name, content, perm)
}

func decodeContent(data []byte, name string) (string, error) {
	enc := encodingByName(name)
	if enc == nil {
		return string(data), nil
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	return string(out), err
}

func encodeContent(text, name string) ([]byte, error) {
	enc := encodingByName(name)
	if enc == nil {
		return []byte(text), nil
	}
	out, _, err := transform.String(enc.NewEncoder(), text)
	return []byte(out), err
}

// encodingByName returns nil for UTF-8, which needs no transform.
func encodingByName(name string) encoding.Encoding {
	switch strings.ToLower(name) {
	case "latin-1", "latin1", "iso-8859-1":
		return charmap.ISO8859_1
	case "windows-1252":
		return charmap.Windows1252
	case "utf-16", "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	}
	return nil
}
