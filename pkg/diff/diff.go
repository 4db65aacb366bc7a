// Package diff renders line-oriented previews of file changes.
package diff

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	// contextLines is how many unchanged lines are kept around each change.
	contextLines = 3
	maxLines     = 200
)

// Lines returns a unified-style diff between before and after labelled with
// path. It returns an empty string when the contents are equal.
func Lines(before, after []byte, path string) string {
	if bytes.Equal(before, after) {
		return ""
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(string(before), string(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	type line struct {
		op   byte
		text string
	}
	var lines []line
	for _, d := range diffs {
		op := byte(' ')
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			op = '-'
		case diffmatchpatch.DiffInsert:
			op = '+'
		}
		for _, text := range splitLines(d.Text) {
			lines = append(lines, line{op: op, text: text})
		}
	}

	keep := make([]bool, len(lines))
	for i, l := range lines {
		if l.op == ' ' {
			continue
		}
		for j := max(0, i-contextLines); j <= min(len(lines)-1, i+contextLines); j++ {
			keep[j] = true
		}
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "--- %s\n+++ %s\n", path, path)
	written, skipped := 0, false
	for i, l := range lines {
		if !keep[i] {
			skipped = true
			continue
		}
		if skipped {
			buf.WriteString("@@\n")
			skipped = false
		}
		if written == maxLines {
			buf.WriteString("... (diff truncated)\n")
			break
		}
		buf.WriteByte(l.op)
		buf.WriteString(l.text)
		buf.WriteByte('\n')
		written++
	}
	return buf.String()
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
