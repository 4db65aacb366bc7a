package lineinfileplugin

import (
	"fmt"
	"regexp"
	"slices"
)

// Values of on_multiple_matches.
const (
	onMultipleFirst = "first"
	onMultipleAll   = "all"
	onMultipleError = "error"
)

// matches are line indexes in ascending order.
type matches []int

func findMatches(lines []string, pattern *regexp.Regexp) matches {
	var found matches
	if pattern == nil {
		return found
	}
	for i := range lines {
		if pattern.MatchString(lines[i]) {
			found = append(found, i)
		}
	}
	return found
}

func appendLineIfMissing(lines []string, line string) ([]string, bool) {
	if slices.Contains(lines, line) {
		return lines, false
	}
	return append(lines, line), true
}

// selectTargets narrows found to the lines the strategy rewrites.
func selectTargets(found matches, strategy string) (matches, error) {
	switch strategy {
	case onMultipleFirst, "":
		return found[:1], nil
	case onMultipleAll:
		return found, nil
	case onMultipleError:
		if n := len(found); n > 1 {
			return nil, fmt.Errorf("pattern matches %d lines (on_multiple_matches is %q)", n, onMultipleError)
		}
		return found, nil
	}
	return nil, fmt.Errorf("unsupported on_multiple_matches strategy %q", strategy)
}

func replaceLines(lines []string, found matches, newLine, strategy string) ([]string, bool, error) {
	if len(found) == 0 {
		return lines, false, nil
	}
	targets, err := selectTargets(found, strategy)
	if err != nil {
		return lines, false, err
	}
	var changed bool
	for _, i := range targets {
		changed = changed || lines[i] != newLine
		lines[i] = newLine
	}
	return lines, changed, nil
}

func removeMatchedLines(lines []string, found matches) ([]string, bool) {
	if len(found) == 0 {
		return lines, false
	}
	kept := make([]string, 0, len(lines)-len(found))
	for i, line := range lines {
		if _, hit := slices.BinarySearch(found, i); !hit {
			kept = append(kept, line)
		}
	}
	return kept, true
}
