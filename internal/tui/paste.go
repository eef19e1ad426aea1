package tui

import (
	"net/url"
	"os"
	"strings"
)

// droppedPaths interprets pasted text as a list of dropped files. It
// returns nil unless every non-empty line names an existing regular file.
func droppedPaths(text string) []string {
	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	var paths []string
	for _, line := range lines {
		p := normalizePath(line)
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, p)
	}
	return paths
}

func normalizePath(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "file://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Path
		}
	}
	// shells escape spaces when a file is dragged onto the terminal
	return strings.ReplaceAll(s, `\ `, " ")
}
