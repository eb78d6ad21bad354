package chain

import (
	"regexp"
	"strings"
)

// HeaderLine is a single raw header as it appeared in the message
type HeaderLine struct {
	Key  string `json:"key"`
	Line string `json:"line"`
}

var (
	fromPattern     = regexp.MustCompile(`(?i)from\s+([^\s(\[;]+)`)
	byPattern       = regexp.MustCompile(`(?i)by\s+([^\s(\[;]+)`)
	hostnamePattern = regexp.MustCompile(`(?i)([a-z0-9\-._]+\.[a-z]{2,})`)
	spacePattern    = regexp.MustCompile(`\s+`)
)

// Normalize turns the Received headers of a message into an ordered list of
// hop identifiers. Other headers are ignored. The result never contains empty
// or repeated entries; the first occurrence of a hop keeps its position.
func Normalize(lines []HeaderLine) []string {
	out := []string{}
	seen := make(map[string]struct{})

	for _, h := range lines {
		if !strings.EqualFold(h.Key, "received") {
			continue
		}

		hop := Hop(h.Line)
		if hop == "" {
			continue
		}
		if _, ok := seen[hop]; ok {
			continue
		}
		seen[hop] = struct{}{}
		out = append(out, hop)
	}

	return out
}

// Hop extracts the best-effort relay identifier from one Received line
func Hop(line string) string {
	if m := fromPattern.FindStringSubmatch(line); len(m) > 1 && m[1] != "" {
		return m[1]
	}
	if m := byPattern.FindStringSubmatch(line); len(m) > 1 && m[1] != "" {
		return m[1]
	}
	if m := hostnamePattern.FindStringSubmatch(line); len(m) > 1 && m[1] != "" {
		return m[1]
	}
	return strings.TrimSpace(spacePattern.ReplaceAllString(line, " "))
}

// RawText joins every header line, in order, into the text blob used for
// provider detection.
func RawText(lines []HeaderLine) string {
	parts := make([]string, 0, len(lines))
	for _, h := range lines {
		parts = append(parts, h.Line)
	}
	return strings.Join(parts, "\n")
}
