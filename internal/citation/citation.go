// Package citation checks parenthesised citations in a generated answer
// against the sources that retrieval returned.
package citation

import (
	"regexp"
	"strings"

	"certrag/internal/domain"
)

var parenthesised = regexp.MustCompile(`\(([^)]+)\)`)

// Report lists every citation found in an answer and the ones that match no source.
type Report struct {
	Citations []string `json:"citations"`
	Invalid   []string `json:"invalid"`
}

// Valid reports whether every citation names a known source.
func (r Report) Valid() bool { return len(r.Invalid) == 0 }

// Extract returns the trimmed contents of every parenthesised span in answer.
func Extract(answer string) []string {
	matches := parenthesised.FindAllStringSubmatch(answer, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if c := strings.TrimSpace(m[1]); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Validate marks a citation invalid when none of the source titles appears in
// it, ignoring case. The answer is never modified.
func Validate(answer string, sources []domain.Citation) Report {
	titles := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.Title != "" {
			titles = append(titles, strings.ToLower(s.Title))
		}
	}

	report := Report{Citations: Extract(answer), Invalid: []string{}}
	for _, c := range report.Citations {
		if !mentionsAny(strings.ToLower(c), titles) {
			report.Invalid = append(report.Invalid, c)
		}
	}
	return report
}

func mentionsAny(citation string, titles []string) bool {
	for _, t := range titles {
		if strings.Contains(citation, t) {
			return true
		}
	}
	return false
}
