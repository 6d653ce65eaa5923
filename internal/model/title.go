package model

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var titleYearRe = regexp.MustCompile(`^(.*)\s+\((\d{4})\)$`)

// ParseTitleYear splits a catalog title of the form "<title> (<yyyy>)".
// When no trailing year is present the title is returned as-is with a nil year.
func ParseTitleYear(raw string) (string, *int) {
	s := norm.NFC.String(strings.TrimSpace(raw))
	m := titleYearRe.FindStringSubmatch(s)
	if m == nil {
		return s, nil
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return s, nil
	}
	return strings.TrimSpace(m[1]), &year
}

// SplitGenres parses the pipe-delimited genre column, dropping blanks,
// duplicates and the "(no genres listed)" placeholder.
func SplitGenres(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, g := range strings.Split(raw, "|") {
		g = strings.TrimSpace(g)
		if g == "" || g == NoGenres || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}
