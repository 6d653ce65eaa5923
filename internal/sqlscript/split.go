// Package sqlscript splits SQL scripts into individual statements.
package sqlscript

import (
	"strings"
	"unicode"
)

type state int

const (
	stNormal state = iota
	stSingle
	stDouble
	stEscape
	stDollar
	stLineComment
	stBlockComment
)

// Split breaks script on semicolons that are outside string literals,
// quoted identifiers and comments. Postgres dollar-quoted bodies ($$ or
// $tag$) and E'...' escape strings are treated as literals. Statements are trimmed; statements made
// only of whitespace and comments are dropped.
func Split(script string) []string {
	var (
		out  []string
		buf  strings.Builder
		st   = stNormal
		code bool
		tag  string
	)

	flush := func() {
		if code {
			out = append(out, strings.TrimSpace(buf.String()))
		}
		buf.Reset()
		code = false
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch st {
		case stNormal:
			switch {
			case r == ';':
				flush()
				continue
			case r == '-' && next == '-':
				st = stLineComment
			case r == '/' && next == '*':
				st = stBlockComment
				buf.WriteRune(r)
				buf.WriteRune(next)
				i++
				continue
			case r == '\'' && i > 0 && (runes[i-1] == 'E' || runes[i-1] == 'e') && (i < 2 || !isIdent(runes[i-2])):
				st = stEscape
				code = true
			case r == '\'':
				st = stSingle
				code = true
			case r == '$' && (i == 0 || !isIdent(runes[i-1])):
				if t, ok := dollarTag(runes[i:]); ok {
					st = stDollar
					tag = t
					code = true
					buf.WriteString(t)
					i += len([]rune(t)) - 1
					continue
				}
				code = true
			case r == '"':
				st = stDouble
				code = true
			case !unicode.IsSpace(r):
				code = true
			}
		case stSingle:
			// A doubled quote re-enters the literal on the next rune.
			if r == '\'' {
				st = stNormal
			}
		case stEscape:
			if r == '\\' && next != 0 {
				buf.WriteRune(r)
				buf.WriteRune(next)
				i++
				continue
			}
			if r == '\'' {
				st = stNormal
			}
		case stDollar:
			if r == '$' && strings.HasPrefix(string(runes[i:]), tag) {
				st = stNormal
				buf.WriteString(tag)
				i += len([]rune(tag)) - 1
				continue
			}
		case stDouble:
			if r == '"' {
				st = stNormal
			}
		case stLineComment:
			if r == '\n' {
				st = stNormal
			}
		case stBlockComment:
			if r == '*' && next == '/' {
				st = stNormal
				buf.WriteRune(r)
				buf.WriteRune(next)
				i++
				continue
			}
		}
		buf.WriteRune(r)
	}
	flush()
	return out
}

// dollarTag returns the opening $tag$ (or $$) at the start of rs.
func dollarTag(rs []rune) (string, bool) {
	for j := 1; j < len(rs); j++ {
		switch r := rs[j]; {
		case r == '$':
			return string(rs[:j+1]), true
		case r == '_' || unicode.IsLetter(r) || (j > 1 && unicode.IsDigit(r)):
		default:
			return "", false
		}
	}
	return "", false
}

func isIdent(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
