package decision

import (
	"strings"
	"unicode"
)

var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'“':  '”',
	'‘':  '’',
}

// splitArgs splits a call's argument list on commas that sit outside quotes.
// A quote at the start of an argument closes only when the next non-space
// rune ends the argument. Inside an argument a quote opens only after a space
// and only when its closer appears later, so apostrophes inside words survive.
func splitArgs(inner string) []string {
	runes := []rune(inner)
	var (
		args     []string
		cur      strings.Builder
		inQuotes bool
		midArg   bool
		closer   rune
		atStart  = true
	)
	flush := func() {
		args = append(args, cleanArg(cur.String()))
		cur.Reset()
		atStart = true
	}
	for i, r := range runes {
		switch {
		case inQuotes:
			cur.WriteRune(r)
			if closesQuote(runes, i, closer, midArg) {
				inQuotes = false
			}
		case r == ',':
			flush()
		default:
			if atStart && unicode.IsSpace(r) {
				cur.WriteRune(r)
				continue
			}
			if c, ok := opensQuote(runes, i, atStart); ok {
				inQuotes, midArg, closer = true, !atStart, c
			}
			atStart = false
			cur.WriteRune(r)
		}
	}
	if strings.TrimSpace(cur.String()) != "" || len(args) > 0 {
		flush()
	}
	for len(args) > 0 && args[len(args)-1] == "" {
		args = args[:len(args)-1]
	}
	return args
}

// opensQuote reports whether runes[i] starts a quoted span and returns its
// closer.
func opensQuote(runes []rune, i int, atStart bool) (rune, bool) {
	c, ok := quotePairs[runes[i]]
	if !ok {
		return 0, false
	}
	if atStart {
		return c, true
	}
	if i == 0 || !unicode.IsSpace(runes[i-1]) {
		return 0, false
	}
	for _, r := range runes[i+1:] {
		if r == c {
			return c, true
		}
	}
	return 0, false
}

func closesQuote(runes []rune, i int, closer rune, midArg bool) bool {
	if runes[i] != closer {
		return false
	}
	return midArg || endsArg(runes[i+1:])
}

// endsArg reports whether rest, ignoring spaces, starts with a separator or
// the end of the argument list.
func endsArg(rest []rune) bool {
	for _, r := range rest {
		if unicode.IsSpace(r) {
			continue
		}
		return r == ',' || r == ')'
	}
	return true
}

// cleanArg trims whitespace and one pair of matching surrounding quotes.
func cleanArg(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) >= 2 {
		if c, ok := quotePairs[runes[0]]; ok && runes[len(runes)-1] == c {
			s = strings.TrimSpace(string(runes[1 : len(runes)-1]))
		}
	}
	return s
}

// callBody returns the text between the '(' at open and its closing ')',
// skipping parentheses inside quoted arguments. When quoting is unbalanced
// it falls back to the last ')' on the line.
func callBody(line string, open int) (string, int, bool) {
	runes := []rune(line[open+1:])
	var (
		depth    int
		inQuotes bool
		midArg   bool
		closer   rune
		atStart  = true
	)
	offset := open + 1
	for i, r := range runes {
		if inQuotes {
			if closesQuote(runes, i, closer, midArg) {
				inQuotes = false
			}
			continue
		}
		switch {
		case r == ',':
			atStart = true
			continue
		case r == '(':
			depth++
		case r == ')':
			if depth == 0 {
				end := offset + len(string(runes[:i]))
				return line[open+1 : end], end, true
			}
			depth--
		case atStart && unicode.IsSpace(r):
		default:
			if c, ok := opensQuote(runes, i, atStart); ok {
				inQuotes, midArg, closer = true, !atStart, c
			}
		}
		if !unicode.IsSpace(r) {
			atStart = false
		}
	}
	if last := strings.LastIndex(line, ")"); last > open {
		return line[open+1 : last], last, true
	}
	return "", -1, false
}
