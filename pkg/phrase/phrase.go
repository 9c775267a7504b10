// Package phrase extracts quoted phrases and URLs from free-text step fields.
package phrase

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	quotedRe = regexp.MustCompile(`"([^"]+)"|“([^”]+)”|‘([^’]+)’|(?:^|[\s(\[:,])'([^']+)'`)
	urlRe    = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s"'<>)\]]+`)
)

// Quoted returns every quoted phrase in s, in order of appearance.
func Quoted(s string) []string {
	var out []string
	for _, m := range quotedRe.FindAllStringSubmatch(s, -1) {
		for _, g := range m[1:] {
			if g = strings.TrimSpace(g); g != "" {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// FirstQuoted returns the first quoted phrase in s.
func FirstQuoted(s string) (string, bool) {
	q := Quoted(s)
	if len(q) == 0 {
		return "", false
	}
	return q[0], true
}

// FirstURL returns the first URL found in s, without trailing punctuation.
func FirstURL(s string) (string, bool) {
	u := urlRe.FindString(s)
	if u == "" {
		return "", false
	}
	u = strings.TrimRight(u, ".,;:!?")
	if strings.HasPrefix(strings.ToLower(u), "www.") {
		u = "https://" + u
	}
	return u, true
}

// IsURL reports whether s as a whole is a URL.
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return false
	}
	u, ok := FirstURL(s)
	return ok && len(u) >= len(strings.TrimRight(s, ".,;:!?"))
}

// Collapse folds runs of whitespace into single spaces and trims the ends.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Identifier turns free text into a lowerCamelCase identifier.
func Identifier(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, w := range words {
		w = strings.ToLower(w)
		if b.Len() == 0 {
			if unicode.IsDigit(rune(w[0])) {
				b.WriteString("step")
				b.WriteString(w)
				continue
			}
			b.WriteString(w)
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}
