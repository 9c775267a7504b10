package parser

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ormasoftchile/casewright/pkg/phrase"
)

var (
	tagRe   = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9-]*)`)
	breakRe = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/tr|/td|/th|/h[1-6])\b[^>]*>`)
	cdataRe = regexp.MustCompile(`<!\[CDATA\[|\]\]>`)
)

// htmlTags are the presentational elements test-management tools embed in
// free text. Anything else in angle brackets is kept as literal text so
// placeholders such as <username> survive.
var htmlTags = map[string]bool{
	"a": true, "b": true, "big": true, "blockquote": true, "br": true, "code": true,
	"del": true, "div": true, "em": true, "font": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "hr": true, "i": true,
	"img": true, "ins": true, "li": true, "mark": true, "ol": true, "p": true,
	"pre": true, "s": true, "small": true, "span": true, "strike": true,
	"strong": true, "sub": true, "sup": true, "table": true, "tbody": true,
	"td": true, "tfoot": true, "th": true, "thead": true, "tr": true, "tt": true,
	"u": true, "ul": true,
}

// StripMarkup removes embedded formatting and escaped entities from a
// free-text field and collapses whitespace.
func StripMarkup(s string) string {
	s = cdataRe.ReplaceAllString(s, "")
	for i := 0; i < 3; i++ {
		u := html.UnescapeString(s)
		if u == s {
			break
		}
		s = u
	}
	if !hasKnownTag(s) {
		return phrase.Collapse(s)
	}

	s = breakRe.ReplaceAllString(s, " $0")
	s = tagRe.ReplaceAllStringFunc(s, func(m string) string {
		if htmlTags[strings.ToLower(strings.TrimPrefix(m[1:], "/"))] {
			return m
		}
		return "&lt;" + m[1:]
	})
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return phrase.Collapse(s)
	}
	return phrase.Collapse(doc.Find("body").Text())
}

func hasKnownTag(s string) bool {
	for _, m := range tagRe.FindAllStringSubmatch(s, -1) {
		if htmlTags[strings.ToLower(m[1])] {
			return true
		}
	}
	return false
}
