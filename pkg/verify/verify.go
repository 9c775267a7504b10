// Package verify checks expected results against a captured DOM snapshot.
package verify

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/phrase"
)

// Document is a parsed snapshot.
type Document struct {
	doc *goquery.Document
}

// Parse parses snapshot markup. Plain text is accepted and treated as the
// body of an otherwise empty page.
func Parse(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Text returns the visible text of the page with whitespace collapsed.
func (d *Document) Text() string {
	body := d.doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return phrase.Collapse(body.Text())
}

// Contains reports whether the visible text contains s, case-insensitively
// and ignoring whitespace differences.
func (d *Document) Contains(s string) bool {
	return strings.Contains(strings.ToLower(d.Text()), strings.ToLower(phrase.Collapse(s)))
}

// Locate finds the element a label refers to and returns a locator for it.
// A label that looks like a CSS selector is queried directly; otherwise the
// innermost element whose own text, aria-label, placeholder or associated
// label matches is chosen, preferring elements of the given role.
func (d *Document) Locate(label, role string) (model.DiscoveredElement, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return model.DiscoveredElement{}, false
	}
	if strings.ContainsRune("#.[", rune(label[0])) && !strings.ContainsRune(label, ' ') {
		if d.doc.Find(label).Length() > 0 {
			return model.DiscoveredElement{Strategy: "css", Value: label, Role: role}, true
		}
		return model.DiscoveredElement{}, false
	}

	var best *goquery.Selection
	bestScore := 0
	d.doc.Find("body, body *").Not("script, style, noscript, template").Each(func(_ int, s *goquery.Selection) {
		if score := matchScore(s, label, role); score > bestScore {
			best, bestScore = s, score
		}
	})
	if best == nil {
		return model.DiscoveredElement{}, false
	}
	if role == "" {
		role = roleOf(best)
	}
	return locatorFor(best, label, role), true
}

// matchScore ranks how well s matches label. Zero means no match.
func matchScore(s *goquery.Selection, label, role string) int {
	score := 0
	switch {
	case strings.EqualFold(phrase.Collapse(s.Text()), label):
		score = 3
	case attrEquals(s, "aria-label", label), attrEquals(s, "placeholder", label), attrEquals(s, "value", label):
		score = 3
	case containsFold(ownText(s), label):
		score = 1
	}
	if score == 0 {
		return 0
	}
	// Prefer the innermost match: a parent containing only the match scores lower.
	if s.Children().Length() == 0 {
		score++
	}
	if role != "" && roleOf(s) == role {
		score += 2
	}
	return score
}

// ownText is the text of the direct text-node children of s, so mixed
// content like "Status: Open <a>edit</a>" still matches "Open".
func ownText(s *goquery.Selection) string {
	return phrase.Collapse(s.Contents().FilterFunction(func(_ int, c *goquery.Selection) bool {
		return goquery.NodeName(c) == "#text"
	}).Text())
}

func attrEquals(s *goquery.Selection, attr, want string) bool {
	v, ok := s.Attr(attr)
	return ok && strings.EqualFold(strings.TrimSpace(v), want)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

var tagRoles = map[string]string{
	"a": "link", "button": "button", "select": "combobox", "textarea": "textbox",
	"h1": "heading", "h2": "heading", "h3": "heading", "h4": "heading", "img": "img",
	"li": "listitem", "nav": "navigation",
}

func roleOf(s *goquery.Selection) string {
	if r, ok := s.Attr("role"); ok {
		return r
	}
	tag := goquery.NodeName(s)
	if tag == "input" {
		switch t, _ := s.Attr("type"); t {
		case "checkbox", "radio":
			return t
		case "submit", "button":
			return "button"
		case "file":
			return "file"
		}
		return "textbox"
	}
	return tagRoles[tag]
}

func locatorFor(s *goquery.Selection, label, role string) model.DiscoveredElement {
	if id, ok := s.Attr("id"); ok && id != "" && !strings.ContainsAny(id, " \t") {
		return model.DiscoveredElement{Strategy: "css", Value: "#" + id, Role: role}
	}
	if tid, ok := s.Attr("data-testid"); ok && tid != "" {
		return model.DiscoveredElement{Strategy: "testid", Value: tid, Role: role}
	}
	if attrEquals(s, "aria-label", label) {
		return model.DiscoveredElement{Strategy: "label", Value: label, Role: role}
	}
	if attrEquals(s, "placeholder", label) {
		return model.DiscoveredElement{Strategy: "placeholder", Value: label, Role: role}
	}
	return model.DiscoveredElement{Strategy: "text", Value: label, Role: role}
}

// Outcome is the result of checking an expected result.
type Outcome struct {
	// Checked lists the phrases that were verified.
	Checked []string
	// Missing lists the phrases not found on the page.
	Missing []string
	// Unverifiable is set when the expectation has nothing mechanically
	// checkable, so it is recorded but not enforced.
	Unverifiable bool
}

// OK reports whether every checkable phrase was found.
func (o Outcome) OK() bool { return len(o.Missing) == 0 }

func (o Outcome) String() string {
	switch {
	case o.Unverifiable:
		return "expectation recorded, not mechanically checkable"
	case o.OK():
		return fmt.Sprintf("verified %s", quoteAll(o.Checked))
	default:
		return fmt.Sprintf("expected %s not found on page", quoteAll(o.Missing))
	}
}

func quoteAll(ss []string) string {
	q := make([]string, len(ss))
	for i, s := range ss {
		q[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(q, ", ")
}

// Check verifies the quoted phrases of an expected result against the page.
// Expectations without quoted phrases are unverifiable.
func Check(d *Document, expected string) Outcome {
	phrases := phrase.Quoted(expected)
	if len(phrases) == 0 {
		return Outcome{Unverifiable: strings.TrimSpace(expected) != ""}
	}
	var o Outcome
	for _, p := range phrases {
		if d.Contains(p) {
			o.Checked = append(o.Checked, p)
		} else {
			o.Missing = append(o.Missing, p)
		}
	}
	return o
}
