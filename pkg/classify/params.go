package classify

import (
	"regexp"
	"strings"

	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/phrase"
)

// Params are the dispatch arguments derived from a classified step.
type Params struct {
	URL    string `json:"url,omitempty"`
	Target string `json:"target,omitempty"`
	Role   string `json:"role,omitempty"`
	Value  string `json:"value,omitempty"`
}

var (
	intoRe    = regexp.MustCompile(`(?i)\b(?:in|into|to|on)\s+(?:the\s+)?(.+)$`)
	fromRe    = regexp.MustCompile(`(?i)\b(?:from|in)\s+(?:the\s+)?(.+)$`)
	shouldRe  = regexp.MustCompile(`(?i)\b(?:should|must|will|shall)\s+(?:be|display|show|contain|read|say|equal|become)\s+(.+)$`)
	leadingRe = regexp.MustCompile(`(?i)^(?:on|the|a|an|to|in|into|at)\s+`)
	cutRe     = regexp.MustCompile(`(?i)\s+and\s+|[,;.]\s|[,;.]$`)
	roleNouns = map[string]string{
		"button": "button", "link": "link", "field": "textbox", "textbox": "textbox",
		"box": "textbox", "input": "textbox", "area": "textbox", "checkbox": "checkbox",
		"radio": "radio", "dropdown": "combobox", "drop-down": "combobox", "list": "listbox",
		"tab": "tab", "icon": "img", "menu": "menu", "item": "menuitem", "heading": "heading",
	}
	kindRoles = map[model.ActionKind]string{
		model.ActionClick:  "button",
		model.ActionFill:   "textbox",
		model.ActionSelect: "combobox",
		model.ActionCheck:  "checkbox",
		model.ActionUpload: "file",
	}
)

// ParamsFor derives dispatch arguments deterministically from the step text.
func ParamsFor(s model.Step) Params {
	p := Params{Value: strings.TrimSpace(s.TestData)}
	switch {
	case phrase.IsURL(s.TestData):
		p.URL = strings.TrimSpace(s.TestData)
	default:
		p.URL, _ = phrase.FirstURL(s.Description)
	}

	quoted := phrase.Quoted(s.Description)
	switch s.Action {
	case model.ActionNavigate:
		return p
	case model.ActionFill, model.ActionSelect, model.ActionUpload:
		if p.Value == "" && len(quoted) > 0 {
			p.Value = quoted[0]
			quoted = quoted[1:]
		}
		re := intoRe
		if s.Action == model.ActionSelect {
			re = fromRe
		}
		switch {
		case len(quoted) > 0:
			p.Target = quoted[0]
		case re.MatchString(s.Description):
			p.Target = trimTarget(re.FindStringSubmatch(s.Description)[1])
		default:
			p.Target = trimTarget(afterVerb(s.Description))
		}
	case model.ActionAssert:
		switch {
		case len(quoted) > 0:
			p.Target = quoted[0]
		case shouldRe.MatchString(s.Description):
			p.Target = trimTarget(shouldRe.FindStringSubmatch(s.Description)[1])
		default:
			if q, ok := phrase.FirstQuoted(s.ExpectedResult); ok {
				p.Target = q
			} else {
				p.Target = trimTarget(afterVerb(s.Description))
			}
		}
	default:
		if len(quoted) > 0 {
			p.Target = quoted[0]
		} else {
			p.Target = trimTarget(afterVerb(s.Description))
		}
		if p.Target == "" {
			p.Target = p.Value
		}
	}

	p.Target, p.Role = splitRole(p.Target, s.Description)
	if p.Role == "" {
		p.Role = kindRoles[s.Action]
	}
	return p
}

// afterVerb returns the text following the first actionable verb.
func afterVerb(desc string) string {
	best := -1
	for _, re := range []*regexp.Regexp{assertRe, uploadRe, checkVerbRe, selectVerbRe, linkVerbRe, fillRe, clickRe} {
		if loc := re.FindStringIndex(desc); loc != nil && (best < 0 || loc[1] < best) {
			best = loc[1]
		}
	}
	if best < 0 {
		return ""
	}
	return desc[best:]
}

func trimTarget(t string) string {
	if loc := cutRe.FindStringIndex(t); loc != nil {
		t = t[:loc[0]]
	}
	t = strings.TrimSpace(t)
	for {
		trimmed := leadingRe.ReplaceAllString(t, "")
		if trimmed == t {
			break
		}
		t = trimmed
	}
	return strings.Trim(t, ` "'“”‘’`)
}

// splitRole removes a trailing role noun ("Save button") from the target and
// returns it as an ARIA-like role. The description is consulted when the
// target came from a quoted phrase.
func splitRole(target, desc string) (string, string) {
	fields := strings.Fields(target)
	if n := len(fields); n > 1 {
		if role, ok := roleNouns[strings.ToLower(fields[n-1])]; ok {
			return strings.Join(fields[:n-1], " "), role
		}
	}
	lower := strings.ToLower(desc)
	if i := strings.LastIndex(lower, strings.ToLower(target)); target != "" && i >= 0 {
		rest := strings.Fields(strings.Trim(lower[i+len(target):], ` "'“”‘’`))
		if len(rest) > 0 {
			if role, ok := roleNouns[rest[0]]; ok {
				return target, role
			}
		}
	}
	return target, ""
}
