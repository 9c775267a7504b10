package classify

import (
	"regexp"
	"strings"

	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/phrase"
)

// Rule is one (predicate, kind) pair. Rules are evaluated top to bottom and
// the first match wins.
type Rule struct {
	Name  string
	Kind  model.ActionKind
	Match func(s model.Step) bool
}

func words(ws ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(ws, "|") + `)\b`)
}

var (
	uploadRe     = words("upload", "uploads", "attach", "attaches", "browse for")
	navigateRe   = words("open", "opens", "navigate", "navigates", "go to", "goes to", "visit", "visits", "browse to", "launch", "launches", "load", "access")
	assertRe     = words("verify", "verifies", "assert", "asserts", "ensure", "ensures", "confirm", "confirms", "validate", "validates", "observe", "observes", `check\s+(?:that|whether|if)`)
	checkVerbRe  = words("check", "checks", "tick", "ticks", "uncheck", "unchecks", "untick", "toggle", "toggles")
	checkNounRe  = words("checkbox", "check box", "check-box", "radio", "radio button", "toggle switch")
	selectVerbRe = words("select", "selects", "choose", "chooses", "pick", "picks")
	selectNounRe = words("option", "value", "dropdown", "drop-down", "drop down", "combo ?box", "list ?box", "picker", "from")
	linkNounRe   = words("link", "button", "tab", "menu item", "icon", "card", "tile")
	linkVerbRe   = words("select", "selects", "choose", "chooses", "follow", "follows", "open", "opens")
	fillRe       = words("enter", "enters", "fill", "fills", "fill in", "type", "types", "input", "inputs", "provide", "provides", "write", "writes", "clear", "clears", "populate", "populates")
	pressEnterRe = regexp.MustCompile(`(?i)\b(?:press|presses|hit|hits|tap|taps)\s+(?:the\s+)?enter\b`)
	clickRe      = words("click", "clicks", "double-click", "right-click", "press", "presses", "tap", "taps", "submit", "submits", "hit", "hits")
	navObjectRe  = regexp.MustCompile(`(?i)^\s+(?:https?://|www\.|(?:the|a|an|this|that|my)\s+(?:[\w'"“”‘’-]+\s+){0,4}?(?:page|link|url|site|website|screen|dialog|window|tab|menu|app|application|portal|form)\b)`)
	clauseLeadRe = regexp.MustCompile(`(?i)(?:^|[,;.!]|\b(?:then|and|first|next|now))\s*$`)
	expectRe     = regexp.MustCompile(`(?i)\b(?:should|must|will|shall)\s+(?:be|display|show|contain|appear|have|read|say|equal|remain|become)\b|\bis\s+(?:displayed|shown|visible|present|enabled|disabled)\b`)
)

// DefaultRules is the fixed priority order of the built-in rules.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "upload", Kind: model.ActionUpload, Match: func(s model.Step) bool {
			return uploadRe.MatchString(s.Description)
		}},
		{Name: "navigate", Kind: model.ActionNavigate, Match: func(s model.Step) bool {
			if !navigateRe.MatchString(s.Description) {
				return false
			}
			_, inDesc := phrase.FirstURL(s.Description)
			return inDesc || phrase.IsURL(s.TestData)
		}},
		{Name: "assert-verb", Kind: model.ActionAssert, Match: func(s model.Step) bool {
			return assertRe.MatchString(s.Description)
		}},
		{Name: "check", Kind: model.ActionCheck, Match: func(s model.Step) bool {
			return checkNounRe.MatchString(s.Description) || startsWith(checkVerbRe, s.Description)
		}},
		{Name: "select-option", Kind: model.ActionSelect, Match: func(s model.Step) bool {
			return selectVerbRe.MatchString(s.Description) && selectNounRe.MatchString(s.Description) &&
				!linkNounRe.MatchString(s.Description)
		}},
		{Name: "click-link", Kind: model.ActionClick, Match: func(s model.Step) bool {
			return linkVerbRe.MatchString(s.Description) && linkNounRe.MatchString(s.Description)
		}},
		{Name: "fill", Kind: model.ActionFill, Match: func(s model.Step) bool {
			return fillRe.MatchString(pressEnterRe.ReplaceAllString(s.Description, ""))
		}},
		{Name: "click", Kind: model.ActionClick, Match: func(s model.Step) bool {
			return clickRe.MatchString(s.Description)
		}},
		{Name: "select-value", Kind: model.ActionSelect, Match: func(s model.Step) bool {
			return selectVerbRe.MatchString(s.Description) && strings.TrimSpace(s.TestData) != ""
		}},
		{Name: "assert-expectation", Kind: model.ActionAssert, Match: func(s model.Step) bool {
			return expectRe.MatchString(s.Description)
		}},
		{Name: "url-data", Kind: model.ActionNavigate, Match: func(s model.Step) bool {
			return phrase.IsURL(s.TestData) && !actionable(s.Description)
		}},
		{Name: "expected-only", Kind: model.ActionAssert, Match: func(s model.Step) bool {
			return strings.TrimSpace(s.ExpectedResult) != "" && !actionable(s.Description)
		}},
	}
}

// actionable reports whether text contains any verb that names an action.
// Navigation verbs double as adjectives ("the ticket is open"), so they only
// count when they lead a clause or take a navigation object.
func actionable(text string) bool {
	for _, re := range []*regexp.Regexp{uploadRe, checkVerbRe, selectVerbRe, fillRe, clickRe} {
		if re.MatchString(text) {
			return true
		}
	}
	for _, re := range []*regexp.Regexp{navigateRe, linkVerbRe} {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if clauseLeadRe.MatchString(text[:loc[0]]) || navObjectRe.MatchString(text[loc[1]:]) {
				return true
			}
		}
	}
	return false
}

func startsWith(re *regexp.Regexp, text string) bool {
	loc := re.FindStringIndex(text)
	return loc != nil && strings.TrimSpace(text[:loc[0]]) == ""
}
