// Package session defines the interactive session driver the orchestrator
// dispatches step actions to, plus its chromedp, manual and scripted
// implementations.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ormasoftchile/casewright/pkg/model"
)

// ErrNotFound is returned when no element matches a target.
var ErrNotFound = errors.New("element not found")

// Target is a hint for locating the element an action applies to.
type Target struct {
	Label    string `yaml:"label"              json:"label"`
	Role     string `yaml:"role,omitempty"     json:"role,omitempty"`
	Selector string `yaml:"selector,omitempty" json:"selector,omitempty"`
}

// NewTarget builds a target from a label; labels that already look like a CSS
// selector (#id, .class, [attr]) are used as the selector directly.
func NewTarget(label, role string) Target {
	label = strings.TrimSpace(label)
	t := Target{Label: label, Role: role}
	if len(label) > 1 && strings.ContainsRune("#.[", rune(label[0])) && !strings.ContainsRune(label, ' ') {
		t.Selector = label
	}
	return t
}

func (t Target) String() string {
	if t.Selector != "" {
		return t.Selector
	}
	if t.Role != "" {
		return fmt.Sprintf("%q %s", t.Label, t.Role)
	}
	return fmt.Sprintf("%q", t.Label)
}

// Result is what a successful action reports back.
type Result struct {
	Locators []model.DiscoveredElement `yaml:"locators" json:"locators"`
	Observed string                    `yaml:"observed" json:"observed"`
}

// DOMSnapshot is the page state captured for assertions.
type DOMSnapshot struct {
	URL   string `yaml:"url"   json:"url"`
	Title string `yaml:"title" json:"title"`
	HTML  string `yaml:"html"  json:"html"`
}

// Driver performs step actions against one exclusive live session. Each
// action either fails or returns the concrete locators that resolved its
// target. Drivers own action-level timeouts.
type Driver interface {
	Navigate(ctx context.Context, url string) (Result, error)
	Click(ctx context.Context, t Target) (Result, error)
	Fill(ctx context.Context, t Target, value string) (Result, error)
	Select(ctx context.Context, t Target, value string) (Result, error)
	Check(ctx context.Context, t Target) (Result, error)
	Upload(ctx context.Context, t Target, path string) (Result, error)
	Snapshot(ctx context.Context) (DOMSnapshot, error)
	Close() error
}
