package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/ormasoftchile/casewright/pkg/model"
)

// Strategies are the locator strategies an operator may report.
var Strategies = []string{"css", "xpath", "text", "label", "placeholder", "role", "testid", "url"}

// Prompter reads one answer from the operator.
type Prompter interface {
	Prompt(label string) (string, error)
	Close() error
}

// ReadlinePrompter prompts on the terminal with locator completion.
type ReadlinePrompter struct {
	rl *readline.Instance
}

// NewReadlinePrompter creates a terminal prompter.
func NewReadlinePrompter() (*ReadlinePrompter, error) {
	completer := readline.NewPrefixCompleter(readline.PcItem("fail"))
	for _, s := range Strategies {
		completer.Children = append(completer.Children, readline.PcItem(s+"="))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "fail",
	})
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}
	return &ReadlinePrompter{rl: rl}, nil
}

func (p *ReadlinePrompter) Prompt(label string) (string, error) {
	p.rl.SetPrompt(label + "> ")
	line, err := p.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", fmt.Errorf("operator aborted: %w", err)
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *ReadlinePrompter) Close() error { return p.rl.Close() }

// ManualDriver asks a human operator to perform each action in their own
// browser and report the locator they used. Typing "fail <reason>" reports
// the action as failed.
type ManualDriver struct {
	prompter Prompter
	out      io.Writer
}

// NewManualDriver creates a driver that prints instructions to out.
func NewManualDriver(p Prompter, out io.Writer) *ManualDriver {
	return &ManualDriver{prompter: p, out: out}
}

func (d *ManualDriver) Navigate(_ context.Context, url string) (Result, error) {
	fmt.Fprintf(d.out, "\n→ Open %s\n", url)
	return d.collect("navigated to "+url, &model.DiscoveredElement{Strategy: "url", Value: url, Role: "document"})
}

func (d *ManualDriver) Click(_ context.Context, t Target) (Result, error) {
	fmt.Fprintf(d.out, "\n→ Click %s\n", t)
	return d.collect("clicked "+t.String(), nil)
}

func (d *ManualDriver) Fill(_ context.Context, t Target, value string) (Result, error) {
	fmt.Fprintf(d.out, "\n→ Enter %q into %s\n", value, t)
	return d.collect("filled "+t.String(), nil)
}

func (d *ManualDriver) Select(_ context.Context, t Target, value string) (Result, error) {
	fmt.Fprintf(d.out, "\n→ Select %q in %s\n", value, t)
	return d.collect("selected "+value, nil)
}

func (d *ManualDriver) Check(_ context.Context, t Target) (Result, error) {
	fmt.Fprintf(d.out, "\n→ Toggle %s\n", t)
	return d.collect("toggled "+t.String(), nil)
}

func (d *ManualDriver) Upload(_ context.Context, t Target, path string) (Result, error) {
	fmt.Fprintf(d.out, "\n→ Attach %s to %s\n", path, t)
	return d.collect("attached "+path, nil)
}

// Snapshot asks the operator for the current URL and the markup or visible
// text of the region the expectation is about.
func (d *ManualDriver) Snapshot(_ context.Context) (DOMSnapshot, error) {
	fmt.Fprintln(d.out, "\n→ Capture the page: paste the outer HTML (or visible text) of the relevant region")
	url, err := d.prompter.Prompt("url")
	if err != nil {
		return DOMSnapshot{}, err
	}
	html, err := d.prompter.Prompt("html")
	if err != nil {
		return DOMSnapshot{}, err
	}
	return DOMSnapshot{URL: url, HTML: html}, nil
}

func (d *ManualDriver) Close() error { return d.prompter.Close() }

func (d *ManualDriver) collect(fallback string, def *model.DiscoveredElement) (Result, error) {
	fmt.Fprintf(d.out, "  Report the locator as strategy=value [role] (%s), or 'fail <reason>'\n", strings.Join(Strategies, ", "))
	line, err := d.prompter.Prompt("locator")
	if err != nil {
		return Result{}, err
	}
	if reason, ok := failure(line); ok {
		return Result{}, fmt.Errorf("operator reported failure: %s", reason)
	}

	var loc model.DiscoveredElement
	switch {
	case line == "" && def != nil:
		loc = *def
	case line == "":
		return Result{}, fmt.Errorf("no locator reported: %w", ErrNotFound)
	default:
		if loc, err = ParseLocator(line); err != nil {
			return Result{}, err
		}
	}

	observed, err := d.prompter.Prompt("observed")
	if err != nil {
		return Result{}, err
	}
	if reason, ok := failure(observed); ok {
		return Result{}, fmt.Errorf("operator reported failure: %s", reason)
	}
	if observed == "" {
		observed = fallback
	}
	return Result{Locators: []model.DiscoveredElement{loc}, Observed: observed}, nil
}

func failure(line string) (string, bool) {
	if line == "fail" || strings.HasPrefix(line, "fail ") {
		return strings.TrimSpace(strings.TrimPrefix(line, "fail")), true
	}
	return "", false
}

// ParseLocator parses "strategy=value" with an optional trailing "[role]".
// A bare value is taken as a CSS selector.
func ParseLocator(s string) (model.DiscoveredElement, error) {
	s = strings.TrimSpace(s)
	var role string
	if strings.HasSuffix(s, "]") {
		if i := strings.LastIndex(s, " ["); i > 0 {
			role = strings.TrimSpace(s[i+2 : len(s)-1])
			s = strings.TrimSpace(s[:i])
		}
	}
	strategy, value, ok := strings.Cut(s, "=")
	if !ok || !known(strategy) {
		strategy, value = "css", s
	}
	if value == "" {
		return model.DiscoveredElement{}, fmt.Errorf("empty locator value in %q", s)
	}
	return model.DiscoveredElement{Strategy: strategy, Value: value, Role: role}, nil
}

func known(strategy string) bool {
	for _, s := range Strategies {
		if s == strategy {
			return true
		}
	}
	return false
}
