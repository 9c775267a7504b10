package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/rs/zerolog/log"
)

// ChromeOptions configures the headless Chrome driver.
type ChromeOptions struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
}

// ChromeDriver drives a Chrome instance through the DevTools protocol.
type ChromeDriver struct {
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	opts        ChromeOptions
	mu          sync.Mutex
}

// NewChromeDriver starts a browser. Requires Chrome/Chromium on the system.
func NewChromeDriver(opts ChromeOptions) (*ChromeDriver, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth, opts.ViewportHeight = 1280, 800
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		log.Debug().Msgf(format, args...)
	}))
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	log.Info().Bool("headless", opts.Headless).Msg("chrome session started")

	return &ChromeDriver{allocCancel: allocCancel, ctx: ctx, cancel: cancel, opts: opts}, nil
}

// run executes actions with the driver timeout. Cancelling ctx also stops
// the actions; the orchestrator passes a context that is never cancelled.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	actx, cancel := context.WithTimeout(d.ctx, d.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(actx, actions...)
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var loc, title string
	if err := d.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&loc),
		chromedp.Title(&title),
	); err != nil {
		return Result{}, fmt.Errorf("navigate %s: %w", url, err)
	}
	return Result{
		Locators: []model.DiscoveredElement{{Strategy: "url", Value: loc, Role: "document"}},
		Observed: fmt.Sprintf("loaded %s (%s)", loc, title),
	}, nil
}

func (d *ChromeDriver) Click(ctx context.Context, t Target) (Result, error) {
	return d.act(ctx, t, "clicked", func(c candidate) chromedp.Action {
		return chromedp.Click(c.sel, c.by, chromedp.NodeVisible)
	})
}

func (d *ChromeDriver) Fill(ctx context.Context, t Target, value string) (Result, error) {
	return d.act(ctx, t, "filled", func(c candidate) chromedp.Action {
		return chromedp.Tasks{
			chromedp.Clear(c.sel, c.by),
			chromedp.SendKeys(c.sel, value, c.by),
		}
	})
}

func (d *ChromeDriver) Select(ctx context.Context, t Target, value string) (Result, error) {
	return d.act(ctx, t, "selected "+value+" in", func(c candidate) chromedp.Action {
		return chromedp.SetValue(c.sel, value, c.by)
	})
}

func (d *ChromeDriver) Check(ctx context.Context, t Target) (Result, error) {
	return d.act(ctx, t, "toggled", func(c candidate) chromedp.Action {
		return chromedp.Click(c.sel, c.by, chromedp.NodeVisible)
	})
}

func (d *ChromeDriver) Upload(ctx context.Context, t Target, path string) (Result, error) {
	return d.act(ctx, t, "attached "+path+" to", func(c candidate) chromedp.Action {
		return chromedp.SetUploadFiles(c.sel, []string{path}, c.by)
	})
}

// Snapshot captures the current URL, title and document markup.
func (d *ChromeDriver) Snapshot(ctx context.Context) (DOMSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var snap DOMSnapshot
	if err := d.run(ctx,
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.OuterHTML("html", &snap.HTML, chromedp.ByQuery),
	); err != nil {
		return DOMSnapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

// Close shuts the browser down.
func (d *ChromeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancel()
	d.allocCancel()
	log.Debug().Msg("chrome session closed")
	return nil
}

func (d *ChromeDriver) act(ctx context.Context, t Target, verb string, do func(candidate) chromedp.Action) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, err := d.find(ctx, t)
	if err != nil {
		return Result{}, err
	}
	var loc string
	if err := d.run(ctx, do(c), chromedp.Location(&loc)); err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", strings.Fields(verb)[0], t, err)
	}
	return Result{
		Locators: []model.DiscoveredElement{c.element(t.Role)},
		Observed: fmt.Sprintf("%s %s; page at %s", verb, t, loc),
	}, nil
}

// find returns the first candidate locator that matches at least one node.
func (d *ChromeDriver) find(ctx context.Context, t Target) (candidate, error) {
	for _, c := range candidates(t) {
		var nodes []*cdp.Node
		if err := d.run(ctx, chromedp.Nodes(c.sel, &nodes, c.by, chromedp.AtLeast(0))); err != nil {
			return candidate{}, fmt.Errorf("query %s: %w", c.sel, err)
		}
		if len(nodes) > 0 {
			log.Debug().Str("target", t.Label).Str("locator", c.sel).Int("matches", len(nodes)).Msg("target resolved")
			return c, nil
		}
	}
	return candidate{}, fmt.Errorf("%s: %w", t, ErrNotFound)
}

type candidate struct {
	strategy string
	sel      string
	by       chromedp.QueryOption
}

func (c candidate) element(role string) model.DiscoveredElement {
	return model.DiscoveredElement{Strategy: c.strategy, Value: c.sel, Role: role}
}

func css(sel string) candidate   { return candidate{"css", sel, chromedp.ByQuery} }
func xpath(sel string) candidate { return candidate{"xpath", sel, chromedp.BySearch} }

// candidates lists locators for a target, most specific first.
func candidates(t Target) []candidate {
	if t.Selector != "" {
		return []candidate{css(t.Selector)}
	}
	l := t.Label
	lit := xpathLiteral(l)
	var out []candidate
	switch t.Role {
	case "textbox", "combobox", "listbox", "file", "checkbox", "radio":
		out = append(out,
			xpath(fmt.Sprintf(`//label[normalize-space(.)=%s]/following::*[self::input or self::select or self::textarea][1]`, lit)),
			css(fmt.Sprintf(`[aria-label=%s]`, cssString(l))),
			css(fmt.Sprintf(`[placeholder=%s]`, cssString(l))),
			css(fmt.Sprintf(`[name=%s]`, cssString(l))),
		)
	case "link":
		out = append(out, xpath(fmt.Sprintf(`//a[normalize-space(.)=%s]`, lit)))
	default:
		out = append(out,
			xpath(fmt.Sprintf(`//button[normalize-space(.)=%s]`, lit)),
			xpath(fmt.Sprintf(`//input[(@type="submit" or @type="button") and @value=%s]`, lit)),
			xpath(fmt.Sprintf(`//*[@role=%s and normalize-space(.)=%s]`, xpathLiteral(orDefault(t.Role, "button")), lit)),
			xpath(fmt.Sprintf(`//a[normalize-space(.)=%s]`, lit)),
			css(fmt.Sprintf(`[aria-label=%s]`, cssString(l))),
		)
	}
	out = append(out,
		css(fmt.Sprintf(`[data-testid=%s]`, cssString(l))),
		xpath(fmt.Sprintf(`//*[normalize-space(text())=%s]`, lit)),
	)
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// xpathLiteral quotes s as an XPath 1.0 string literal.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(quoted, `, '"', `) + ")"
}

func cssString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
