// Package codegen renders a completed execution trace as a Playwright
// TypeScript test that calls the resolved page-object methods.
package codegen

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/ormasoftchile/casewright/pkg/classify"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/phrase"
)

//go:embed templates/playwright.ts.tmpl
var defaultTemplate string

// IncompleteTraceError lists the steps that block generation, in index order.
type IncompleteTraceError struct {
	CaseID  string
	Indices []int
	Reasons map[int]string
}

func (e *IncompleteTraceError) Error() string {
	parts := make([]string, len(e.Indices))
	for i, idx := range e.Indices {
		parts[i] = fmt.Sprintf("%d (%s)", idx, e.Reasons[idx])
	}
	return fmt.Sprintf("case %q: cannot generate code, incomplete steps: %s", e.CaseID, strings.Join(parts, ", "))
}

// SourceArtifact is one generated test file.
type SourceArtifact struct {
	CaseID  string `json:"caseId"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Options configures generation.
type Options struct {
	// TemplatePath overrides the embedded template.
	TemplatePath string
	// PagesImport is the module path prefix page-object classes are
	// imported from.
	PagesImport string
	// Catalog supplies argument lists for resolved methods; methods not
	// found use the defaults for their step kind.
	Catalog []model.MethodCatalogEntry
}

// Generator renders traces with a parsed template.
type Generator struct {
	tmpl *template.Template
	opts Options
	args map[string][]string
}

// New parses the template.
func New(opts Options) (*Generator, error) {
	src := defaultTemplate
	if opts.TemplatePath != "" {
		data, err := os.ReadFile(opts.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("read template: %w", err)
		}
		src = string(data)
	}
	if opts.PagesImport == "" {
		opts.PagesImport = "../pages"
	}
	tmpl, err := template.New("spec").Option("missingkey=error").Funcs(template.FuncMap{"ts": tsString}).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	g := &Generator{tmpl: tmpl, opts: opts, args: make(map[string][]string)}
	for _, e := range opts.Catalog {
		if _, ok := g.args[e.Reference]; !ok {
			g.args[e.Reference] = e.Args
		}
	}
	return g, nil
}

type importData struct {
	Class string
	Var   string
	Path  string
}

type stepData struct {
	Label string
	Lines []string
}

type fileData struct {
	CaseID        string
	Title         string
	Objective     string
	Preconditions string
	Imports       []importData
	Steps         []stepData
}

// Check returns an IncompleteTraceError when any step is not succeeded or
// has no resolved method.
func Check(trace model.ExecutionTrace) error {
	reasons := make(map[int]string)
	var idx []int
	for _, s := range trace.Steps {
		var why string
		switch {
		case s.Status != model.StatusSucceeded:
			why = strings.ToLower(string(s.Status))
		case s.ResolvedMethod == nil || s.ResolvedMethod.Reference == "":
			why = "no resolved method"
		default:
			continue
		}
		idx = append(idx, s.Index)
		reasons[s.Index] = why
	}
	if len(trace.Steps) == 0 {
		return fmt.Errorf("case %q: trace has no steps", trace.CaseID)
	}
	if len(idx) == 0 {
		return nil
	}
	sort.Ints(idx)
	return &IncompleteTraceError{CaseID: trace.CaseID, Indices: idx, Reasons: reasons}
}

// Generate renders the trace. Output depends only on the trace and options.
func (g *Generator) Generate(trace model.ExecutionTrace) (*SourceArtifact, error) {
	if err := Check(trace); err != nil {
		return nil, err
	}

	steps := append([]model.Step(nil), trace.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Index < steps[j].Index })

	data := fileData{
		CaseID:        trace.CaseID,
		Title:         phrase.Collapse(orDefault(trace.CaseName, trace.CaseID)),
		Objective:     phrase.Collapse(trace.Objective),
		Preconditions: phrase.Collapse(trace.Preconditions),
	}
	classes := make(map[string]bool)
	for _, s := range steps {
		ref := *s.ResolvedMethod
		class := orDefault(ref.Class(), "Page")
		classes[class] = true
		data.Steps = append(data.Steps, stepData{
			Label: fmt.Sprintf("%d. %s", s.Index, label(s.Description)),
			Lines: g.lines(s, instanceName(class), ref.Method()),
		})
	}
	names := make([]string, 0, len(classes))
	for c := range classes {
		names = append(names, c)
	}
	sort.Strings(names)
	for _, c := range names {
		data.Imports = append(data.Imports, importData{Class: c, Var: instanceName(c), Path: g.opts.PagesImport + "/" + c})
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", trace.CaseID, err)
	}
	return &SourceArtifact{CaseID: trace.CaseID, Path: FileName(trace.CaseID), Content: buf.String()}, nil
}

// lines renders the method call and the assertions implied by the
// expected result.
func (g *Generator) lines(s model.Step, instance, method string) []string {
	p := classify.ParamsFor(s)
	argNames, ok := g.args[s.ResolvedMethod.Reference]
	if !ok {
		argNames = defaultArgs(s.Action)
	}
	args := make([]string, 0, len(argNames))
	for _, a := range argNames {
		var v string
		switch a {
		case "url":
			v = p.URL
		case "value", "path":
			v = p.Value
		case "target":
			v = p.Target
		}
		args = append(args, "'"+tsString(v)+"'")
	}
	out := []string{fmt.Sprintf("await %s.%s(%s);", instance, method, strings.Join(args, ", "))}

	expected := strings.TrimSpace(s.ExpectedResult)
	quoted := phrase.Quoted(expected)
	for _, q := range quoted {
		out = append(out, fmt.Sprintf("await expect(page.getByText('%s')).toBeVisible();", tsString(q)))
	}
	if len(quoted) == 0 && expected != "" {
		out = append(out, "// Expected: "+phrase.Collapse(expected))
	}
	return out
}

func defaultArgs(kind model.ActionKind) []string {
	switch kind {
	case model.ActionNavigate:
		return []string{"url"}
	case model.ActionFill, model.ActionSelect:
		return []string{"value"}
	case model.ActionUpload:
		return []string{"path"}
	}
	return nil
}

// Write stores the artifact under dir. An existing file with different
// content is kept as <file>.bak.
func Write(a *SourceArtifact, dir string) (string, error) {
	path := filepath.Join(dir, a.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if existing, err := os.ReadFile(path); err == nil && string(existing) != a.Content {
		if err := os.WriteFile(path+".bak", existing, 0o644); err != nil {
			return "", fmt.Errorf("backup %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

// FileName is the spec file name for a case ("TC-2001" -> "tc-2001.spec.ts").
func FileName(caseID string) string {
	name := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(caseID), "-"), "-")
	if name == "" {
		name = "case"
	}
	return name + ".spec.ts"
}

func instanceName(class string) string {
	if class == "" {
		return "page"
	}
	name := strings.ToLower(class[:1]) + class[1:]
	if name == "page" {
		return "pageObject"
	}
	return name
}

// label shortens a description to a one-line step label.
func label(desc string) string {
	desc = phrase.Collapse(desc)
	if r := []rune(desc); len(r) > 80 {
		desc = strings.TrimSpace(string(r[:77])) + "..."
	}
	return desc
}

var tsEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`, "\u2028", `\u2028`, "\u2029", `\u2029`)

// tsString escapes s for a single-quoted TypeScript string literal.
func tsString(s string) string {
	return tsEscaper.Replace(s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
