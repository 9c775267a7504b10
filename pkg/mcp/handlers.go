package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/ormasoftchile/casewright/pkg/classify"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/orchestrator"
	"github.com/ormasoftchile/casewright/pkg/pipeline"
	"github.com/ormasoftchile/casewright/pkg/schema"
	"github.com/ormasoftchile/casewright/pkg/session"
)

// Handlers implements the casewright tools on top of a pipeline service.
type Handlers struct {
	svc *pipeline.Service
}

// NewHandlers creates handlers for svc.
func NewHandlers(svc *pipeline.Service) *Handlers {
	return &Handlers{svc: svc}
}

// Validate implements casewright/validate.
func (h *Handlers) Validate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := stringArg(req, "path")
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	tc, findings, err := h.svc.Validate(path)
	if schema.HasErrors(findings) {
		return errorResult(formatErrors(findings)), nil
	}
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d steps)", tc.ID, len(tc.Steps))), nil
}

// Classify implements casewright/classify. Unknown steps are reported in
// the result, not as a tool error.
func (h *Handlers) Classify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := stringArg(req, "path")
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	tc, kinds, err := h.svc.Classify(ctx, path)
	var amb *classify.ClassificationAmbiguousError
	if err != nil && !errors.As(err, &amb) {
		return errorResult(err.Error()), nil
	}
	response := map[string]any{"caseId": tc.ID, "steps": kinds}
	if amb != nil {
		response["unknown"] = amb.Indices
		response["hint"] = "assign a kind to each unknown step with casewright/set_kind"
	}
	return jsonResult(response, false), nil
}

// Status implements casewright/status.
func (h *Handlers) Status(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(req, "case_id")
	if id == "" {
		return errorResult("case_id argument is required"), nil
	}
	rec, err := h.svc.Status(ctx, id)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	done, total := rec.Case.Progress()
	return jsonResult(map[string]any{
		"caseId":   rec.CaseID,
		"revision": rec.Revision,
		"state":    rec.Case.State(),
		"done":     done,
		"total":    total,
		"steps":    rec.Case.Steps,
	}, false), nil
}

// NextStep implements casewright/next_step.
func (h *Handlers) NextStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := stringArg(req, "path")
	if ref == "" {
		return errorResult("path argument is required"), nil
	}
	next, err := h.svc.Next(ctx, ref)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if next == nil {
		return textResult("✓ case is complete; call casewright/resolve next"), nil
	}
	return jsonResult(next, false), nil
}

// RecordStep implements casewright/record_step.
func (h *Handlers) RecordStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := stringArg(req, "case_id")
	index, ok := intArg(req, "index")
	if ref == "" || !ok {
		return errorResult("case_id and index arguments are required"), nil
	}
	report := orchestrator.Report{Index: index, Observed: stringArg(req, "observed")}
	switch strings.ToLower(stringArg(req, "status")) {
	case "succeeded", "success", "passed":
		report.Succeeded = true
	case "failed", "failure":
	default:
		return errorResult("status must be 'succeeded' or 'failed'"), nil
	}
	if raw, ok := req.GetArguments()["locators"].([]any); ok {
		for _, v := range raw {
			s, _ := v.(string)
			loc, err := session.ParseLocator(s)
			if err != nil {
				return errorResult(fmt.Sprintf("locator %q: %s", s, err)), nil
			}
			report.Locators = append(report.Locators, loc)
		}
	}

	rec, err := h.svc.Record(ctx, ref, report)
	var af *orchestrator.ActionFailure
	switch {
	case errors.As(err, &af):
		return jsonResult(map[string]any{
			"revision": rec.Revision,
			"halted":   true,
			"reason":   af.Reason,
		}, true), nil
	case err != nil:
		return errorResult(err.Error()), nil
	}
	return jsonResult(map[string]any{"revision": rec.Revision, "state": rec.Case.State()}, false), nil
}

// SetKind implements casewright/set_kind.
func (h *Handlers) SetKind(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := stringArg(req, "case_id")
	index, ok := intArg(req, "index")
	if ref == "" || !ok {
		return errorResult("case_id and index arguments are required"), nil
	}
	kind, err := model.ParseActionKind(stringArg(req, "kind"))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	rec, err := h.svc.SetKind(ctx, ref, index, kind)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("✓ step %d of %s is now %s (revision %d)", index, rec.CaseID, kind, rec.Revision)), nil
}

// Resolve implements casewright/resolve.
func (h *Handlers) Resolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(req, "case_id")
	if id == "" {
		return errorResult("case_id argument is required"), nil
	}
	res, err := h.svc.Resolve(ctx, id)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	proposals := make([]model.MethodCatalogEntry, len(res.Pending))
	for i, p := range res.Pending {
		proposals[i] = p.Entry()
	}
	return jsonResult(map[string]any{
		"revision":    res.Record.Revision,
		"resolutions": res.Resolutions,
		"needsNew":    proposals,
	}, false), nil
}

// Generate implements casewright/generate.
func (h *Handlers) Generate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(req, "case_id")
	if id == "" {
		return errorResult("case_id argument is required"), nil
	}
	gen, err := h.svc.Generate(ctx, id)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(gen, false), nil
}

// HandleSchema implements casewright/schema.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var data []byte
	var err error

	switch t := stringArg(req, "type"); t {
	case "case":
		data, err = schema.GenerateJSONSchema()
	case "catalog":
		data, err = schema.GenerateCatalogJSONSchema()
	default:
		return errorResult(fmt.Sprintf("unknown schema type %q, use 'case' or 'catalog'", t)), nil
	}

	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

func stringArg(req mcp.CallToolRequest, name string) string {
	s, _ := req.GetArguments()[name].(string)
	return strings.TrimSpace(s)
}

// intArg accepts JSON numbers and numeric strings.
func intArg(req mcp.CallToolRequest, name string) (int, bool) {
	switch v := req.GetArguments()[name].(type) {
	case float64:
		return int(v), v == float64(int(v))
	case int:
		return v, true
	case string:
		var n int
		_, err := fmt.Sscanf(v, "%d", &n)
		return n, err == nil
	}
	return 0, false
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Phase, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func jsonResult(v any, isErr bool) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
