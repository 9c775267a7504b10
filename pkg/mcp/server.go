// Package mcp exposes the casewright pipeline as MCP tools so an agent can
// act as the interactive session.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ormasoftchile/casewright/pkg/pipeline"
)

// NewServer creates an MCP server with the casewright tools registered.
func NewServer(version string, svc *pipeline.Service) *server.MCPServer {
	s := server.NewMCPServer(
		"casewright",
		version,
		server.WithToolCapabilities(true),
	)
	h := NewHandlers(svc)

	s.AddTool(
		mcp.NewTool("casewright/validate",
			mcp.WithDescription("Validate a test case document (YAML, JSON or XML)"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the case document")),
		),
		h.Validate,
	)

	s.AddTool(
		mcp.NewTool("casewright/classify",
			mcp.WithDescription("Classify every step of a case into an action kind"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the case document")),
		),
		h.Classify,
	)

	s.AddTool(
		mcp.NewTool("casewright/status",
			mcp.WithDescription("Show the committed checkpoint of a case"),
			mcp.WithString("case_id", mcp.Required(), mcp.Description("Case ID")),
		),
		h.Status,
	)

	s.AddTool(
		mcp.NewTool("casewright/next_step",
			mcp.WithDescription("Return the next step to perform, with its action kind and derived parameters"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Case document path, or the ID of a case already started")),
		),
		h.NextStep,
	)

	s.AddTool(
		mcp.NewTool("casewright/record_step",
			mcp.WithDescription("Record the outcome of the step you just performed and commit the checkpoint"),
			mcp.WithString("case_id", mcp.Required(), mcp.Description("Case ID or document path")),
			mcp.WithNumber("index", mcp.Required(), mcp.Description("Index of the step performed")),
			mcp.WithString("status", mcp.Required(), mcp.Description("'succeeded' or 'failed'")),
			mcp.WithArray("locators", mcp.WithStringItems(),
				mcp.Description("Locators used, as 'strategy=value [role]', e.g. 'css=#login [button]'")),
			mcp.WithString("observed", mcp.Description("What happened on the page")),
		),
		h.RecordStep,
	)

	s.AddTool(
		mcp.NewTool("casewright/set_kind",
			mcp.WithDescription("Assign an action kind to a step the classifier could not decide"),
			mcp.WithString("case_id", mcp.Required(), mcp.Description("Case ID or document path")),
			mcp.WithNumber("index", mcp.Required(), mcp.Description("Step index")),
			mcp.WithString("kind", mcp.Required(), mcp.Description("Navigate, Click, Fill, Select, Check, Upload or Assert")),
		),
		h.SetKind,
	)

	s.AddTool(
		mcp.NewTool("casewright/resolve",
			mcp.WithDescription("Match executed steps to page-object methods and list methods that need to be written"),
			mcp.WithString("case_id", mcp.Required(), mcp.Description("Case ID")),
		),
		h.Resolve,
	)

	s.AddTool(
		mcp.NewTool("casewright/generate",
			mcp.WithDescription("Generate the Playwright test for a fully executed and resolved case"),
			mcp.WithString("case_id", mcp.Required(), mcp.Description("Case ID")),
		),
		h.Generate,
	)

	s.AddTool(
		mcp.NewTool("casewright/schema",
			mcp.WithDescription("Export casewright JSON Schema (case or catalog)"),
			mcp.WithString("type", mcp.Required(), mcp.Description("Schema type: 'case' or 'catalog'")),
		),
		HandleSchema,
	)

	return s
}
