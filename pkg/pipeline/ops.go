package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ormasoftchile/casewright/pkg/checkpoint"
	"github.com/ormasoftchile/casewright/pkg/classify"
	"github.com/ormasoftchile/casewright/pkg/codegen"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/orchestrator"
	"github.com/ormasoftchile/casewright/pkg/parser"
	"github.com/ormasoftchile/casewright/pkg/resolver"
	"github.com/ormasoftchile/casewright/pkg/schema"
	"github.com/rs/zerolog/log"
)

// Validate checks a case document through every phase and parses it.
func (s *Service) Validate(path string) (*model.TestCase, []*schema.ValidationError, error) {
	return ValidateFile(path)
}

// ValidateFile is Validate without a service. Validation findings are
// returned, not treated as errors; the error is the parser's when the
// document is not a well-formed case.
func ValidateFile(path string) (*model.TestCase, []*schema.ValidationError, error) {
	doc, findings := schema.ValidateFile(path)
	if doc == nil {
		return nil, findings, nil
	}
	tc, err := parser.Parse(doc)
	if err != nil {
		return nil, findings, err
	}
	tc.Source = path
	return tc, findings, nil
}

// Classification is one step's assigned kind and the rule that assigned it.
type Classification struct {
	Index       int              `json:"index"`
	Description string           `json:"description"`
	Kind        model.ActionKind `json:"kind"`
	Source      string           `json:"source,omitempty"`
}

// Classify classifies a document. When a checkpoint exists its manual
// assignments take precedence over the rules.
func (s *Service) Classify(ctx context.Context, path string) (*model.TestCase, []Classification, error) {
	tc, err := s.Prepare(path)
	var amb *classify.ClassificationAmbiguousError
	if err != nil && !errors.As(err, &amb) {
		return nil, nil, err
	}
	rec, lerr := s.store.Load(ctx, tc.ID)
	if lerr != nil {
		return nil, nil, lerr
	}
	if rec != nil {
		tc = rec.Case.Clone()
		err = classify.Unresolved(tc)
	}
	out := make([]Classification, len(tc.Steps))
	for i, st := range tc.Steps {
		out[i] = Classification{Index: st.Index, Description: st.Description, Kind: st.Action, Source: st.KindSource}
	}
	return tc, out, err
}

// SetKind records a human classification for one step and commits it. ref
// is a case ID with a checkpoint or a case document path.
func (s *Service) SetKind(ctx context.Context, ref string, index int, kind model.ActionKind) (*model.CheckpointRecord, error) {
	tc, err := s.caseFor(ctx, ref)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Load(ctx, tc.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = model.NewRecord(tc)
	}
	if err := classify.Assign(&rec.Case, index, kind); err != nil {
		return nil, err
	}
	committed, err := s.store.Commit(ctx, rec)
	if err != nil {
		return nil, err
	}
	log.Info().Str("case", committed.CaseID).Int("step", index).Str("kind", string(kind)).
		Int64("revision", committed.Revision).Msg("kind assigned manually")
	return committed, nil
}

// Status returns the committed record of a case.
func (s *Service) Status(ctx context.Context, caseID string) (*model.CheckpointRecord, error) {
	rec, err := s.store.Load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("case %q: %w", caseID, checkpoint.ErrNotFound)
	}
	return rec, nil
}

// List summarises every active case.
func (s *Service) List(ctx context.Context) ([]checkpoint.Summary, error) {
	return s.store.List(ctx)
}

// Archive removes a case from the active set.
func (s *Service) Archive(ctx context.Context, caseID string) error {
	return s.store.Archive(ctx, caseID)
}

// Catalog loads and compiles the configured method catalog.
func (s *Service) Catalog() (*schema.Catalog, *resolver.Catalog, error) {
	doc, err := schema.LoadCatalogFile(s.cfg.Catalog.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := schema.FirstError(schema.ValidateCatalog(doc)); err != nil {
		return nil, nil, fmt.Errorf("catalog %s: %w", s.cfg.Catalog.Path, err)
	}
	compiled, err := resolver.Compile(doc.Methods)
	if err != nil {
		return nil, nil, err
	}
	return doc, compiled, nil
}

// ResolveResult is the outcome of resolving a case.
type ResolveResult struct {
	Record      *model.CheckpointRecord    `json:"record"`
	Resolutions []resolver.Resolution      `json:"resolutions"`
	Pending     []*resolver.NeedsNewMethod `json:"pending,omitempty"`
}

// Resolve matches every succeeded step of a case against the catalog and
// commits the resolved methods as one new revision. Nothing is committed
// when no step changed.
func (s *Service) Resolve(ctx context.Context, caseID string) (*ResolveResult, error) {
	rec, err := s.Status(ctx, caseID)
	if err != nil {
		return nil, err
	}
	_, cat, err := s.Catalog()
	if err != nil {
		return nil, err
	}
	resolved, res := cat.ResolveRecord(rec)
	out := &ResolveResult{Record: rec, Resolutions: res, Pending: resolver.Pending(res)}
	if !methodsChanged(rec, resolved) {
		return out, nil
	}
	committed, err := s.store.Commit(ctx, resolved)
	if err != nil {
		return nil, err
	}
	out.Record = committed
	return out, nil
}

func methodsChanged(before, after *model.CheckpointRecord) bool {
	return !slices.EqualFunc(before.Case.Steps, after.Case.Steps, func(a, b model.Step) bool {
		switch {
		case a.ResolvedMethod == nil || b.ResolvedMethod == nil:
			return a.ResolvedMethod == b.ResolvedMethod
		default:
			return *a.ResolvedMethod == *b.ResolvedMethod
		}
	})
}

// AddMethod appends an entry to the catalog file after validating it.
func (s *Service) AddMethod(entry model.MethodCatalogEntry) error {
	doc, _, err := s.Catalog()
	if err != nil {
		return err
	}
	doc.Methods = append(doc.Methods, entry)
	if err := schema.FirstError(schema.ValidateCatalog(doc)); err != nil {
		return fmt.Errorf("catalog entry %s: %w", entry.Reference, err)
	}
	if _, err := resolver.Compile(doc.Methods); err != nil {
		return err
	}
	return schema.SaveCatalogFile(s.cfg.Catalog.Path, doc)
}

// Generated is the outcome of generating a case.
type Generated struct {
	Artifact *codegen.SourceArtifact `json:"artifact"`
	Path     string                  `json:"path"`
	Archived bool                    `json:"archived"`
}

// Generate renders the case's test source, writes it to the output
// directory and archives the checkpoint when configured to.
func (s *Service) Generate(ctx context.Context, caseID string) (*Generated, error) {
	rec, err := s.Status(ctx, caseID)
	if err != nil {
		return nil, err
	}
	catDoc, _, err := s.Catalog()
	if err != nil {
		return nil, err
	}
	gen, err := codegen.New(codegen.Options{
		TemplatePath: s.cfg.Codegen.Template,
		PagesImport:  s.cfg.Codegen.ImportPrefix,
		Catalog:      catDoc.Methods,
	})
	if err != nil {
		return nil, err
	}
	artifact, err := gen.Generate(rec.Trace())
	if err != nil {
		return nil, err
	}
	path, err := codegen.Write(artifact, s.cfg.Codegen.OutDir)
	if err != nil {
		return nil, err
	}
	out := &Generated{Artifact: artifact, Path: path}
	if s.cfg.Codegen.Archive {
		if err := s.store.Archive(ctx, caseID); err != nil {
			return out, fmt.Errorf("archive %s: %w", caseID, err)
		}
		out.Archived = true
	}
	log.Info().Str("case", caseID).Str("path", path).Bool("archived", out.Archived).Msg("test generated")
	return out, nil
}

// Next returns the next step an external executor should perform. ref is a
// case document path or the ID of a case seen before.
func (s *Service) Next(ctx context.Context, ref string) (*orchestrator.NextStep, error) {
	tc, err := s.caseFor(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.newOrchestrator(nil).Next(ctx, tc)
}

// Record commits an externally performed step outcome.
func (s *Service) Record(ctx context.Context, ref string, r orchestrator.Report) (*model.CheckpointRecord, error) {
	tc, err := s.caseFor(ctx, ref)
	if err != nil {
		return nil, err
	}
	lock, err := checkpoint.TryLockCase(s.cfg.Checkpoint.Dir, tc.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()
	return s.newOrchestrator(nil).Record(ctx, tc, r)
}
