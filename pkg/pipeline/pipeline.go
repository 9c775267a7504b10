// Package pipeline wires configuration, the checkpoint store, the classifier,
// session drivers, the resolver and the code generator into the operations
// the CLI and the MCP server expose.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ormasoftchile/casewright/pkg/checkpoint"
	"github.com/ormasoftchile/casewright/pkg/classify"
	"github.com/ormasoftchile/casewright/pkg/config"
	"github.com/ormasoftchile/casewright/pkg/db"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/orchestrator"
	"github.com/ormasoftchile/casewright/pkg/parser"
	"github.com/ormasoftchile/casewright/pkg/session"
	"github.com/ormasoftchile/casewright/pkg/trace"
)

// Service is the application façade. It is safe for concurrent use.
type Service struct {
	cfg        config.Config
	store      checkpoint.Store
	closers    []io.Closer
	classifier *classify.Classifier
	drivers    DriverFactory
	tracer     *trace.Writer
	out        io.Writer

	mu    sync.Mutex
	paths map[string]string // case ID -> source document, for step-wise runs
}

// Option customises a Service.
type Option func(*Service)

// WithStore replaces the configured checkpoint store.
func WithStore(s checkpoint.Store) Option {
	return func(svc *Service) { svc.store = s }
}

// WithDriverFactory replaces the configured driver factory.
func WithDriverFactory(f DriverFactory) Option {
	return func(svc *Service) { svc.drivers = f }
}

// WithOutput sets where human-readable progress is written.
func WithOutput(w io.Writer) Option {
	return func(svc *Service) { svc.out = w }
}

// WithTrace sets the run trace writer.
func WithTrace(tw *trace.Writer) Option {
	return func(svc *Service) { svc.tracer = tw }
}

// New builds a Service from cfg.
func New(cfg config.Config, opts ...Option) (*Service, error) {
	rules := make([]classify.Rule, 0, len(cfg.Classifier.Rules))
	for _, r := range cfg.Classifier.Rules {
		rule, err := classify.ExprRule(r.Name, model.ActionKind(r.Kind), r.When)
		if err != nil {
			return nil, fmt.Errorf("classifier rule %q: %w", r.Name, err)
		}
		rules = append(rules, rule)
	}
	svc := &Service{
		cfg:        cfg,
		classifier: classify.New(rules...),
		out:        io.Discard,
		paths:      make(map[string]string),
	}
	for _, o := range opts {
		o(svc)
	}

	if svc.store == nil {
		store, closer, err := OpenStore(cfg.Checkpoint)
		if err != nil {
			return nil, err
		}
		svc.store = store
		if closer != nil {
			svc.closers = append(svc.closers, closer)
		}
	}
	if svc.drivers == nil {
		svc.drivers = ConfiguredDrivers(cfg.Driver, svc.out)
	}
	if svc.tracer == nil && cfg.Trace.Path != "" {
		tw, err := trace.NewFileWriter(cfg.Trace.Path, NewRunID())
		if err != nil {
			_ = svc.Close()
			return nil, err
		}
		svc.tracer = tw
		svc.closers = append(svc.closers, tw)
		rules := make([]trace.RedactionRule, len(cfg.Trace.Redact))
		for i, r := range cfg.Trace.Redact {
			rules[i] = trace.RedactionRule{Pattern: r.Pattern, Replace: r.Replace}
		}
		if err := tw.SetRedactions(rules); err != nil {
			_ = svc.Close()
			return nil, err
		}
	}
	return svc, nil
}

// OpenStore opens the configured checkpoint backend. The closer is nil when
// there is nothing to release.
func OpenStore(cfg config.CheckpointConfig) (checkpoint.Store, io.Closer, error) {
	switch cfg.Backend {
	case "", "file":
		s, err := checkpoint.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case "sqlite":
		conn, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return checkpoint.NewSQLStore(conn), conn, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

// Close releases the store and the trace file.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Config returns the configuration the service was built with.
func (s *Service) Config() config.Config { return s.cfg }

// Store returns the checkpoint store.
func (s *Service) Store() checkpoint.Store { return s.store }

// Classifier returns the configured classifier.
func (s *Service) Classifier() *classify.Classifier { return s.classifier }

// Prepare parses and classifies a case document. The case is returned even
// when some steps are Unknown; the error is then a
// *classify.ClassificationAmbiguousError.
func (s *Service) Prepare(path string) (*model.TestCase, error) {
	tc, err := parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	s.remember(tc.ID, path)
	if err := s.classifier.ClassifyCase(tc); err != nil {
		return tc, err
	}
	return tc, nil
}

func (s *Service) remember(caseID, path string) {
	s.mu.Lock()
	s.paths[caseID] = path
	s.mu.Unlock()
}

// caseFor returns the case to use as the fresh starting point for caseID:
// the committed record's case when one exists, otherwise the document last
// prepared under that ID.
func (s *Service) caseFor(ctx context.Context, ref string) (*model.TestCase, error) {
	if fileExists(ref) {
		tc, err := s.Prepare(ref)
		var amb *classify.ClassificationAmbiguousError
		if err != nil && !errors.As(err, &amb) {
			return nil, err
		}
		return tc, nil
	}
	rec, err := s.store.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec.Case.Clone(), nil
	}
	s.mu.Lock()
	path, ok := s.paths[ref]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("case %q: %w", ref, checkpoint.ErrNotFound)
	}
	return s.caseFor(ctx, path)
}

// newOrchestrator builds an orchestrator for one session. d may be nil for the
// step-wise API, which never dispatches.
func (s *Service) newOrchestrator(d session.Driver) *orchestrator.Orchestrator {
	return orchestrator.New(s.store, d, orchestrator.Options{
		CommitRetries: s.cfg.Checkpoint.CommitRetries,
		CommitBackoff: s.cfg.Checkpoint.CommitBackoff,
		Trace:         s.tracer,
		Out:           s.out,
	})
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
