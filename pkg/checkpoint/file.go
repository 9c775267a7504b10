package checkpoint

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const frontMatterDelim = "---"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileStore keeps one Markdown checklist per case. The YAML front matter is
// authoritative; the body is rendered for humans and ignored on load.
type FileStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time

	// beforeRename is a fault-injection hook used by tests.
	beforeRename func(tmp string) error
}

// NewFileStore creates the checkpoint directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Dir returns the checkpoint directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the checklist file for a case.
func (s *FileStore) Path(caseID string) string {
	return filepath.Join(s.dir, FileName(caseID))
}

// FileName maps a case ID to a safe file name. IDs that need rewriting get a
// hash of the original ID appended, so "TC/1" and "TC_1" stay apart.
func FileName(caseID string) string {
	safe := unsafeName.ReplaceAllString(caseID, "_")
	if safe == caseID {
		return safe + ".md"
	}
	sum := sha256.Sum256([]byte(caseID))
	return safe + "-" + hex.EncodeToString(sum[:4]) + ".md"
}

// Load reads the committed record for a case. A file holding another case's
// record is an error, never a resume point.
func (s *FileStore) Load(_ context.Context, caseID string) (*model.CheckpointRecord, error) {
	path := s.Path(caseID)
	rec, err := readRecord(path)
	if err != nil || rec == nil {
		return rec, err
	}
	if rec.CaseID != caseID {
		return nil, fmt.Errorf("%s holds case %q, not %q: %w", filepath.Base(path), rec.CaseID, caseID, ErrCaseMismatch)
	}
	return rec, nil
}

func readRecord(path string) (*model.CheckpointRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

func decodeRecord(data []byte) (*model.CheckpointRecord, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return nil, fmt.Errorf("decode checkpoint: missing front matter")
	}
	rest := text[len(frontMatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelim+"\n")
	if end < 0 {
		return nil, fmt.Errorf("decode checkpoint: unterminated front matter")
	}
	var rec model.CheckpointRecord
	dec := yaml.NewDecoder(strings.NewReader(rest[:end+1]))
	dec.KnownFields(true)
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &rec, nil
}

// Commit writes revision rec.Revision+1 via temp file and rename.
func (s *FileStore) Commit(ctx context.Context, rec *model.CheckpointRecord) (*model.CheckpointRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := rec.Clone()
	next.Revision = rec.Revision + 1
	next.UpdatedAt = s.now().UTC().Truncate(time.Second)

	cur, err := s.Load(ctx, rec.CaseID)
	if err != nil {
		return nil, &StoreWriteError{CaseID: rec.CaseID, Revision: next.Revision, Op: "load current", Err: err}
	}
	var stored int64
	if cur != nil {
		stored = cur.Revision
	}
	if stored != rec.Revision {
		return nil, conflict(rec.CaseID, rec.Revision, stored)
	}

	data, err := Render(next)
	if err != nil {
		return nil, &StoreWriteError{CaseID: rec.CaseID, Revision: next.Revision, Op: "render", Err: err}
	}
	if op, err := writeFileAtomic(s.Path(rec.CaseID), data, s.beforeRename); err != nil {
		return nil, &StoreWriteError{CaseID: rec.CaseID, Revision: next.Revision, Op: op, Err: err}
	}
	log.Debug().Str("case", rec.CaseID).Int64("revision", next.Revision).Msg("checkpoint committed")
	return next, nil
}

// Archive moves the checklist into the archive subdirectory.
func (s *FileStore) Archive(_ context.Context, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.Path(caseID)
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("archive %q: %w", caseID, ErrNotFound)
	}
	archiveDir := filepath.Join(s.dir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	stamp := s.now().UTC().Format("20060102T150405Z")
	dst := filepath.Join(archiveDir, strings.TrimSuffix(FileName(caseID), ".md")+"-"+stamp+".md")
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archive %q: %w", caseID, err)
	}
	return syncDir(s.dir)
}

// List summarises every active checklist, sorted by case ID. Leftover temp
// files from interrupted commits are ignored.
func (s *FileStore) List(_ context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var out []Summary
	for _, e := range entries {
		if e.IsDir() || isTempFile(e.Name()) || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		rec, err := readRecord(filepath.Join(s.dir, e.Name()))
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("skipping unreadable checkpoint")
			continue
		}
		if rec != nil {
			out = append(out, summarize(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CaseID < out[j].CaseID })
	return out, nil
}

var statusMarkers = map[model.StepStatus]string{
	model.StatusPending:    "[ ]",
	model.StatusInProgress: "[~]",
	model.StatusSucceeded:  "[x]",
	model.StatusFailed:     "[!]",
}

// Render produces the checklist file: YAML front matter followed by a
// Markdown checklist of the steps.
func Render(rec *model.CheckpointRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(frontMatterDelim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	buf.WriteString(frontMatterDelim + "\n\n")
	buf.WriteString(RenderChecklist(rec))
	return buf.Bytes(), nil
}

// RenderChecklist renders the human-readable part of a checkpoint.
func RenderChecklist(rec *model.CheckpointRecord) string {
	tc := &rec.Case
	var b strings.Builder
	fmt.Fprintf(&b, "# %s (%s)\n\n", tc.Title(), rec.CaseID)
	if tc.Objective != "" {
		fmt.Fprintf(&b, "**Objective:** %s\n\n", tc.Objective)
	}
	if tc.Preconditions != "" {
		fmt.Fprintf(&b, "**Preconditions:** %s\n\n", tc.Preconditions)
	}
	done, total := tc.Progress()
	fmt.Fprintf(&b, "**State:** %s, %d/%d steps, revision %d\n\n## Steps\n\n", tc.State(), done, total, rec.Revision)

	for _, s := range tc.Steps {
		fmt.Fprintf(&b, "%d. %s **%s** %s\n", s.Index, statusMarkers[s.Status], s.Action, s.Description)
		if s.TestData != "" {
			fmt.Fprintf(&b, "   - data: `%s`\n", s.TestData)
		}
		if s.ExpectedResult != "" {
			fmt.Fprintf(&b, "   - expected: %s\n", s.ExpectedResult)
		}
		for _, e := range s.DiscoveredElements {
			fmt.Fprintf(&b, "   - element: %s `%s`", e.Strategy, e.Value)
			if e.Role != "" {
				fmt.Fprintf(&b, " (%s)", e.Role)
			}
			b.WriteString("\n")
		}
		if s.ObservedBehavior != "" {
			fmt.Fprintf(&b, "   - observed: %s\n", s.ObservedBehavior)
		}
		if s.ResolvedMethod != nil {
			fmt.Fprintf(&b, "   - method: `%s`\n", s.ResolvedMethod.Reference)
		}
		for _, n := range s.Notes {
			fmt.Fprintf(&b, "   - note: %s\n", n)
		}
	}
	return b.String()
}
