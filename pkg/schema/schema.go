// Package schema defines the Go struct types for test case documents and the
// method catalog, and provides strict YAML, JSON and XML parsing.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ormasoftchile/casewright/pkg/model"
	"gopkg.in/yaml.v3"
)

// CaseDocument is a test case as authored in a test-management export.
type CaseDocument struct {
	ID            string         `yaml:"id"                      json:"id"                      jsonschema:"required,minLength=1" validate:"required"`
	Name          string         `yaml:"name,omitempty"          json:"name,omitempty"`
	Objective     string         `yaml:"objective,omitempty"     json:"objective,omitempty"`
	Preconditions string         `yaml:"preconditions,omitempty" json:"preconditions,omitempty"`
	Steps         []StepDocument `yaml:"steps"                   json:"steps"                   jsonschema:"required,minItems=1"  validate:"required,min=1,dive"`
}

// StepDocument is one authored step. Description and test data are free text
// and may carry presentational markup.
type StepDocument struct {
	Index          int    `yaml:"index"                    json:"index"                    jsonschema:"minimum=0"`
	Description    string `yaml:"description"              json:"description"`
	ExpectedResult string `yaml:"expectedResult,omitempty" json:"expectedResult,omitempty"`
	TestData       string `yaml:"testData,omitempty"       json:"testData,omitempty"`
}

// Format identifies the surface a case document was authored in.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
)

// FormatFromPath picks the document format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return FormatXML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// LoadFile reads and parses a case document, choosing the decoder from the
// file extension. Unknown fields are rejected for YAML and JSON.
func LoadFile(path string) (*CaseDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open case: %w", err)
	}
	defer f.Close()
	return Load(f, FormatFromPath(path))
}

// Load parses a case document from r in the given format.
func Load(r io.Reader, format Format) (*CaseDocument, error) {
	switch format {
	case FormatXML:
		return loadXML(r)
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		var doc CaseDocument
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode case: %w", err)
		}
		return &doc, nil
	default:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		var doc CaseDocument
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode case: %w", err)
		}
		return &doc, nil
	}
}

// Catalog is the externally maintained registry of reusable page-object
// methods.
type Catalog struct {
	Version string                     `yaml:"version,omitempty" json:"version,omitempty"`
	Methods []model.MethodCatalogEntry `yaml:"methods"           json:"methods,omitempty"  validate:"dive"`
}

// LoadCatalogFile reads a catalog YAML file. A missing file is an empty
// catalog.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Catalog{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return LoadCatalog(bytes.NewReader(data))
}

// LoadCatalog parses a catalog with strict unknown-field rejection.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &c, nil
}

// SaveCatalogFile writes the catalog back as YAML.
func SaveCatalogFile(path string, c *Catalog) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}
