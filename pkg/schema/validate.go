package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "steps/0/description")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

var validate = validator.New()

// ValidateFile performs the full 3-phase validation pipeline on a case file.
// Phase 1: Structural (strict decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (struct rules and authoring warnings)
func ValidateFile(path string) (*CaseDocument, []*ValidationError) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	return doc, ValidateDocument(doc)
}

// ValidateDocument runs the semantic and domain phases on a loaded document.
func ValidateDocument(doc *CaseDocument) []*ValidationError {
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("generate schema: %v", err), Severity: "error"}}
	}
	errs := validateSemantic("case-v1.json", schemaJSON, doc)
	errs = append(errs, validateStruct(doc)...)
	for i, s := range doc.Steps {
		if strings.TrimSpace(s.TestData) == "" && strings.TrimSpace(s.ExpectedResult) == "" {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     fmt.Sprintf("steps/%d", i),
				Message:  "step has neither test data nor an expected result",
				Severity: "warning",
			})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateCatalog checks a catalog against its schema and struct rules.
func ValidateCatalog(c *Catalog) []*ValidationError {
	schemaJSON, err := GenerateCatalogJSONSchema()
	if err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("generate catalog schema: %v", err), Severity: "error"}}
	}
	errs := validateSemantic("catalog-v1.json", schemaJSON, c)
	errs = append(errs, validateStruct(c)...)
	seen := make(map[string]int)
	for i, m := range c.Methods {
		if prev, ok := seen[m.Reference]; ok {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     fmt.Sprintf("methods/%d/reference", i),
				Message:  fmt.Sprintf("duplicate reference %q (also methods/%d)", m.Reference, prev),
				Severity: "error",
			})
			continue
		}
		seen[m.Reference] = i
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// HasErrors reports whether any entry has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// FirstError returns the first error-severity entry, or nil.
func FirstError(errs []*ValidationError) error {
	for _, e := range errs {
		if e.Severity == "error" {
			return e
		}
	}
	return nil
}

// validateSemantic validates v against the given JSON Schema.
func validateSemantic(name string, schemaJSON []byte, v any) []*ValidationError {
	semantic := func(format string, args ...any) []*ValidationError {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf(format, args...), Severity: "error"}}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return semantic("marshal for schema validation: %v", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return semantic("unmarshal schema: %v", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource(name, schemaDoc); err != nil {
		return semantic("add schema resource: %v", err)
	}
	sch, err := c.Compile(name)
	if err != nil {
		return semantic("compile schema: %v", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return semantic("unmarshal document: %v", err)
	}

	if err := sch.Validate(doc); err != nil {
		var ve *sjsonschema.ValidationError
		if !errors.As(err, &ve) {
			return semantic("%s", err.Error())
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     strings.Join(cause.InstanceLocation, "/"),
				Message:  fmt.Sprintf("%v", cause.ErrorKind),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

func validateStruct(v any) []*ValidationError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []*ValidationError{{Phase: "domain", Message: err.Error(), Severity: "error"}}
	}
	errs := make([]*ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("failed %q", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %q (%s)", fe.Tag(), fe.Param())
		}
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     fe.Namespace(),
			Message:  msg,
			Severity: "error",
		})
	}
	return errs
}
