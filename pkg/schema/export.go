package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from
// the Go CaseDocument struct using invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&CaseDocument{})
	s.ID = "https://github.com/ormasoftchile/casewright/schemas/case-v1.json"
	s.Title = "casewright test case v1"
	s.Description = "Schema for casewright test case documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// GenerateCatalogJSONSchema produces a JSON Schema document for the method
// catalog.
func GenerateCatalogJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Catalog{})
	s.ID = "https://github.com/ormasoftchile/casewright/schemas/catalog-v1.json"
	s.Title = "casewright method catalog v1"
	s.Description = "Schema for the reusable page-object method catalog"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal catalog schema: %w", err)
	}
	return data, nil
}
