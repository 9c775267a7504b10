//go:build ignore

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/casewright/pkg/schema"
)

func main() {
	if err := os.MkdirAll("schemas", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	outputs := []struct {
		name string
		gen  func() ([]byte, error)
	}{
		{"case-v1.json", schema.GenerateJSONSchema},
		{"catalog-v1.json", schema.GenerateCatalogJSONSchema},
	}
	for _, o := range outputs {
		data, err := o.gen()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error generating %s: %v\n", o.name, err)
			os.Exit(1)
		}
		path := filepath.Join("schemas", o.name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote", path)
	}
}
