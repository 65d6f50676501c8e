// Command schema-generator writes the JSON Schemas for repostore.yml and its
// logging section.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/repostore/config"
	"github.com/grovetools/repostore/logging"
)

func main() {
	outputDir := flag.String("out", "schema", "directory the schema files are written to")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Error creating schema directory: %v", err)
	}

	schemas := []struct {
		name     string
		generate func() ([]byte, error)
	}{
		{"repostore.schema.json", config.GenerateSchema},
		{"logging.schema.json", logging.GenerateSchema},
	}
	for _, s := range schemas {
		data, err := s.generate()
		if err != nil {
			log.Fatalf("Error generating %s: %v", s.name, err)
		}
		path := filepath.Join(*outputDir, s.name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			log.Fatalf("Error writing %s: %v", path, err)
		}
		log.Printf("Generated %s", path)
	}
}
