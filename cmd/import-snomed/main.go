package main

import (
	"context"
	"flag"
	"log"

	"github.com/eligolab/eligo/pkg/eligo/umls"
)

func main() {
	var (
		dbPath       = flag.String("db", "umls.db", "Vocabulary database path")
		descriptions = flag.String("descriptions", "", "SNOMED description file, tab-separated (required)")
	)
	flag.Parse()

	if *descriptions == "" {
		log.Fatal("--descriptions required")
	}

	ctx := context.Background()

	lookup, err := umls.Open(ctx, *dbPath)
	if err != nil {
		log.Fatal("Failed to open vocabulary database:", err)
	}
	defer lookup.Close()

	if err := lookup.ImportIfNecessary(ctx, *descriptions); err != nil {
		log.Fatal("Import failed:", err)
	}
}
