package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AllenThomasDev/causal-webapp/adapters/postgres"
	"github.com/AllenThomasDev/causal-webapp/models"

	"github.com/google/uuid"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate <database_url> [run_records_dir]")
	}

	databaseURL := os.Args[1]
	ctx := context.Background()

	// Open applies the ledger schema
	db, err := postgres.Open(ctx, databaseURL)
	if err != nil {
		log.Fatalf("Failed to prepare database: %v", err)
	}
	defer db.Close()
	log.Printf("Ledger schema is up to date")

	if len(os.Args) < 3 {
		return
	}
	recordsDir := os.Args[2]
	runRepo := postgres.NewRunRepository(db)

	files, err := findRunFiles(recordsDir)
	if err != nil {
		log.Fatalf("Failed to find run files: %v", err)
	}
	log.Printf("Found %d run files to import from %s", len(files), recordsDir)

	imported := 0
	skipped := 0

	for _, file := range files {
		run, err := loadRunFromFile(file)
		if err != nil {
			log.Printf("Failed to load run from %s: %v", file, err)
			skipped++
			continue
		}

		if run.ID == uuid.Nil {
			// Deterministic so that re-importing a file does not duplicate it
			run.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(file))
		}
		if run.CreatedAt.IsZero() {
			run.CreatedAt = time.Now().UTC()
		}

		if err := runRepo.RecordRun(ctx, run); err != nil {
			log.Printf("Failed to import run %s: %v", run.ID, err)
			skipped++
			continue
		}

		imported++
		log.Printf("Imported run %s (%s -> %s) from %s", run.ID, run.Treatment, run.Outcome, filepath.Base(file))
	}

	log.Printf("Import complete: %d imported, %d skipped", imported, skipped)
}

func findRunFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".json") {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

func loadRunFromFile(filePath string) (*models.RunRecord, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var run models.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}
