package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"dogfinder/internal/config"
	"dogfinder/internal/model"
	"dogfinder/internal/repository/sqlite"
	"dogfinder/internal/service/storage"
)

// migrate indexes found-frames already on disk into the snapshots table.
func main() {
	defaults := config.Default().Storage
	imagesDir := flag.String("images", envOr("IMAGE_DIR", defaults.ImageDirectory), "Directory containing found frames")
	dbPath := flag.String("db", envOr("DB_PATH", defaults.DatabasePath), "Database path")
	flag.Parse()

	fmt.Printf("Indexing images from %s into database %s\n", *imagesDir, *dbPath)

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	repo := sqlite.NewSnapshotRepository(db)

	files, err := os.ReadDir(*imagesDir)
	if err != nil {
		log.Fatalf("Failed to read images directory: %v", err)
	}

	inserted, skipped := 0, 0
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".jpg" {
			continue
		}

		timestamp, scanID, ok := storage.ParseFilename(file.Name())
		if !ok {
			log.Printf("⚠️  Skipping %s: unrecognised name", file.Name())
			skipped++
			continue
		}

		exists, err := repo.Exists(file.Name())
		if err != nil {
			log.Fatalf("Failed to check %s: %v", file.Name(), err)
		}
		if exists {
			continue
		}

		info, err := file.Info()
		if err != nil {
			log.Printf("⚠️  Failed to get info for %s: %v", file.Name(), err)
			skipped++
			continue
		}

		snap := &model.Snapshot{
			Filename:  file.Name(),
			ScanID:    scanID,
			Timestamp: timestamp,
			FilePath:  filepath.Join(*imagesDir, file.Name()),
			FileSize:  info.Size(),
		}
		if _, err := repo.Insert(snap); err != nil {
			log.Fatalf("Failed to insert %s: %v", file.Name(), err)
		}
		inserted++
	}

	fmt.Printf("✅ Indexed %d image(s), skipped %d\n", inserted, skipped)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
