package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sendnode/wagateway/pkg/config"
	"github.com/sendnode/wagateway/pkg/storage"
)

// migrateDataCommand migrates session records and credentials between the
// file backend and PostgreSQL, in whichever direction the config points.
func migrateDataCommand(configPath string) {
	fmt.Println("🔄 wagateway Data Migration Tool")
	fmt.Println("================================")
	fmt.Println()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("❌ Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Determine source and destination
	var sourceConfig, destConfig storage.Config

	if cfg.Storage.Type == "postgres" {
		// Migrating TO postgres, source is file
		sourceConfig = storage.Config{
			Type:     "file",
			FilePath: cfg.Storage.FilePath,
		}
		destConfig = storage.Config{
			Type:        "postgres",
			DatabaseURL: cfg.Storage.DatabaseURL,
		}
	} else {
		// Export FROM postgres to file
		sourceConfig = storage.Config{
			Type:        "postgres",
			DatabaseURL: cfg.Storage.DatabaseURL,
		}
		destConfig = storage.Config{
			Type:     "file",
			FilePath: cfg.Storage.FilePath,
		}
	}

	fmt.Printf("📁 Source: %s\n", sourceConfig.Type)
	fmt.Printf("📁 Destination: %s\n", destConfig.Type)
	fmt.Println()

	fmt.Print("⚠️  This will migrate all data. Continue? (yes/no): ")
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "yes" {
		fmt.Println("❌ Migration cancelled")
		return
	}

	ctx := context.Background()

	fmt.Printf("🔌 Connecting to source (%s)...\n", sourceConfig.Type)
	sourceStore, err := storage.NewStorage(sourceConfig)
	if err != nil {
		fmt.Printf("❌ Error creating source storage: %v\n", err)
		os.Exit(1)
	}
	if err := sourceStore.Connect(ctx); err != nil {
		fmt.Printf("❌ Error connecting to source: %v\n", err)
		os.Exit(1)
	}
	defer sourceStore.Close()

	fmt.Printf("🔌 Connecting to destination (%s)...\n", destConfig.Type)
	destStore, err := storage.NewStorage(destConfig)
	if err != nil {
		fmt.Printf("❌ Error creating destination storage: %v\n", err)
		os.Exit(1)
	}
	if err := destStore.Connect(ctx); err != nil {
		fmt.Printf("❌ Error connecting to destination: %v\n", err)
		os.Exit(1)
	}
	defer destStore.Close()

	fmt.Println()
	fmt.Println("📦 Migrating session records...")
	if err := migrateSessionRecords(ctx, sourceStore, destStore); err != nil {
		fmt.Printf("❌ Error migrating session records: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("📦 Migrating credentials...")
	if err := migrateCredentials(ctx, sourceStore, destStore); err != nil {
		fmt.Printf("❌ Error migrating credentials: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("✅ Migration completed successfully!")
	fmt.Println()
	fmt.Println("⚠️  Remember to:")
	fmt.Printf("   1. Set storage.type to '%s' in config.json\n", destConfig.Type)
	fmt.Println("   2. Restart wagateway for changes to take effect")
}

func migrateSessionRecords(ctx context.Context, source, dest storage.Storage) error {
	records, err := source.Sessions().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list session records: %w", err)
	}

	fmt.Printf("   Found %d session records\n", len(records))

	for i, record := range records {
		fmt.Printf("   [%d/%d] Migrating session: %s\n", i+1, len(records), record.ID)
		if err := dest.Sessions().Save(ctx, record); err != nil {
			return fmt.Errorf("failed to save session %s: %w", record.ID, err)
		}
	}

	fmt.Printf("   ✅ Migrated %d session records\n", len(records))
	return nil
}

func migrateCredentials(ctx context.Context, source, dest storage.Storage) error {
	ids, err := source.Credentials().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	fmt.Printf("   Found %d credential sets\n", len(ids))

	for i, id := range ids {
		fmt.Printf("   [%d/%d] Migrating credentials: %s\n", i+1, len(ids), id)

		ownerID, err := source.Credentials().Owner(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to read owner for %s: %w", id, err)
		}
		blob, err := source.Credentials().Get(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to read credentials for %s: %w", id, err)
		}

		// Owner first, blob second
		if err := dest.Credentials().SaveOwner(ctx, id, ownerID); err != nil {
			return fmt.Errorf("failed to save owner for %s: %w", id, err)
		}
		if err := dest.Credentials().Save(ctx, id, blob); err != nil {
			return fmt.Errorf("failed to save credentials for %s: %w", id, err)
		}
	}

	fmt.Printf("   ✅ Migrated %d credential sets\n", len(ids))
	return nil
}

// exportDataCommand exports all session records to JSON files.
func exportDataCommand(configPath, outputDir string) {
	fmt.Println("📤 wagateway Data Export Tool")
	fmt.Println("=============================")
	fmt.Println()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("❌ Error loading config: %v\n", err)
		os.Exit(1)
	}

	storeCfg := storage.Config{
		Type:        cfg.Storage.Type,
		DatabaseURL: cfg.Storage.DatabaseURL,
		FilePath:    cfg.Storage.FilePath,
	}

	fmt.Printf("📁 Storage type: %s\n", cfg.Storage.Type)
	fmt.Printf("📁 Output directory: %s\n", outputDir)
	fmt.Println()

	store, err := storage.NewStorage(storeCfg)
	if err != nil {
		fmt.Printf("❌ Error creating storage: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := store.Connect(ctx); err != nil {
		fmt.Printf("❌ Error connecting to storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Printf("❌ Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("📦 Exporting session records...")
	records, err := store.Sessions().List(ctx)
	if err != nil {
		fmt.Printf("❌ Error listing session records: %v\n", err)
		os.Exit(1)
	}

	for _, record := range records {
		filename := fmt.Sprintf("%s/%s.json", outputDir, sanitizeFilename(record.ID))
		if err := writeJSON(filename, record); err != nil {
			fmt.Printf("❌ Error writing %s: %v\n", filename, err)
			os.Exit(1)
		}
	}

	fmt.Printf("   ✅ Exported %d session records\n", len(records))
	fmt.Println()
	fmt.Printf("✅ Export completed successfully to: %s\n", outputDir)
}

func writeJSON(filename string, data interface{}) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
