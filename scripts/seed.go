// Seed script for loading demo history into minimind's storage.
// Run with: go run ./scripts/seed.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/minimind-ai/minimind/internal/domain"
	"github.com/minimind-ai/minimind/internal/store"
)

func main() {
	// Load environment
	envFile := os.Getenv("MINIMIND_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	driver := os.Getenv("STORAGE_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "minimind.db"
	}

	ctx := context.Background()

	storage, err := store.Open(ctx, store.Options{
		Driver:      driver,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  sqlitePath,
	})
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer func() { _ = storage.Close() }()

	fmt.Printf("Storage ready (%s)\n", driver)

	agentID := os.Getenv("SEED_AGENT")
	if agentID == "" {
		agentID = "ember"
	}

	// A morning of history for the demo agent
	entries := []struct {
		kind    string
		content string
	}{
		{"observation", "You look around the Living Room: A cozy living room with a comfortable sofa."},
		{"observation", `willow says: "good morning, ember"`},
		{"speech", `You say: "good morning! did you sleep well?"`},
		{"action", "You go to the Kitchen."},
		{"thought", "the kettle is still warm, someone was here recently"},
	}

	base := time.Now().Add(-time.Hour)
	for i, e := range entries {
		entry := domain.MemoryEntry{
			Content:   e.content,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Metadata:  map[string]any{domain.MetaKind: e.kind},
		}
		if err := storage.AppendMemoryEntry(ctx, agentID, entry); err != nil {
			log.Printf("Warning: failed to append entry: %v", err)
		} else {
			fmt.Printf("Appended [%s]: %s\n", e.kind, truncate(e.content, 50))
		}
	}

	state := domain.SummaryState{
		MidTerm:        "Ember spent the early morning in the Living Room trading greetings with willow, then wandered to the Kitchen.",
		LongTerm:       "Ember is a sociable early riser who gravitates to the Kitchen and keeps track of who else is around.",
		LastCompaction: time.Now(),
	}
	if err := storage.WriteSummaries(ctx, agentID, state); err != nil {
		log.Fatalf("Failed to write summaries: %v", err)
	}
	fmt.Println("Wrote mid-term and long-term summaries")

	// Historical snapshots are seeded without embeddings; the indexer worker
	// embeds them on its first sweep.
	snapshots := []string{
		"Yesterday ember rearranged the bookshelf in the Living Room and willow approved of the new order.",
		"Last week ember tried to bake bread in the Kitchen, burned the first loaf, and wrote down what went wrong.",
	}
	for i, content := range snapshots {
		snap := domain.SummarySnapshot{
			ID:        uuid.New(),
			AgentID:   agentID,
			Content:   content,
			CreatedAt: base.Add(time.Duration(-24*(len(snapshots)-i)) * time.Hour),
		}
		if err := storage.AppendHistoricalSummary(ctx, &snap); err != nil {
			log.Printf("Warning: failed to append snapshot: %v", err)
		} else {
			fmt.Printf("Appended snapshot: %s\n", truncate(content, 50))
		}
	}

	now := time.Now()
	notes := []domain.Note{
		{ID: uuid.New(), Title: "bread", Content: "Second rise matters more than the first. Do not rush it.", CreatedAt: now, UpdatedAt: now},
		{ID: uuid.New(), Title: "willow", Content: "Willow likes the Living Room tidy and notices when it is not.", CreatedAt: now, UpdatedAt: now},
	}
	for i := range notes {
		if err := storage.SaveNote(ctx, agentID, &notes[i], nil); err != nil {
			log.Printf("Warning: failed to save note: %v", err)
		} else {
			fmt.Printf("Saved note: %s\n", notes[i].Title)
		}
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Println("\nTo inspect the seeded agent once the server is up:")
	fmt.Printf("curl http://localhost:8080/v1/agents/%s/context\n", agentID)
	fmt.Printf("curl http://localhost:8080/v1/agents/%s/notes\n", agentID)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
