package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	// We use the official pgvector image to ensure the extension is available.
	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("enroll_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Skipf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Outcomes ---

	if err := s.RecordOutcome(ctx, "a.jpg", "accepted", "", ""); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if err := s.RecordOutcome(ctx, "b.jpg", "rejected-blacklist", "villain.jpg", ""); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	events, err := s.RecentOutcomes(ctx, 10)
	if err != nil {
		t.Fatalf("RecentOutcomes failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Filename != "b.jpg" || events[0].MatchedLabel != "villain.jpg" {
		t.Errorf("Expected newest event first, got %+v", events[0])
	}

	// --- Faces ---

	vecA := make([]float64, 128)
	vecA[0] = 1.0
	if err := s.RecordFace(ctx, "a.jpg", vecA); err != nil {
		t.Fatalf("RecordFace failed: %v", err)
	}

	label, dist, err := s.FindClosestFace(ctx, vecA, 0.1)
	if err != nil {
		t.Fatalf("FindClosestFace failed: %v", err)
	}
	if label != "a.jpg" || dist > 1e-6 {
		t.Errorf("Expected exact match on a.jpg, got %q (dist %f)", label, dist)
	}

	vecB := make([]float64, 128)
	vecB[1] = 1.0 // L2 distance sqrt(2) from A
	label, _, err = s.FindClosestFace(ctx, vecB, 0.55)
	if err != nil {
		t.Fatalf("FindClosestFace error: %v", err)
	}
	if label != "" {
		t.Errorf("Expected no match, got %q", label)
	}

	// --- Reset ---

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.RecentOutcomes(ctx, 10); err == nil {
		t.Error("Expected query on dropped table to fail")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
