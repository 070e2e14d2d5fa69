package db

import (
	"os"
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "typerush-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := New(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func TestDatabaseCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if db == nil {
		t.Fatal("Database should not be nil")
	}
}

func TestUserOperations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	user, err := db.CreateUser("alice", "alice@example.com", "hashed-pw")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if user.ID == "" {
		t.Error("User should have a generated ID")
	}
	if user.Username != "alice" {
		t.Errorf("Expected username 'alice', got '%s'", user.Username)
	}

	// Lookup by username
	found, err := db.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if found == nil || found.ID != user.ID {
		t.Error("Lookup by username should return the created user")
	}
	if found.PasswordHash != "hashed-pw" {
		t.Error("Password hash should round-trip")
	}

	// Lookup by ID
	found, err = db.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("Failed to get user by id: %v", err)
	}
	if found == nil || found.Username != "alice" {
		t.Error("Lookup by ID should return the created user")
	}

	// Non-existent user
	found, err = db.GetUserByUsername("nobody")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if found != nil {
		t.Error("Non-existent user should return nil")
	}
}

func TestDuplicateUsernameRejected(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if _, err := db.CreateUser("alice", "alice@example.com", "pw"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if _, err := db.CreateUser("alice", "other@example.com", "pw"); err == nil {
		t.Error("Duplicate username should be rejected")
	}
	if _, err := db.CreateUser("alice2", "alice@example.com", "pw"); err == nil {
		t.Error("Duplicate email should be rejected")
	}
}

func TestResultOperations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	user, err := db.CreateUser("alice", "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	for i, wpm := range []float64{55, 70, 62} {
		saved, err := db.SaveResult(&TestResult{
			UserID:          user.ID,
			WPM:             wpm,
			Accuracy:        95,
			DurationSeconds: 60,
			WordCount:       50 + i,
		})
		if err != nil {
			t.Fatalf("Failed to save result: %v", err)
		}
		if saved.ID == 0 {
			t.Error("Saved result should have an ID")
		}
	}

	results, err := db.ListResults(user.ID, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list results: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	// Newest first
	if results[0].WPM != 62 {
		t.Errorf("Expected most recent result first (wpm 62), got %v", results[0].WPM)
	}

	// Pagination
	page, err := db.ListResults(user.ID, 2, 2)
	if err != nil {
		t.Fatalf("Failed to list page: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("Expected 1 result on second page, got %d", len(page))
	}

	count, err := db.GetResultCount(user.ID)
	if err != nil {
		t.Fatalf("Failed to count results: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected count 3, got %d", count)
	}
}

func TestLeaderboard(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	alice, _ := db.CreateUser("alice", "alice@example.com", "pw")
	bob, _ := db.CreateUser("bob", "bob@example.com", "pw")

	seed := []struct {
		userID   string
		wpm      float64
		duration int
	}{
		{alice.ID, 80, 60},
		{alice.ID, 95, 60}, // alice's best
		{bob.ID, 90, 60},
		{bob.ID, 120, 30}, // different duration, excluded
	}
	for _, s := range seed {
		if _, err := db.SaveResult(&TestResult{
			UserID:          s.userID,
			WPM:             s.wpm,
			Accuracy:        96,
			DurationSeconds: s.duration,
		}); err != nil {
			t.Fatalf("Failed to seed result: %v", err)
		}
	}

	entries, err := db.Leaderboard(60, 10)
	if err != nil {
		t.Fatalf("Failed to load leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Username != "alice" || entries[0].BestWPM != 95 {
		t.Errorf("Expected alice first with 95 wpm, got %s with %v", entries[0].Username, entries[0].BestWPM)
	}
	if entries[1].Username != "bob" || entries[1].BestWPM != 90 {
		t.Errorf("Expected bob second with 90 wpm, got %s with %v", entries[1].Username, entries[1].BestWPM)
	}
}

func TestGetStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	user, err := db.CreateUser("alice", "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if _, err := db.SaveResult(&TestResult{UserID: user.ID, WPM: 60, Accuracy: 95, DurationSeconds: 60}); err != nil {
		t.Fatalf("Failed to save result: %v", err)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats["user_count"] != 1 {
		t.Errorf("Expected 1 user, got %v", stats["user_count"])
	}
	if stats["result_count"] != 1 {
		t.Errorf("Expected 1 result, got %v", stats["result_count"])
	}
}
