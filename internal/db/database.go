package db

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type TestResult struct {
	ID              int       `json:"id"`
	UserID          string    `json:"user_id"`
	WPM             float64   `json:"wpm"`
	RawWPM          float64   `json:"raw_wpm"`
	Accuracy        float64   `json:"accuracy"`
	DurationSeconds int       `json:"duration_seconds"`
	WordCount       int       `json:"word_count"`
	CreatedAt       time.Time `json:"created_at"`
}

type LeaderboardEntry struct {
	Username        string    `json:"username"`
	BestWPM         float64   `json:"best_wpm"`
	Accuracy        float64   `json:"accuracy"`
	DurationSeconds int       `json:"duration_seconds"`
	RecordedAt      time.Time `json:"recorded_at"`
}

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Printf("Database initialized at %s", dbPath)
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS test_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		wpm REAL NOT NULL,
		raw_wpm REAL DEFAULT 0,
		accuracy REAL NOT NULL,
		duration_seconds INTEGER NOT NULL,
		word_count INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_test_results_user_id ON test_results(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_test_results_leaderboard ON test_results(duration_seconds, wpm DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// User operations

func (d *Database) CreateUser(username, email, passwordHash string) (*User, error) {
	id := uuid.NewString()
	_, err := d.db.Exec(
		"INSERT INTO users (id, username, email, password_hash) VALUES (?, ?, ?, ?)",
		id, username, email, passwordHash,
	)
	if err != nil {
		return nil, err
	}
	return d.GetUserByID(id)
}

func (d *Database) GetUserByID(id string) (*User, error) {
	return scanUser(d.db.QueryRow(
		"SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?",
		id,
	))
}

func (d *Database) GetUserByUsername(username string) (*User, error) {
	return scanUser(d.db.QueryRow(
		"SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?",
		username,
	))
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Test result operations

func (d *Database) SaveResult(r *TestResult) (*TestResult, error) {
	result, err := d.db.Exec(`
		INSERT INTO test_results (user_id, wpm, raw_wpm, accuracy, duration_seconds, word_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.UserID, r.WPM, r.RawWPM, r.Accuracy, r.DurationSeconds, r.WordCount)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return d.GetResult(int(id))
}

func (d *Database) GetResult(id int) (*TestResult, error) {
	row := d.db.QueryRow(`
		SELECT id, user_id, wpm, raw_wpm, accuracy, duration_seconds, word_count, created_at
		FROM test_results WHERE id = ?
	`, id)

	var r TestResult
	err := row.Scan(&r.ID, &r.UserID, &r.WPM, &r.RawWPM, &r.Accuracy, &r.DurationSeconds, &r.WordCount, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResults returns a user's results, newest first.
func (d *Database) ListResults(userID string, limit, offset int) ([]TestResult, error) {
	rows, err := d.db.Query(`
		SELECT id, user_id, wpm, raw_wpm, accuracy, duration_seconds, word_count, created_at
		FROM test_results
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TestResult
	for rows.Next() {
		var r TestResult
		if err := rows.Scan(&r.ID, &r.UserID, &r.WPM, &r.RawWPM, &r.Accuracy, &r.DurationSeconds, &r.WordCount, &r.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (d *Database) GetResultCount(userID string) (int, error) {
	var count int
	err := d.db.QueryRow(
		"SELECT COUNT(*) FROM test_results WHERE user_id = ?",
		userID,
	).Scan(&count)
	return count, err
}

// Leaderboard returns each user's best result for a test duration, fastest
// first.
func (d *Database) Leaderboard(durationSeconds, limit int) ([]LeaderboardEntry, error) {
	rows, err := d.db.Query(`
		SELECT u.username, MAX(t.wpm) AS best_wpm, t.accuracy, t.duration_seconds, t.created_at
		FROM test_results t
		JOIN users u ON u.id = t.user_id
		WHERE t.duration_seconds = ?
		GROUP BY t.user_id
		ORDER BY best_wpm DESC
		LIMIT ?
	`, durationSeconds, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.BestWPM, &e.Accuracy, &e.DurationSeconds, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats

func (d *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var userCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		return nil, err
	}
	stats["user_count"] = userCount

	var resultCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM test_results").Scan(&resultCount); err != nil {
		return nil, err
	}
	stats["result_count"] = resultCount

	return stats, nil
}
