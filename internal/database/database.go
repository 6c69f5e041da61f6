package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQL database connection.
type DB struct {
	*sql.DB
}

// New opens (creating if necessary) the SQLite database at path.
func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; a single writer connection avoids
	// SQLITE_BUSY churn under concurrent workers.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ SQLite database connected")

	return &DB{db}, nil
}

// Initialize creates all required tables and indexes.
func (db *DB) Initialize() error {
	log.Println("🔍 Checking database schema...")

	schema := `
	CREATE TABLE IF NOT EXISTS thoughts (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 5,
		status TEXT NOT NULL DEFAULT 'queued',
		assigned_model TEXT,
		result TEXT,
		significance INTEGER,
		usage_count INTEGER NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		recovery_count INTEGER NOT NULL DEFAULT 0,
		queue_seq INTEGER NOT NULL DEFAULT 0,
		not_before TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_thoughts_status ON thoughts(status);
	CREATE INDEX IF NOT EXISTS idx_thoughts_queue ON thoughts(status, priority, queue_seq);
	CREATE INDEX IF NOT EXISTS idx_thoughts_created ON thoughts(created_at);

	CREATE TABLE IF NOT EXISTS archive_records (
		id TEXT PRIMARY KEY,
		thought_id TEXT NOT NULL,
		tier TEXT NOT NULL,
		location TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT,
		UNIQUE(thought_id, tier),
		FOREIGN KEY (thought_id) REFERENCES thoughts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_archive_tier_created ON archive_records(tier, created_at);

	CREATE TABLE IF NOT EXISTS incubating_thoughts (
		thought_id TEXT PRIMARY KEY,
		entered_at TEXT NOT NULL,
		review_count INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (thought_id) REFERENCES thoughts(id)
	);

	CREATE TABLE IF NOT EXISTS scoring_profile (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS usage_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		thought_id TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (thought_id) REFERENCES thoughts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_usage_unprocessed ON usage_events(processed, recorded_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Println("✅ Database initialized successfully")
	return nil
}
