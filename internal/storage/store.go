package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/m3l0x42/flipply/internal/llm"
	_ "modernc.org/sqlite"
)

// Store defines the persistence used by the service: the vision analysis
// cache and the seller's trading auth token, encrypted at rest.
type Store interface {
	llm.AnalysisCache

	SaveTradingToken(token string, expiresAt time.Time) error
	// GetTradingToken returns the stored token, or "" if none is stored.
	GetTradingToken() (string, time.Time, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based store at dbPath. The
// encryptionKey is used to encrypt the trading token at rest.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	// WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set file permissions (only works on creation)
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		// Ignore error if file doesn't exist yet
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	analysisCacheQuery := `
	CREATE TABLE IF NOT EXISTS analysis_cache (
		image_hash TEXT PRIMARY KEY,
		analysis TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(analysisCacheQuery); err != nil {
		return fmt.Errorf("failed to create analysis_cache table: %w", err)
	}

	tokensQuery := `
	CREATE TABLE IF NOT EXISTS trading_tokens (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		encrypted_token TEXT NOT NULL,
		expires_at DATETIME,
		last_updated DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(tokensQuery); err != nil {
		return fmt.Errorf("failed to create trading_tokens table: %w", err)
	}

	return nil
}

// GetAnalysis retrieves a cached analysis by image hash.
// Returns nil, nil on a cache miss.
func (s *SQLiteStore) GetAnalysis(imageHash string) (*llm.ItemAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var analysisJSON string
	err := s.db.QueryRow(
		"SELECT analysis FROM analysis_cache WHERE image_hash = ?",
		imageHash,
	).Scan(&analysisJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis cache: %w", err)
	}

	var analysis llm.ItemAnalysis
	if err := json.Unmarshal([]byte(analysisJSON), &analysis); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached analysis: %w", err)
	}

	return &analysis, nil
}

// SetAnalysis stores an analysis result keyed by image hash.
func (s *SQLiteStore) SetAnalysis(imageHash string, analysis *llm.ItemAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO analysis_cache (image_hash, analysis)
		VALUES (?, ?)
		ON CONFLICT(image_hash) DO UPDATE SET
			analysis = excluded.analysis
	`, imageHash, string(analysisJSON))
	if err != nil {
		return fmt.Errorf("failed to cache analysis: %w", err)
	}

	return nil
}

// SaveTradingToken stores the seller's trading auth token encrypted with
// the store's key. There is a single token slot; saving overwrites it.
func (s *SQLiteStore) SaveTradingToken(token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encrypted, err := Encrypt([]byte(token), s.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO trading_tokens (id, encrypted_token, expires_at, last_updated)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			encrypted_token = excluded.encrypted_token,
			expires_at = excluded.expires_at,
			last_updated = excluded.last_updated
	`, encrypted, expiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

// GetTradingToken retrieves and decrypts the stored trading token.
// Returns "" without error when no token is stored.
func (s *SQLiteStore) GetTradingToken() (string, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var encrypted string
	var expiresAt sql.NullTime
	err := s.db.QueryRow(
		"SELECT encrypted_token, expires_at FROM trading_tokens WHERE id = 1",
	).Scan(&encrypted, &expiresAt)

	if err == sql.ErrNoRows {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to query token: %w", err)
	}

	token, err := Decrypt(encrypted, s.encryptionKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decrypt token: %w", err)
	}

	var expiry time.Time
	if expiresAt.Valid {
		expiry = expiresAt.Time
	}

	return string(token), expiry, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
