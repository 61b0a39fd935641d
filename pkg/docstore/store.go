package docstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/ranya-voice/internal/observability"
	"github.com/harun/ranya-voice/internal/tracing"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const snippetRadius = 60

// Extensions lists the file types that are indexed.
var Extensions = []string{".md", ".txt"}

// Document is one indexed file.
type Document struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet,omitempty"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Config holds document store configuration
type Config struct {
	Dir    string
	DBPath string
	Logger zerolog.Logger
}

// Store indexes a directory of text documents in SQLite and answers keyword
// queries against it.
type Store struct {
	db      *sql.DB
	dir     string
	logger  zerolog.Logger
	watcher *FileWatcher

	// syncMu serializes Sync; reads go straight to the database.
	syncMu sync.Mutex
	mu     sync.RWMutex
	last   *time.Time
}

// Open opens (or creates) the index database for cfg.Dir.
func Open(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.Dir == "" {
		return nil, errors.New("document directory is required")
	}
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		dir:    cfg.Dir,
		logger: cfg.Logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			hash TEXT NOT NULL,
			indexed_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_documents_title ON documents(title);
	`)
	return err
}

func indexable(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Sync brings the index in line with the directory and returns the number of
// documents added or updated.
func (s *Store) Sync(ctx context.Context) (int, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "ranya-voice/docstore", "docstore.sync",
		attribute.String("docstore.dir", s.dir))
	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr) }()

	existing, err := s.hashes(ctx)
	if err != nil {
		spanErr = err
		return 0, err
	}

	seen := make(map[string]bool)
	changed := 0
	now := time.Now()

	walkErr := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !indexable(path) {
			return nil
		}

		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		seen[rel] = true

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}
		sum := sha256.Sum256(content)
		hash := hex.EncodeToString(sum[:])
		if existing[rel] == hash {
			return nil
		}

		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO documents (path, title, content, hash, indexed_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				title = excluded.title,
				content = excluded.content,
				hash = excluded.hash,
				indexed_at = excluded.indexed_at
		`, rel, filepath.Base(rel), string(content), hash, now.Unix()); err != nil {
			return fmt.Errorf("failed to index %s: %w", rel, err)
		}
		changed++
		return nil
	})
	if walkErr != nil {
		spanErr = walkErr
		return changed, fmt.Errorf("failed to walk %s: %w", s.dir, walkErr)
	}

	for path := range existing {
		if seen[path] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE path = ?", path); err != nil {
			spanErr = err
			return changed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	s.mu.Lock()
	s.last = &now
	s.mu.Unlock()

	observability.SetDocumentsIndexed(len(seen))

	s.logger.Debug().
		Int("documents", len(seen)).
		Int("changed", changed).
		Msg("Document index synced")

	return changed, nil
}

func (s *Store) hashes(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, hash FROM documents")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		out[path] = hash
	}
	return out, rows.Err()
}

// Search returns documents whose title or content contains every term of
// query, case-insensitively, ordered by path.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	var (
		clauses []string
		args    []interface{}
	)
	for _, term := range terms {
		pattern := "%" + escapeLike(term) + "%"
		clauses = append(clauses, `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(content) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, title, content, indexed_at FROM documents
		WHERE `+strings.Join(clauses, " AND ")+`
		ORDER BY path
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc       Document
			content   string
			indexedAt int64
		)
		if err := rows.Scan(&doc.Path, &doc.Title, &content, &indexedAt); err != nil {
			return nil, err
		}
		doc.IndexedAt = time.Unix(indexedAt, 0)
		doc.Snippet = snippet(content, terms[0])
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Count returns the number of indexed documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}

// LastSync returns when the index was last synced, or nil.
func (s *Store) LastSync() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Watch re-syncs the index whenever files under the directory change.
func (s *Store) Watch(ctx context.Context) error {
	if s.watcher != nil {
		return nil
	}

	fw, err := NewFileWatcher(s.logger, func() {
		if _, err := s.Sync(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Document re-index failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	err = filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Watch(path)
		}
		return nil
	})
	if err != nil {
		fw.Stop()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	s.watcher = fw
	return nil
}

// Close stops watching and closes the database.
func (s *Store) Close() error {
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	return s.db.Close()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func snippet(content, term string) string {
	lower := strings.ToLower(content)
	idx := strings.Index(lower, term)
	if idx < 0 {
		idx = 0
	}
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(term) + snippetRadius
	if end > len(content) {
		end = len(content)
	}
	// Keep the snippet on rune boundaries.
	for start > 0 && !utf8RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8RuneStart(content[end]) {
		end++
	}
	return strings.Join(strings.Fields(content[start:end]), " ")
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
