// Package store provides SQLite persistence for the image gallery.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/abelbrown/imageshelf/internal/gallery"
)

var (
	// ErrNotFound is returned when an image does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when creating a tag whose slug is taken.
	ErrExists = errors.New("already exists")
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
//
// Store implements gallery.TagCatalog, gallery.RecordWriter and
// gallery.Browser.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL -- unix nanoseconds
	);

	CREATE TABLE IF NOT EXISTS images (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		image_url TEXT NOT NULL,
		prompt TEXT NOT NULL,
		seed INTEGER,
		status TEXT NOT NULL DEFAULT 'Active',
		created_at TEXT NOT NULL,
		inserted_at INTEGER NOT NULL -- unix nanoseconds
	);

	CREATE TABLE IF NOT EXISTS image_tags (
		image_id TEXT NOT NULL,
		tag_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (image_id, tag_id)
	);

	CREATE INDEX IF NOT EXISTS idx_images_status ON images(status, inserted_at DESC);
	CREATE INDEX IF NOT EXISTS idx_images_url ON images(image_url);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// CreateTag adds a tag to the catalog. The slug is derived from name.
func (s *Store) CreateTag(ctx context.Context, name string) (gallery.Tag, error) {
	name = strings.TrimSpace(name)
	slug := Slugify(name)
	if slug == "" {
		return gallery.Tag{}, fmt.Errorf("tag name %q has no usable characters", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tags WHERE slug = ?", slug).Scan(&n); err != nil {
		return gallery.Tag{}, fmt.Errorf("check tag: %w", err)
	}
	if n > 0 {
		return gallery.Tag{}, fmt.Errorf("tag %q: %w", slug, ErrExists)
	}

	tag := gallery.Tag{ID: uuid.NewString(), Slug: slug, Name: name}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO tags (id, slug, name, created_at) VALUES (?, ?, ?, ?)",
		tag.ID, tag.Slug, tag.Name, time.Now().UnixNano())
	if err != nil {
		return gallery.Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	return tag, nil
}

// ListTags returns up to limit tags in creation order.
// A non-positive limit returns every tag.
// Thread-safe: acquires read lock.
func (s *Store) ListTags(ctx context.Context, limit int) ([]gallery.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id, slug, name FROM tags ORDER BY rowid LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var tags []gallery.Tag
	for rows.Next() {
		var t gallery.Tag
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// InsertRecord stores rec with a fresh ID and slug and links its tags.
// Thread-safe: acquires write lock.
func (s *Store) InsertRecord(ctx context.Context, rec gallery.Record) (gallery.Record, error) {
	rec.ID = uuid.NewString()
	rec.Slug = imageSlug(rec.Title, rec.ID)
	if rec.Status == "" {
		rec.Status = gallery.StatusActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gallery.Record{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var seed any
	if rec.Seed != nil {
		seed = *rec.Seed
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO images (id, slug, title, image_url, prompt, seed, status, created_at, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Slug, rec.Title, rec.ImageURL, rec.Prompt, seed, string(rec.Status), rec.CreatedAt, time.Now().UnixNano())
	if err != nil {
		return gallery.Record{}, fmt.Errorf("insert image: %w", err)
	}

	for i, tagID := range rec.TagIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO image_tags (image_id, tag_id, position) VALUES (?, ?, ?)",
			rec.ID, tagID, i); err != nil {
			return gallery.Record{}, fmt.Errorf("link tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return gallery.Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// ListImages returns images newest first, optionally filtered by status.
// A zero limit returns every match.
// Thread-safe: acquires read lock.
func (s *Store) ListImages(ctx context.Context, q gallery.ImageQuery) ([]gallery.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}

	query := `
		SELECT id, slug, title, image_url, prompt, seed, status, created_at
		FROM images`
	args := []any{}
	if q.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(q.Status))
	}
	query += " ORDER BY inserted_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	recs, err := s.queryImages(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// Rows are closed before tags are loaded; :memory: has one connection.
	for i := range recs {
		if recs[i].TagIDs, err = s.tagIDs(ctx, recs[i].ID); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// GetImage returns the image with the given ID, or ErrNotFound.
// Thread-safe: acquires read lock.
func (s *Store) GetImage(ctx context.Context, id string) (gallery.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.queryImages(ctx, `
		SELECT id, slug, title, image_url, prompt, seed, status, created_at
		FROM images WHERE id = ?`, id)
	if err != nil {
		return gallery.Record{}, err
	}
	if len(recs) == 0 {
		return gallery.Record{}, fmt.Errorf("image %s: %w", id, ErrNotFound)
	}
	rec := recs[0]
	if rec.TagIDs, err = s.tagIDs(ctx, rec.ID); err != nil {
		return gallery.Record{}, err
	}
	return rec, nil
}

// SetStatus changes an image's status.
// Thread-safe: acquires write lock.
func (s *Store) SetStatus(ctx context.Context, id string, status gallery.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "UPDATE images SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("image %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountByStatus returns the number of images per status.
// Thread-safe: acquires read lock.
func (s *Store) CountByStatus(ctx context.Context) (map[gallery.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM images GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count images: %w", err)
	}
	defer rows.Close()

	counts := make(map[gallery.Status]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[gallery.Status(st)] = n
	}
	return counts, rows.Err()
}

// queryImages executes a query and scans results into Records without tags.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryImages(ctx context.Context, query string, args ...any) ([]gallery.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	var recs []gallery.Record
	for rows.Next() {
		var rec gallery.Record
		var seed sql.NullInt64
		var status string
		if err := rows.Scan(&rec.ID, &rec.Slug, &rec.Title, &rec.ImageURL, &rec.Prompt, &seed, &status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if seed.Valid {
			v := seed.Int64
			rec.Seed = &v
		}
		rec.Status = gallery.Status(status)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// tagIDs returns an image's tag IDs in attachment order.
// Caller must hold s.mu.
func (s *Store) tagIDs(ctx context.Context, imageID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT tag_id FROM image_tags WHERE image_id = ? ORDER BY position", imageID)
	if err != nil {
		return nil, fmt.Errorf("query image tags: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Slugify lowercases s and joins its letter and digit runs with '-'.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

// imageSlug makes a unique slug from the title and record ID.
func imageSlug(title, id string) string {
	suffix := strings.ReplaceAll(id, "-", "")[:8]
	base := Slugify(title)
	if r := []rune(base); len(r) > 40 {
		base = strings.TrimRight(string(r[:40]), "-")
	}
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
