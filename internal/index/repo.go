package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sickfar/mdumb/internal/apperr"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Hash      string    `json:"hash"`
	Tags      []string  `json:"tags,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

const excerptLen = 200

// Upsert inserts or replaces a document.
func (db *DB) Upsert(row DocumentRow, body string) error {
	tagsJSON, _ := json.Marshal(row.Tags)
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO documents (path, title, hash, tags, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			hash       = excluded.hash,
			tags       = excluded.tags,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, row.Path, row.Title, row.Hash, string(tagsJSON), body, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}
	return nil
}

// Delete removes the document at path and, when path is a folder, every
// document beneath it.
func (db *DB) Delete(path string) error {
	_, err := db.conn.Exec(`DELETE FROM documents WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		path, escapeLike(strings.TrimSuffix(path, "/"))+"/%")
	if err != nil {
		return fmt.Errorf("index: delete document: %w", err)
	}
	return nil
}

// GetHash returns the stored hash for a document, or empty string if not found.
func (db *DB) GetHash(path string) (string, error) {
	var h string
	err := db.conn.QueryRow(`SELECT hash FROM documents WHERE path = ?`, path).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get hash: %w", err)
	}
	return h, nil
}

// Get returns one document row.
func (db *DB) Get(path string) (*DocumentRow, error) {
	row := db.conn.QueryRow(`SELECT path, title, hash, tags, updated_at FROM documents WHERE path = ?`, path)
	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return r, nil
}

// List returns documents ordered by path, plus the total count.
// A non-positive limit returns everything.
func (db *DB) List(limit, offset int) ([]DocumentRow, int, error) {
	total, err := db.Count()
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := db.conn.Query(`
		SELECT path, title, hash, tags, updated_at
		FROM documents
		ORDER BY path
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

// Search performs a case-insensitive substring match over title, body and tags.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	like := "%" + escapeLike(query) + "%"
	rows, err := db.conn.Query(`
		SELECT path, title, body
		FROM documents
		WHERE title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\'
		ORDER BY (title LIKE ? ESCAPE '\') DESC, path
		LIMIT ?
	`, like, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var body string
		if err := rows.Scan(&r.Path, &r.Title, &body); err != nil {
			return nil, err
		}
		r.Excerpt = excerpt(body, query)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllHashes returns path → hash for every catalogued document.
func (db *DB) AllHashes() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, hash FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all hashes: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, h string
		if err := rows.Scan(&p, &h); err != nil {
			return nil, err
		}
		out[p] = h
	}
	return out, rows.Err()
}

// Count returns the number of catalogued documents.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*DocumentRow, error) {
	var r DocumentRow
	var tags string
	if err := s.Scan(&r.Path, &r.Title, &r.Hash, &tags, &r.UpdatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(tags), &r.Tags)
	return &r, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// excerpt returns up to excerptLen runes of body, starting near the first
// case-insensitive occurrence of query.
func excerpt(body, query string) string {
	runes := []rune(body)
	start := 0
	lower := strings.ToLower(body)
	if i := strings.Index(lower, strings.ToLower(query)); i >= 0 {
		start = max(utf8.RuneCountInString(lower[:i])-excerptLen/4, 0)
		start = min(start, len(runes))
	}
	end := start + excerptLen
	if end > len(runes) {
		end = len(runes)
	}
	return strings.TrimSpace(string(runes[start:end]))
}
