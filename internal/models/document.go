// Package models defines the domain types for mdumb.
package models

import "time"

// Document is a parsed Markdown file under the content root.
type Document struct {
	Path        string         `json:"path"`
	Content     []byte         `json:"-"`
	Body        string         `json:"body"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Title       string         `json:"title,omitempty"`
	Hash        string         `json:"hash"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DocumentMetadata is a lightweight representation returned by list operations.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Hash      string    `json:"hash"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReadResult is the outcome of reading a document. A missing document is
// reported with Exists=false rather than an error.
type ReadResult struct {
	Exists  bool   `json:"exists"`
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Hash    string `json:"hash,omitempty"`
}

// WriteRequest asks for content to be stored at Path. A nil ExpectedHash
// writes unconditionally.
type WriteRequest struct {
	Path         string  `json:"path"`
	Content      string  `json:"content"`
	ExpectedHash *string `json:"hash"`
}

// Conflict describes a rejected conditional write.
type Conflict struct {
	ConflictDetected bool   `json:"conflictDetected"`
	CurrentHash      string `json:"currentHash"`
}

// WriteResult is the outcome of a write. Exactly one of NewHash or Conflict is set.
type WriteResult struct {
	Success  bool      `json:"success"`
	NewHash  string    `json:"newHash,omitempty"`
	Conflict *Conflict `json:"conflict,omitempty"`
}
