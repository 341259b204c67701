// Package storage implements the content store: validated, hash-guarded
// access to the Markdown documents under a single content root.
package storage

import "github.com/sickfar/mdumb/internal/models"

// Provider is the interface for content root operations. All paths are
// relative to the root and use forward slashes.
type Provider interface {
	// Root returns the absolute, symlink-resolved content root.
	Root() string
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.DocumentMetadata, error)
	// Read returns the document at path; a missing document is not an error.
	Read(path string) (models.ReadResult, error)
	// Write stores content, honouring req.ExpectedHash when set.
	Write(req models.WriteRequest) (models.WriteResult, error)
	// CreateFolder creates a new folder, optionally seeded with an index document.
	CreateFolder(path string, withIndex bool) error
	// Promote turns a document into a folder holding it as its index document
	// and returns the folder path.
	Promote(path string) (string, error)
	// Delete removes a document or, recursively, a folder.
	Delete(path string) error
}
