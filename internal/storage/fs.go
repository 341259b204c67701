package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sickfar/mdumb/internal/apperr"
	"github.com/sickfar/mdumb/internal/checksum"
	"github.com/sickfar/mdumb/internal/models"
)

// IndexName is the document that represents a folder.
const IndexName = "index.md"

const tmpPattern = ".mdumb-tmp-*"

// skipDirs are never descended into when listing.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"vendor":       true,
}

// FS implements Provider backed by the local file system.
type FS struct {
	root  string // absolute, symlink-resolved content root
	locks *pathLocks
	now   func() time.Time
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root symlinks: %w", err)
	}
	return &FS{root: resolved, locks: newPathLocks(), now: time.Now}, nil
}

// Root returns the absolute content root.
func (f *FS) Root() string { return f.root }

// List walks dir (relative to root) and returns metadata for every .md file.
// Hidden entries are skipped; ignore rules are not applied here.
func (f *FS) List(dir string) ([]models.DocumentMetadata, error) {
	base, err := ValidatePath(dir, f.root)
	if err != nil {
		return nil, err
	}
	var out []models.DocumentMetadata
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == base {
				return walkErr
			}
			// Entries removed mid-walk are not worth failing the listing.
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		name := d.Name()
		if p != base && (strings.HasPrefix(name, ".") || (d.IsDir() && skipDirs[name])) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(name, ".md") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, err := checksum.SumFile(p)
		if err != nil {
			return err
		}
		out = append(out, models.DocumentMetadata{
			Path:      Rel(f.root, p),
			Hash:      sum,
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: list %s: %w", dir, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Read returns the document at path together with its content hash.
func (f *FS) Read(path string) (models.ReadResult, error) {
	abs, err := ValidatePath(path, f.root)
	if err != nil {
		return models.ReadResult{}, err
	}
	rel := Rel(f.root, abs)
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.ReadResult{Exists: false, Path: rel}, nil
		}
		if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
			return models.ReadResult{}, fmt.Errorf("storage: read %s: %w: is a directory", path, apperr.ErrInvalidPath)
		}
		return models.ReadResult{}, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return models.ReadResult{
		Exists:  true,
		Path:    rel,
		Content: string(data),
		Hash:    checksum.Sum(data),
	}, nil
}

// Write stores req.Content at req.Path. When req.ExpectedHash is set and a
// document already exists there, the write only happens if the current
// content hashes to the expected value; otherwise the result carries the
// current hash and the disk is left untouched.
func (f *FS) Write(req models.WriteRequest) (models.WriteResult, error) {
	abs, err := f.mutablePath(req.Path)
	if err != nil {
		return models.WriteResult{}, err
	}

	unlock := f.locks.lock(abs)
	defer unlock()

	if req.ExpectedHash != nil {
		current, err := os.ReadFile(abs)
		switch {
		case err == nil:
			currentHash := checksum.Sum(current)
			if !checksum.Equal(currentHash, *req.ExpectedHash) {
				return models.WriteResult{
					Success: false,
					Conflict: &models.Conflict{
						ConflictDetected: true,
						CurrentHash:      currentHash,
					},
				}, nil
			}
		case errors.Is(err, fs.ErrNotExist):
			// Absent target satisfies any expectation.
		default:
			return models.WriteResult{}, fmt.Errorf("storage: read %s: %w", req.Path, err)
		}
	}

	content := []byte(req.Content)
	if err := f.writeAtomic(abs, content); err != nil {
		return models.WriteResult{}, err
	}
	return models.WriteResult{Success: true, NewHash: checksum.Sum(content)}, nil
}

// CreateFolder creates the folder at path. When withIndex is set an index
// document titled after the folder is written inside it.
func (f *FS) CreateFolder(path string, withIndex bool) error {
	abs, err := f.mutablePath(path)
	if err != nil {
		return err
	}

	unlock := f.locks.lock(abs)
	defer unlock()

	if _, err := os.Lstat(abs); err == nil {
		return fmt.Errorf("storage: create folder %s: %w", path, apperr.ErrAlreadyExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: stat %s: %w", path, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", path, err)
	}
	if !withIndex {
		return nil
	}
	content := fmt.Sprintf("# %s\n\nThis folder was created on %s.\n",
		filepath.Base(abs), f.now().Format(time.DateOnly))
	return f.writeAtomic(filepath.Join(abs, IndexName), []byte(content))
}

// Promote converts the document at path (e.g. "notes/x.md") into the folder
// "notes/x" containing "index.md" with identical bytes, then removes the
// original. It returns the relative path of the new folder.
func (f *FS) Promote(path string) (string, error) {
	abs, err := f.mutablePath(path)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(abs, ".md") {
		return "", fmt.Errorf("storage: promote %s: %w: not a markdown document", path, apperr.ErrInvalidPath)
	}
	folder := strings.TrimSuffix(abs, ".md")

	unlock := f.locks.lock(abs)
	defer unlock()
	unlockFolder := f.locks.lock(folder)
	defer unlockFolder()

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("storage: promote %s: %w", path, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("storage: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("storage: promote %s: %w: is a directory", path, apperr.ErrInvalidPath)
	}
	if _, err := os.Lstat(folder); err == nil {
		return "", fmt.Errorf("storage: promote %s: target folder %w", path, apperr.ErrAlreadyExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("storage: stat target: %w", err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("storage: read %s: %w", path, err)
	}
	if err := os.Mkdir(folder, 0o755); err != nil {
		return "", fmt.Errorf("storage: mkdir %s: %w", Rel(f.root, folder), err)
	}
	index := filepath.Join(folder, IndexName)
	if err := f.writeAtomic(index, data); err != nil {
		_ = os.RemoveAll(folder)
		return "", err
	}
	if err := os.Remove(abs); err != nil {
		return "", fmt.Errorf("storage: remove original %s: %w", path, err)
	}
	return Rel(f.root, folder), nil
}

// Delete removes the document or folder at path. Folders are removed recursively.
func (f *FS) Delete(path string) error {
	abs, err := f.mutablePath(path)
	if err != nil {
		return err
	}

	unlock := f.locks.lock(abs)
	defer unlock()

	if _, err := os.Lstat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: delete %s: %w", path, apperr.ErrNotFound)
		}
		return fmt.Errorf("storage: stat %s: %w", path, err)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// mutablePath validates path and refuses the root itself.
func (f *FS) mutablePath(path string) (string, error) {
	abs, err := ValidatePath(path, f.root)
	if err != nil {
		return "", err
	}
	if abs == f.root {
		return "", fmt.Errorf("storage: %w: operation not allowed on content root", apperr.ErrInvalidPath)
	}
	return abs, nil
}

// writeAtomic writes content: tmp file → fsync → rename.
func (f *FS) writeAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(abs); err == nil {
		if info.IsDir() {
			return fmt.Errorf("storage: write %s: %w: is a directory", Rel(f.root, abs), apperr.ErrInvalidPath)
		}
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
