package store

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/imfgraph/pkg/errors"
	"github.com/matzehuels/imfgraph/pkg/imf"
)

// File name suffixes of a record in a FileStore.
const (
	SuffixHierarchy = "_components.json"
	SuffixRelations = ".json"
	SuffixDocument  = ".imf"
)

// FileStore writes each record as three files in one directory:
// <name>_components.json, <name>.json and <name>.imf.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "create store directory")
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string { return s.dir }

// Save implements Store. Files are written atomically one by one; the
// relations file goes last because its presence is what List reports.
func (s *FileStore) Save(_ context.Context, rec Record) error {
	if err := errors.ValidateDocumentName(rec.Name); err != nil {
		return err
	}
	files := []struct {
		suffix string
		data   []byte
	}{
		{SuffixHierarchy, rec.Hierarchy},
		{SuffixDocument, rec.Document},
		{SuffixRelations, rec.Relations},
	}
	for _, f := range files {
		if f.data == nil {
			continue
		}
		if err := imf.WriteFileAtomic(s.path(rec.Name, f.suffix), f.data); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "write %s%s", rec.Name, f.suffix)
		}
	}
	return nil
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, name string) (*Record, error) {
	if err := errors.ValidateDocumentName(name); err != nil {
		return nil, err
	}
	relPath := s.path(name, SuffixRelations)
	info, err := os.Stat(relPath)
	if os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeNotFound, "document %q not found", name)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "stat %s", relPath)
	}

	rec := &Record{Name: name, UpdatedAt: info.ModTime()}
	for _, f := range []struct {
		suffix string
		dst    *[]byte
	}{
		{SuffixRelations, &rec.Relations},
		{SuffixHierarchy, &rec.Hierarchy},
		{SuffixDocument, &rec.Document},
	} {
		data, err := os.ReadFile(s.path(name, f.suffix))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "read %s%s", name, f.suffix)
		}
		*f.dst = data
	}
	return rec, nil
}

// List implements Store.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "list %s", s.dir)
	}
	files := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files[e.Name()] = true
		}
	}

	// "x_components.json" is the hierarchy of "x" only when "x.json" exists;
	// otherwise it holds the relations of a document named "x_components".
	names := []string{}
	for n := range files {
		if !strings.HasSuffix(n, SuffixRelations) {
			continue
		}
		if base, ok := strings.CutSuffix(n, SuffixHierarchy); ok && files[base+SuffixRelations] {
			continue
		}
		names = append(names, strings.TrimSuffix(n, SuffixRelations))
	}
	slices.Sort(names)
	return names, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(name, suffix string) string {
	return filepath.Join(s.dir, name+suffix)
}

var _ Store = (*FileStore)(nil)
