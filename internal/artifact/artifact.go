// Package artifact persists the index/catalog pair as two co-located
// files. Both are written together and loaded together; a partial pair
// means "not ready", never a hard failure at startup.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/helmline/simdex/internal/domain"
	"github.com/helmline/simdex/internal/index"
)

const (
	// IndexFile holds the binary vector index.
	IndexFile = "catalog.index"
	// MetadataFile holds the ordered product list and the model identifier.
	MetadataFile = "metadata.json"
)

// Metadata is the catalog half of the artifact. Products are ordered by
// vector ordinal; Model records which embedding model built the index,
// and queries must embed with the same model.
type Metadata struct {
	Products []domain.Product `json:"products"`
	Model    string           `json:"model"`
}

// Save writes the pair into dir, creating it as needed. Each file is
// written to a temp name and renamed so a crash never leaves a torn file
// behind; a crash between the two renames leaves a mismatched pair,
// which Load rejects as not ready.
func Save(dir string, idx *index.Flat, meta Metadata) error {
	if idx.Len() != len(meta.Products) {
		return fmt.Errorf("index has %d vectors, catalog has %d records", idx.Len(), len(meta.Products))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, IndexFile), func(f *os.File) error {
		_, err := idx.WriteTo(f)
		return err
	}); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, MetadataFile), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	return nil
}

// Load reads the pair from dir. Any failure — missing file, unreadable
// content, or a count mismatch between the halves — is reported as an
// error the caller treats as "index not ready".
func Load(dir string) (*index.Flat, Metadata, error) {
	indexPath := filepath.Join(dir, IndexFile)
	metaPath := filepath.Join(dir, MetadataFile)
	if !fileExists(indexPath) || !fileExists(metaPath) {
		return nil, Metadata{}, fmt.Errorf(
			"catalog index not found in %s, run an index build: %w", dir, domain.ErrIndexNotReady)
	}

	f, err := os.Open(indexPath)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	idx := index.New()
	if _, err := idx.ReadFrom(f); err != nil {
		return nil, Metadata{}, fmt.Errorf("read index: %w", err)
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, Metadata{}, fmt.Errorf("parse metadata: %w", err)
	}

	if len(meta.Products) != idx.Len() {
		return nil, Metadata{}, fmt.Errorf(
			"catalog has %d records but index has %d vectors", len(meta.Products), idx.Len())
	}

	return idx, meta, nil
}

func writeAtomic(path string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
