package testutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// ArchiveFragment is one fragment record written into a test snapshot archive.
type ArchiveFragment struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	CreatedAt  string    `json:"created_at"`
	Embedding  []float32 `json:"embedding"`
}

// ArchiveSpec describes a snapshot archive to build for tests.
type ArchiveSpec struct {
	SnapshotID string
	CorpusDate time.Time
	Fragments  []ArchiveFragment
}

// BuildSnapshotArchive writes a gzip-compressed tar snapshot archive to path.
func BuildSnapshotArchive(t *testing.T, path string, spec ArchiveSpec) {
	t.Helper()

	manifest, err := json.Marshal(map[string]any{
		"snapshot_id": spec.SnapshotID,
		"corpus_date": spec.CorpusDate.UTC().Format(time.RFC3339),
		"built_at":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}

	var fragments bytes.Buffer
	enc := json.NewEncoder(&fragments)
	for _, fragment := range spec.Fragments {
		if err := enc.Encode(fragment); err != nil {
			t.Fatalf("failed to encode fragment: %v", err)
		}
	}

	WriteTarGz(t, path, map[string][]byte{
		"manifest.json":   manifest,
		"fragments.jsonl": fragments.Bytes(),
	})
}

// WriteTarGz writes the given files into a gzip-compressed tar at path.
func WriteTarGz(t *testing.T, path string, files map[string][]byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create archive dir: %v", err)
	}

	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	for name, content := range files {
		header := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("failed to write tar header: %v", err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatalf("failed to write tar entry: %v", err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
}

// UnitVector returns an embedding pointing along the given axis, useful for
// deterministic cosine-similarity expectations.
func UnitVector(dimensions, axis int) []float32 {
	v := make([]float32, dimensions)
	v[axis] = 1
	return v
}
