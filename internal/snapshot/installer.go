package snapshot

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lvhr/airea/internal/domain"
)

// ManifestFile carries snapshot-level metadata alongside the fragment store.
const ManifestFile = "manifest.json"

// maxFragmentLine bounds a single fragments.jsonl line. Embedding payloads
// are large, so the default bufio.Scanner limit is far too small.
const maxFragmentLine = 16 * 1024 * 1024

// Manifest is the metadata document bundled inside a snapshot archive.
type Manifest struct {
	SnapshotID string    `json:"snapshot_id"`
	CorpusDate time.Time `json:"corpus_date"`
	BuiltAt    time.Time `json:"built_at"`
}

// Installer unpacks a verified snapshot archive into the live install path.
// The live path is, at every observable instant, either the previous
// complete snapshot or the new complete snapshot: extraction always happens
// in a staging directory that is renamed into place only once the corpus
// has been validated.
type Installer struct {
	installPath string
}

// NewInstaller creates an installer for the given live install path.
func NewInstaller(installPath string) *Installer {
	return &Installer{installPath: installPath}
}

// Install unpacks archivePath and activates it under the given policy. On
// extraction failure the previous installation, if any, is left untouched.
// A snapshot with zero documents fails with ErrEmptyCorpus rather than
// silently degrading every future retrieval.
func (i *Installer) Install(ctx context.Context, archivePath string, policy domain.RefreshPolicy) (*domain.Snapshot, error) {
	stagingPath := i.installPath + ".staging"
	if err := os.RemoveAll(stagingPath); err != nil {
		return nil, fmt.Errorf("failed to clear staging dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(i.installPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create install parent: %w", err)
	}

	if err := extractArchive(ctx, archivePath, stagingPath); err != nil {
		os.RemoveAll(stagingPath)
		return nil, err
	}

	manifest, metadata, err := readCorpus(stagingPath)
	if err != nil {
		os.RemoveAll(stagingPath)
		return nil, err
	}
	if metadata.DocumentCount == 0 {
		os.RemoveAll(stagingPath)
		return nil, domain.ErrEmptyCorpus
	}

	if err := i.activate(stagingPath, policy); err != nil {
		os.RemoveAll(stagingPath)
		return nil, err
	}

	snapshotID := manifest.SnapshotID
	if snapshotID == "" {
		snapshotID = uuid.NewString()
	}

	return &domain.Snapshot{
		ID:          snapshotID,
		InstallPath: i.installPath,
		InstalledAt: time.Now().UTC(),
		Metadata:    metadata,
	}, nil
}

// activate moves the fully-extracted staging directory into the live path.
// For fetch_and_swap the previous installation stays servable until the
// rename; for the downtime-tolerant policies it is simply replaced. In both
// cases the rename is the sole synchronization point between generations.
func (i *Installer) activate(stagingPath string, policy domain.RefreshPolicy) error {
	previousPath := i.installPath + ".previous"
	if err := os.RemoveAll(previousPath); err != nil {
		return fmt.Errorf("failed to clear previous snapshot dir: %w", err)
	}

	if _, err := os.Stat(i.installPath); err == nil {
		if policy == domain.PolicyFetchAndSwap {
			if err := os.Rename(i.installPath, previousPath); err != nil {
				return fmt.Errorf("failed to retire previous snapshot: %w", err)
			}
		} else if err := os.RemoveAll(i.installPath); err != nil {
			return fmt.Errorf("failed to discard previous snapshot: %w", err)
		}
	}

	if err := os.Rename(stagingPath, i.installPath); err != nil {
		return fmt.Errorf("failed to activate snapshot: %w", err)
	}

	os.RemoveAll(previousPath)
	return nil
}

// extractArchive unpacks a gzip-compressed tar archive into dst, rejecting
// entries that would escape it.
func extractArchive(ctx context.Context, archivePath, dst string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorruptArchive, err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorruptArchive, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrCorruptArchive, err)
		}

		name := filepath.Clean(header.Name)
		if name == "." || strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			continue
		}
		target := filepath.Join(dst, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("failed to create dir for %s: %w", name, err)
			}
			out, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", name, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("%w: %v", domain.ErrCorruptArchive, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("failed to write %s: %w", name, err)
			}
		}
	}
	return nil
}

// readCorpus parses the manifest and counts documents and fragments in an
// extracted snapshot directory. Only the document identifier is decoded per
// line; full fragment loading belongs to the index.
func readCorpus(dir string) (Manifest, domain.CorpusMetadata, error) {
	var manifest Manifest
	manifestBytes, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return Manifest{}, domain.CorpusMetadata{}, fmt.Errorf("%w: missing %s", domain.ErrCorruptArchive, ManifestFile)
	}
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return Manifest{}, domain.CorpusMetadata{}, fmt.Errorf("%w: invalid %s: %v", domain.ErrCorruptArchive, ManifestFile, err)
	}

	file, err := os.Open(filepath.Join(dir, MarkerFile))
	if err != nil {
		return Manifest{}, domain.CorpusMetadata{}, fmt.Errorf("%w: missing %s", domain.ErrCorruptArchive, MarkerFile)
	}
	defer file.Close()

	documents := make(map[string]struct{})
	fragments := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxFragmentLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var fragment struct {
			DocumentID string `json:"document_id"`
		}
		if err := json.Unmarshal([]byte(line), &fragment); err != nil {
			return Manifest{}, domain.CorpusMetadata{}, fmt.Errorf("%w: invalid fragment record: %v", domain.ErrCorruptArchive, err)
		}
		fragments++
		if fragment.DocumentID != "" {
			documents[fragment.DocumentID] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return Manifest{}, domain.CorpusMetadata{}, fmt.Errorf("%w: %v", domain.ErrCorruptArchive, err)
	}

	return manifest, domain.CorpusMetadata{
		DocumentCount: len(documents),
		FragmentCount: fragments,
		CorpusDate:    manifest.CorpusDate,
	}, nil
}
