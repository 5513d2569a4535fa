package snapshot

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lvhr/airea/internal/domain"
)

// ObjectDownloader fetches snapshot archives hosted in object storage
// (s3:// sources). Implemented by storage.S3Client.
type ObjectDownloader interface {
	Download(ctx context.Context, bucket, key string, dst io.Writer) error
}

// FetcherConfig holds configuration for Fetcher.
type FetcherConfig struct {
	// ScratchDir is where archives are downloaded before installation.
	// Never the serving path.
	ScratchDir string
	// Token is sent as "Authorization: token <value>" on HTTPS fetches.
	Token string
	// Timeout bounds a single HTTP fetch attempt.
	Timeout time.Duration
}

// Fetcher downloads a compressed snapshot archive to a scratch location.
// A partial download is never visible under the final archive name: bytes
// are written to a distinct .partial path and renamed only after the
// download is complete and verified.
type Fetcher struct {
	client     *http.Client
	objects    ObjectDownloader
	scratchDir string
	token      string
}

// NewFetcher creates a Fetcher. objects may be nil when no s3:// source is
// configured.
func NewFetcher(cfg FetcherConfig, objects ObjectDownloader) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Fetcher{
		client:     &http.Client{Timeout: timeout},
		objects:    objects,
		scratchDir: cfg.ScratchDir,
		token:      cfg.Token,
	}
}

// Fetch downloads the archive at sourceURL and returns the local path of the
// verified archive. Authentication failures return ErrArtifactAuth, missing
// artifacts ErrArtifactNotFound, and connection or server failures
// ErrTransientNetwork (retryable by the caller).
func (f *Fetcher) Fetch(ctx context.Context, sourceURL string) (string, error) {
	if sourceURL == "" {
		return "", domain.ErrMissingSourceURL
	}

	if err := os.MkdirAll(f.scratchDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %w", err)
	}

	archivePath := filepath.Join(f.scratchDir, "snapshot.tar.gz")
	partialPath := archivePath + ".partial"
	defer os.Remove(partialPath)

	dst, err := os.Create(partialPath)
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}

	if strings.HasPrefix(sourceURL, "s3://") {
		err = f.fetchObject(ctx, sourceURL, dst)
	} else {
		err = f.fetchHTTP(ctx, sourceURL, dst)
	}
	if closeErr := dst.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to flush archive: %w", closeErr)
	}
	if err != nil {
		return "", err
	}

	if err := verifyArchive(partialPath); err != nil {
		return "", err
	}

	if err := os.Rename(partialPath, archivePath); err != nil {
		return "", fmt.Errorf("failed to publish archive: %w", err)
	}
	return archivePath, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, sourceURL string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("invalid source URL: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "token "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.ErrArtifactAuth
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrArtifactNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: unexpected status %d", domain.ErrTransientNetwork, resp.StatusCode)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err)
	}
	return nil
}

func (f *Fetcher) fetchObject(ctx context.Context, sourceURL string, dst io.Writer) error {
	if f.objects == nil {
		return fmt.Errorf("s3 source %q configured without object storage credentials", sourceURL)
	}

	u, err := url.Parse(sourceURL)
	if err != nil {
		return fmt.Errorf("invalid source URL: %w", err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return fmt.Errorf("invalid s3 source %q: expected s3://bucket/key", sourceURL)
	}

	return f.objects.Download(ctx, bucket, key, dst)
}

// verifyArchive checks that the downloaded file is non-empty and starts with
// a readable gzip header.
func verifyArchive(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorruptArchive, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: downloaded archive is empty", domain.ErrCorruptArchive)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorruptArchive, err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorruptArchive, err)
	}
	return gz.Close()
}
