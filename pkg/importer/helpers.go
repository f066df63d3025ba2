package importer

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daniela2708/ganaderia/pkg/dataset"
)

const (
	downloadAttempts = 3
	// maxDownload caps one source file; the consolidated tables are ~100 MB.
	maxDownload = 1 << 30
	userAgent   = "ganaderia-importer/1.0"
)

var httpClient = &http.Client{Timeout: 15 * time.Minute}

// errPermanent marks answers that retrying cannot fix.
var errPermanent = errors.New("permanent download failure")

// downloadFile fetches url into dest. Network errors and 5xx answers are
// retried with exponential backoff; other non-200 answers fail at once.
func downloadFile(ctx context.Context, url, dest string) error {
	var lastErr error
	for attempt := range downloadAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second << attempt):
			}
		}
		lastErr = fetchOnce(ctx, url, dest)
		if lastErr == nil || errors.Is(lastErr, errPermanent) || ctx.Err() != nil {
			return lastErr
		}
	}
	return fmt.Errorf("download %s failed after %d attempts: %w", url, downloadAttempts, lastErr)
}

func fetchOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	default:
		return fmt.Errorf("%w: HTTP %d for %s", errPermanent, resp.StatusCode, url)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, maxDownload+1))
	if err := f.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		return copyErr
	}
	if n > maxDownload {
		return fmt.Errorf("%w: %s is larger than %d bytes", errPermanent, url, maxDownload)
	}
	return nil
}

// extractCSV returns path itself for a plain file. For a ZIP archive it
// writes the first .csv entry into destDir and returns that path.
func extractCSV(path, destDir string) (string, error) {
	zr, err := zip.OpenReader(path)
	if errors.Is(err, zip.ErrFormat) {
		return path, nil
	}
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(entry.Name), ".csv") {
			continue
		}
		// Entries are flattened, so "../" in an archive path cannot escape destDir.
		out := filepath.Join(destDir, "extracted-"+filepath.Base(entry.Name))
		if err := copyEntry(entry, out); err != nil {
			return "", err
		}
		return out, nil
	}
	return "", fmt.Errorf("archive %s holds no .csv file", filepath.Base(path))
}

func copyEntry(entry *zip.File, dest string) error {
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", entry.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(rc, maxDownload)); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	return out.Close()
}

// writeManifest records where the tables came from in dir/dataset.yaml.
func writeManifest(dir string, m *dataset.Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, dataset.ManifestFile), data, 0o644)
}
