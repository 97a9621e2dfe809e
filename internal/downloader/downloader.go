package downloader

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go-flickr-fetch/internal/helpers"
	"go-flickr-fetch/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// Custom Downloader Errors
var (
	ErrDownload    = errors.New("download failed")
	ErrHttpStatus  = errors.New("unexpected HTTP status code")
	ErrFileSystem  = errors.New("filesystem error") // Covers mkdir, create, write, rename
	ErrHttpRequest = errors.New("HTTP request creation/execution error")
)

// fallbackFilename is used when neither the response nor the URL yields a name.
const fallbackFilename = "flickr_photo"

// Downloader fetches a single image into a directory.
type Downloader struct {
	client *http.Client
	logger log.FieldLogger
	// Progress, when set, receives live "received / total" lines.
	Progress io.Writer
}

// NewDownloader creates a new Downloader instance.
func NewDownloader(client *http.Client, logger log.FieldLogger) *Downloader {
	if client == nil {
		client = &http.Client{
			Timeout: 5 * time.Minute,
		}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Downloader{
		client: client,
		logger: logger,
	}
}

// extractFilenameFromResponse extracts filename from Content-Disposition header
func extractFilenameFromResponse(resp *http.Response) string {
	contentDisposition := resp.Header.Get("Content-Disposition")
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}
	return helpers.SanitizeFilename(params["filename"])
}

// chooseFilename picks the final file name: Content-Disposition first, then the
// URL basename. A missing extension is filled in from the Content-Type.
func chooseFilename(resp *http.Response, rawURL string) string {
	name := extractFilenameFromResponse(resp)
	if name == "" {
		name = helpers.FilenameFromURL(rawURL)
	}
	if name == "" {
		name = fallbackFilename
	}
	if filepath.Ext(name) == "" {
		if ext, ok := helpers.GetExtensionFromMimeType(resp.Header.Get("Content-Type")); ok {
			name += ext
		}
	}
	return name
}

// DownloadImage downloads the image at url into targetDir, creating the
// directory (and parents) when missing. It returns the path of the written file.
func (d *Downloader) DownloadImage(targetDir string, url string) (models.DownloadResult, error) {
	d.logger.Debugf("downloading photo from %s", url)

	if err := helpers.EnsureDir(targetDir); err != nil {
		return models.DownloadResult{}, fmt.Errorf("%w: %w: creating directory %s: %w", ErrDownload, ErrFileSystem, targetDir, err)
	}

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return models.DownloadResult{}, fmt.Errorf("%w: %w: creating image request for %s: %w", ErrDownload, ErrHttpRequest, url, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.WithError(err).Errorf("Error performing download request from %s", url)
		return models.DownloadResult{}, fmt.Errorf("%w: %w: performing image request for %s: %w", ErrDownload, ErrHttpRequest, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.DownloadResult{}, fmt.Errorf("%w: %w: received status %d for image %s", ErrDownload, ErrHttpStatus, resp.StatusCode, url)
	}

	finalPath := filepath.Join(targetDir, chooseFilename(resp, url))

	tempFile, err := os.CreateTemp(targetDir, filepath.Base(finalPath)+".*.tmp")
	if err != nil {
		return models.DownloadResult{}, fmt.Errorf("%w: %w: creating temporary file in %s: %w", ErrDownload, ErrFileSystem, targetDir, err)
	}
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
				d.logger.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	written, digest, err := d.copyBody(resp, tempFile, filepath.Base(finalPath))
	if closeErr := tempFile.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: closing temporary file %s: %w", ErrFileSystem, tempFile.Name(), closeErr)
	}
	if err != nil {
		return models.DownloadResult{}, fmt.Errorf("%w: %w", ErrDownload, err)
	}

	if err := os.Rename(tempFile.Name(), finalPath); err != nil {
		return models.DownloadResult{}, fmt.Errorf("%w: %w: renaming %s to %s: %w", ErrDownload, ErrFileSystem, tempFile.Name(), finalPath, err)
	}
	shouldCleanupTemp = false

	result := models.DownloadResult{
		Path:        finalPath,
		ContentType: resp.Header.Get("Content-Type"),
		BLAKE3:      digest,
		Bytes:       written,
	}
	d.logger.WithFields(log.Fields{
		"size":   helpers.BytesToSize(written),
		"blake3": digest,
	}).Debugf("File saved to %s", finalPath)
	return result, nil
}

// copyBody streams the response into dst while hashing it and reporting progress.
// A read failure wraps ErrHttpRequest, a write failure wraps ErrFileSystem.
func (d *Downloader) copyBody(resp *http.Response, dst *os.File, label string) (uint64, string, error) {
	size, _ := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)
	hasher := blake3.New()

	counter := &helpers.CounterWriter{Writer: io.MultiWriter(dst, hasher)}
	if d.Progress != nil {
		total := "unknown"
		if size > 0 {
			total = helpers.BytesToSize(size)
		}
		counter.OnWrite = func(n uint64) {
			fmt.Fprintf(d.Progress, "Downloading %s: %s / %s\n", label, helpers.BytesToSize(n), total)
		}
	}

	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := counter.Write(buf[:n]); writeErr != nil {
				return counter.Total, "", fmt.Errorf("%w: writing %s: %w", ErrFileSystem, dst.Name(), writeErr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return counter.Total, "", fmt.Errorf("%w: reading response body: %w", ErrHttpRequest, readErr)
		}
	}

	if size > 0 && counter.Total != size {
		d.logger.Warnf("Received %d bytes, Content-Length announced %d", counter.Total, size)
	}
	return counter.Total, hex.EncodeToString(hasher.Sum(nil)), nil
}
