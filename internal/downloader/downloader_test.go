package downloader

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/zeebo/blake3"
)

func newTestDownloader() *Downloader {
	logger, _ := test.NewNullLogger()
	return NewDownloader(&http.Client{Timeout: 5 * time.Second}, logger)
}

func imageServer(t *testing.T, data []byte, headers map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server
}

// TestNewDownloader_NilClient tests that a default client is created when nil is passed
func TestNewDownloader_NilClient(t *testing.T) {
	downloader := NewDownloader(nil, nil)

	if downloader.client == nil {
		t.Fatal("Expected default HTTP client to be created")
	}
	if downloader.client.Timeout != 5*time.Minute {
		t.Errorf("Expected default timeout to be 5 minutes, got %v", downloader.client.Timeout)
	}
	if downloader.logger == nil {
		t.Error("Expected a default logger")
	}
}

// TestDownloadImage_CreatesNestedDirectory tests that missing parents are created before writing
func TestDownloadImage_CreatesNestedDirectory(t *testing.T) {
	testData := []byte("\xff\xd8\xff\xe0 fake jpeg bytes")
	server := imageServer(t, testData, map[string]string{"Content-Type": "image/jpeg"})

	targetDir := filepath.Join(t.TempDir(), "photos", "cats", "2026")
	result, err := newTestDownloader().DownloadImage(targetDir, server.URL+"/65535/img.jpg")
	if err != nil {
		t.Fatalf("DownloadImage failed: %v", err)
	}

	expectedPath := filepath.Join(targetDir, "img.jpg")
	if result.Path != expectedPath {
		t.Errorf("Expected path %s, got %s", expectedPath, result.Path)
	}
	content, err := os.ReadFile(expectedPath)
	if err != nil {
		t.Fatalf("Failed to read downloaded file: %v", err)
	}
	if !bytes.Equal(content, testData) {
		t.Errorf("Downloaded content mismatch")
	}
	if result.Bytes != uint64(len(testData)) {
		t.Errorf("Expected %d bytes, got %d", len(testData), result.Bytes)
	}
	sum := blake3.Sum256(testData)
	if result.BLAKE3 != hex.EncodeToString(sum[:]) {
		t.Errorf("Expected BLAKE3 %x, got %s", sum, result.BLAKE3)
	}
	if result.ContentType != "image/jpeg" {
		t.Errorf("Expected content type image/jpeg, got %s", result.ContentType)
	}

	// No temp files left behind
	entries, _ := os.ReadDir(targetDir)
	if len(entries) != 1 {
		t.Errorf("Expected exactly one file in %s, found %d", targetDir, len(entries))
	}
}

// TestDownloadImage_ExistingDirectory tests that re-running into an existing directory succeeds
func TestDownloadImage_ExistingDirectory(t *testing.T) {
	server := imageServer(t, []byte("first"), nil)
	targetDir := t.TempDir()

	d := newTestDownloader()
	for i := 0; i < 2; i++ {
		result, err := d.DownloadImage(targetDir, server.URL+"/img.jpg")
		if err != nil {
			t.Fatalf("run %d: DownloadImage failed: %v", i+1, err)
		}
		if result.Path != filepath.Join(targetDir, "img.jpg") {
			t.Errorf("run %d: unexpected path %s", i+1, result.Path)
		}
	}
}

func TestDownloadImage_ContentDispositionFilename(t *testing.T) {
	server := imageServer(t, []byte("data"), map[string]string{
		"Content-Disposition": `attachment; filename="../../sneaky_cat.png"`,
	})
	targetDir := t.TempDir()

	result, err := newTestDownloader().DownloadImage(targetDir, server.URL+"/ignored.jpg")
	if err != nil {
		t.Fatalf("DownloadImage failed: %v", err)
	}
	if result.Path != filepath.Join(targetDir, "sneaky_cat.png") {
		t.Errorf("Expected Content-Disposition name inside target dir, got %s", result.Path)
	}
}

func TestDownloadImage_ExtensionFromContentType(t *testing.T) {
	server := imageServer(t, []byte("data"), map[string]string{"Content-Type": "image/png"})
	targetDir := t.TempDir()

	result, err := newTestDownloader().DownloadImage(targetDir, server.URL+"/photo?id=1")
	if err != nil {
		t.Fatalf("DownloadImage failed: %v", err)
	}
	if filepath.Base(result.Path) != "photo.png" {
		t.Errorf("Expected photo.png, got %s", filepath.Base(result.Path))
	}
}

func TestDownloadImage_FallbackFilename(t *testing.T) {
	server := imageServer(t, []byte("data"), map[string]string{"Content-Type": "image/jpeg"})
	targetDir := t.TempDir()

	result, err := newTestDownloader().DownloadImage(targetDir, server.URL+"/")
	if err != nil {
		t.Fatalf("DownloadImage failed: %v", err)
	}
	if filepath.Base(result.Path) != fallbackFilename+".jpg" {
		t.Errorf("Expected fallback name, got %s", filepath.Base(result.Path))
	}
}

// TestDownloadImage_HttpStatus tests non-200 handling
func TestDownloadImage_HttpStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()
	targetDir := t.TempDir()

	_, err := newTestDownloader().DownloadImage(targetDir, server.URL+"/img.jpg")
	if !errors.Is(err, ErrDownload) || !errors.Is(err, ErrHttpStatus) {
		t.Fatalf("Expected ErrDownload wrapping ErrHttpStatus, got %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("Expected status code in error, got %v", err)
	}
	entries, _ := os.ReadDir(targetDir)
	if len(entries) != 0 {
		t.Errorf("Expected no files after a failed download, found %d", len(entries))
	}
}

// TestDownloadImage_NetworkError tests transport failures
func TestDownloadImage_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL + "/img.jpg"
	server.Close()

	_, err := newTestDownloader().DownloadImage(t.TempDir(), url)
	if !errors.Is(err, ErrDownload) || !errors.Is(err, ErrHttpRequest) {
		t.Errorf("Expected ErrDownload wrapping ErrHttpRequest, got %v", err)
	}
}

// TestDownloadImage_DirectoryIsFile tests that filesystem failures carry ErrFileSystem
func TestDownloadImage_DirectoryIsFile(t *testing.T) {
	server := imageServer(t, []byte("data"), nil)
	blocker := filepath.Join(t.TempDir(), "photos")
	if err := os.WriteFile(blocker, []byte("not a dir"), 0o644); err != nil {
		t.Fatalf("Failed to create blocker file: %v", err)
	}

	_, err := newTestDownloader().DownloadImage(blocker, server.URL+"/img.jpg")
	if !errors.Is(err, ErrDownload) || !errors.Is(err, ErrFileSystem) {
		t.Errorf("Expected ErrDownload wrapping ErrFileSystem, got %v", err)
	}
}

func TestDownloadImage_Progress(t *testing.T) {
	server := imageServer(t, bytes.Repeat([]byte("x"), 2048), nil)
	var progress bytes.Buffer

	d := newTestDownloader()
	d.Progress = &progress
	if _, err := d.DownloadImage(t.TempDir(), server.URL+"/img.jpg"); err != nil {
		t.Fatalf("DownloadImage failed: %v", err)
	}
	if !strings.Contains(progress.String(), "Downloading img.jpg: 2.00KB / 2.00KB") {
		t.Errorf("Expected final progress line, got:\n%s", progress.String())
	}
}
