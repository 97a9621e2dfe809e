package helpers

import (
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// mimeExtensions maps the image and video types Flickr serves to file extensions.
var mimeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
	"image/tiff": ".tif",
	"video/mp4":  ".mp4",
}

// BytesToSize renders a byte count with a binary unit suffix, e.g. "1.50MB".
func BytesToSize(bytes uint64) string {
	if bytes == 0 {
		return "0B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f%s", size, units[i])
}

// SanitizePath cleans a path and strips any leading separators or parent
// references so the result always stays relative.
func SanitizePath(p string) string {
	cleaned := filepath.Clean(string(filepath.Separator) + p)
	return strings.TrimLeft(cleaned, string(filepath.Separator))
}

// SanitizeFilename reduces an untrusted name (for example from a
// Content-Disposition header) to a single path element.
func SanitizeFilename(name string) string {
	base := filepath.Base(SanitizePath(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return base
}

// FilenameFromURL returns the last path element of rawURL without any query
// string, or "" when the URL has no usable name.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return SanitizeFilename(base)
}

// GetExtensionFromMimeType returns the extension for a known MIME type.
func GetExtensionFromMimeType(mimeType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(mimeType, ";")[0])
	}
	ext, ok := mimeExtensions[strings.ToLower(mediaType)]
	return ext, ok
}

// EnsureDir creates dir and any missing parents. An existing directory is not an error.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// CounterWriter counts the bytes passed through to Writer.
// OnWrite, when set, is called with the running total after every write.
type CounterWriter struct {
	Writer  io.Writer
	OnWrite func(total uint64)
	Total   uint64
}

func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	if cw.OnWrite != nil {
		cw.OnWrite(cw.Total)
	}
	return n, err
}
