package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoggingTransport wraps an http.RoundTripper and appends every Flickr
// request and response to a log file.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	writer    *bufio.Writer
	logger    log.FieldLogger
	mu        sync.Mutex
}

// NewLoggingTransport opens logFilePath for appending and wraps transport.
// A nil transport means http.DefaultTransport.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string, logger log.FieldLogger) (*LoggingTransport, error) {
	// #nosec G304
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", logFilePath, err)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
		logger:    logger,
	}, nil
}

// isTextBody reports whether a response body is small structured text worth logging.
// Image bodies are never logged.
func isTextBody(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/xml") ||
		strings.HasPrefix(ct, "application/xml") ||
		strings.HasPrefix(ct, "application/json")
}

// RoundTrip executes a single HTTP transaction, logging details.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	logged := redactedRequest(req)
	reqDump, err := httputil.DumpRequestOut(logged, true)
	// The dump consumed the shared body and left a replayable copy on logged.
	req.Body = logged.Body
	if err != nil {
		t.logger.WithError(err).Error("[LogTransport] Failed to dump API request for logging")
	} else {
		t.mu.Lock()
		t.writeLog(fmt.Sprintf("--- Request (%s) ---\n%s", startTime.Format(time.RFC3339), string(reqDump)))
		t.mu.Unlock()
	}

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.writeLog(fmt.Sprintf("--- Response Error (%s, Duration: %v) ---\n%s", time.Now().Format(time.RFC3339), duration, err.Error()))
	} else if contentType := resp.Header.Get("Content-Type"); isTextBody(contentType) {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.logger.WithError(closeErr).Warn("[LogTransport] Failed to close original response body before replacing it")
		}
		// The caller still gets whatever was read, even on a read error.
		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		respDumpHeader, _ := httputil.DumpResponse(resp, false)
		if readErr != nil {
			t.logger.WithError(readErr).Error("[LogTransport] Failed to read response body for logging")
			t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v) ---\n%s\n(Body read failed)", time.Now().Format(time.RFC3339), duration, string(respDumpHeader)))
		} else {
			t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v) ---\n%s\n--- Response Body (%s) ---\n%s", time.Now().Format(time.RFC3339), duration, string(respDumpHeader), contentType, string(bodyBytes)))
		}
	} else {
		respDump, _ := httputil.DumpResponse(resp, false)
		t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v, Type: %s) ---\n%s\n(Body not logged)", time.Now().Format(time.RFC3339), duration, contentType, string(respDump)))
	}

	if errFlush := t.writer.Flush(); errFlush != nil {
		t.logger.WithError(errFlush).Error("[LogTransport] Failed to flush log writer")
	}
	return resp, err
}

// redactedArgs are the credential query arguments masked in request dumps.
var redactedArgs = []string{"api_key", "oauth_consumer_key", "oauth_token"}

// redactedRequest returns a shallow copy of req whose URL has credential
// arguments replaced. req itself is left untouched.
func redactedRequest(req *http.Request) *http.Request {
	query := req.URL.Query()
	changed := false
	for _, arg := range redactedArgs {
		if query.Has(arg) {
			query.Set(arg, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return req
	}
	u := *req.URL
	u.RawQuery = query.Encode()
	out := *req
	out.URL = &u
	return &out
}

func (t *LoggingTransport) writeLog(logString string) {
	if _, err := t.writer.WriteString(logString + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\n", err)
	}
}

// Close flushes and closes the underlying log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}
