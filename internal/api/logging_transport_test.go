package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestLoggingTransport_LogsXMLBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.Write([]byte(echoOK))
	}))
	defer server.Close()

	logPath := filepath.Join(t.TempDir(), "api.log")
	logger, _ := test.NewNullLogger()
	lt, err := NewLoggingTransport(nil, logPath, logger)
	if err != nil {
		t.Fatalf("NewLoggingTransport failed: %v", err)
	}

	client := &http.Client{Transport: lt}
	resp, err := client.Get(server.URL + "?method=flickr.test.echo&api_key=supersecret")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	// The caller still sees the full body after the transport read it.
	if string(body) != echoOK {
		t.Errorf("Body altered by transport: %q", string(body))
	}
	if err := lt.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	logged, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	content := string(logged)
	if !strings.Contains(content, "--- Request") || !strings.Contains(content, "--- Response Body") {
		t.Errorf("Expected request and response sections, got:\n%s", content)
	}
	if !strings.Contains(content, "flickr.test.echo") {
		t.Error("Expected the response body to be logged")
	}
	if strings.Contains(content, "supersecret") {
		t.Error("API key leaked into the log")
	}
}

func TestLoggingTransport_SkipsImageBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("\xff\xd8\xff binary"))
	}))
	defer server.Close()

	logPath := filepath.Join(t.TempDir(), "api.log")
	lt, err := NewLoggingTransport(http.DefaultTransport, logPath, nil)
	if err != nil {
		t.Fatalf("NewLoggingTransport failed: %v", err)
	}

	resp, err := (&http.Client{Transport: lt}).Get(server.URL + "/img.jpg")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	lt.Close()

	logged, _ := os.ReadFile(logPath)
	if !strings.Contains(string(logged), "(Body not logged)") {
		t.Errorf("Expected image body to be skipped, got:\n%s", string(logged))
	}
}

func TestRedactedRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://api.test/rest?api_key=abc123&method=flickr.test.login&oauth_consumer_key=abc123&oauth_token=tok&oauth_signature=sig", nil)
	original := req.URL.String()

	got := redactedRequest(req).URL.Query()
	for _, arg := range []string{"api_key", "oauth_consumer_key", "oauth_token"} {
		if got.Get(arg) != "REDACTED" {
			t.Errorf("Expected %s to be redacted, got %q", arg, got.Get(arg))
		}
	}
	if got.Get("method") != "flickr.test.login" || got.Get("oauth_signature") != "sig" {
		t.Errorf("Non-credential arguments changed: %v", got)
	}
	if req.URL.String() != original {
		t.Errorf("Original request modified: %s", req.URL.String())
	}

	plain := httptest.NewRequest(http.MethodGet, "http://api.test/rest?method=flickr.test.echo", nil)
	if redactedRequest(plain) != plain {
		t.Error("Expected a request without credentials to be returned as-is")
	}
}

// TestLoggingTransport_KeepsRequestBody tests that dumping a request leaves its body readable for the server
func TestLoggingTransport_KeepsRequestBody(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(echoOK))
	}))
	defer server.Close()

	logPath := filepath.Join(t.TempDir(), "api.log")
	lt, err := NewLoggingTransport(nil, logPath, nil)
	if err != nil {
		t.Fatalf("NewLoggingTransport failed: %v", err)
	}

	resp, err := (&http.Client{Transport: lt}).Post(server.URL+"/rest?api_key=supersecret", "application/x-www-form-urlencoded", strings.NewReader("method=flickr.test.echo"))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	lt.Close()

	if received != "method=flickr.test.echo" {
		t.Errorf("Server received body %q", received)
	}
	logged, _ := os.ReadFile(logPath)
	if strings.Contains(string(logged), "supersecret") {
		t.Error("API key leaked into the log")
	}
	if !strings.Contains(string(logged), "api_key=REDACTED") {
		t.Errorf("Expected redacted key in log, got:\n%s", string(logged))
	}
}
