package models

import (
	"fmt"
	"strings"
	"time"
)

type (
	// Config holds the application's configuration settings, read from the environment.
	Config struct {
		APIKey           string `json:"-"`
		APISecret        string `json:"-"`
		OAuthToken       string `json:"-"`
		OAuthTokenSecret string `json:"-"`
		Query            string `json:"Query"`
		SavePath         string `json:"SavePath"`
		License          string `json:"License"`
		Sort             string `json:"Sort"`
		Orientation      string `json:"Orientation"`
		APIEndpoint      string `json:"ApiEndpoint"`
		LogLevel         string `json:"LogLevel"`
		LogFormat        string `json:"LogFormat"`
		// Integers
		SafeSearch               int `json:"SafeSearch"`
		APIClientTimeoutSec      int `json:"ApiClientTimeoutSec"`
		DownloadClientTimeoutSec int `json:"DownloadClientTimeoutSec"`
		// Bools
		Debug          bool `json:"Debug"`
		LogApiRequests bool `json:"LogApiRequests"`
	}

	// SearchQuery is the immutable set of filters sent to flickr.photos.search.
	SearchQuery struct {
		Text        string
		Licenses    []string
		SafeSearch  int
		Sort        string
		Orientation string // optional
	}

	// PhotoSummary is one search result entry.
	PhotoSummary struct {
		ID    string
		Owner string
		Title string
	}

	// PhotoSize is one available rendition of a photo.
	PhotoSize struct {
		Label  string
		Width  int
		Height int
		Source string // direct image URL
		URL    string // flickr page for this size
		Media  string
	}

	// DownloadResult describes the file written to disk.
	DownloadResult struct {
		Path        string
		ContentType string
		BLAKE3      string
		Bytes       uint64
	}

	// SessionInfo is the loggable part of an authenticated session.
	SessionInfo struct {
		UserID      string
		Username    string
		Established time.Time
		Signed      bool
	}
)

// HasOAuthTokens reports whether both OAuth token halves are configured.
func (c Config) HasOAuthTokens() bool {
	return c.OAuthToken != "" && c.OAuthTokenSecret != ""
}

// LicenseList splits the comma separated License setting, dropping blanks.
func (c Config) LicenseList() []string {
	var out []string
	for _, l := range strings.Split(c.License, ",") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func (p PhotoSummary) String() string {
	return fmt.Sprintf("%s (%q)", p.ID, p.Title)
}

func (s PhotoSize) String() string {
	return fmt.Sprintf("%s %dx%d %s", s.Label, s.Width, s.Height, s.Source)
}
