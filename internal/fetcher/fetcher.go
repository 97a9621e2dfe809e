package fetcher

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"go-flickr-fetch/internal/api"
	"go-flickr-fetch/internal/models"

	log "github.com/sirupsen/logrus"
)

// ErrSelection is returned when there is nothing to pick from.
var ErrSelection = errors.New("photo selection failed")

// Authenticator establishes an API session.
type Authenticator interface {
	Authenticate() (*api.Session, error)
}

// PhotoSearcher runs a single-page photo search.
type PhotoSearcher interface {
	SearchPhotos(sess *api.Session, q models.SearchQuery) ([]models.PhotoSummary, error)
}

// SizeResolver finds the URL of a photo's largest rendition.
type SizeResolver interface {
	LargestSizeURL(sess *api.Session, photoID string) (string, error)
}

// ImageDownloader stores an image URL in a directory.
type ImageDownloader interface {
	DownloadImage(targetDir string, url string) (models.DownloadResult, error)
}

// Fetcher runs the auth, search, select, resolve and download steps once.
type Fetcher struct {
	Auth       Authenticator
	Searcher   PhotoSearcher
	Sizes      SizeResolver
	Downloader ImageDownloader
	Query      models.SearchQuery
	Dest       string
	Logger     log.FieldLogger
	// Intn returns a value in [0, n). Defaults to math/rand/v2.IntN.
	Intn func(n int) int
}

// NewFetcher wires a Fetcher whose API steps are all served by client.
func NewFetcher(client *api.Client, dl ImageDownloader, q models.SearchQuery, dest string, logger log.FieldLogger) *Fetcher {
	return &Fetcher{
		Auth:       client,
		Searcher:   client,
		Sizes:      client,
		Downloader: dl,
		Query:      q,
		Dest:       dest,
		Logger:     logger,
	}
}

// SelectPhoto picks one photo uniformly at random. intn must return a value
// in [0, n); a nil intn uses math/rand/v2.
func SelectPhoto(photos []models.PhotoSummary, intn func(int) int) (models.PhotoSummary, int, error) {
	if len(photos) == 0 {
		return models.PhotoSummary{}, -1, fmt.Errorf("%w: no photos to choose from", ErrSelection)
	}
	if intn == nil {
		intn = rand.IntN
	}
	idx := intn(len(photos))
	if idx < 0 || idx >= len(photos) {
		return models.PhotoSummary{}, -1, fmt.Errorf("%w: index %d out of range for %d photos", ErrSelection, idx, len(photos))
	}
	return photos[idx], idx, nil
}

// Run performs one fetch. Each step consumes only the previous step's output
// and the first failure aborts the run.
func (f *Fetcher) Run() (models.DownloadResult, error) {
	logger := f.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	sess, err := f.Auth.Authenticate()
	if err != nil {
		return models.DownloadResult{}, err
	}
	logger.WithFields(log.Fields{
		"signed":      sess.Signed,
		"username":    sess.Username,
		"established": sess.Established,
	}).Debug("session established")

	photos, err := f.Searcher.SearchPhotos(sess, f.Query)
	if err != nil {
		return models.DownloadResult{}, err
	}
	logger.Debugf("search for %q returned %d photos", f.Query.Text, len(photos))

	photo, idx, err := SelectPhoto(photos, f.Intn)
	if err != nil {
		return models.DownloadResult{}, err
	}
	logger.WithField("index", idx).Debugf("photo %s", photo)

	imageURL, err := f.Sizes.LargestSizeURL(sess, photo.ID)
	if err != nil {
		return models.DownloadResult{}, err
	}

	result, err := f.Downloader.DownloadImage(f.Dest, imageURL)
	if err != nil {
		return models.DownloadResult{}, err
	}
	logger.WithFields(log.Fields{
		"photo_id": photo.ID,
		"bytes":    result.Bytes,
	}).Debugf("saved %s", result.Path)
	return result, nil
}
