package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go-flickr-fetch/internal/models"

	log "github.com/sirupsen/logrus"
	"gopkg.in/masci/flickr.v3"
)

// Custom Error Types
var (
	ErrAuth   = errors.New("flickr authentication failed")
	ErrSearch = errors.New("flickr photo search failed")
	ErrSize   = errors.New("flickr size lookup failed")
)

// DefaultEndpoint is the Flickr REST endpoint.
const DefaultEndpoint = "https://api.flickr.com/services/rest"

const (
	methodEcho     = "flickr.test.echo"
	methodLogin    = "flickr.test.login"
	methodSearch   = "flickr.photos.search"
	methodGetSizes = "flickr.photos.getSizes"
)

// Client talks to the Flickr REST API on behalf of a single run.
type Client struct {
	ApiKey           string
	ApiSecret        string
	OAuthToken       string
	OAuthTokenSecret string
	Endpoint         string
	HttpClient       *http.Client
	logger           log.FieldLogger
}

// Session is the authenticated handle returned by Authenticate.
// It is only valid for the lifetime of the process.
type Session struct {
	models.SessionInfo
	fc *flickr.FlickrClient
}

// NewClient creates a new API client from the loaded configuration.
func NewClient(httpClient *http.Client, cfg models.Config, logger log.FieldLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		ApiKey:           cfg.APIKey,
		ApiSecret:        cfg.APISecret,
		OAuthToken:       cfg.OAuthToken,
		OAuthTokenSecret: cfg.OAuthTokenSecret,
		Endpoint:         endpoint,
		HttpClient:       httpClient,
		logger:           logger,
	}
}

type echoResponse struct {
	flickr.BasicResponse
	Method string `xml:"method"`
}

type loginResponse struct {
	flickr.BasicResponse
	User struct {
		ID       string `xml:"id,attr"`
		Username string `xml:"username"`
	} `xml:"user"`
}

type searchResponse struct {
	flickr.BasicResponse
	Photos *photoList `xml:"photos"`
}

type photoList struct {
	Page    int         `xml:"page,attr"`
	Pages   int         `xml:"pages,attr"`
	PerPage int         `xml:"perpage,attr"`
	Total   int         `xml:"total,attr"`
	Photo   []photoItem `xml:"photo"`
}

type photoItem struct {
	ID    string `xml:"id,attr"`
	Owner string `xml:"owner,attr"`
	Title string `xml:"title,attr"`
}

type sizesResponse struct {
	flickr.BasicResponse
	Sizes *sizeList `xml:"sizes"`
}

type sizeList struct {
	Size []sizeItem `xml:"size"`
}

type sizeItem struct {
	Label  string `xml:"label,attr"`
	Source string `xml:"source,attr"`
	URL    string `xml:"url,attr"`
	Media  string `xml:"media,attr"`
	Width  int    `xml:"width,attr"`
	Height int    `xml:"height,attr"`
}

// Authenticate exchanges the configured key and secret for a Session.
// With OAuth tokens configured the session is verified via flickr.test.login,
// otherwise the key alone is checked with flickr.test.echo.
func (c *Client) Authenticate() (*Session, error) {
	if c.ApiKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrAuth)
	}

	fc := flickr.NewFlickrClient(c.ApiKey, c.ApiSecret)
	fc.HTTPClient = c.HttpClient

	sess := &Session{fc: fc}
	sess.Established = time.Now()

	if c.OAuthToken != "" && c.OAuthTokenSecret != "" {
		fc.OAuthToken = c.OAuthToken
		fc.OAuthTokenSecret = c.OAuthTokenSecret
		sess.Signed = true

		resp := &loginResponse{}
		if err := c.call(sess, methodLogin, nil, resp); err != nil {
			c.logger.WithError(err).Error("OAuth login check failed")
			return nil, fmt.Errorf("%w: %w", ErrAuth, err)
		}
		sess.UserID = resp.User.ID
		sess.Username = resp.User.Username
	} else {
		resp := &echoResponse{}
		if err := c.call(sess, methodEcho, nil, resp); err != nil {
			c.logger.WithError(err).Error("API key check failed")
			return nil, fmt.Errorf("%w: %w", ErrAuth, err)
		}
	}

	c.logger.WithFields(log.Fields{
		"signed":   sess.Signed,
		"user_id":  sess.UserID,
		"username": sess.Username,
	}).Debug("logged in")
	return sess, nil
}

// ConvertQueryToURLValues converts a SearchQuery into flickr.photos.search arguments.
func ConvertQueryToURLValues(q models.SearchQuery) url.Values {
	values := url.Values{}
	values.Add("text", q.Text)
	if len(q.Licenses) > 0 {
		values.Add("license", strings.Join(q.Licenses, ","))
	}
	if q.SafeSearch > 0 {
		values.Add("safe_search", strconv.Itoa(q.SafeSearch))
	}
	if q.Sort != "" {
		values.Add("sort", q.Sort)
	}
	if q.Orientation != "" {
		values.Add("orientation", q.Orientation)
	}
	return values
}

// SearchPhotos returns the first page of results for q, in the order the API returned them.
func (c *Client) SearchPhotos(sess *Session, q models.SearchQuery) ([]models.PhotoSummary, error) {
	resp := &searchResponse{}
	if err := c.call(sess, methodSearch, ConvertQueryToURLValues(q), resp); err != nil {
		c.logger.WithError(err).Errorf("Search for %q failed", q.Text)
		return nil, fmt.Errorf("%w: %w", ErrSearch, err)
	}
	if resp.Photos == nil {
		return nil, fmt.Errorf("%w: response has no photos container", ErrSearch)
	}
	if len(resp.Photos.Photo) == 0 {
		return nil, fmt.Errorf("%w: no photos returned for %q", ErrSearch, q.Text)
	}

	photos := make([]models.PhotoSummary, len(resp.Photos.Photo))
	titles := make([]string, len(resp.Photos.Photo))
	for i, p := range resp.Photos.Photo {
		photos[i] = models.PhotoSummary{ID: p.ID, Owner: p.Owner, Title: p.Title}
		titles[i] = p.Title
	}
	c.logger.WithFields(log.Fields{
		"total": resp.Photos.Total,
		"page":  len(photos),
	}).Debugf("photos %q", titles)
	return photos, nil
}

// GetSizes returns the renditions available for photoID, smallest first.
func (c *Client) GetSizes(sess *Session, photoID string) ([]models.PhotoSize, error) {
	args := url.Values{}
	args.Set("photo_id", photoID)

	resp := &sizesResponse{}
	if err := c.call(sess, methodGetSizes, args, resp); err != nil {
		c.logger.WithError(err).Errorf("Size lookup for photo %s failed", photoID)
		return nil, fmt.Errorf("%w: %w", ErrSize, err)
	}
	if resp.Sizes == nil {
		return nil, fmt.Errorf("%w: response for photo %s has no sizes container", ErrSize, photoID)
	}

	sizes := make([]models.PhotoSize, len(resp.Sizes.Size))
	for i, s := range resp.Sizes.Size {
		sizes[i] = models.PhotoSize{
			Label:  s.Label,
			Width:  s.Width,
			Height: s.Height,
			Source: s.Source,
			URL:    s.URL,
			Media:  s.Media,
		}
	}
	c.logger.WithField("photo_id", photoID).Debugf("sizes %v", sizes)
	return sizes, nil
}

// LargestSizeURL returns the source URL of the last (largest) rendition of photoID.
func (c *Client) LargestSizeURL(sess *Session, photoID string) (string, error) {
	sizes, err := c.GetSizes(sess, photoID)
	if err != nil {
		return "", err
	}
	if len(sizes) == 0 {
		return "", fmt.Errorf("%w: no sizes returned for photo %s", ErrSize, photoID)
	}
	largest := sizes[len(sizes)-1]
	if largest.Source == "" {
		return "", fmt.Errorf("%w: largest size %q of photo %s has no source", ErrSize, largest.Label, photoID)
	}
	c.logger.WithField("photo_id", photoID).Debugf("max size %v", largest)
	return largest.Source, nil
}

// call performs one REST method with the session's client and decodes the reply into resp.
func (c *Client) call(sess *Session, method string, args url.Values, resp flickr.FlickrResponse) error {
	if sess == nil || sess.fc == nil {
		return errors.New("no authenticated session")
	}
	fc := sess.fc

	fc.Init()
	fc.EndpointUrl = c.Endpoint
	fc.Args.Set("method", method)
	fc.Args.Set("api_key", fc.ApiKey)
	for k, vs := range args {
		for _, v := range vs {
			fc.Args.Add(k, v)
		}
	}
	if sess.Signed {
		fc.OAuthSign()
	}

	c.logger.Debugf("calling %s", method)
	if err := flickr.DoGet(fc, resp); err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	if resp.HasErrors() {
		return fmt.Errorf("%s returned an error: %s", method, resp.ErrorMsg())
	}
	return nil
}
