package config

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"go-flickr-fetch/internal/api"
	"go-flickr-fetch/internal/helpers"
	"go-flickr-fetch/internal/models"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ErrConfig is returned for missing or unusable settings.
var ErrConfig = errors.New("invalid configuration")

// Default values for configuration
const (
	DefaultQuery                    = "cat"
	DefaultSavePath                 = "photos"
	DefaultDebug                    = true
	DefaultLicense                  = "2,3,4,5,6,9"
	DefaultSafeSearch               = 3
	DefaultSort                     = "interestingness-desc"
	DefaultOrientation              = "square"
	DefaultAPIClientTimeoutSec      = 60
	DefaultDownloadClientTimeoutSec = 300
	DefaultLogFormat                = "text"
	DefaultLogApiRequests           = false
	DefaultEnvFile                  = ".env"
	apiLogFilename                  = "api.log"
)

// debugKey is read as a string and resolved by resolveDebug, so it does not
// match a models.Config field.
const debugKey = "debugenabled"

// envBindings maps config keys to the environment variables that feed them.
// The keys match models.Config field names case-insensitively, except debugKey.
var envBindings = []struct {
	key string
	env string
}{
	{"apikey", "FLICKR_API_KEY"},
	{"apisecret", "FLICKR_SECRET"},
	{"oauthtoken", "FLICKR_OAUTH_TOKEN"},
	{"oauthtokensecret", "FLICKR_OAUTH_TOKEN_SECRET"},
	{"query", "FLICKR_QUERY"},
	{"savepath", "FLICKR_DEST"},
	{debugKey, "DEBUG_ENABLED"},
	{"license", "FLICKR_LICENSE"},
	{"safesearch", "FLICKR_SAFE_SEARCH"},
	{"sort", "FLICKR_SORT"},
	{"orientation", "FLICKR_ORIENTATION"},
	{"apiendpoint", "FLICKR_API_ENDPOINT"},
	{"apiclienttimeoutsec", "FLICKR_API_TIMEOUT_SEC"},
	{"downloadclienttimeoutsec", "FLICKR_DOWNLOAD_TIMEOUT_SEC"},
	{"loglevel", "FLICKR_LOG_LEVEL"},
	{"logformat", "FLICKR_LOG_FORMAT"},
	{"logapirequests", "FLICKR_LOG_API"},
}

var validSorts = map[string]struct{}{
	"date-posted-asc":      {},
	"date-posted-desc":     {},
	"date-taken-asc":       {},
	"date-taken-desc":      {},
	"interestingness-desc": {},
	"interestingness-asc":  {},
	"relevance":            {},
}

var validOrientations = map[string]struct{}{
	"landscape": {},
	"portrait":  {},
	"square":    {},
	"panorama":  {},
}

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("apikey", "")
	v.SetDefault("apisecret", "")
	v.SetDefault("oauthtoken", "")
	v.SetDefault("oauthtokensecret", "")
	v.SetDefault("query", DefaultQuery)
	v.SetDefault("savepath", DefaultSavePath)
	v.SetDefault(debugKey, strconv.FormatBool(DefaultDebug))
	v.SetDefault("license", DefaultLicense)
	v.SetDefault("safesearch", DefaultSafeSearch)
	v.SetDefault("sort", DefaultSort)
	v.SetDefault("orientation", DefaultOrientation)
	v.SetDefault("apiendpoint", api.DefaultEndpoint)
	v.SetDefault("apiclienttimeoutsec", DefaultAPIClientTimeoutSec)
	v.SetDefault("downloadclienttimeoutsec", DefaultDownloadClientTimeoutSec)
	v.SetDefault("loglevel", "")
	v.SetDefault("logformat", DefaultLogFormat)
	v.SetDefault("logapirequests", DefaultLogApiRequests)
}

// Initialize loads configuration from the environment (and a local .env file,
// when present) and builds the HTTP transport for API calls.
// Precedence: Environment > .env > Defaults.
func Initialize(logger log.FieldLogger) (models.Config, http.RoundTripper, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(DefaultEnvFile); err == nil {
		logger.Debugf("Loaded environment from %s", DefaultEnvFile)
	}

	v := viper.New()
	v.AllowEmptyEnv(true)
	setViperDefaults(v)
	for _, b := range envBindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return models.Config{}, nil, fmt.Errorf("%w: binding %s: %w", ErrConfig, b.env, err)
		}
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return models.Config{}, nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	cfg.Debug = resolveDebug(v.GetString(debugKey), logger)

	if err := applyFallbacks(&cfg, logger); err != nil {
		return models.Config{}, nil, err
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.LogApiRequests {
		transport = buildLoggingTransport(cfg.SavePath, logger)
	}

	logger.WithFields(log.Fields{
		"query":       cfg.Query,
		"dest":        cfg.SavePath,
		"license":     cfg.License,
		"safe_search": cfg.SafeSearch,
		"sort":        cfg.Sort,
		"orientation": cfg.Orientation,
		"oauth":       cfg.HasOAuthTokens(),
	}).Debug("Configuration initialized")
	return cfg, transport, nil
}

// applyFallbacks enforces required values and replaces blank or unknown
// settings with their defaults.
func applyFallbacks(cfg *models.Config, logger log.FieldLogger) error {
	var missing []string
	if strings.TrimSpace(cfg.APIKey) == "" {
		missing = append(missing, "FLICKR_API_KEY")
	}
	if strings.TrimSpace(cfg.APISecret) == "" {
		missing = append(missing, "FLICKR_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required environment variable(s): %s", ErrConfig, strings.Join(missing, ", "))
	}

	// Set-but-empty behaves like unset.
	if strings.TrimSpace(cfg.Query) == "" {
		cfg.Query = DefaultQuery
	}
	if strings.TrimSpace(cfg.SavePath) == "" {
		cfg.SavePath = DefaultSavePath
	}
	if strings.TrimSpace(cfg.APIEndpoint) == "" {
		cfg.APIEndpoint = api.DefaultEndpoint
	}
	if len(cfg.LicenseList()) == 0 {
		cfg.License = DefaultLicense
	}

	if cfg.OAuthToken != "" && cfg.OAuthTokenSecret == "" || cfg.OAuthToken == "" && cfg.OAuthTokenSecret != "" {
		logger.Warn("Only one of FLICKR_OAUTH_TOKEN and FLICKR_OAUTH_TOKEN_SECRET is set, using key-only authentication")
	}

	if _, ok := validSorts[cfg.Sort]; !ok {
		logger.Warnf("Invalid sort value '%s', using default '%s'", cfg.Sort, DefaultSort)
		cfg.Sort = DefaultSort
	}

	if cfg.SafeSearch < 1 || cfg.SafeSearch > 3 {
		logger.Warnf("Invalid safe search level %d, using default %d", cfg.SafeSearch, DefaultSafeSearch)
		cfg.SafeSearch = DefaultSafeSearch
	}

	if cfg.Orientation != "" {
		for _, o := range strings.Split(cfg.Orientation, ",") {
			if _, ok := validOrientations[strings.TrimSpace(o)]; !ok {
				logger.Warnf("Invalid orientation '%s', using default '%s'", cfg.Orientation, DefaultOrientation)
				cfg.Orientation = DefaultOrientation
				break
			}
		}
	}

	if cfg.APIClientTimeoutSec <= 0 {
		logger.Warnf("Invalid API timeout %d, using default %d", cfg.APIClientTimeoutSec, DefaultAPIClientTimeoutSec)
		cfg.APIClientTimeoutSec = DefaultAPIClientTimeoutSec
	}
	if cfg.DownloadClientTimeoutSec <= 0 {
		logger.Warnf("Invalid download timeout %d, using default %d", cfg.DownloadClientTimeoutSec, DefaultDownloadClientTimeoutSec)
		cfg.DownloadClientTimeoutSec = DefaultDownloadClientTimeoutSec
	}
	return nil
}

// resolveDebug interprets DEBUG_ENABLED. Blank means the default and an
// unparseable value warns and keeps the default; it never fails the run.
func resolveDebug(raw string, logger log.FieldLogger) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultDebug
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		logger.Warnf("Invalid DEBUG_ENABLED value '%s', using default %t", raw, DefaultDebug)
		return DefaultDebug
	}
	return enabled
}

// buildLoggingTransport wraps the default transport so API traffic is written
// to <savePath>/api.log. Failures disable API logging rather than the run.
func buildLoggingTransport(savePath string, logger log.FieldLogger) http.RoundTripper {
	logFilePath := apiLogFilename
	if err := helpers.EnsureDir(savePath); err == nil {
		logFilePath = filepath.Join(savePath, apiLogFilename)
	} else {
		logger.WithError(err).Warnf("Cannot use '%s' for the API log, saving %s to current directory", savePath, apiLogFilename)
	}
	logger.Debugf("API logging to file: %s", logFilePath)

	loggingTransport, err := api.NewLoggingTransport(http.DefaultTransport, logFilePath, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		return http.DefaultTransport
	}
	return loggingTransport
}
