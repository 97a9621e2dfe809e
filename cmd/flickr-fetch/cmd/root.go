package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go-flickr-fetch/internal/api"
	"go-flickr-fetch/internal/config"
	"go-flickr-fetch/internal/downloader"
	"go-flickr-fetch/internal/fetcher"
	"go-flickr-fetch/internal/models"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// isTerminal reports whether stdout is a terminal. Run replaces it so the
// command can be driven from tests.
var isTerminal = stdoutIsTerminal

// rootCmd represents the base command. There are no subcommands or flags.
var rootCmd = &cobra.Command{
	Use:   "flickr-fetch",
	Short: "Download a random Flickr photo matching a query",
	Long: `flickr-fetch searches Flickr for photos matching FLICKR_QUERY, picks one
at random and saves its largest size into FLICKR_DEST.

All settings are read from the environment (or a local .env file).
The saved file's path is printed to stdout.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFetch(cmd.OutOrStdout(), cmd.ErrOrStderr(), isTerminal())
	},
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
}

// Run executes the root command with args against the given streams and
// returns the process exit code.
func Run(args []string, stdout, stderr io.Writer, terminal func() bool) int {
	if args == nil {
		// cobra falls back to os.Args for a nil slice
		args = []string{}
	}
	isTerminal = terminal
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// Execute runs the root command against the process streams and exits.
// This is called by main.main().
func Execute() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr, stdoutIsTerminal))
}

// buildSearchQuery converts the configuration into search filters.
func buildSearchQuery(cfg models.Config) models.SearchQuery {
	return models.SearchQuery{
		Text:        cfg.Query,
		Licenses:    cfg.LicenseList(),
		SafeSearch:  cfg.SafeSearch,
		Sort:        cfg.Sort,
		Orientation: cfg.Orientation,
	}
}

func runFetch(stdout, stderr io.Writer, tty bool) error {
	logger, entry := newLogger(stderr)

	cfg, transport, err := config.Initialize(entry)
	if err != nil {
		return err
	}
	if closer, ok := transport.(io.Closer); ok {
		defer closer.Close()
	}

	verbose := cfg.Debug && tty
	configureLogger(logger, cfg, verbose)

	apiClient := api.NewClient(&http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.APIClientTimeoutSec) * time.Second,
	}, cfg, entry)

	imageDownloader := downloader.NewDownloader(&http.Client{
		Timeout: time.Duration(cfg.DownloadClientTimeoutSec) * time.Second,
	}, entry)
	if verbose {
		writer := uilive.New()
		writer.Out = stderr
		writer.Start()
		defer writer.Stop()
		imageDownloader.Progress = writer
	}

	f := fetcher.NewFetcher(apiClient, imageDownloader, buildSearchQuery(cfg), cfg.SavePath, entry)
	result, err := f.Run()
	if err != nil {
		entry.WithError(err).Debug("fetch failed")
		return err
	}

	entry.WithFields(log.Fields{
		"content_type": result.ContentType,
		"blake3":       result.BLAKE3,
	}).Debugf("downloaded %s", result.Path)

	// Piped output gets the bare path so it can be consumed as-is.
	if tty {
		fmt.Fprintln(stdout, result.Path)
	} else {
		fmt.Fprint(stdout, result.Path)
	}
	return nil
}
