package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	cerrors "github.com/PentesterFlow/OpenMirror/internal/errors"
	rawhttp "github.com/PentesterFlow/OpenMirror/internal/http"
	"github.com/PentesterFlow/OpenMirror/internal/logger"
	"github.com/PentesterFlow/OpenMirror/internal/metrics"
	"github.com/PentesterFlow/OpenMirror/internal/output"
	"github.com/PentesterFlow/OpenMirror/internal/parser"
	"github.com/PentesterFlow/OpenMirror/internal/progress"
	"github.com/PentesterFlow/OpenMirror/internal/shutdown"
	"github.com/PentesterFlow/OpenMirror/internal/state"
	"github.com/PentesterFlow/OpenMirror/pkg/crawler"
)

const configRelPath = "openmirror/config.yaml"

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Crawl flags
	maxDepth        int
	connections     int
	sameHost        bool
	outputDir       string
	timeout         int
	rateLimit       float64
	hostRateLimit   float64
	manifestPath    string
	reportPath      string
	showProgress    bool
	excludePatterns []string

	// Fetch flags
	fetchOut     string
	fetchTimeout int

	// Status flags
	statusManifest string

	// Init flags
	initForce bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "openmirror",
		Short: "OpenMirror - offline website mirror",
		Long: `OpenMirror - An event-driven website mirror.

Fetches a site over many simultaneous non-blocking HTTP/1.1 connections,
saves every page under a local directory and rewrites links so the copy
can be browsed offline.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	crawlCmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Mirror a site starting at url",
		Args:  cobra.ExactArgs(1),
		RunE:  runCrawl,
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch [url]",
		Short: "Fetch a single URL and print the response",
		Args:  cobra.ExactArgs(1),
		RunE:  runFetch,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last run recorded in a manifest",
		RunE:  runStatus,
	}

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInitConfig,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (default: $XDG_CONFIG_HOME/"+configRelPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	// Crawl flags
	crawlCmd.Flags().IntVarP(&maxDepth, "max-depth", "d", 3, "Maximum link depth")
	crawlCmd.Flags().IntVarP(&connections, "connections", "n", 8, "Maximum simultaneous connections")
	crawlCmd.Flags().BoolVar(&sameHost, "same-host", true, "Only follow links on the start host")
	crawlCmd.Flags().StringVarP(&outputDir, "output", "o", "mirror", "Output directory")
	crawlCmd.Flags().IntVarP(&timeout, "timeout", "t", 10, "Per-fetch timeout in seconds")
	crawlCmd.Flags().Float64VarP(&rateLimit, "rate-limit", "r", 0, "Connections opened per second (0 = unlimited)")
	crawlCmd.Flags().Float64Var(&hostRateLimit, "host-rate-limit", 0, "Connections opened per second to one host (0 = unlimited)")
	crawlCmd.Flags().StringVar(&manifestPath, "manifest", "", "Manifest database recording saved pages")
	crawlCmd.Flags().StringVar(&reportPath, "report", "", "Write a report to this file, YAML for .yaml/.yml (- for stdout)")
	crawlCmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress bar")
	crawlCmd.Flags().StringArrayVar(&excludePatterns, "exclude", nil, "URL patterns to skip (regex)")

	// Fetch flags
	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "Write the decoded body to this file")
	fetchCmd.Flags().IntVarP(&fetchTimeout, "timeout", "t", 10, "Timeout in seconds")

	// Status flags
	statusCmd.Flags().StringVar(&statusManifest, "manifest", "", "Manifest database to read")
	statusCmd.MarkFlagRequired("manifest")

	// Init flags
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initCmd)

	return rootCmd
}

// loadConfig reads --config, else the XDG default file when present, else
// the built-in defaults.
func loadConfig() (*crawler.Config, error) {
	path := configFile
	if path == "" {
		found, err := xdg.SearchConfigFile(configRelPath)
		if err != nil {
			return crawler.DefaultConfig(), nil
		}
		path = found
	}

	config, err := crawler.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return config, nil
}

// buildConfig applies the start URL and every flag the user set.
func buildConfig(cmd *cobra.Command, target string) (*crawler.Config, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}

	config.StartURL = parser.NormalizeString(target)

	flags := cmd.Flags()
	if flags.Changed("max-depth") {
		config.MaxDepth = maxDepth
	}
	if flags.Changed("connections") {
		config.MaxConnections = connections
	}
	if flags.Changed("same-host") {
		config.SameHostOnly = sameHost
	}
	if flags.Changed("output") {
		config.OutputDir = outputDir
	}
	if flags.Changed("timeout") {
		config.Timeout = time.Duration(timeout) * time.Second
	}
	if flags.Changed("rate-limit") {
		config.RateLimit = rateLimit
	}
	if flags.Changed("host-rate-limit") {
		config.HostRateLimit = hostRateLimit
	}
	if flags.Changed("manifest") {
		config.ManifestPath = manifestPath
	}
	if flags.Changed("exclude") {
		config.ExcludePatterns = append(config.ExcludePatterns, excludePatterns...)
	}
	if verbose {
		config.Verbose = true
	}
	if debug {
		config.Debug = true
	}

	return config, nil
}

func newLogger(config *crawler.Config) *logger.Logger {
	level := logger.WarnLevel
	if config.Debug {
		level = logger.DebugLevel
	} else if config.Verbose {
		level = logger.InfoLevel
	}
	return logger.New(logger.Config{
		Level:  level,
		Pretty: true,
		Output: os.Stderr,
	})
}

func runCrawl(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, args[0])
	if err != nil {
		return err
	}

	log := newLogger(config)

	var display *progress.Display
	if showProgress && !config.Verbose && !config.Debug {
		display = progress.New()
	}

	engine := crawler.New(newCLIListener(log.WithComponent("cli")), crawler.WithLogger(log))

	handler := shutdown.New(shutdown.Config{
		Timeout: 5 * time.Second,
		OnSignal: func(sig os.Signal) {
			fmt.Fprintf(os.Stderr, "\nReceived %v, stopping (again to force)...\n", sig)
		},
		OnForce: func(sig os.Signal) {
			fmt.Fprintf(os.Stderr, "Received %v, exiting now\n", sig)
			os.Exit(130)
		},
		OnDone: func(elapsed time.Duration, err error) {
			if err != nil {
				log.Warnf("shutdown finished after %v: %v", elapsed.Round(time.Millisecond), err)
			}
		},
	})
	defer handler.Close()
	// Steps run last-registered first: stop, then wait for the drain.
	handler.Register("drain", func(ctx context.Context) error {
		select {
		case <-engine.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	handler.RegisterFunc("engine", engine.Stop)

	if err := engine.Start(config); err != nil {
		return fmt.Errorf("crawl rejected: %w", err)
	}

	if display != nil {
		display.Start(config.StartURL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-engine.Done():
		case <-gctx.Done():
		}
		cancel()
		return nil
	})
	g.Go(func() error {
		// Step errors are reported by OnDone; the summary still prints.
		handler.WaitWithContext(gctx)
		return nil
	})
	if display != nil {
		g.Go(func() error {
			return runProgress(gctx, engine, display)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	summary := engine.Wait()
	snap := engine.Metrics().Snapshot()

	if display != nil {
		p := engine.Snapshot()
		display.Update(int(p.Attempted), int(p.OK), int(p.Failed), p.Queued, int(p.InFlight))
		display.Stop()
		display.PrintSummary(summary.OutputDir)
	} else {
		printSummary(os.Stdout, summary)
	}

	if reportPath != "" {
		if err := writeReport(reportPath, config, summary, snap); err != nil {
			return err
		}
	}

	if summary.Err != nil {
		return fmt.Errorf("crawl aborted: %w", summary.Err)
	}
	return nil
}

// runProgress redraws the progress bar until ctx is done.
func runProgress(ctx context.Context, engine *crawler.Engine, display *progress.Display) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p := engine.Snapshot()
			display.Update(int(p.Attempted), int(p.OK), int(p.Failed), p.Queued, int(p.InFlight))
		}
	}
}

// writeReport writes the run report to path, or stdout for "-". A .yaml or
// .yml path selects YAML.
func writeReport(path string, config *crawler.Config, summary crawler.Summary, snap *metrics.Snapshot) error {
	report := output.NewReport(summary.StartURL, summary.OutputDir, summary.StartedAt, summary.FinishedAt, summary.Stopped, snap)

	if config.ManifestPath != "" {
		if err := addManifestPages(report, config.ManifestPath); err != nil {
			return err
		}
	}

	// Hide Stdout's Close from the report writer.
	var w io.Writer = struct{ io.Writer }{os.Stdout}
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		w = f
	}

	writer, err := output.NewWriter(w, output.Config{Format: output.FormatFor(path), Pretty: true})
	if err != nil {
		return err
	}
	if err := writer.WriteReport(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	return writer.Close()
}

func addManifestPages(report *output.Report, path string) error {
	m, err := state.OpenManifest(path)
	if err != nil {
		return err
	}
	defer m.Close()

	return m.ForEachPage(func(_ string, rec state.PageRecord) error {
		report.AddPage(output.PageEntry{
			URL:         rec.URL,
			LocalPath:   rec.LocalPath,
			Title:       rec.Title,
			StatusCode:  rec.StatusCode,
			ContentType: rec.ContentType,
			Bytes:       rec.Bytes,
			Depth:       rec.Depth,
		})
		return nil
	})
}

func printSummary(w io.Writer, summary crawler.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                       Mirror Summary                         ║")
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Start URL:          %s\n", summary.StartURL)
	fmt.Fprintf(w, "Output:             %s\n", summary.OutputDir)
	fmt.Fprintf(w, "Duration:           %v\n", summary.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "Attempted:          %d\n", summary.Attempted)
	fmt.Fprintf(w, "Saved:              %d\n", summary.OK)
	fmt.Fprintf(w, "Failed:             %d\n", summary.Failed)
	if summary.Stopped {
		fmt.Fprintln(w, "Stopped:            yes")
	}
	fmt.Fprintln(w)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := rawhttp.Fetch(ctx, args[0], time.Duration(fetchTimeout)*time.Second)
	if result != nil {
		printResponse(os.Stdout, result)
	}
	if err != nil {
		return fetchFailure(err)
	}

	if fetchOut != "" {
		if err := os.MkdirAll(filepath.Dir(fetchOut), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.WriteFile(fetchOut, result.Response.Body, 0644); err != nil {
			return fmt.Errorf("failed to write body: %w", err)
		}
		fmt.Printf("Body written to %s\n", fetchOut)
	}
	return nil
}

// fetchFailure prefixes err with its category and, for status errors, the
// status code.
func fetchFailure(err error) error {
	kind := cerrors.GetErrorType(err)
	if code := cerrors.GetStatusCode(err); code != 0 {
		return fmt.Errorf("%s error (HTTP %d): %w", kind, code, err)
	}
	return fmt.Errorf("%s error: %w", kind, err)
}

func printResponse(w io.Writer, result *rawhttp.FetchResult) {
	resp := result.Response
	fmt.Fprintln(w, resp.StatusLine)

	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s: %s\n", name, resp.Header[name])
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Received %d bytes in %v, body %d bytes\n",
		result.Bytes, result.Duration.Round(time.Millisecond), len(resp.Body))
}

func runStatus(cmd *cobra.Command, args []string) error {
	m, err := state.OpenManifest(statusManifest)
	if err != nil {
		return err
	}
	defer m.Close()

	return printStatus(os.Stdout, m)
}

func printStatus(w io.Writer, m *state.Manifest) error {
	pages, err := m.PageCount()
	if err != nil {
		return err
	}
	run, err := m.LastRun()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Manifest:       %s\n", m.Path())
	fmt.Fprintf(w, "Pages recorded: %d\n", pages)
	if run == nil {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Last run:")
	fmt.Fprintf(w, "  Start URL:    %s\n", run.StartURL)
	fmt.Fprintf(w, "  Output:       %s\n", run.OutputDir)
	fmt.Fprintf(w, "  Started:      %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Duration:     %v\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "  Attempted:    %d\n", run.Attempted)
	fmt.Fprintf(w, "  Saved:        %d\n", run.OK)
	fmt.Fprintf(w, "  Failed:       %d\n", run.Failed)
	if run.Stopped {
		fmt.Fprintln(w, "  Stopped:      yes")
	}
	return nil
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		var err error
		path, err = xdg.ConfigFile(configRelPath)
		if err != nil {
			return fmt.Errorf("failed to resolve config path: %w", err)
		}
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := crawler.DefaultConfig().SaveToFile(path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}
