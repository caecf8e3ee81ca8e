package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/media-scraper/pkg/auth"
	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/download"
	"github.com/Sriram-PR/media-scraper/pkg/extract"
	"github.com/Sriram-PR/media-scraper/pkg/fetch"
	"github.com/Sriram-PR/media-scraper/pkg/observe"
	"github.com/Sriram-PR/media-scraper/pkg/pipeline"
	"github.com/Sriram-PR/media-scraper/pkg/registry"
	"github.com/Sriram-PR/media-scraper/pkg/storage"
)

const version = "0.4.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "grab":
		runGrab(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "version":
		fmt.Printf("media-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `media-scraper - Social media post downloader

Usage:
  media-scraper <command> [options]

Commands:
  grab        Resolve post URLs and download their media
  validate    Validate configuration file
  history     Write every previously processed URL to a file
  version     Show version info

Run 'media-scraper <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// loadConfigOrDefault treats a missing file as an empty config
func loadConfigOrDefault(path string, log *logrus.Logger) (*config.AppConfig, error) {
	cfg, err := loadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Infof("No config file at %s, using defaults", path)
		return &config.AppConfig{}, nil
	}
	return cfg, err
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", level, err)
	} else {
		log.SetLevel(parsed)
	}
	return log
}

// runGrab handles the grab subcommand
func runGrab(args []string) {
	fs := flag.NewFlagSet("grab", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")
	inputFile := fs.String("input", "", "File with whitespace-separated URLs ('-' for stdin)")
	outDir := fs.String("out", "", "Download directory (overrides download_dir)")
	noDownload := fs.Bool("dry-run", false, "Resolve and list media without downloading")
	fresh := fs.Bool("fresh", false, "Discard persisted history before starting")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: media-scraper grab [options] [url ...]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  media-scraper grab https://imgur.com/a/abc123\n")
		fmt.Fprintf(os.Stderr, "  media-scraper grab -input links.txt -out ./media\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := newLogger(*logLevel)

	text, err := collectInput(fs.Args(), *inputFile, os.Stdin)
	if err != nil {
		log.Fatalf("Reading input: %v", err)
	}
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "Error: no URLs given")
		fs.Usage()
		os.Exit(1)
	}

	appCfg, err := loadConfigOrDefault(*configFile, log)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if *outDir != "" {
		appCfg.DownloadDir = *outDir
	}
	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	os.Exit(executeGrab(ctx, appCfg, text, !*noDownload, *fresh, log))
}

// executeGrab wires the components and runs one submit + download cycle. Returns the exit code.
func executeGrab(ctx context.Context, appCfg *config.AppConfig, text string, doDownload, fresh bool, log *logrus.Logger) int {
	entry := logrus.NewEntry(log)
	console := newConsoleObserver(color.Output)
	observer := observe.Multi{console, observe.NewLogObserver(entry)}

	// --- Storage ---
	var store storage.HistoryStore
	if appCfg.PersistHistory {
		badgerStore, err := storage.NewBadgerStore(ctx, appCfg.StateDir, !fresh, entry.WithField("component", "storage"))
		if err != nil {
			log.Errorf("Failed to open history DB: %v", err)
			return 1
		}
		go badgerStore.RunGC(ctx, 10*time.Minute)
		store = badgerStore
	} else {
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	// --- HTTP Fetching Components ---
	httpClient, err := fetch.NewClient(appCfg.HTTPClientSettings, appCfg.ProxyURL, entry)
	if err != nil {
		log.Errorf("Failed to build HTTP client: %v", err)
		return 1
	}
	fetcher := fetch.NewFetcher(httpClient, appCfg, entry.WithField("component", "fetcher"))
	rateLimiter := fetch.NewRateLimiter(appCfg.DelayPerHost, entry)
	pages := fetch.NewHTTPPageFetcher(fetcher, rateLimiter, appCfg, entry)

	// --- Auth ---
	// No interactive prompt on the CLI: a configured session cookie is the only way in
	gate := auth.NewGate(auth.NewCookieSession(appCfg.InstagramSessionID), nil, entry.WithField("component", "auth"))

	reg, err := registry.New(store, observer, entry.WithField("component", "registry"))
	if err != nil {
		log.Errorf("Failed to load history: %v", err)
		return 1
	}

	dl := download.New(pages.SingleAttempt(), download.NewResolver(), store, observer, entry.WithField("component", "downloader"), download.Options{
		Dir:        appCfg.DownloadDir,
		ItemDelay:  appCfg.ItemDelay,
		Retries:    appCfg.DownloadRetries,
		RetryDelay: appCfg.DownloadRetryDelay,
	})

	p, err := pipeline.New(pipeline.Options{
		Registry:   reg,
		Downloader: dl,
		Extract: extract.Deps{
			Pages:  pages,
			Gate:   gate,
			Config: appCfg,
		},
		Observer:    observer,
		Log:         entry,
		SubmitDelay: appCfg.SubmitDelay,
	})
	if err != nil {
		log.Errorf("Failed to initialize pipeline: %v", err)
		return 1
	}

	subs, err := p.SubmitBatch(ctx, text)
	for _, s := range subs {
		fmt.Fprintln(color.Output, statusLine(s))
	}
	if err != nil {
		log.Errorf("Submission stopped: %v", err)
		return 1
	}

	if !doDownload {
		for _, link := range reg.Queue() {
			fmt.Println(link.URL)
		}
		return 0
	}

	outcomes, err := p.DownloadBatch(ctx)
	console.finish()
	if err != nil {
		log.Errorf("Download batch failed: %v", err)
		return 1
	}

	written, skipped, failed := 0, 0, 0
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			failed++
		case o.Skipped:
			skipped++
		case o.Written:
			written++
		}
	}
	fmt.Fprintf(color.Output, "%s %d written, %d already present, %d failed -> %s\n",
		color.HiGreenString("Done:"), written, skipped, failed, appCfg.DownloadDir)
	if failed > 0 {
		return 2
	}
	return 0
}

// collectInput joins positional URLs with the contents of inputFile ('-' = stdin)
func collectInput(args []string, inputFile string, stdin io.Reader) (string, error) {
	parts := append([]string(nil), args...)
	switch inputFile {
	case "":
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		parts = append(parts, string(data))
	default:
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return "", err
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n"), nil
}

// signalContext cancels on SIGINT/SIGTERM and forces exit on a second signal
func signalContext(log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Stopping after the current item...", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		sig := <-sigChan
		log.Warnf("Received second signal: %v. Forcing exit.", sig)
		os.Exit(1)
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: media-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "OK: download_dir=%s item_delay=%v submit_delay=%v persist_history=%v\n",
		appCfg.DownloadDir, appCfg.ItemDelay, appCfg.SubmitDelay, appCfg.PersistHistory)
	fmt.Fprintln(stdout, "Configuration valid")
	return 0
}

// runHistory handles the history subcommand
func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	outFile := fs.String("out", "", "Output file (default <state_dir>/tracked_urls.log)")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: media-scraper history [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := newLogger(*logLevel)
	appCfg, err := loadConfigOrDefault(*configFile, log)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if _, err := appCfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	path := *outFile
	if path == "" {
		path = filepath.Join(appCfg.StateDir, "tracked_urls.log")
	}

	os.Exit(doHistory(context.Background(), appCfg.StateDir, path, os.Stdout, logrus.NewEntry(log)))
}

// doHistory dumps the persisted tracking list. Returns exit code.
func doHistory(ctx context.Context, stateDir, outPath string, stdout io.Writer, log *logrus.Entry) int {
	store, err := storage.NewBadgerStore(ctx, stateDir, true, log)
	if err != nil {
		log.Errorf("Failed to open history DB: %v", err)
		return 1
	}
	defer store.Close()

	if err := store.WriteTrackedLog(outPath); err != nil {
		log.Errorf("Failed to write history: %v", err)
		return 1
	}
	count, _ := store.Count()
	fmt.Fprintf(stdout, "Wrote tracked URLs to %s (%d history records)\n", outPath, count)
	return 0
}
