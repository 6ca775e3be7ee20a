package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/paper-scraper/pkg/batch"
	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/download"
	"github.com/Sriram-PR/paper-scraper/pkg/fetch"
	"github.com/Sriram-PR/paper-scraper/pkg/load"
	runlog "github.com/Sriram-PR/paper-scraper/pkg/log"
	"github.com/Sriram-PR/paper-scraper/pkg/pubmed"
	"github.com/Sriram-PR/paper-scraper/pkg/sources"
	"github.com/Sriram-PR/paper-scraper/pkg/storage"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "download":
		runDownload(os.Args[2:], false)
	case "resume":
		runDownload(os.Args[2:], true)
	case "harvest":
		runHarvest(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "list-sources":
		runListSources(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("paper-scraper %s\n", version)
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
	fmt.Fprintln(w, `paper-scraper - Academic paper PDF downloader

Usage:
  paper-scraper <command> [options]

Commands:
  download      Download papers for every DOI in an input file
  resume        Resume an interrupted download run
  harvest       Harvest PubMed article metadata for a journal list
  validate      Validate configuration file
  list-sources  List the configured mirror sources
  mcp-server    Start MCP server for AI tool integration
  version       Show version info

Run 'paper-scraper <command> -h' for command-specific help.`)
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

// downloadArgs are the parsed flags of download and resume
type downloadArgs struct {
	configPath string
	inputPath  string
	outputDir  string
	mode       string
	workers    int
	logLevel   string
	resume     bool
}

// runDownload handles both download and resume subcommands
func runDownload(args []string, isResume bool) {
	cmdName := "download"
	if isResume {
		cmdName = "resume"
	}

	fs := flag.NewFlagSet(cmdName, flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	input := fs.String("input", "", "Identifier file (.csv, .tsv, .txt, .xlsx, .xlsm)")
	outputDir := fs.String("out", "", "Output directory (overrides output_dir)")
	mode := fs.String("mode", "", "Processing mode: sequential or parallel (overrides mode)")
	workers := fs.Int("workers", 0, "Parallel pool bound (overrides max_workers)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: paper-scraper %s [options]\n\nOptions:\n", cmdName)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  paper-scraper %s -input dois.csv\n", cmdName)
		fmt.Fprintf(os.Stderr, "  paper-scraper %s -input dois.xlsx -mode parallel -workers 8\n", cmdName)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *input == "" {
		fmt.Fprintln(os.Stderr, "Error: -input is required")
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "Received signal: %v. Finishing in-flight downloads...\n", sig)
		cancel()

		select {
		case sig = <-sigChan:
			fmt.Fprintf(os.Stderr, "Received second signal: %v. Forcing exit.\n", sig)
			os.Exit(1)
		case <-time.After(60 * time.Second):
			fmt.Fprintln(os.Stderr, "Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()
	defer signal.Stop(sigChan)

	exitCode := doDownload(ctx, downloadArgs{
		configPath: *configFile,
		inputPath:  *input,
		outputDir:  *outputDir,
		mode:       *mode,
		workers:    *workers,
		logLevel:   *logLevel,
		resume:     isResume,
	}, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doDownload is the testable implementation of download and resume.
// Only configuration problems produce a non-zero exit code.
func doDownload(ctx context.Context, args downloadArgs, stdout, stderr io.Writer) int {
	logger := setupLogger(args.logLevel, stdout)

	appCfg, err := loadConfig(args.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	applyOverrides(appCfg, args)
	warnings, err := appCfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "Config error: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		logger.Warn(w)
	}

	runID := uuid.New().String()
	log := logger.WithField("run_id", runID[:8])

	hook, err := runlog.NewRunLogHook(filepath.Join(appCfg.OutputDir, config.GetEffectiveLogFilename(*appCfg)))
	if err != nil {
		fmt.Fprintf(stderr, "Error opening run log: %v\n", err)
		return 1
	}
	logger.AddHook(hook)
	defer hook.Close()

	pipeline, err := download.NewPipeline(*appCfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Config error: %v\n", err)
		return 1
	}
	defer pipeline.Close()
	pipeline.Start(ctx)
	logRunConfig(appCfg, args, log)

	var store storage.ResultStore
	badgerStore, err := storage.NewBadgerStore(ctx, appCfg.StateDir, runID, args.resume, log.WithField("component", "store"))
	if err != nil {
		log.Warnf("Result store unavailable, continuing without resume support: %v", err)
	} else {
		store = badgerStore
		defer badgerStore.Close()
	}

	resultsName := config.GetEffectiveResultsFilename(*appCfg)
	identifiers, err := load.LoadIdentifiers(args.inputPath, log)
	if err != nil {
		log.Errorf("Cannot load identifiers from %s: %v", args.inputPath, err)
		if _, werr := batch.WriteResults(appCfg.OutputDir, resultsName, nil); werr != nil {
			log.Errorf("Failed to write results: %v", werr)
		}
		return 0
	}

	opts := batch.OptionsFromConfig(*appCfg)
	opts.Resume = args.resume
	runner := batch.NewRunner(pipeline.Orchestrator, store, opts, log)
	report := runner.Run(ctx, identifiers)
	batch.LogSummary(log, report)

	path, err := batch.WriteResults(appCfg.OutputDir, resultsName, report.Results)
	if err != nil {
		log.Errorf("Failed to write results: %v", err)
		return 0
	}
	log.Infof("Results written to %s", path)
	return 0
}

// applyOverrides copies non-empty CLI flags over the loaded config
func applyOverrides(appCfg *config.AppConfig, args downloadArgs) {
	if args.outputDir != "" {
		appCfg.OutputDir = args.outputDir
	}
	if args.mode != "" {
		appCfg.Mode = args.mode
	}
	if args.workers > 0 {
		appCfg.MaxWorkers = args.workers
	}
}

// runHarvest handles the harvest subcommand
func runHarvest(args []string) {
	fs := flag.NewFlagSet("harvest", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	journals := fs.String("journals", "", "Journal list with 'Journal Abbreviation' and 'ISSN' columns")
	output := fs.String("out", "pubmed_results.csv", "CSV file to write")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: paper-scraper harvest [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n  paper-scraper harvest -journals journals.xlsx -out pubmed_results.csv\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *journals == "" {
		fmt.Fprintln(os.Stderr, "Error: -journals is required")
		fs.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(doHarvest(ctx, *configFile, *journals, *output, *logLevel, os.Stdout, os.Stderr))
}

// doHarvest is the testable implementation of harvest
func doHarvest(ctx context.Context, configPath, journalsPath, outputPath, logLevel string, stdout, stderr io.Writer) int {
	logger := setupLogger(logLevel, stdout)

	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	warnings, err := appCfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "Config error: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		logger.Warn(w)
	}

	journals, err := load.LoadJournals(journalsPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading journals: %v\n", err)
		return 1
	}

	log := logrus.NewEntry(logger)
	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, fetch.SessionHeaders(*appCfg), log.WithField("component", "http"))
	api := fetch.NewFetcher(httpClient, fetch.RetryPolicyFromConfig(*appCfg), log.WithField("component", "api"))
	client := pubmed.NewClient(appCfg.PubMed, api, log)
	harvester := pubmed.NewHarvester(client, pubmed.HarvestOptionsFromConfig(appCfg.PubMed), log)

	startTime := time.Now()
	articles, err := harvester.Harvest(ctx, journals)
	if err != nil {
		log.Warnf("Harvest interrupted: %v", err)
	}
	if err := pubmed.WriteCSV(outputPath, articles); err != nil {
		fmt.Fprintf(stderr, "Error writing %s: %v\n", outputPath, err)
		return 1
	}
	log.Infof("Harvested %d articles from %d journals in %s. Saved to %s",
		len(articles), len(journals), time.Since(startTime).Round(time.Millisecond), outputPath)
	return 0
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: paper-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate is the testable implementation of validate
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	appWarnings, err := appCfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "Config error: %v\n", err)
		return 1
	}
	for _, w := range appWarnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	for _, e := range appCfg.Sources {
		fmt.Fprintf(stdout, "OK: [%s] %s\n", e.Name, sources.Describe(e))
	}

	fmt.Fprintln(stdout, "Configuration valid.")
	return 0
}

// runListSources handles the list-sources subcommand
func runListSources(args []string) {
	fs := flag.NewFlagSet("list-sources", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: paper-scraper list-sources [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doListSources(*configFile, os.Stdout, os.Stderr))
}

// doListSources is the testable implementation of list-sources
func doListSources(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if _, err := appCfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Config error: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Sources (tried in order):")
	for i, e := range appCfg.Sources {
		fmt.Fprintf(stdout, "  %d. %-12s %s\n", i+1, e.Name, sources.Describe(e))
	}
	if appCfg.Browser.Enabled {
		fmt.Fprintf(stdout, "Browser fallback: %s\n", appCfg.Browser.ProxyTemplate)
	}
	return 0
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
		log.Debugf("Setting log level to: %s", level.String())
	}

	return log
}

// logRunConfig logs the effective run configuration
func logRunConfig(appCfg *config.AppConfig, args downloadArgs, log *logrus.Entry) {
	log.Infof("Run Config: Input:%s, Resume:%t, Mode:%s, MaxWorkers:%d",
		args.inputPath, args.resume, appCfg.Mode, appCfg.MaxWorkers)
	log.Infof("Run Config: OutputDir:%s, StateDir:%s, Sources:%d, Browser:%t",
		appCfg.OutputDir, appCfg.StateDir, len(appCfg.Sources), appCfg.Browser.Enabled)
	log.Infof("Run Config Timing: MirrorBackoff:%v, IdentifierPause:%v, FetchTimeout:%v, DelayPerHost:%v",
		appCfg.MirrorBackoff, appCfg.IdentifierPause, appCfg.FetchTimeout, appCfg.DelayPerHost)
}
