package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/DataisKing1/title-search-app-sub000/internal/app"
	"github.com/DataisKing1/title-search-app-sub000/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("TitleSearch version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Auto-discover a config file when none is specified.
	if len(configFiles) == 0 {
		if _, err := os.Stat("titlesearch.toml"); err == nil {
			configFiles = append(configFiles, "titlesearch.toml")
		} else if _, err := os.Stat("deployments/local/titlesearch.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/titlesearch.toml")
		}
	}

	// Startup order: config (defaults -> files -> env), logger, banner.
	config, err := common.LoadConfig(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Str("log_level", config.Logging.Level).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
	}

	logger.Info().
		Str("badger_path", config.Storage.Badger.Path).
		Int("workers", config.Queue.Concurrency).
		Msg("Worker ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
}
