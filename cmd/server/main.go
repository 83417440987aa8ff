// Package main provides the entry point for the streambridge server.
// The server sits between a chat UI and a backend that answers with the Data Stream Protocol,
// and re-emits every response as a UI Message Stream over Server-Sent Events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/finesssee/streambridge/internal/api"
	"github.com/finesssee/streambridge/internal/config"
	"github.com/finesssee/streambridge/internal/logging"
	"github.com/finesssee/streambridge/internal/watcher"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = "config.yaml"
)

// shutdownTimeout bounds how long open streams may run after a stop signal.
const shutdownTimeout = 30 * time.Second

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
}

func main() {
	var configPath string
	var showVersion bool
	var verboseMode bool
	var quietMode bool
	var noWatch bool

	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.BoolVar(&verboseMode, "verbose", false, "Run in verbose mode")
	flag.BoolVar(&quietMode, "quiet", false, "Run in quiet mode (overrides --verbose)")
	flag.BoolVar(&noWatch, "no-watch", false, "Do not reload the config file when it changes")
	flag.Parse()

	if showVersion {
		fmt.Printf("streambridge Version: %s, Commit: %s, BuiltAt: %s\n", Version, Commit, BuildDate)
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		os.Exit(1)
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	// A missing config file is fine when the default path is used; everything has a default.
	configOptional := configPath == DefaultConfigPath
	cfg, err := config.LoadConfigOptional(configPath, configOptional)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}

	warnings, err := config.ValidateConfig(cfg)
	if err != nil {
		log.Errorf("invalid config: %v", err)
		os.Exit(1)
	}
	for _, warning := range warnings {
		log.Warn(warning)
	}

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		os.Exit(1)
	}
	switch {
	case quietMode:
		logging.SetLogLevel("quiet")
	case verboseMode:
		logging.SetLogLevel("verbose")
	}

	log.Infof("streambridge Version: %s, Commit: %s, BuiltAt: %s", Version, Commit, BuildDate)

	if err = run(cfg, configPath, !noWatch); err != nil {
		log.Errorf("server exited: %v", err)
		os.Exit(1)
	}
}

// run serves until SIGINT or SIGTERM, then drains open streams.
func run(cfg *config.Config, configPath string, watch bool) error {
	server := api.NewServer(cfg, configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	if watch {
		if _, errStat := os.Stat(configPath); errStat == nil {
			w := watcher.New(configPath, server.UpdateClients)
			g.Go(func() error { return w.Run(gctx) })
		} else {
			log.Debugf("config file %s not found, hot reload disabled", configPath)
		}
	}

	g.Go(func() error {
		select {
		case sig := <-sigChan:
			log.Infof("received %s, shutting down", sig)
		case <-gctx.Done():
		}
		cancel()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		return server.Stop(shutdownCtx)
	})

	return g.Wait()
}
