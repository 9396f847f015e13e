package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/term"

	"github.com/cappuch/lib-p2pchat/internal/chatnode"
	"github.com/cappuch/lib-p2pchat/internal/config"
	"github.com/cappuch/lib-p2pchat/internal/paths"
	"github.com/cappuch/lib-p2pchat/internal/storage/boltstore"
	"github.com/cappuch/lib-p2pchat/internal/telemetry"
)

type flags struct {
	configPath string
	bind       string
	dataDir    string
	logLevel   string
	debug      bool
	peersFile  string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "YAML config file")
	flag.StringVar(&f.bind, "bind", "", "bind address, overrides config (e.g. :0 for random port)")
	flag.StringVar(&f.dataDir, "data", "", "data directory, overrides config")
	flag.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error, overrides config")
	flag.BoolVar(&f.debug, "debug", false, "log routing decisions")
	flag.StringVar(&f.peersFile, "peers", "", "YAML peers list (default <data>/peers.yaml)")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "p2pchat-node: %v\n", err)
		os.Exit(1)
	}
}

func loadSettings(f flags) (config.Config, error) {
	settings := config.Default()
	if f.configPath != "" {
		var err error
		if settings, err = config.Load(f.configPath); err != nil {
			return config.Config{}, err
		}
	}

	if f.bind != "" {
		settings.BindAddr = f.bind
	}
	if f.dataDir != "" {
		settings.DataDir = f.dataDir
	}
	if f.logLevel != "" {
		settings.LogLevel = f.logLevel
	}
	if f.debug {
		settings.Debug = true
	}
	return settings, settings.Validate()
}

func run(f flags) error {
	settings, err := loadSettings(f)
	if err != nil {
		return err
	}

	logger, err := telemetry.New(settings.LogLevel, os.Stderr)
	if err != nil {
		return err
	}

	dataDir, err := paths.EnsureDir(settings.DataDir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	store, err := boltstore.Open(filepath.Join(dataDir, "node.db"))
	if err != nil {
		return err
	}

	peersFile := f.peersFile
	if peersFile == "" {
		peersFile = filepath.Join(dataDir, "peers.yaml")
	}

	app, err := chatnode.New(chatnode.Config{
		Settings:  settings,
		Store:     store,
		PeersFile: peersFile,
		Color:     term.IsTerminal(int(os.Stdout.Fd())),
	}, logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	logger.WithFields(logrus.Fields{
		"id":   app.Node.ID().Short(),
		"data": dataDir,
	}).Debug("node created")

	if err := app.Start(); err != nil {
		_ = app.StopAll()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := app.Run(ctx)
	return multierr.Combine(runErr, app.StopAll())
}
