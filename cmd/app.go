// Package cmd implements the CLI application to ingest broker statements and
// review the tax reports derived from them.
package cmd

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/etnz/taxclean"
	"go.uber.org/zap"
)

// EnvTestingNow freezes the clock of the pipeline, for reproducible
// documentation examples. Its format is "2006-01-02 15:04:05", in UTC.
const EnvTestingNow = "TAXCLEAN_TESTING_NOW"

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var configFile = flag.String("config", "", "Path to a YAML configuration file")
var stateFile = flag.String("state", "", "Path to the state file (JSONL). Overrides the configuration.")
var rawOutput = flag.Bool("raw", false, "Print raw markdown instead of rendering it for the terminal")

// app is the pipeline opened on the state file.
type app struct {
	cfg      taxclean.Config
	log      *zap.Logger
	store    *taxclean.MemoryStore
	pipeline *taxclean.Pipeline
}

// openApp loads the configuration and the state file.
func openApp() (*app, error) {
	cfg, err := taxclean.LoadConfig(*configFile)
	if err != nil {
		return nil, err
	}
	if *stateFile != "" {
		cfg.StateFile = *stateFile
	}
	log, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	store, err := taxclean.LoadState(cfg.StateFile)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Options(log)
	if err != nil {
		return nil, err
	}
	if v := os.Getenv(EnvTestingNow); v != "" {
		now, err := time.Parse(time.DateTime, v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvTestingNow, err)
		}
		opts = append(opts, taxclean.WithClock(func() time.Time { return now }))
	}
	log.Debug("state loaded", zap.String("state_file", cfg.StateFile))
	return &app{cfg: cfg, log: log, store: store, pipeline: taxclean.NewPipeline(store, opts...)}, nil
}

// save writes the state back to the state file.
func (a *app) save() error {
	if err := taxclean.SaveState(a.cfg.StateFile, a.store); err != nil {
		return err
	}
	a.log.Debug("state saved", zap.String("state_file", a.cfg.StateFile))
	return nil
}

func (a *app) close() { _ = a.log.Sync() }
