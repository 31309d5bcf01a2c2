package cmd

import (
	"os"
	"path/filepath"

	"srcpkg/buildrunner"
	"srcpkg/catalog"
	"srcpkg/config"
	"srcpkg/db"
	"srcpkg/db/buildhistory"
	"srcpkg/definition"
	"srcpkg/orchestrator"
	"srcpkg/pklog"
	"srcpkg/resolver"
)

// app bundles the collaborators every subcommand needs, assembled once per
// invocation from Config (spec.md §4's component wiring).
type app struct {
	Config       *config.Config
	Orchestrator *orchestrator.Orchestrator
	Lock         *orchestrator.Lock
	Cancellation *orchestrator.CancellationFlag
	BuildHistory *buildhistory.DB
	fileLogger   *pklog.Logger
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ForceMode = cfg.ForceMode || forceFlag

	var logger pklog.LibraryLogger
	fileLogger, err := pklog.NewLogger(cfg.LogsPath)
	if err != nil {
		logger = pklog.NoOpLogger{}
	} else {
		logger = fileLogger
	}

	store := catalog.New(cfg, logger)
	loader := definition.NewLoader(store, logger)
	res := resolver.New(loader, logger)
	runner := buildrunner.New(cfg, logger)
	runner.Output = os.Stdout
	database := db.New(cfg.DBPath, logger)

	history, err := buildhistory.Open(filepath.Join(cfg.CachePath, "buildhistory.db"))
	if err != nil {
		logger.Warn("cmd: build history unavailable: %v", err)
		history = nil
	}

	cancellation := &orchestrator.CancellationFlag{}
	orch := orchestrator.New(cfg, loader, res, runner, database, history, logger, cancellation)

	return &app{
		Config:       cfg,
		Orchestrator: orch,
		Lock:         orchestrator.NewLock(cfg.RootDir),
		Cancellation: cancellation,
		BuildHistory: history,
		fileLogger:   fileLogger,
	}, nil
}

func (a *app) close() {
	if a.BuildHistory != nil {
		a.BuildHistory.Close()
	}
	if a.fileLogger != nil {
		a.fileLogger.Close()
	}
}

// withLock acquires the advisory lock, runs fn, and releases it; fn's
// error propagates unchanged.
func (a *app) withLock(fn func() error) error {
	if err := a.Lock.Acquire(); err != nil {
		return err
	}
	defer a.Lock.Release()
	return fn()
}
