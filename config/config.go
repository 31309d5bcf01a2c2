// Package config loads and validates srcpkg's runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/ini.v1"
)

// Repository is one configured catalog source, matching spec.md §3's
// Repository record.
type Repository struct {
	Name      string
	URL       string
	Branch    string
	LocalPath string
	Priority  int
	Enabled   bool
	LastSync  int64
	LastCommit string
}

// Config holds every configuration input consumed by the core, per
// spec.md §6 ("Configuration inputs consumed by the core").
type Config struct {
	ConfigPath string

	// Filesystem layout, rooted at RootDir (spec.md §6 "Filesystem layout").
	RootDir       string
	InstallPrefix string
	EtcPath       string
	CachePath     string
	SourcesPath   string
	BuildsPath    string
	RepoPath      string
	DBPath        string
	LogsPath      string

	// Build behavior.
	ParallelJobs     int
	BuildTimeoutSecs int
	DebugSymbols     bool
	KeepBuildDir     bool
	ForceMode        bool
	SkipDependencies bool
	VerifyChecksums  bool

	// Catalog sync.
	SyncIntervalSecs int64

	Repositories []Repository
}

var (
	globalConfig   *Config
	globalConfigMu sync.Mutex
)

// GetConfig returns the process-wide configuration set by SetConfig, or nil.
func GetConfig() *Config {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	return globalConfig
}

// SetConfig installs the process-wide configuration.
func SetConfig(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// LoadConfig reads srcpkg.ini from configDir (if present) layered over
// hardcoded defaults, and derives every path under RootDir.
func LoadConfig(configDir, rootDir string) (*Config, error) {
	if rootDir == "" {
		rootDir = "/"
	}

	cfg := &Config{
		RootDir:          rootDir,
		InstallPrefix:    "/usr/local",
		ParallelJobs:     runtime.NumCPU(),
		BuildTimeoutSecs: 3600,
		VerifyChecksums:  true,
		SyncIntervalSecs: 86400,
	}
	if cfg.ParallelJobs < 1 {
		cfg.ParallelJobs = 1
	}

	if configDir == "" {
		configDir = "/etc/srcpkg"
	}
	cfg.ConfigPath = configDir

	configFile := filepath.Join(configDir, "srcpkg.ini")
	if _, err := os.Stat(configFile); err == nil {
		if err := cfg.applyINI(configFile); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDerivedPaths()
	return cfg, nil
}

func (cfg *Config) applyINI(path string) error {
	iniFile, err := ini.Load(path)
	if err != nil {
		return err
	}

	sec := iniFile.Section("Global Configuration")

	if v := sec.Key("Install_prefix").String(); v != "" {
		cfg.InstallPrefix = v
	}
	if n, err := sec.Key("Parallel_jobs").Int(); err == nil && n > 0 {
		cfg.ParallelJobs = n
	}
	if n, err := sec.Key("Build_timeout").Int(); err == nil && n > 0 {
		cfg.BuildTimeoutSecs = n
	}
	cfg.DebugSymbols = sec.Key("Debug_symbols").MustBool(cfg.DebugSymbols)
	cfg.KeepBuildDir = sec.Key("Keep_build_dir").MustBool(cfg.KeepBuildDir)
	cfg.ForceMode = sec.Key("Force_mode").MustBool(cfg.ForceMode)
	cfg.SkipDependencies = sec.Key("Skip_dependencies").MustBool(cfg.SkipDependencies)
	cfg.VerifyChecksums = sec.Key("Verify_checksums").MustBool(cfg.VerifyChecksums)
	if n, err := sec.Key("Sync_interval").Int64(); err == nil && n > 0 {
		cfg.SyncIntervalSecs = n
	}
	if v := sec.Key("Root_dir").String(); v != "" {
		cfg.RootDir = v
	}

	for _, s := range iniFile.Sections() {
		if !strings.HasPrefix(s.Name(), "repository:") {
			continue
		}
		name := strings.TrimPrefix(s.Name(), "repository:")
		repo := Repository{
			Name:      name,
			URL:       s.Key("Url").String(),
			Branch:    s.Key("Branch").MustString("main"),
			LocalPath: s.Key("Local_path").String(),
			Priority:  s.Key("Priority").MustInt(0),
			Enabled:   s.Key("Enabled").MustBool(true),
		}
		cfg.Repositories = append(cfg.Repositories, repo)
	}

	return nil
}

func (cfg *Config) applyDerivedPaths() {
	root := cfg.RootDir
	if cfg.EtcPath == "" {
		cfg.EtcPath = filepath.Join(root, "etc", "srcpkg")
	}
	if cfg.CachePath == "" {
		cfg.CachePath = filepath.Join(root, "var", "cache", "srcpkg")
	}
	if cfg.SourcesPath == "" {
		cfg.SourcesPath = filepath.Join(cfg.CachePath, "sources")
	}
	if cfg.BuildsPath == "" {
		cfg.BuildsPath = filepath.Join(cfg.CachePath, "builds")
	}
	if cfg.RepoPath == "" {
		cfg.RepoPath = filepath.Join(root, "var", "lib", "srcpkg", "repo")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(root, "var", "lib", "srcpkg", "installed.txt")
	}
	if cfg.LogsPath == "" {
		cfg.LogsPath = filepath.Join(root, "var", "log", "srcpkg")
	}
	for i := range cfg.Repositories {
		if cfg.Repositories[i].LocalPath == "" {
			cfg.Repositories[i].LocalPath = filepath.Join(cfg.RepoPath, cfg.Repositories[i].Name)
		}
	}
}

// SaveConfig writes cfg back out as an INI file, creating parent
// directories as needed.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	iniFile := ini.Empty()
	sec, err := iniFile.NewSection("Global Configuration")
	if err != nil {
		return err
	}

	sec.NewKey("Install_prefix", cfg.InstallPrefix)
	sec.NewKey("Parallel_jobs", fmt.Sprintf("%d", cfg.ParallelJobs))
	sec.NewKey("Build_timeout", fmt.Sprintf("%d", cfg.BuildTimeoutSecs))
	sec.NewKey("Debug_symbols", yesNo(cfg.DebugSymbols))
	sec.NewKey("Keep_build_dir", yesNo(cfg.KeepBuildDir))
	sec.NewKey("Force_mode", yesNo(cfg.ForceMode))
	sec.NewKey("Skip_dependencies", yesNo(cfg.SkipDependencies))
	sec.NewKey("Verify_checksums", yesNo(cfg.VerifyChecksums))
	sec.NewKey("Sync_interval", fmt.Sprintf("%d", cfg.SyncIntervalSecs))
	sec.NewKey("Root_dir", cfg.RootDir)

	for _, repo := range cfg.Repositories {
		rsec, err := iniFile.NewSection("repository:" + repo.Name)
		if err != nil {
			return err
		}
		rsec.NewKey("Url", repo.URL)
		rsec.NewKey("Branch", repo.Branch)
		rsec.NewKey("Local_path", repo.LocalPath)
		rsec.NewKey("Priority", fmt.Sprintf("%d", repo.Priority))
		rsec.NewKey("Enabled", yesNo(repo.Enabled))
	}

	if err := iniFile.SaveTo(path); err != nil {
		return err
	}
	cfg.ConfigPath = filepath.Dir(path)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Validate ensures every required directory exists or can be created, and
// that numeric settings are within sane bounds.
func (cfg *Config) Validate() error {
	required := map[string]string{
		"CachePath":   cfg.CachePath,
		"SourcesPath": cfg.SourcesPath,
		"BuildsPath":  cfg.BuildsPath,
		"RepoPath":    cfg.RepoPath,
		"LogsPath":    cfg.LogsPath,
	}

	for name, path := range required {
		if path == "" {
			return fmt.Errorf("%s is not configured", name)
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(path, 0755); err != nil {
					return fmt.Errorf("%s directory %s cannot be created: %w", name, path, err)
				}
				continue
			}
			return fmt.Errorf("%s directory %s: %w", name, path, err)
		} else if !info.IsDir() {
			return fmt.Errorf("%s path %s is not a directory", name, path)
		}
	}

	if cfg.ParallelJobs < 1 {
		return fmt.Errorf("ParallelJobs must be at least 1")
	}
	if cfg.ParallelJobs > 1024 {
		return fmt.Errorf("ParallelJobs is too large (max 1024)")
	}
	if cfg.BuildTimeoutSecs < 1 {
		return fmt.Errorf("BuildTimeoutSecs must be at least 1 second")
	}

	return nil
}
