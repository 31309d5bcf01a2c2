// Package buildrunner drives a single PackageDefinition through the
// fetch/extract/configure/compile/install phases described in spec.md §4.6
// ("Build Runner").
//
// Every phase that runs an external command does so through procexec's
// argument-vector wrapper: build_cmd, install_cmd, and configure_args come
// from catalog entries and are never handed to a shell (spec.md §9's
// security design note).
package buildrunner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"

	"srcpkg/config"
	"srcpkg/definition"
	"srcpkg/extractor"
	"srcpkg/fetcher"
	"srcpkg/integrity"
	"srcpkg/pklog"
)

// Phase is a BuildContext's position in the state machine of spec.md
// §4.6. Transitions are monotonic forward; Failed is terminal.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseDownloading
	PhaseExtracting
	PhaseConfiguring
	PhaseBuilding
	PhaseInstalling
	PhaseComplete
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhaseInit:        "init",
	PhaseDownloading: "downloading",
	PhaseExtracting:  "extracting",
	PhaseConfiguring: "configuring",
	PhaseBuilding:    "building",
	PhaseInstalling:  "installing",
	PhaseComplete:    "complete",
	PhaseFailed:      "failed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// maxInProgress bounds the Runner's in-progress table (spec.md §4.6).
const maxInProgress = 16

// BuildContext is the transient, Orchestrator-owned state of one
// in-progress install (spec.md §3).
type BuildContext struct {
	Package *definition.PackageDefinition

	BuildDir   string
	SourceDir  string
	InstallDir string

	Phase     Phase
	StartedAt time.Time
	EndedAt   time.Time

	archivePath string

	// FileList is filled in by Install: the host path of every regular file
	// the install walk found under InstallDir, after copyTreeToRoot has
	// placed them at their real destination (spec.md §9's Open Question
	// decision — file_list authority belongs to the walk of install_dir,
	// never a partial install-time log, but the recorded paths must be
	// where the files actually live once build_dir is gone).
	FileList []string
}

// NewBuildContext lays out a fresh build_dir/source_dir/install_dir triple
// for def under buildRoot, per spec.md §3's BuildContext layout.
func NewBuildContext(def *definition.PackageDefinition, buildRoot string) *BuildContext {
	buildDir := filepath.Join(buildRoot, fmt.Sprintf("%s-%s-%s", def.Name, def.Version, uuid.NewString()[:8]))
	return &BuildContext{
		Package:    def,
		BuildDir:   buildDir,
		SourceDir:  filepath.Join(buildDir, "source"),
		InstallDir: filepath.Join(buildDir, "install"),
		Phase:      PhaseInit,
	}
}

// Runner executes BuildContexts. Fetch/Extract/Verify are function fields
// so tests can substitute fixtures without touching the network or a real
// archive; New wires the production implementations.
type Runner struct {
	Config *config.Config
	Logger pklog.LibraryLogger

	Fetch   func(ctx context.Context, url, destination string, connectTimeout time.Duration, logger pklog.LibraryLogger) error
	Extract func(ctx context.Context, archive, targetDir string, buildTimeout time.Duration) error
	Verify  func(path, expectedDigest string, logger pklog.LibraryLogger) error

	// Output receives combined stdout/stderr of every phase command. Nil
	// discards it; orchestrator attaches a pklog.PackageLogger's Writer().
	Output io.Writer

	// DestRoot is where Install copies the built tree. Empty means "/";
	// tests override it to avoid touching the real host root.
	DestRoot string

	mu      sync.Mutex
	running map[string]*BuildContext
}

func (r *Runner) destRoot() string {
	if r.DestRoot == "" {
		return "/"
	}
	return r.DestRoot
}

// New builds a Runner over cfg, wired to the production fetcher,
// extractor, and integrity packages.
func New(cfg *config.Config, logger pklog.LibraryLogger) *Runner {
	if logger == nil {
		logger = pklog.NoOpLogger{}
	}
	return &Runner{
		Config:  cfg,
		Logger:  logger,
		Fetch:   fetcher.Fetch,
		Extract: extractor.Extract,
		Verify:  integrity.Verify,
		running: make(map[string]*BuildContext),
	}
}

// IsRunning reports whether name has an in-progress BuildContext.
func (r *Runner) IsRunning(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[name]
	return ok
}

func (r *Runner) register(bc *BuildContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.running) >= maxInProgress {
		return &ResourceError{Name: bc.Package.Name, Capacity: maxInProgress}
	}
	r.running[bc.Package.Name] = bc
	return nil
}

func (r *Runner) unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, name)
}

func (r *Runner) buildTimeout() time.Duration {
	if r.Config == nil || r.Config.BuildTimeoutSecs <= 0 {
		return time.Hour
	}
	return time.Duration(r.Config.BuildTimeoutSecs) * time.Second
}

func (r *Runner) installPrefix() string {
	if r.Config == nil || r.Config.InstallPrefix == "" {
		return "/usr/local"
	}
	return r.Config.InstallPrefix
}

func (r *Runner) parallelJobs() int {
	if r.Config == nil || r.Config.ParallelJobs <= 0 {
		return 1
	}
	return r.Config.ParallelJobs
}

// Build walks the Fetch/Extract/Configure/Compile phases of spec.md §4.6.
// It registers bc in the in-progress table for its whole lifetime,
// including the later Install call — callers must still call Done once
// Install returns.
func (r *Runner) Build(ctx context.Context, bc *BuildContext) error {
	if err := r.register(bc); err != nil {
		return err
	}

	bc.StartedAt = time.Now()
	if err := os.MkdirAll(bc.SourceDir, 0755); err != nil {
		return r.fail(bc, PhaseInit, err)
	}

	if err := r.phaseDownload(ctx, bc); err != nil {
		return r.fail(bc, PhaseDownloading, err)
	}
	if err := r.phaseExtract(ctx, bc); err != nil {
		return r.fail(bc, PhaseExtracting, err)
	}
	if err := r.phaseConfigure(ctx, bc); err != nil {
		return r.fail(bc, PhaseConfiguring, err)
	}
	if err := r.phaseCompile(ctx, bc); err != nil {
		return r.fail(bc, PhaseBuilding, err)
	}

	return nil
}

// Done releases bc from the in-progress table and, per keepBuildDir,
// removes its build_dir. Call once after Install (success or failure).
func (r *Runner) Done(bc *BuildContext, keepOnFailure bool) {
	r.unregister(bc.Package.Name)
	if bc.Phase == PhaseFailed && keepOnFailure {
		return
	}
	os.RemoveAll(bc.BuildDir)
}

func (r *Runner) fail(bc *BuildContext, phase Phase, err error) error {
	bc.Phase = PhaseFailed
	bc.EndedAt = time.Now()
	return &BuildError{Name: bc.Package.Name, Phase: phase, Err: err}
}

func (r *Runner) phaseDownload(ctx context.Context, bc *BuildContext) error {
	bc.Phase = PhaseDownloading
	def := bc.Package

	cachePath := filepath.Join(r.Config.SourcesPath, filepath.Base(def.SourceURL))
	connectTimeout := 30 * time.Second
	if err := r.Fetch(ctx, def.SourceURL, cachePath, connectTimeout, r.Logger); err != nil {
		return err
	}

	if def.Checksum != "" {
		if err := r.Verify(cachePath, def.Checksum, r.Logger); err != nil {
			return err
		}
	} else {
		r.Logger.Warn("buildrunner: %s carries no checksum, skipping verification", def.Name)
	}

	bc.archivePath = cachePath
	return nil
}

func (r *Runner) phaseExtract(ctx context.Context, bc *BuildContext) error {
	bc.Phase = PhaseExtracting
	return r.Extract(ctx, bc.archivePath, bc.SourceDir, r.buildTimeout())
}

func (r *Runner) phaseConfigure(ctx context.Context, bc *BuildContext) error {
	bc.Phase = PhaseConfiguring
	def := bc.Package

	system := effectiveBuildSystem(def, bc.SourceDir)

	configureArgs, err := shlex.Split(def.ConfigureArgs)
	if err != nil {
		return fmt.Errorf("invalid configure_args: %w", err)
	}

	switch system {
	case definition.BuildAutotools:
		return r.configureAutotools(ctx, bc, configureArgs)
	case definition.BuildCMake:
		return r.configureCMake(ctx, bc, configureArgs)
	case definition.BuildMake, definition.BuildCustom:
		return nil
	default:
		return fmt.Errorf("unknown build_system %q", system)
	}
}

// effectiveBuildSystem applies spec.md §4.6's auto-detection: when the
// record says autotools and build_cmd is empty, probe the source tree.
func effectiveBuildSystem(def *definition.PackageDefinition, sourceDir string) definition.BuildSystem {
	if def.BuildSystem != definition.BuildAutotools || def.BuildCmd != "" {
		return def.BuildSystem
	}
	if fileExists(filepath.Join(sourceDir, "CMakeLists.txt")) {
		return definition.BuildCMake
	}
	if fileExists(filepath.Join(sourceDir, "configure")) {
		return definition.BuildAutotools
	}
	if fileExists(filepath.Join(sourceDir, "Makefile")) {
		return definition.BuildMake
	}
	return definition.BuildAutotools
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (r *Runner) configureAutotools(ctx context.Context, bc *BuildContext, extraArgs []string) error {
	configurePath := filepath.Join(bc.SourceDir, "configure")
	if !fileExists(configurePath) {
		if err := r.generateConfigureScript(ctx, bc); err != nil {
			return err
		}
	}
	if !fileExists(configurePath) {
		return fmt.Errorf("no configure script after bootstrap attempts")
	}

	args := append([]string{"--prefix=" + r.installPrefix()}, extraArgs...)
	return r.run(ctx, bc, bc.SourceDir, "./configure", args)
}

// generateConfigureScript tries, in order, the bootstrap tools spec.md
// §4.6 names: autogen.sh, then autoreconf, then bootstrap.
func (r *Runner) generateConfigureScript(ctx context.Context, bc *BuildContext) error {
	autogen := filepath.Join(bc.SourceDir, "autogen.sh")
	if fileExists(autogen) {
		if err := r.run(ctx, bc, bc.SourceDir, autogen, nil); err == nil {
			return nil
		}
	}

	if err := r.run(ctx, bc, bc.SourceDir, "autoreconf", []string{"-fiv"}); err == nil {
		return nil
	}

	bootstrap := filepath.Join(bc.SourceDir, "bootstrap")
	if fileExists(bootstrap) {
		if err := r.run(ctx, bc, bc.SourceDir, bootstrap, nil); err == nil {
			return nil
		}
	}

	return fmt.Errorf("could not generate a configure script")
}

func (r *Runner) configureCMake(ctx context.Context, bc *BuildContext, extraArgs []string) error {
	buildType := "Release"
	if r.Config != nil && r.Config.DebugSymbols {
		buildType = "Debug"
	}
	args := append([]string{
		"-DCMAKE_BUILD_TYPE=" + buildType,
		"-DCMAKE_INSTALL_PREFIX=" + r.installPrefix(),
	}, extraArgs...)
	args = append(args, ".")
	return r.run(ctx, bc, bc.SourceDir, "cmake", args)
}

func (r *Runner) phaseCompile(ctx context.Context, bc *BuildContext) error {
	bc.Phase = PhaseBuilding
	def := bc.Package

	if def.BuildCmd != "" {
		argv, err := shlex.Split(def.BuildCmd)
		if err != nil {
			return fmt.Errorf("invalid build_cmd: %w", err)
		}
		if len(argv) == 0 {
			return fmt.Errorf("build_cmd is blank")
		}
		return r.run(ctx, bc, bc.SourceDir, argv[0], argv[1:])
	}

	return r.run(ctx, bc, bc.SourceDir, "make", []string{fmt.Sprintf("-j%d", r.parallelJobs())})
}

// Install runs once build() has succeeded: executes install_cmd (or `make
// install`), walks install_dir for the authoritative file_list, and
// copies the installed tree onto the host root.
func (r *Runner) Install(ctx context.Context, bc *BuildContext) error {
	bc.Phase = PhaseInstalling
	def := bc.Package

	if err := os.MkdirAll(bc.InstallDir, 0755); err != nil {
		return r.fail(bc, PhaseInstalling, err)
	}

	if def.InstallCmd != "" {
		argv, err := shlex.Split(def.InstallCmd)
		if err != nil {
			return r.fail(bc, PhaseInstalling, fmt.Errorf("invalid install_cmd: %w", err))
		}
		if len(argv) == 0 {
			return r.fail(bc, PhaseInstalling, fmt.Errorf("install_cmd is blank"))
		}
		if err := r.run(ctx, bc, bc.SourceDir, argv[0], argv[1:]); err != nil {
			return r.fail(bc, PhaseInstalling, err)
		}
	} else {
		args := []string{
			"install",
			"DESTDIR=" + bc.InstallDir,
			"PREFIX=" + r.installPrefix(),
		}
		if err := r.run(ctx, bc, bc.SourceDir, "make", args); err != nil {
			return r.fail(bc, PhaseInstalling, err)
		}
	}

	relFiles, err := walkRegularFiles(bc.InstallDir)
	if err != nil {
		return r.fail(bc, PhaseInstalling, err)
	}

	if err := copyTreeToRoot(bc.InstallDir, r.destRoot()); err != nil {
		return r.fail(bc, PhaseInstalling, err)
	}

	// file_list must name the host paths copyTreeToRoot just wrote, not the
	// staging paths under InstallDir — InstallDir is deleted with build_dir
	// once the build completes, so staged paths can't be used for removal
	// or drift verification later.
	destRoot := r.destRoot()
	fileList := make([]string, len(relFiles))
	for i, rel := range relFiles {
		fileList[i] = filepath.Join(destRoot, rel)
	}
	bc.FileList = fileList

	bc.Phase = PhaseComplete
	bc.EndedAt = time.Now()
	return nil
}

// run invokes name/args in dir through procexec, under the Runner's
// build_timeout, logging the invocation and its outcome.
func (r *Runner) run(ctx context.Context, bc *BuildContext, dir, name string, args []string) error {
	r.Logger.Debug("buildrunner: %s: %s %s", bc.Package.Name, name, args)
	return runCommand(ctx, dir, name, args, r.buildTimeout(), r.Output)
}
