// Package orchestrator implements the install/remove/update lifecycle of
// spec.md §4.9, driving the Loader, Resolver, Build Runner, and Database
// through one package's lifecycle at a time (spec.md §5: "single-threaded
// cooperative at the package-lifecycle level").
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/mod/semver"

	"srcpkg/buildrunner"
	"srcpkg/config"
	"srcpkg/db"
	"srcpkg/db/buildhistory"
	"srcpkg/definition"
	"srcpkg/pklog"
	"srcpkg/resolver"
)

// DefinitionLoader loads a PackageDefinition by name; definition.Loader
// and resolver.DefinitionLoader both satisfy this.
type DefinitionLoader interface {
	Load(name string) (*definition.PackageDefinition, error)
}

// Resolver produces an install order; resolver.Resolver satisfies this.
type Resolver interface {
	Resolve(ctx context.Context, name string) ([]string, error)
}

// ProgressEvent reports one package's lifecycle transition, consumed by the
// monitor package's status display (SPEC_FULL.md §5.3). Sends are
// non-blocking: a full or nil channel never stalls a lifecycle operation.
type ProgressEvent struct {
	Name  string
	State db.State
	Err   error
}

// Orchestrator owns one package lifecycle at a time. BuildHistory is
// optional supplementary instrumentation (spec.md §5.2's supplement);
// a nil BuildHistory disables it silently.
type Orchestrator struct {
	Config       *config.Config
	Loader       DefinitionLoader
	Resolver     Resolver
	Runner       *buildrunner.Runner
	DB           *db.Database
	BuildHistory *buildhistory.DB
	Logger       pklog.LibraryLogger
	Cancellation *CancellationFlag

	// Progress, if set, receives a ProgressEvent on every state transition.
	Progress chan<- ProgressEvent
}

func (o *Orchestrator) emit(name string, state db.State, err error) {
	if o.Progress == nil {
		return
	}
	select {
	case o.Progress <- ProgressEvent{Name: name, State: state, Err: err}:
	default:
	}
}

// New wires an Orchestrator over its collaborators. logger/cancellation
// may be nil.
func New(cfg *config.Config, loader DefinitionLoader, res Resolver, runner *buildrunner.Runner, database *db.Database, history *buildhistory.DB, logger pklog.LibraryLogger, cancellation *CancellationFlag) *Orchestrator {
	if logger == nil {
		logger = pklog.NoOpLogger{}
	}
	if cancellation == nil {
		cancellation = &CancellationFlag{}
	}
	return &Orchestrator{
		Config:       cfg,
		Loader:       loader,
		Resolver:     res,
		Runner:       runner,
		DB:           database,
		BuildHistory: history,
		Logger:       logger,
		Cancellation: cancellation,
	}
}

func (o *Orchestrator) checkCancelled(name string) error {
	if o.Cancellation != nil && o.Cancellation.Cancelled() {
		return &CancelledError{Name: name}
	}
	return nil
}

// Install implements spec.md §4.9's install(name), recursing over the
// Resolver's order for undeclared-as-skipped dependencies.
func (o *Orchestrator) Install(ctx context.Context, name string, force bool) error {
	if err := o.checkCancelled(name); err != nil {
		return err
	}

	existing, err := o.DB.Find(name)
	if err != nil {
		return err
	}
	if existing != nil && existing.State == db.StateInstalled && !force {
		return nil
	}

	def, err := o.Loader.Load(name)
	if err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return err
	}

	for _, conflict := range def.Conflicts {
		if entry, err := o.DB.Find(conflict); err == nil && entry != nil && entry.State == db.StateInstalled {
			return &ConflictError{Name: name, Conflicts: conflict}
		}
	}

	// Resolve before any Database write: a Cycle must be reported with the
	// Database unchanged (spec.md §7's error-taxonomy recovery column, §8
	// scenario 3), so dependency resolution has to run before install()
	// records even a "downloading" row for name.
	var order []string
	if !o.Config.SkipDependencies {
		var err error
		order, err = o.Resolver.Resolve(ctx, name)
		if err != nil {
			return err
		}
	}

	if err := o.setState(name, def, db.StateDownloading); err != nil {
		return err
	}

	if !o.Config.SkipDependencies {
		for _, dep := range order[:len(order)-1] {
			depEntry, err := o.DB.Find(dep)
			if err != nil {
				o.setState(name, def, db.StateFailed)
				return err
			}
			if depEntry != nil && depEntry.State == db.StateInstalled {
				continue
			}
			if err := o.Install(ctx, dep, force); err != nil {
				o.setState(name, def, db.StateFailed)
				return err
			}
		}
	}

	if err := o.checkCancelled(name); err != nil {
		o.setState(name, def, db.StateFailed)
		return err
	}

	if err := o.setState(name, def, db.StateBuilding); err != nil {
		return err
	}

	buildRoot := o.Config.BuildsPath
	bc := buildrunner.NewBuildContext(def, buildRoot)

	buildUUID := ""
	if o.BuildHistory != nil {
		buildUUID = newBuildUUID()
		o.BuildHistory.SaveRecord(&buildhistory.BuildRecord{
			UUID: buildUUID, Name: def.Name, Version: def.Version,
			Status: "running", StartedAt: time.Now(),
		})
	}

	defer o.Runner.Done(bc, o.Config.KeepBuildDir)

	if err := o.Runner.Build(ctx, bc); err != nil {
		o.setState(name, def, db.StateFailed)
		o.recordBuildOutcome(buildUUID, "failed")
		return err
	}

	if err := o.checkCancelled(name); err != nil {
		o.setState(name, def, db.StateFailed)
		o.recordBuildOutcome(buildUUID, "failed")
		return err
	}

	if err := o.setState(name, def, db.StateInstalling); err != nil {
		return err
	}

	if err := o.Runner.Install(ctx, bc); err != nil {
		o.setState(name, def, db.StateFailed)
		o.recordBuildOutcome(buildUUID, "failed")
		return err
	}

	o.recordBuildOutcome(buildUUID, "success")
	if o.BuildHistory != nil {
		o.BuildHistory.RecordCompletion(def.Name, def.Version, buildUUID)
		if crc, err := buildhistory.ComputeFileListCRC(bc.FileList); err == nil {
			o.BuildHistory.UpdateCRC(def.Name, crc)
		}
	}

	entry := db.InstalledEntry{
		Name:          def.Name,
		Version:       def.Version,
		Description:   def.Description,
		InstalledAt:   time.Now().Unix(),
		InstalledSize: totalSize(bc.FileList),
		State:         db.StateInstalled,
		FileList:      bc.FileList,
	}
	if err := o.DB.Add(entry); err != nil {
		return err
	}

	if def.PostInstallCmd != "" {
		if err := o.runPostInstall(ctx, def); err != nil {
			o.Logger.Warn("orchestrator: %s: post_install_cmd failed: %v", name, err)
		}
	}

	return nil
}

func (o *Orchestrator) setState(name string, def *definition.PackageDefinition, state db.State) error {
	existing, err := o.DB.Find(name)
	if err != nil {
		return err
	}
	if existing == nil {
		err = o.DB.Add(db.InstalledEntry{Name: name, Version: def.Version, Description: def.Description, State: state})
	} else {
		err = o.DB.SetState(name, state)
	}
	o.emit(name, state, err)
	return err
}

func (o *Orchestrator) recordBuildOutcome(uuid, status string) {
	if o.BuildHistory == nil || uuid == "" {
		return
	}
	o.BuildHistory.UpdateRecordStatus(uuid, status, time.Now())
}

func totalSize(fileList []string) int64 {
	var total int64
	for _, path := range fileList {
		if info, err := os.Stat(path); err == nil {
			total += info.Size()
		}
	}
	return total
}

// Remove implements spec.md §4.9's remove(name).
func (o *Orchestrator) Remove(ctx context.Context, name string, force bool) error {
	entry, err := o.DB.Find(name)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	if !force {
		installed, err := o.DB.All()
		if err != nil {
			return err
		}
		dependents := resolver.FindDependents(o.installedEntriesWithDeps(installed), name)
		if len(dependents) > 0 {
			return &DependencyError{Name: name, Dependents: dependents}
		}
	}

	for i := len(entry.FileList) - 1; i >= 0; i-- {
		if err := os.Remove(entry.FileList[i]); err != nil && !os.IsNotExist(err) {
			o.Logger.Warn("orchestrator: %s: failed to remove %s: %v", name, entry.FileList[i], err)
		}
	}

	return o.DB.Remove(name)
}

// installedEntriesWithDeps resolves each installed row's declared
// dependencies (via Loader) so resolver.FindDependents can walk them;
// entries whose definition no longer loads are included with no
// dependencies rather than aborting the whole query.
func (o *Orchestrator) installedEntriesWithDeps(installed []db.InstalledEntry) []resolver.InstalledEntry {
	out := make([]resolver.InstalledEntry, 0, len(installed))
	for _, e := range installed {
		deps := []string(nil)
		if def, err := o.Loader.Load(e.Name); err == nil {
			deps = def.Dependencies
		}
		out = append(out, resolver.InstalledEntry{Name: e.Name, Dependencies: deps})
	}
	return out
}

// Update implements spec.md §4.9's update(name). Config-file backup and
// restore are not modeled: spec.md §3's PackageDefinition carries no
// config-pattern field, so this step is a documented no-op rather than an
// invented one (see DESIGN.md).
func (o *Orchestrator) Update(ctx context.Context, name string, force bool) error {
	entry, err := o.DB.Find(name)
	if err != nil {
		return err
	}
	if entry == nil {
		return o.Install(ctx, name, force)
	}

	def, err := o.Loader.Load(name)
	if err != nil {
		return err
	}

	if !force && compareVersions(def.Version, entry.Version) <= 0 {
		return nil
	}

	if err := o.Remove(ctx, name, true); err != nil {
		return err
	}
	return o.Install(ctx, name, force)
}

// compareVersions compares two dotted version strings using semver
// ordering, tolerating the absence of a leading "v".
func compareVersions(a, b string) int {
	return semver.Compare(normalizeVersion(a), normalizeVersion(b))
}

func normalizeVersion(v string) string {
	if len(v) == 0 || v[0] != 'v' {
		return "v" + v
	}
	return v
}

// UpdateAllResult is the aggregate outcome of UpdateAll.
type UpdateAllResult struct {
	Attempted int
	Succeeded int
	Failed    int
	Errors    map[string]error
}

// UpdateAll implements spec.md §4.9's update_all().
func (o *Orchestrator) UpdateAll(ctx context.Context) (*UpdateAllResult, error) {
	installed, err := o.DB.All()
	if err != nil {
		return nil, err
	}

	result := &UpdateAllResult{Errors: make(map[string]error)}
	for _, entry := range installed {
		result.Attempted++
		if err := o.Update(ctx, entry.Name, false); err != nil {
			result.Failed++
			result.Errors[entry.Name] = err
			continue
		}
		result.Succeeded++
	}

	if result.Failed > 0 {
		return result, fmt.Errorf("orchestrator: %d of %d updates failed", result.Failed, result.Attempted)
	}
	return result, nil
}

func (o *Orchestrator) runPostInstall(ctx context.Context, def *definition.PackageDefinition) error {
	argv, err := splitCommand(def.PostInstallCmd)
	if err != nil || len(argv) == 0 {
		return err
	}
	return runShellessCommand(ctx, argv, o.buildTimeout())
}

func (o *Orchestrator) buildTimeout() time.Duration {
	if o.Config == nil || o.Config.BuildTimeoutSecs <= 0 {
		return time.Hour
	}
	return time.Duration(o.Config.BuildTimeoutSecs) * time.Second
}
