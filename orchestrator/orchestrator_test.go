package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"srcpkg/buildrunner"
	"srcpkg/config"
	"srcpkg/db"
	"srcpkg/definition"
	"srcpkg/pklog"
	"srcpkg/resolver"
)

type fixtureLoader struct {
	defs map[string]*definition.PackageDefinition
}

func (f *fixtureLoader) Load(name string) (*definition.PackageDefinition, error) {
	def, ok := f.defs[name]
	if !ok {
		return nil, &notFoundStub{name}
	}
	return def, nil
}

type notFoundStub struct{ name string }

func (e *notFoundStub) Error() string { return "not found: " + e.name }

// fixtureResolver returns a fixed order regardless of ctx/name, enough to
// exercise Install's dependency-recursion loop without a real graph walk.
type fixtureResolver struct {
	orders map[string][]string
	errs   map[string]error
}

func (f *fixtureResolver) Resolve(ctx context.Context, name string) ([]string, error) {
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	if order, ok := f.orders[name]; ok {
		return order, nil
	}
	return []string{name}, nil
}

func def(name, version string, deps ...string) *definition.PackageDefinition {
	return &definition.PackageDefinition{
		Name: name, Version: version, SourceURL: "https://example.invalid/" + name + ".tar.gz",
		BuildSystem: definition.BuildCustom, BuildCmd: "true", InstallCmd: "true",
		Dependencies: deps,
	}
}

func newTestOrchestrator(t *testing.T, defs map[string]*definition.PackageDefinition, orders map[string][]string) *Orchestrator {
	t.Helper()
	return newTestOrchestratorWithResolver(t, defs, &fixtureResolver{orders: orders})
}

func newTestOrchestratorWithResolver(t *testing.T, defs map[string]*definition.PackageDefinition, resolver Resolver) *Orchestrator {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		BuildsPath: filepath.Join(root, "builds"), SourcesPath: filepath.Join(root, "sources"),
		InstallPrefix: "/usr/local", ParallelJobs: 1, BuildTimeoutSecs: 30,
	}

	database := db.New(filepath.Join(root, "installed.tsv"), pklog.NoOpLogger{})

	runner := buildrunner.New(cfg, pklog.NoOpLogger{})
	runner.DestRoot = filepath.Join(root, "destroot")
	runner.Fetch = func(ctx context.Context, url, destination string, timeout time.Duration, logger pklog.LibraryLogger) error {
		return os.WriteFile(destination, []byte("archive"), 0644)
	}
	runner.Extract = func(ctx context.Context, archive, targetDir string, buildTimeout time.Duration) error {
		if err := os.MkdirAll(targetDir, 0755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(targetDir, "installed-file"), []byte("payload"), 0644)
	}

	return New(cfg, &fixtureLoader{defs: defs}, resolver, runner, database, nil, pklog.NoOpLogger{}, nil)
}

func TestInstall_LinearChain(t *testing.T) {
	defs := map[string]*definition.PackageDefinition{
		"A": def("A", "1.0.0", "B"),
		"B": def("B", "1.0.0", "C"),
		"C": def("C", "1.0.0"),
	}
	orders := map[string][]string{
		"A": {"C", "B", "A"},
		"B": {"C", "B"},
	}
	o := newTestOrchestrator(t, defs, orders)

	if err := o.Install(context.Background(), "A", false); err != nil {
		t.Fatalf("Install: %v", err)
	}

	for _, name := range []string{"A", "B", "C"} {
		entry, err := o.DB.Find(name)
		if err != nil {
			t.Fatalf("Find(%s): %v", name, err)
		}
		if entry == nil || entry.State != db.StateInstalled {
			t.Errorf("entry for %s = %+v, want state installed", name, entry)
		}
	}
}

func TestInstall_AlreadyInstalledNoForceIsNoOp(t *testing.T) {
	defs := map[string]*definition.PackageDefinition{"Q": def("Q", "1.2.3")}
	o := newTestOrchestrator(t, defs, nil)

	if err := o.Install(context.Background(), "Q", false); err != nil {
		t.Fatalf("first Install: %v", err)
	}
	first, _ := o.DB.Find("Q")

	if err := o.Install(context.Background(), "Q", false); err != nil {
		t.Fatalf("second Install: %v", err)
	}
	second, _ := o.DB.Find("Q")

	if first.InstalledAt != second.InstalledAt {
		t.Errorf("InstalledAt changed on no-op reinstall: %d -> %d", first.InstalledAt, second.InstalledAt)
	}
}

func TestInstall_ConflictBlocksInstall(t *testing.T) {
	defs := map[string]*definition.PackageDefinition{
		"vim": def("vim", "1.0.0"),
		"nvi": def("nvi", "1.0.0"),
	}
	defs["nvi"].Conflicts = []string{"vim"}
	o := newTestOrchestrator(t, defs, nil)

	if err := o.Install(context.Background(), "vim", false); err != nil {
		t.Fatalf("Install vim: %v", err)
	}
	err := o.Install(context.Background(), "nvi", false)
	if err == nil {
		t.Fatal("expected ConflictError installing nvi over vim")
	}
	if _, ok := err.(*ConflictError); !ok {
		t.Errorf("expected *ConflictError, got %T", err)
	}
}

func TestRemove_BlockedByDependents(t *testing.T) {
	defs := map[string]*definition.PackageDefinition{
		"A": def("A", "1.0.0", "B"),
		"B": def("B", "1.0.0"),
	}
	orders := map[string][]string{"A": {"B", "A"}}
	o := newTestOrchestrator(t, defs, orders)

	if err := o.Install(context.Background(), "A", false); err != nil {
		t.Fatalf("Install: %v", err)
	}

	err := o.Remove(context.Background(), "B", false)
	if err == nil {
		t.Fatal("expected DependencyError removing B while A depends on it")
	}
	if _, ok := err.(*DependencyError); !ok {
		t.Errorf("expected *DependencyError, got %T", err)
	}

	if err := o.Remove(context.Background(), "B", true); err != nil {
		t.Fatalf("forced Remove: %v", err)
	}
	entry, _ := o.DB.Find("B")
	if entry != nil {
		t.Errorf("expected B absent after forced remove, got %+v", entry)
	}
}

func TestRemove_NotInstalledIsNoOp(t *testing.T) {
	o := newTestOrchestrator(t, map[string]*definition.PackageDefinition{}, nil)
	if err := o.Remove(context.Background(), "ghost", false); err != nil {
		t.Fatalf("Remove of absent package should be a no-op, got: %v", err)
	}
}

func TestUpdate_NoOpWhenCatalogNotNewer(t *testing.T) {
	defs := map[string]*definition.PackageDefinition{"Q": def("Q", "1.2.3")}
	o := newTestOrchestrator(t, defs, nil)

	if err := o.Install(context.Background(), "Q", false); err != nil {
		t.Fatalf("Install: %v", err)
	}
	before, _ := o.DB.Find("Q")

	if err := o.Update(context.Background(), "Q", false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	after, _ := o.DB.Find("Q")

	if before.InstalledAt != after.InstalledAt {
		t.Error("Update changed InstalledAt despite catalog version not being newer")
	}
}

func TestUpdate_InstallsWhenNotPresent(t *testing.T) {
	defs := map[string]*definition.PackageDefinition{"Q": def("Q", "1.0.0")}
	o := newTestOrchestrator(t, defs, nil)

	if err := o.Update(context.Background(), "Q", false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	entry, _ := o.DB.Find("Q")
	if entry == nil || entry.State != db.StateInstalled {
		t.Errorf("entry = %+v, want installed", entry)
	}
}

func TestInstall_CycleLeavesDatabaseUnchanged(t *testing.T) {
	defs := map[string]*definition.PackageDefinition{
		"A": def("A", "1.0.0", "B"),
		"B": def("B", "1.0.0", "A"),
	}
	res := &fixtureResolver{
		errs: map[string]error{"A": &resolver.CycleError{TotalPackages: 2, OrderedPackages: 0, Remaining: []string{"A", "B"}}},
	}
	o := newTestOrchestratorWithResolver(t, defs, res)

	err := o.Install(context.Background(), "A", false)
	if err == nil {
		t.Fatal("expected a cycle error installing A")
	}
	if _, ok := err.(*resolver.CycleError); !ok {
		t.Errorf("expected *resolver.CycleError, got %T", err)
	}

	entry, findErr := o.DB.Find("A")
	if findErr != nil {
		t.Fatalf("Find: %v", findErr)
	}
	if entry != nil {
		t.Errorf("Database has an entry for A after a cycle error: %+v", entry)
	}
}

func TestUpdateAll_AggregatesResults(t *testing.T) {
	defs := map[string]*definition.PackageDefinition{
		"A": def("A", "1.0.0"),
		"B": def("B", "1.0.0"),
	}
	o := newTestOrchestrator(t, defs, nil)

	for name := range defs {
		if err := o.Install(context.Background(), name, false); err != nil {
			t.Fatalf("Install(%s): %v", name, err)
		}
	}

	result, err := o.UpdateAll(context.Background())
	if err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	if result.Attempted != 2 || result.Succeeded != 2 || result.Failed != 0 {
		t.Errorf("result = %+v, want 2/2/0", result)
	}
}
