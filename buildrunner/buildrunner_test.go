package buildrunner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"srcpkg/config"
	"srcpkg/definition"
	"srcpkg/pklog"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	sourcesDir := t.TempDir()
	destRoot := t.TempDir()

	cfg := &config.Config{SourcesPath: sourcesDir, InstallPrefix: "/usr/local", ParallelJobs: 2, BuildTimeoutSecs: 30}
	r := New(cfg, nil)
	r.DestRoot = destRoot
	r.Fetch = func(ctx context.Context, url, destination string, timeout time.Duration, logger pklog.LibraryLogger) error {
		return os.WriteFile(destination, []byte("archive"), 0644)
	}
	r.Extract = func(ctx context.Context, archive, targetDir string, buildTimeout time.Duration) error {
		return os.MkdirAll(targetDir, 0755)
	}
	return r
}

func testDef(buildSystem definition.BuildSystem) *definition.PackageDefinition {
	return &definition.PackageDefinition{
		Name:        "widget",
		Version:     "1.0.0",
		SourceURL:   "https://example.invalid/widget-1.0.0.tar.gz",
		BuildSystem: buildSystem,
		BuildCmd:    "true",
		InstallCmd:  "true",
	}
}

func TestBuildAndInstall_CustomBuildSystem(t *testing.T) {
	r := newTestRunner(t)
	def := testDef(definition.BuildCustom)
	bc := NewBuildContext(def, t.TempDir())

	if err := r.Build(context.Background(), bc); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if bc.Phase != PhaseBuilding {
		t.Errorf("Phase after Build = %s, want building (Install advances it further)", bc.Phase)
	}

	if err := r.Install(context.Background(), bc); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if bc.Phase != PhaseComplete {
		t.Errorf("Phase after Install = %s, want complete", bc.Phase)
	}
	if !r.IsRunning(def.Name) {
		t.Error("expected IsRunning true before Done")
	}
	r.Done(bc, false)
	if r.IsRunning(def.Name) {
		t.Error("expected IsRunning false after Done")
	}
}

func TestInstall_CapturesFileList(t *testing.T) {
	r := newTestRunner(t)
	def := testDef(definition.BuildCustom)
	bc := NewBuildContext(def, t.TempDir())

	// Seed install_dir before calling Install: install_cmd is "true", a
	// no-op, so whatever is already there is what Install must capture.
	if err := os.MkdirAll(bc.InstallDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bc.InstallDir, "bin-widget"), []byte("binary"), 0755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := r.register(bc); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Install(context.Background(), bc); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if len(bc.FileList) != 1 {
		t.Fatalf("FileList = %v, want 1 entry", bc.FileList)
	}

	copied := filepath.Join(r.destRoot(), "bin-widget")
	if _, err := os.Stat(copied); err != nil {
		t.Errorf("expected %s to be copied to destRoot: %v", copied, err)
	}

	// FileList must name the host path Install actually wrote, not the
	// InstallDir staging path build_dir cleanup later deletes.
	if bc.FileList[0] != copied {
		t.Errorf("FileList[0] = %s, want host path %s", bc.FileList[0], copied)
	}
	if strings.HasPrefix(bc.FileList[0], bc.InstallDir) {
		t.Errorf("FileList[0] = %s still points into InstallDir %s", bc.FileList[0], bc.InstallDir)
	}
}

func TestResourceError_AtCapacity(t *testing.T) {
	r := newTestRunner(t)
	for i := 0; i < maxInProgress; i++ {
		def := testDef(definition.BuildCustom)
		def.Name = def.Name + string(rune('a'+i))
		bc := NewBuildContext(def, t.TempDir())
		if err := r.register(bc); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}

	overflow := testDef(definition.BuildCustom)
	overflow.Name = "overflow"
	bc := NewBuildContext(overflow, t.TempDir())
	err := r.register(bc)
	if err == nil {
		t.Fatal("expected ResourceError at capacity")
	}
	if _, ok := err.(*ResourceError); !ok {
		t.Errorf("expected *ResourceError, got %T", err)
	}
}

func TestEffectiveBuildSystem_AutoDetect(t *testing.T) {
	cases := []struct {
		name   string
		file   string
		expect definition.BuildSystem
	}{
		{"cmake", "CMakeLists.txt", definition.BuildCMake},
		{"autotools", "configure", definition.BuildAutotools},
		{"make", "Makefile", definition.BuildMake},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, tc.file), []byte(""), 0644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			def := &definition.PackageDefinition{Name: "x", BuildSystem: definition.BuildAutotools}
			got := effectiveBuildSystem(def, dir)
			if got != tc.expect {
				t.Errorf("effectiveBuildSystem = %s, want %s", got, tc.expect)
			}
		})
	}

	t.Run("no probes match, defaults to autotools", func(t *testing.T) {
		def := &definition.PackageDefinition{Name: "x", BuildSystem: definition.BuildAutotools}
		got := effectiveBuildSystem(def, t.TempDir())
		if got != definition.BuildAutotools {
			t.Errorf("effectiveBuildSystem = %s, want autotools", got)
		}
	})

	t.Run("explicit build_cmd bypasses auto-detection", func(t *testing.T) {
		dir := t.TempDir()
		os.WriteFile(filepath.Join(dir, "CMakeLists.txt"), []byte(""), 0644)
		def := &definition.PackageDefinition{Name: "x", BuildSystem: definition.BuildAutotools, BuildCmd: "./build.sh"}
		got := effectiveBuildSystem(def, dir)
		if got != definition.BuildAutotools {
			t.Errorf("effectiveBuildSystem = %s, want autotools (build_cmd set)", got)
		}
	})
}

func TestNewBuildContext_Layout(t *testing.T) {
	def := &definition.PackageDefinition{Name: "widget", Version: "2.0.0"}
	root := t.TempDir()
	bc := NewBuildContext(def, root)

	if filepath.Dir(bc.SourceDir) != bc.BuildDir {
		t.Errorf("SourceDir %s not under BuildDir %s", bc.SourceDir, bc.BuildDir)
	}
	if filepath.Dir(bc.InstallDir) != bc.BuildDir {
		t.Errorf("InstallDir %s not under BuildDir %s", bc.InstallDir, bc.BuildDir)
	}
	if filepath.Dir(bc.BuildDir) != root {
		t.Errorf("BuildDir %s not under root %s", bc.BuildDir, root)
	}
	if bc.Phase != PhaseInit {
		t.Errorf("Phase = %s, want init", bc.Phase)
	}
}
