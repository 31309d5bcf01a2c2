package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddFindAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "installed.txt")
	d := New(path, nil)

	entry := InstalledEntry{Name: "vim", Version: "9.0.1", Description: "editor", State: StateInstalled, InstalledSize: 1024}
	require.NoError(t, d.Add(entry))

	got, err := d.Find("vim")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "9.0.1", got.Version)
	require.Equal(t, StateInstalled, got.State)

	all, err := d.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "vim", all[0].Name)
}

func TestFindMissingReturnsNilNoError(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "installed.txt"), nil)
	entry, err := d.Find("ghost")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry != nil {
		t.Fatalf("Find = %+v, want nil", entry)
	}
}

func TestRemove(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "installed.txt"), nil)
	if err := d.Add(InstalledEntry{Name: "zsh", Version: "5.9", State: StateInstalled}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := d.Remove("zsh"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	entry, err := d.Find("zsh")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry != nil {
		t.Fatalf("Find after Remove = %+v, want nil", entry)
	}

	if err := d.Remove("never-existed"); err != nil {
		t.Fatalf("Remove of absent entry should not error, got: %v", err)
	}
}

func TestSetState(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "installed.txt"), nil)
	if err := d.Add(InstalledEntry{Name: "tmux", Version: "3.4", State: StateDownloading}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := d.SetState("tmux", StateInstalled); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	entry, err := d.Find("tmux")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry.State != StateInstalled {
		t.Errorf("State = %v, want installed", entry.State)
	}

	if err := d.SetState("ghost", StateInstalled); err == nil {
		t.Fatal("expected error setting state on a nonexistent entry")
	}
}

func TestPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "installed.txt")
	d1 := New(path, nil)
	if err := d1.Add(InstalledEntry{Name: "htop", Version: "3.3.0", Description: "process viewer", State: StateInstalled, InstalledSize: 2048}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	d2 := New(path, nil)
	entry, err := d2.Find("htop")
	if err != nil {
		t.Fatalf("Find after reload: %v", err)
	}
	if entry == nil || entry.InstalledSize != 2048 {
		t.Fatalf("Find after reload = %+v, want InstalledSize=2048", entry)
	}
}

func TestParseLineTolerance(t *testing.T) {
	entry, ok := parseLine("vim\t9.0.1\teditor")
	if !ok || entry.Name != "vim" || entry.Version != "9.0.1" {
		t.Fatalf("parseLine minimal = %+v, %v", entry, ok)
	}

	if _, ok := parseLine(""); ok {
		t.Error("expected empty line to be rejected")
	}
	if _, ok := parseLine("\tmissing-name\tdesc"); ok {
		t.Error("expected line with empty name field to be rejected")
	}
}
