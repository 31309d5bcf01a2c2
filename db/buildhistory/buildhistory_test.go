package buildhistory

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "builds.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndGetRecord(t *testing.T) {
	db := setupTestDB(t)
	rec := &BuildRecord{UUID: "u1", Name: "vim", Version: "9.0.1", Status: "running", StartedAt: time.Now()}

	if err := db.SaveRecord(rec); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	got, err := db.GetRecord("u1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.Name != "vim" || got.Status != "running" {
		t.Errorf("got %+v, want name=vim status=running", got)
	}
}

func TestGetRecordMissing(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetRecord("nope")
	if err == nil {
		t.Fatal("expected error for missing record")
	}
}

func TestUpdateRecordStatus(t *testing.T) {
	db := setupTestDB(t)
	rec := &BuildRecord{UUID: "u2", Name: "zsh", Version: "5.9", Status: "running", StartedAt: time.Now()}
	if err := db.SaveRecord(rec); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	end := time.Now()
	if err := db.UpdateRecordStatus("u2", "success", end); err != nil {
		t.Fatalf("UpdateRecordStatus: %v", err)
	}
	got, err := db.GetRecord("u2")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.Status != "success" {
		t.Errorf("status = %s, want success", got.Status)
	}
}

func TestLatestFor(t *testing.T) {
	db := setupTestDB(t)
	rec := &BuildRecord{UUID: "u3", Name: "tmux", Version: "3.4", Status: "success", StartedAt: time.Now()}
	if err := db.SaveRecord(rec); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	if err := db.RecordCompletion("tmux", "3.4", "u3"); err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}

	got, err := db.LatestFor("tmux", "3.4")
	if err != nil {
		t.Fatalf("LatestFor: %v", err)
	}
	if got == nil || got.UUID != "u3" {
		t.Fatalf("LatestFor = %+v, want u3", got)
	}

	none, err := db.LatestFor("tmux", "3.5")
	if err != nil {
		t.Fatalf("LatestFor: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for unrecorded version, got %+v", none)
	}
}

func TestCRCRoundTripAndNeedsVerification(t *testing.T) {
	db := setupTestDB(t)

	if _, exists, err := db.GetCRC("htop"); err != nil || exists {
		t.Fatalf("GetCRC on empty index = (_, %v, %v), want (_, false, nil)", exists, err)
	}

	needs, err := db.NeedsVerification("htop", 0xdeadbeef)
	if err != nil {
		t.Fatalf("NeedsVerification: %v", err)
	}
	if !needs {
		t.Error("expected NeedsVerification true when no CRC is recorded yet")
	}

	if err := db.UpdateCRC("htop", 0xdeadbeef); err != nil {
		t.Fatalf("UpdateCRC: %v", err)
	}

	needs, err = db.NeedsVerification("htop", 0xdeadbeef)
	if err != nil {
		t.Fatalf("NeedsVerification: %v", err)
	}
	if needs {
		t.Error("expected NeedsVerification false when CRC matches")
	}

	needs, err = db.NeedsVerification("htop", 0x1)
	if err != nil {
		t.Fatalf("NeedsVerification: %v", err)
	}
	if !needs {
		t.Error("expected NeedsVerification true on CRC mismatch")
	}
}

func TestActiveRecord(t *testing.T) {
	db := setupTestDB(t)

	none, err := db.ActiveRecord()
	if err != nil {
		t.Fatalf("ActiveRecord on empty db: %v", err)
	}
	if none != nil {
		t.Fatalf("ActiveRecord = %+v, want nil", none)
	}

	older := &BuildRecord{UUID: "u4", Name: "emacs", Version: "29.1", Status: "running", StartedAt: time.Now()}
	if err := db.SaveRecord(older); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	newer := &BuildRecord{UUID: "u5", Name: "vim", Version: "9.1", Status: "running", StartedAt: time.Now().Add(time.Second)}
	if err := db.SaveRecord(newer); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	done := &BuildRecord{UUID: "u6", Name: "zsh", Version: "5.9", Status: "success", StartedAt: time.Now().Add(2 * time.Second)}
	if err := db.SaveRecord(done); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}

	active, err := db.ActiveRecord()
	if err != nil {
		t.Fatalf("ActiveRecord: %v", err)
	}
	if active == nil || active.UUID != "u5" {
		t.Fatalf("ActiveRecord = %+v, want u5 (most recent running)", active)
	}
}

func TestComputeFileListCRC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bin", "htop")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("binary contents"), 0755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	crc1, err := ComputeFileListCRC([]string{path})
	if err != nil {
		t.Fatalf("ComputeFileListCRC: %v", err)
	}

	if err := os.WriteFile(path, []byte("binary contents, but longer now"), 0755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	crc2, err := ComputeFileListCRC([]string{path})
	if err != nil {
		t.Fatalf("ComputeFileListCRC: %v", err)
	}
	if crc1 == crc2 {
		t.Error("expected CRC to change after file size changed")
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	crc3, err := ComputeFileListCRC([]string{path})
	if err != nil {
		t.Fatalf("ComputeFileListCRC on missing file: %v", err)
	}
	if crc3 == crc2 {
		t.Error("expected CRC to change after file went missing")
	}
}
