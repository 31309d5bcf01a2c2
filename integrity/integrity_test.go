package integrity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.bin")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestVerify_MatchesEveryAlgorithm(t *testing.T) {
	path := writeTempFile(t, "hello world")

	for _, digestLen := range []int{32, 40, 64} {
		digest, err := Digest(path, digestLen)
		if err != nil {
			t.Fatalf("Digest(%d) failed: %v", digestLen, err)
		}
		if err := Verify(path, digest, nil); err != nil {
			t.Errorf("Verify with correct %d-char digest failed: %v", digestLen, err)
		}
	}
}

func TestVerify_MismatchOnFlippedNibble(t *testing.T) {
	path := writeTempFile(t, "hello world")
	digest, err := Digest(path, 64)
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}

	flipped := []byte(digest)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}

	err = Verify(path, string(flipped), nil)
	if err == nil {
		t.Fatal("expected MismatchError for flipped nibble")
	}
	if _, ok := err.(*MismatchError); !ok {
		t.Errorf("expected *MismatchError, got %T", err)
	}
}

func TestVerify_SkippedWhenNoChecksum(t *testing.T) {
	path := writeTempFile(t, "anything")
	if err := Verify(path, "", nil); err != nil {
		t.Errorf("Verify with empty digest should skip, got %v", err)
	}
}

func TestVerify_CaseInsensitive(t *testing.T) {
	path := writeTempFile(t, "case test")
	digest, err := Digest(path, 64)
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if err := Verify(path, strings.ToUpper(digest), nil); err != nil {
		t.Errorf("Verify should be case-insensitive, got %v", err)
	}
}
