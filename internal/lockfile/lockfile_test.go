package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	content, err := os.ReadFile(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	if want := fmt.Sprintf("pid=%d\n", os.Getpid()); string(content) != want {
		t.Errorf("Lock file content mismatch. Expected: %q, Got: %q", want, string(content))
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()

	lock1, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(dir)
	if err == nil {
		lock2.Release()
		t.Fatal("Second lock acquisition should have failed")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected LockError, got: %T", err)
	}
	if want := fmt.Sprintf("PID %d (running)", os.Getpid()); lockErr.Holder != want {
		t.Errorf("Expected holder %q, got %q", want, lockErr.Holder)
	}
	if !strings.Contains(err.Error(), "Another WinBackBot instance is already running") {
		t.Errorf("Error message should mention another instance running: %s", err.Error())
	}

	// The failed attempt must not have erased the holder's pid.
	content, _ := os.ReadFile(filepath.Join(dir, LockFileName))
	if parsePID(string(content)) != os.Getpid() {
		t.Errorf("Lock file lost holder pid: %q", content)
	}
}

func TestLockRelease(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Failed to release lock: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("Lock file should be removed after release: %s", lockPath)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Multiple releases should be safe: %v", err)
	}

	relock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Lock should be acquirable after release: %v", err)
	}
	relock.Release()
}

func TestParsePID(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"pid=1234\n", 1234},
		{"  pid=42  \n", 42},
		{"", 0},
		{"pid=abc\n", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := parsePID(tt.content); got != tt.want {
			t.Errorf("parsePID(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}

func TestDescribeHolder_Stale(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	// PIDs near the 32-bit limit are not allocated on default kernels.
	if err := os.WriteFile(path, []byte("pid=2147483646\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := describeHolder(path); !strings.Contains(got, "stale lock") {
		t.Errorf("expected stale lock description, got %q", got)
	}
}
