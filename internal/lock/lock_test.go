package lock

import (
	"errors"
	"path/filepath"
	"testing"
)

// TestAcquireExclusive tests that a second Acquire fails until the first is released
func TestAcquireExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "factagent.lock")

	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if _, err := Acquire(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire() error = %v, want ErrLocked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	defer again.Release()
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("Release() on nil lock = %v, want nil", err)
	}
}
