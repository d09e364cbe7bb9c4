package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"eagain errno", syscall.EAGAIN, true},
		{"eio errno", syscall.EIO, true},
		{"path error wrapping etimedout", &os.PathError{Op: "write", Path: "/x", Err: syscall.ETIMEDOUT}, true},
		{"link error wrapping econnreset", &os.LinkError{Op: "rename", Old: "/a", New: "/b", Err: syscall.ECONNRESET}, true},
		{"timeout message", errors.New("operation timed out"), true},
		{"connection reset message", errors.New("read: connection reset by peer"), true},
		{"broken pipe message", errors.New("write: broken pipe"), true},
		{"permission denied", os.ErrPermission, false},
		{"plain error", errors.New("something else entirely"), false},
		{"enoent", syscall.ENOENT, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetryWithBackoffSucceedsAfterTransientFailures(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

	attempts := 0
	result, err := RetryWithBackoff(cfg, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", syscall.EAGAIN
		}
		return "ok", nil
	}, "test-op")

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q", result)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryWithBackoffNonRetryableFailsImmediately(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 5, InitialWait: time.Millisecond, MaxWait: time.Millisecond}

	attempts := 0
	permanent := errors.New("corrupt header")
	_, err := RetryWithBackoff(cfg, func() (int, error) {
		attempts++
		return 0, permanent
	}, "test-op")

	if !errors.Is(err, permanent) {
		t.Errorf("expected the permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 for a non-retryable error", attempts)
	}
}

func TestRetryWithBackoffExhaustsAttempts(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond}

	attempts := 0
	_, err := RetryWithBackoff(cfg, func() (int, error) {
		attempts++
		return 0, fmt.Errorf("i/o error on block %d", attempts)
	}, "test-op")

	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetryableRename(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "src")
	dst := filepath.Join(tmpDir, "dst")
	os.WriteFile(src, []byte("payload"), 0644)

	if err := RetryableRename(src, dst, DefaultRetryConfig()); err != nil {
		t.Fatalf("RetryableRename failed: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("destination missing after rename: %v", err)
	}
	if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Error("source still present after rename")
	}
}
