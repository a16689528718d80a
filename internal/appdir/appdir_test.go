package appdir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDir_EnvOverride(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)

	want := t.TempDir()
	t.Setenv(DirEnv, want)

	got, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}
	if got != want {
		t.Errorf("Dir() = %q, want %q", got, want)
	}
}

func TestDir_Cached(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)

	first := t.TempDir()
	t.Setenv(DirEnv, first)
	if _, err := Dir(); err != nil {
		t.Fatalf("Dir() error = %v", err)
	}

	// A later env change must not affect the cached value.
	t.Setenv(DirEnv, t.TempDir())
	got, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}
	if got != first {
		t.Errorf("Dir() = %q, want cached %q", got, first)
	}
}

func TestEnsureDirAndPaths(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)

	base := filepath.Join(t.TempDir(), "nested", "specula")
	t.Setenv(DirEnv, base)

	if err := EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if _, err := os.Stat(base); err != nil {
		t.Fatalf("data directory not created: %v", err)
	}

	cfgPath, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error = %v", err)
	}
	if cfgPath != filepath.Join(base, ConfigFileName) {
		t.Errorf("ConfigPath() = %q", cfgPath)
	}

	logPath, err := LogPath()
	if err != nil {
		t.Fatalf("LogPath() error = %v", err)
	}
	if logPath != filepath.Join(base, LogFileName) {
		t.Errorf("LogPath() = %q", logPath)
	}
}
