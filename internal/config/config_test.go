package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.BufferSizeMs != 100 {
		t.Errorf("Expected buffer size 100, got %d", cfg.Audio.BufferSizeMs)
	}
	if cfg.Audio.DefaultVolume != 1.0 {
		t.Errorf("Expected default volume 1.0, got %v", cfg.Audio.DefaultVolume)
	}
	if !cfg.Behavior.RememberQueue {
		t.Error("Expected rememberQueue to default to true")
	}
	if cfg.Behavior.ResumeOnStart {
		t.Error("Expected resumeOnStart to default to false")
	}
	if cfg.MusicDir != "" {
		t.Errorf("Expected empty music dir, got %q", cfg.MusicDir)
	}
}

func TestLoadWritesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Errorf("Expected config.json to be created, got %v", err)
	}
}

func TestLoadReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	body := `{"musicDir": "/music", "audio": {"sampleRate": 48000}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	m := NewManager(dir)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	if cfg.MusicDir != "/music" {
		t.Errorf("Expected music dir /music, got %q", cfg.MusicDir)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", cfg.Audio.SampleRate)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Audio.BufferSizeMs != 100 {
		t.Errorf("Expected buffer size 100, got %d", cfg.Audio.BufferSizeMs)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	m := NewManager(dir)
	if err := m.Load(); err == nil {
		t.Error("Expected error for malformed config, got nil")
	}
}

func TestUpdatePersists(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	cfg.MusicDir = "/srv/music"
	cfg.Audio.DefaultVolume = 0.5
	cfg.Behavior.ResumeOnStart = true
	if err := m.Update(cfg); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	reloaded := NewManager(dir)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	got := reloaded.Get()
	if got.MusicDir != "/srv/music" {
		t.Errorf("Expected music dir /srv/music, got %q", got.MusicDir)
	}
	if got.Audio.DefaultVolume != 0.5 {
		t.Errorf("Expected volume 0.5, got %v", got.Audio.DefaultVolume)
	}
	if !got.Behavior.ResumeOnStart {
		t.Error("Expected resumeOnStart true after update")
	}
	// Untouched keys survive the round trip.
	if got.Audio.SampleRate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", got.Audio.SampleRate)
	}
}

func TestSetMusicDir(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := m.SetMusicDir("/home/user/music"); err != nil {
		t.Fatalf("SetMusicDir failed: %v", err)
	}
	if got := m.Get().MusicDir; got != "/home/user/music" {
		t.Errorf("Expected music dir to update, got %q", got)
	}
}
