package scanner

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const testRate = 8000

func writeTestWAV(t *testing.T, dir, name string, frames int) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	dataLen := frames * 2
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(testRate))
	binary.Write(&buf, binary.LittleEndian, uint32(testRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	for i := 0; i < frames; i++ {
		binary.Write(&buf, binary.LittleEndian, int16(i%2000))
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScanFindsTracks(t *testing.T) {
	root := t.TempDir()
	writeTestWAV(t, filepath.Join(root, "Artist A", "Album 1"), "01 - First.wav", 8000)
	writeTestWAV(t, filepath.Join(root, "Artist A", "Album 1"), "02 - Second.wav", 4000)
	writeTestWAV(t, root, "loose.wav", 800)

	result, err := New().Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(result.Tracks) != 3 {
		t.Fatalf("Expected 3 tracks, got %d", len(result.Tracks))
	}
	if result.Skipped != 0 {
		t.Errorf("Expected 0 skipped, got %d", result.Skipped)
	}

	// Tracks come back in path order.
	first := result.Tracks[0]
	if filepath.Base(first.Path) != "01 - First.wav" {
		t.Errorf("Expected first track to be 01 - First.wav, got %s", first.Path)
	}
	if first.Number != 1 {
		t.Errorf("Expected track number 1, got %d", first.Number)
	}
	if first.Artist != "Artist A" {
		t.Errorf("Expected artist 'Artist A', got %q", first.Artist)
	}
	if first.Album != "Album 1" {
		t.Errorf("Expected album 'Album 1', got %q", first.Album)
	}
	if first.Length != 1.0 {
		t.Errorf("Expected length 1.0s, got %v", first.Length)
	}

	loose := result.Tracks[2]
	if filepath.Base(loose.Path) != "loose.wav" {
		t.Errorf("Expected last track to be loose.wav, got %s", loose.Path)
	}
	if loose.Artist != "" || loose.Album != "" {
		t.Errorf("Expected no artist/album for root-level file, got %q/%q", loose.Artist, loose.Album)
	}
	if loose.Number != 0 {
		t.Errorf("Expected no track number, got %d", loose.Number)
	}
}

func TestScanSkipsHiddenAndUnsupported(t *testing.T) {
	root := t.TempDir()
	writeTestWAV(t, root, "keep.wav", 800)
	writeTestWAV(t, filepath.Join(root, ".stash"), "hidden.wav", 800)
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("not audio"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := New().Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(result.Tracks) != 1 {
		t.Fatalf("Expected 1 track, got %d", len(result.Tracks))
	}
	if filepath.Base(result.Tracks[0].Path) != "keep.wav" {
		t.Errorf("Expected keep.wav, got %s", result.Tracks[0].Path)
	}
}

func TestScanCountsUnreadableFiles(t *testing.T) {
	root := t.TempDir()
	writeTestWAV(t, root, "good.wav", 800)
	if err := os.WriteFile(filepath.Join(root, "broken.mp3"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := New().Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(result.Tracks) != 1 {
		t.Errorf("Expected 1 track, got %d", len(result.Tracks))
	}
	if result.Skipped != 1 {
		t.Errorf("Expected 1 skipped file, got %d", result.Skipped)
	}
}

func TestScanMissingRoot(t *testing.T) {
	_, err := New().Scan(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestScanRootIsFile(t *testing.T) {
	root := t.TempDir()
	path := writeTestWAV(t, root, "file.wav", 800)

	if _, err := New().Scan(context.Background(), path); err == nil {
		t.Error("Expected error when root is a file")
	}
}

func TestParseTrackNumber(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"01 - Title.flac", 1},
		{"07. Title.flac", 7},
		{"12_Title.ogg", 12},
		{"3 Title.mp3", 3},
		{"Title.mp3", 0},
		{"1999.mp3", 0},
		{"04.flac", 4},
		{"", 0},
	}

	for _, tt := range tests {
		if got := parseTrackNumber(tt.name); got != tt.want {
			t.Errorf("parseTrackNumber(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}
