// Package scanner builds the track library by walking a music directory.
// Files are probed with the codec package, so anything playable is
// scannable and nothing else is.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deifactor/deimos/internal/codec"
	"github.com/deifactor/deimos/internal/library"
)

// probeWorkers bounds how many files are opened concurrently while
// extracting durations.
const probeWorkers = 4

// ErrScanInProgress is returned when a scan is requested while another
// one is still running.
var ErrScanInProgress = errors.New("scan already in progress")

// Result summarizes one completed scan.
type Result struct {
	// Tracks holds every playable file found, ordered by path. IDs are
	// unassigned; the library fills them in when the tracks are merged.
	Tracks []library.Track

	// Skipped counts files with a supported extension that failed to
	// open.
	Skipped int

	Elapsed time.Duration
}

// Scanner walks a music directory and probes audio files. Only one scan
// runs at a time.
type Scanner struct {
	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
}

// New creates a scanner.
func New() *Scanner {
	return &Scanner{}
}

// IsRunning reports whether a scan is in progress.
func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Stop cancels any running scan.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Scan walks root and returns a track for every audio file it can open.
// Hidden directories are skipped. Unreadable files are logged and
// counted rather than failing the scan.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil, ErrScanInProgress
	}
	s.isRunning = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	start := time.Now()

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat music directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("music directory %s is not a directory", root)
	}

	paths, err := collectPaths(ctx, root)
	if err != nil {
		return nil, err
	}

	log.Printf("[SCANNER] Discovered %d audio files under %s, probing...", len(paths), root)

	tracks, skipped := probeAll(ctx, root, paths)

	sort.Slice(tracks, func(i, j int) bool {
		return tracks[i].Path < tracks[j].Path
	})

	result := &Result{
		Tracks:  tracks,
		Skipped: skipped,
		Elapsed: time.Since(start),
	}
	log.Printf("[SCANNER] Scanned %d tracks (%d skipped) in %dms",
		len(result.Tracks), result.Skipped, result.Elapsed.Milliseconds())
	return result, nil
}

// collectPaths walks the tree and gathers every file with a supported
// extension.
func collectPaths(ctx context.Context, root string) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip entries we can't access
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if codec.SupportedExtension(filepath.Ext(path)) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	return paths, nil
}

// probeAll opens files on a small worker pool and builds track records
// from what the decoders report.
func probeAll(ctx context.Context, root string, paths []string) ([]library.Track, int) {
	jobs := make(chan string, len(paths))
	results := make(chan library.Track, len(paths))
	var skipped atomic.Int64

	var wg sync.WaitGroup
	for w := 0; w < probeWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}

				track, err := probeFile(root, path)
				if err != nil {
					log.Printf("[SCANNER] Skipping %s: %v", path, err)
					skipped.Add(1)
					continue
				}
				results <- track
			}
		}()
	}

	for _, path := range paths {
		jobs <- path
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var tracks []library.Track
	for track := range results {
		tracks = append(tracks, track)
	}

	return tracks, int(skipped.Load())
}

// probeFile opens path just long enough to read its duration, then fills
// in what the file system can tell us: a track number parsed from the
// name, and artist/album from the Artist/Album/track.ext layout when the
// file sits at least two directories below the scan root.
func probeFile(root, path string) (library.Track, error) {
	dec, err := codec.Open(path)
	if err != nil {
		return library.Track{}, err
	}
	defer dec.Close()

	track := library.Track{
		Path:   path,
		Number: parseTrackNumber(filepath.Base(path)),
		Length: dec.Duration().Seconds(),
	}

	albumDir := filepath.Dir(path)
	artistDir := filepath.Dir(albumDir)
	if artistDir != root && strings.HasPrefix(artistDir, root) {
		track.Album = filepath.Base(albumDir)
		track.Artist = filepath.Base(artistDir)
	} else if albumDir != root && strings.HasPrefix(albumDir, root) {
		track.Album = filepath.Base(albumDir)
	}

	return track, nil
}

// parseTrackNumber reads a leading track number from file names like
// "07 - Title.flac" or "07. Title.flac". Returns 0 when the name has no
// such prefix.
func parseTrackNumber(name string) int {
	i := 0
	n := 0
	for i < len(name) && name[i] >= '0' && name[i] <= '9' {
		n = n*10 + int(name[i]-'0')
		i++
		if i > 3 {
			return 0
		}
	}
	if i == 0 || i >= len(name) {
		return 0
	}
	switch name[i] {
	case ' ', '.', '-', '_':
		return n
	}
	return 0
}
