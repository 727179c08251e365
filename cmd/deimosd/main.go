// Package main is the entry point for the deimosd daemon.
// deimosd is a headless audio playback daemon that integrates with OS media
// sessions and is driven by clients over a local IPC socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/deifactor/deimos/internal/audio"
	"github.com/deifactor/deimos/internal/auth"
	"github.com/deifactor/deimos/internal/config"
	"github.com/deifactor/deimos/internal/ipc"
	"github.com/deifactor/deimos/internal/library"
	"github.com/deifactor/deimos/internal/media"
	"github.com/deifactor/deimos/internal/queue"
	"github.com/deifactor/deimos/internal/scanner"
	"github.com/deifactor/deimos/internal/spectrum"
)

// Version is set at build time via ldflags
var Version = "dev"

// Config holds daemon configuration
type Config struct {
	SocketPath string
	ConfigDir  string
	TestMode   bool
	Verbose    bool
}

func main() {
	cfg := parseFlags()

	if cfg.Verbose {
		log.Printf("deimosd version %s starting...", Version)
	}

	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.SocketPath, "socket", "", "IPC socket path (default: auto-generated based on UID)")
	flag.StringVar(&cfg.ConfigDir, "config", "", "Configuration directory (default: ~/.config/deimosd)")
	flag.BoolVar(&cfg.TestMode, "test-mode", false, "Run in test mode (auto-approve pairing)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()

	if cfg.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		cfg.ConfigDir = homeDir + "/.config/deimosd"
	}

	return cfg
}

func run(ctx context.Context, cfg *Config) error {
	if err := os.MkdirAll(cfg.ConfigDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configMgr := config.NewManager(cfg.ConfigDir)
	if err := configMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	daemonCfg := configMgr.Get()

	// Socket path: flag, then config file, then a per-user default.
	if cfg.SocketPath == "" {
		cfg.SocketPath = daemonCfg.SocketPath
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = fmt.Sprintf("/tmp/deimosd-%d.sock", os.Getuid())
	}

	authStore, err := auth.NewStore(filepath.Join(cfg.ConfigDir, "clients.json"))
	if err != nil {
		return fmt.Errorf("failed to initialize auth store: %w", err)
	}
	authManager := auth.NewManager(authStore, cfg.TestMode)

	libraryPath := filepath.Join(daemonCfg.DataDir, "library.json")
	lib, err := library.Load(libraryPath)
	if err != nil {
		return fmt.Errorf("failed to load library: %w", err)
	}

	// First run: no library yet, build one before serving clients. Later
	// refreshes go through the rescan command.
	if lib.Len() == 0 && daemonCfg.MusicDir != "" {
		log.Printf("[SCANNER] Library is empty, scanning %s...", daemonCfg.MusicDir)
		result, err := scanner.New().Scan(ctx, daemonCfg.MusicDir)
		if err != nil {
			log.Printf("[SCANNER] Warning: initial scan failed: %v", err)
		} else {
			lib.Replace(result.Tracks)
			if err := lib.Save(libraryPath); err != nil {
				log.Printf("[LIBRARY] Warning: failed to save library: %v", err)
			}
		}
	}
	log.Printf("[LIBRARY] %d tracks loaded", lib.Len())

	// Initialize media session (platform-specific)
	mediaSession, err := media.NewSession()
	if err != nil {
		log.Printf("[MEDIA] Warning: failed to initialize media session: %v", err)
		log.Printf("[MEDIA] Continuing without OS media integration")
		mediaSession = media.NewNoOpSession()
	} else {
		log.Printf("[MEDIA] Media session initialized successfully")
	}
	defer mediaSession.Close()

	device := audio.NewOtoDevice(daemonCfg.Audio.SampleRate)
	events := make(chan audio.Event, 256)
	player := audio.NewPlayer(device, events)
	defer player.Close()
	player.SetBufferMillis(daemonCfg.Audio.BufferSizeMs)
	player.SetVolume(daemonCfg.Audio.DefaultVolume)

	// Connect media session commands to the player
	mediaSession.SetCommandHandler(player)
	player.SetMediaSession(mediaSession)

	vis := spectrum.New(daemonCfg.Audio.SampleRate)

	// The player itself never advances past a finished track; sequencing
	// lives here. Progress fragments feed the spectrum analyzer.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				switch e := ev.(type) {
				case audio.ProgressEvent:
					vis.Process(e.Buffer, e.Channels, e.SampleRate)
				case audio.FinishedEvent:
					if err := player.Next(); err != nil {
						log.Printf("[PLAYER] Advance failed: %v", err)
					}
				}
			}
		}
	}()

	var queueStore *queue.Store
	if daemonCfg.Behavior.RememberQueue {
		queueStore = queue.NewStore(daemonCfg.DataDir)

		st, err := queueStore.Load()
		if err != nil {
			log.Printf("[QUEUE] Warning: failed to load saved queue: %v", err)
		} else if st != nil && len(st.Tracks) > 0 {
			player.RestoreQueue(st)
			log.Printf("[QUEUE] Restored saved queue: %d tracks, index %d", len(st.Tracks), st.Index)

			if daemonCfg.Behavior.ResumeOnStart {
				if err := player.Play(); err != nil {
					log.Printf("[PLAYER] Warning: failed to resume playback: %v", err)
				}
			}
		}
	}

	// Buffer size is the only audio setting that can change without a
	// restart; the device rate is fixed for the life of the process.
	configMgr.Watch(func(c config.Config) {
		player.SetBufferMillis(c.Audio.BufferSizeMs)
	})

	server := ipc.NewServer(cfg.SocketPath, authManager, configMgr, player, lib, libraryPath, vis)

	log.Printf("Starting IPC server on %s", cfg.SocketPath)
	serveErr := server.Start(ctx)

	// Save queue on shutdown, clean or not
	if queueStore != nil {
		if err := queueStore.Save(player.QueueSnapshot()); err != nil {
			log.Printf("[QUEUE] Warning: failed to save queue on shutdown: %v", err)
		} else {
			log.Printf("[QUEUE] Queue saved on shutdown")
		}
	}

	if serveErr != nil {
		return fmt.Errorf("IPC server error: %w", serveErr)
	}
	return nil
}
