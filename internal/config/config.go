// Package config handles daemon configuration: defaults, a JSON file under
// the config directory, and live reload when the file changes on disk.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the daemon configuration
type Config struct {
	// SocketPath overrides the default IPC socket location when set
	SocketPath string `mapstructure:"socketPath" json:"socketPath"`

	// MusicDir is the directory scanned into the track library
	MusicDir string `mapstructure:"musicDir" json:"musicDir"`

	// DataDir is where to store data files (library, queue state)
	DataDir string `mapstructure:"dataDir" json:"dataDir"`

	Audio    AudioConfig    `mapstructure:"audio" json:"audio"`
	Behavior BehaviorConfig `mapstructure:"behavior" json:"behavior"`
}

// AudioConfig contains audio-related settings
type AudioConfig struct {
	// SampleRate for the output device (default: 44100)
	SampleRate int `mapstructure:"sampleRate" json:"sampleRate"`

	// BufferSizeMs is how much decoded audio to hold ahead of the device
	// (default: 100)
	BufferSizeMs int `mapstructure:"bufferSizeMs" json:"bufferSizeMs"`

	// DefaultVolume is the startup volume, 0.0 - 1.0 (default: 1.0)
	DefaultVolume float64 `mapstructure:"defaultVolume" json:"defaultVolume"`
}

// BehaviorConfig contains behavior-related settings
type BehaviorConfig struct {
	// RememberQueue persists the queue across restarts
	RememberQueue bool `mapstructure:"rememberQueue" json:"rememberQueue"`

	// ResumeOnStart reloads the previously selected track, paused, when the
	// daemon starts
	ResumeOnStart bool `mapstructure:"resumeOnStart" json:"resumeOnStart"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:    44100,
			BufferSizeMs:  100,
			DefaultVolume: 1.0,
		},
		Behavior: BehaviorConfig{
			RememberQueue: true,
			ResumeOnStart: false,
		},
	}
}

// Manager loads, saves, and watches the configuration file.
type Manager struct {
	v         *viper.Viper
	configDir string

	mu       sync.RWMutex
	config   *Config
	onChange func(Config)
}

// NewManager creates a configuration manager rooted at configDir.
func NewManager(configDir string) *Manager {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(configDir)

	m := &Manager{
		v:         v,
		configDir: configDir,
		config:    DefaultConfig(),
	}

	m.v.SetDefault("socketPath", "")
	m.v.SetDefault("musicDir", "")
	m.v.SetDefault("dataDir", filepath.Join(configDir, "data"))
	m.v.SetDefault("audio.sampleRate", 44100)
	m.v.SetDefault("audio.bufferSizeMs", 100)
	m.v.SetDefault("audio.defaultVolume", 1.0)
	m.v.SetDefault("behavior.rememberQueue", true)
	m.v.SetDefault("behavior.resumeOnStart", false)

	return m
}

// Load reads the configuration from disk, writing the defaults out on first
// run so users have a file to edit.
func (m *Manager) Load() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		if err := m.v.SafeWriteConfigAs(m.ConfigPath()); err != nil {
			return fmt.Errorf("failed to write default config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := m.v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Watch begins watching the config file; onChange runs with the freshly
// parsed configuration after every edit that parses cleanly.
func (m *Manager) Watch(onChange func(Config)) {
	m.mu.Lock()
	m.onChange = onChange
	m.mu.Unlock()

	m.v.OnConfigChange(func(e fsnotify.Event) {
		cfg := DefaultConfig()
		if err := m.v.Unmarshal(cfg); err != nil {
			log.Printf("[CONFIG] Ignoring reload, parse failed: %v", err)
			return
		}

		m.mu.Lock()
		m.config = cfg
		cb := m.onChange
		m.mu.Unlock()

		log.Printf("[CONFIG] Reloaded %s", e.Name)
		if cb != nil {
			cb(*cfg)
		}
	})
	m.v.WatchConfig()
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.config
}

// ConfigPath returns the config file path.
func (m *Manager) ConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Update replaces the configuration and saves it.
func (m *Manager) Update(cfg Config) error {
	m.v.Set("socketPath", cfg.SocketPath)
	m.v.Set("musicDir", cfg.MusicDir)
	m.v.Set("dataDir", cfg.DataDir)
	m.v.Set("audio.sampleRate", cfg.Audio.SampleRate)
	m.v.Set("audio.bufferSizeMs", cfg.Audio.BufferSizeMs)
	m.v.Set("audio.defaultVolume", cfg.Audio.DefaultVolume)
	m.v.Set("behavior.rememberQueue", cfg.Behavior.RememberQueue)
	m.v.Set("behavior.resumeOnStart", cfg.Behavior.ResumeOnStart)

	m.mu.Lock()
	c := cfg
	m.config = &c
	m.mu.Unlock()

	return m.Save()
}

// Save writes the configuration to disk.
func (m *Manager) Save() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := m.v.WriteConfigAs(m.ConfigPath()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SetMusicDir updates the music directory and saves.
func (m *Manager) SetMusicDir(dir string) error {
	cfg := m.Get()
	cfg.MusicDir = dir
	return m.Update(cfg)
}
