package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General     GeneralSettings     `json:"general"`
	Media       MediaSettings       `json:"media"`
	Connections ConnectionSettings  `json:"connections"`
	Performance PerformanceSettings `json:"performance"`
	Sync        SyncSettings        `json:"sync"`
}

// GeneralSettings contains output locations and naming.
type GeneralSettings struct {
	MovieDirectory      string `json:"movie_directory"`
	EpisodeDirectory    string `json:"episode_directory"`
	MovieFileTemplate   string `json:"movie_file_template"`
	EpisodeFileTemplate string `json:"episode_file_template"`
	LogRetentionCount   int    `json:"log_retention_count"`
}

// File templates understood by the download service.
const (
	MovieTemplateFilename       = "filename"
	MovieTemplateDirectory      = "movie-directory"
	EpisodeTemplateSeriesSeason = "series-season"
	EpisodeTemplateSeries       = "series"
)

// MediaSettings drives media file selection when an element has several versions.
type MediaSettings struct {
	PreferredResolution string `json:"preferred_resolution"`
	PreferredVideoCodec string `json:"preferred_video_codec"`
}

// ConnectionSettings contains network connection parameters.
type ConnectionSettings struct {
	UserAgent           string `json:"user_agent"`
	ProxyURL            string `json:"proxy_url"`
	SkipTLSVerification bool   `json:"skip_tls_verification"`
}

// PerformanceSettings contains transfer tuning parameters.
type PerformanceSettings struct {
	BufferSize     int           `json:"buffer_size"`
	MaxAttempts    int           `json:"max_attempts"`
	RetryBaseDelay time.Duration `json:"retry_base_delay"`
}

// SyncSettings controls paging against the media server during library sync.
type SyncSettings struct {
	MaxBatchSize         int           `json:"max_batch_size"`
	MinPause             time.Duration `json:"min_pause"`
	MaxConcurrentWindows int           `json:"max_concurrent_windows"`
}

// SettingMeta provides metadata for a single setting (for UI rendering).
type SettingMeta struct {
	Key         string // JSON key name
	Label       string // Human-readable label
	Description string // Help text
	Type        string // "string", "int", "bool", "duration"
}

// GetSettingsMetadata returns metadata for all settings organized by category.
func GetSettingsMetadata() map[string][]SettingMeta {
	return map[string][]SettingMeta{
		"General": {
			{Key: "movie_directory", Label: "Movie Directory", Description: "Directory movies are downloaded into.", Type: "string"},
			{Key: "episode_directory", Label: "Episode Directory", Description: "Directory episodes are downloaded into.", Type: "string"},
			{Key: "movie_file_template", Label: "Movie File Template", Description: "Movie layout: filename or movie-directory.", Type: "string"},
			{Key: "episode_file_template", Label: "Episode File Template", Description: "Episode layout: series-season or series.", Type: "string"},
			{Key: "log_retention_count", Label: "Log Retention Count", Description: "Number of recent log files to keep.", Type: "int"},
		},
		"Media": {
			{Key: "preferred_resolution", Label: "Preferred Resolution", Description: "Video resolution picked when a title has several versions (e.g. 1080). Empty means first.", Type: "string"},
			{Key: "preferred_video_codec", Label: "Preferred Video Codec", Description: "Video codec picked among versions of the preferred resolution (e.g. hevc).", Type: "string"},
		},
		"Connections": {
			{Key: "user_agent", Label: "User Agent", Description: "Custom User-Agent string for HTTP requests. Leave empty for default.", Type: "string"},
			{Key: "proxy_url", Label: "Proxy URL", Description: "HTTP or SOCKS5 proxy URL (e.g. socks5://127.0.0.1:1080). Leave empty to use system default.", Type: "string"},
			{Key: "skip_tls_verification", Label: "Skip TLS Verification", Description: "Accept self-signed media server certificates.", Type: "bool"},
		},
		"Performance": {
			{Key: "buffer_size", Label: "Buffer Size", Description: "Bytes read per chunk while transferring (default 4096).", Type: "int"},
			{Key: "max_attempts", Label: "Max Attempts", Description: "Attempts per chunk read before a transfer fails, first try included.", Type: "int"},
			{Key: "retry_base_delay", Label: "Retry Base Delay", Description: "Backoff unit; attempt n waits base * 2^n (e.g. 1s).", Type: "duration"},
		},
		"Sync": {
			{Key: "max_batch_size", Label: "Max Batch Size", Description: "Items requested per library page.", Type: "int"},
			{Key: "min_pause", Label: "Min Pause", Description: "Minimum delay between page requests (e.g. 100ms).", Type: "duration"},
			{Key: "max_concurrent_windows", Label: "Max Concurrent Pages", Description: "Page requests allowed in flight at once.", Type: "int"},
		},
	}
}

// CategoryOrder returns the order of categories for display.
func CategoryOrder() []string {
	return []string{"General", "Media", "Connections", "Performance", "Sync"}
}

const (
	KB = 1024
	MB = 1024 * KB
)

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()

	return &Settings{
		General: GeneralSettings{
			MovieDirectory:      filepath.Join(homeDir, "Videos", "Movies"),
			EpisodeDirectory:    filepath.Join(homeDir, "Videos", "TV Shows"),
			MovieFileTemplate:   MovieTemplateFilename,
			EpisodeFileTemplate: EpisodeTemplateSeriesSeason,
			LogRetentionCount:   5,
		},
		Connections: ConnectionSettings{
			UserAgent: "", // Empty means use default UA
		},
		Performance: PerformanceSettings{
			BufferSize:     4 * KB,
			MaxAttempts:    5,
			RetryBaseDelay: time.Second,
		},
		Sync: SyncSettings{
			MaxBatchSize:         50,
			MinPause:             100 * time.Millisecond,
			MaxConcurrentWindows: 4,
		},
	}
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetPledoDir(), "settings.json")
}

// LoadSettings loads settings from disk. Returns defaults if file doesn't exist.
func LoadSettings() (*Settings, error) {
	return loadSettingsFrom(GetSettingsPath())
}

func loadSettingsFrom(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// Provider yields the current settings. Consumers reload on every use so
// edits to settings.json apply to the next job without a restart.
type Provider interface {
	Load() (*Settings, error)
}

// FileProvider reads settings.json from the config directory.
type FileProvider struct{}

// Load implements Provider.
func (FileProvider) Load() (*Settings, error) { return LoadSettings() }

// StaticProvider always returns the same settings.
type StaticProvider struct {
	Settings *Settings
}

// Load implements Provider.
func (p StaticProvider) Load() (*Settings, error) {
	if p.Settings == nil {
		return DefaultSettings(), nil
	}
	return p.Settings, nil
}

// RuntimeConfig carries the subset of Settings the transfer engine needs.
type RuntimeConfig struct {
	UserAgent           string
	ProxyURL            string
	SkipTLSVerification bool
	BufferSize          int
	MaxAttempts         int
	RetryBaseDelay      time.Duration
}

// ToRuntimeConfig creates a RuntimeConfig from user Settings
func (s *Settings) ToRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		UserAgent:           s.Connections.UserAgent,
		ProxyURL:            s.Connections.ProxyURL,
		SkipTLSVerification: s.Connections.SkipTLSVerification,
		BufferSize:          s.Performance.BufferSize,
		MaxAttempts:         s.Performance.MaxAttempts,
		RetryBaseDelay:      s.Performance.RetryBaseDelay,
	}
}
