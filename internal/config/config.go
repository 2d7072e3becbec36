// Package config provides configuration for the kirinuki agent. Values are
// layered: built-in defaults, then an optional YAML settings file, then
// environment variables. A .env.local or .env file is loaded first so API
// keys can live next to the working directory instead of the shell profile.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kirinuki/kirinuki-agent/internal/overlay"
)

const (
	// Default values
	DefaultPort      = 8765
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultDataDir   = ".kirinuki"

	// Environment variable names
	EnvPort      = "KIRINUKI_PORT"
	EnvLogLevel  = "KIRINUKI_LOG_LEVEL"
	EnvLogFormat = "KIRINUKI_LOG_FORMAT"
	EnvDataDir   = "KIRINUKI_DATA_DIR"
	EnvAPIToken  = "KIRINUKI_API_TOKEN"
	EnvSettings  = "KIRINUKI_SETTINGS"
	EnvWatchDir  = "KIRINUKI_WATCH_DIR"

	// Tool override environment variable names
	EnvYtDlp        = "KIRINUKI_YTDLP"
	EnvFFmpeg       = "KIRINUKI_FFMPEG"
	EnvFFprobe      = "KIRINUKI_FFPROBE"
	EnvWhisper      = "KIRINUKI_WHISPER"
	EnvWhisperModel = "KIRINUKI_WHISPER_MODEL"

	// EnvGroqAPIKey matches the variable name the description generator
	// has always used, so existing .env.local files keep working.
	EnvGroqAPIKey = "GROQ_API_KEY"

	// EnvLogoPath points at the branding image drawn onto title bars.
	EnvLogoPath = "KIRINUKI_LOGO_PATH"

	// Database filename
	DBFilename = "kirinuki.db"

	// Settings filename inside the data directory
	SettingsFilename = "settings.yaml"

	// Tool defaults
	DefaultWhisperModel = "large"
	DefaultSubtitleLang = "ja"
	DefaultVideoFormat  = "bestvideo[ext=webm]+bestaudio[ext=webm]/best[ext=webm]/best"

	// DefaultWatchInterval is the drop-directory poll interval in seconds.
	DefaultWatchInterval = 5
)

// Config defines the application configuration interface.
type Config interface {
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	RunsDir() string
	APIToken() string

	YtDlpPath() string
	FFmpegPath() string
	FFprobePath() string
	WhisperPath() string
	WhisperModel() string
	SubtitleLang() string
	VideoFormat() string

	GroqAPIKey() string
	DescribeModel() string
	DescribeTemplatePath() string

	Overlay() overlay.Config
	LogoPath() string

	WatchDir() string
	WatchInterval() time.Duration
}

// fileSettings mirrors the optional YAML settings file.
type fileSettings struct {
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	DataDir   string `yaml:"data_dir"`
	APIToken  string `yaml:"api_token"`

	Tools struct {
		YtDlp        string `yaml:"yt_dlp"`
		FFmpeg       string `yaml:"ffmpeg"`
		FFprobe      string `yaml:"ffprobe"`
		Whisper      string `yaml:"whisper"`
		WhisperModel string `yaml:"whisper_model"`
		SubtitleLang string `yaml:"subtitle_lang"`
		VideoFormat  string `yaml:"video_format"`
	} `yaml:"tools"`

	Describe struct {
		APIKey       string `yaml:"api_key"`
		Model        string `yaml:"model"`
		TemplatePath string `yaml:"template_path"`
	} `yaml:"describe"`

	Overlay *overlay.Config `yaml:"overlay"`

	LogoPath string `yaml:"logo_path"`

	Watch struct {
		Dir             string `yaml:"dir"`
		IntervalSeconds int    `yaml:"interval_seconds"`
	} `yaml:"watch"`
}

// FileConfig is the resolved configuration.
type FileConfig struct {
	port      int
	logLevel  string
	logFormat string
	dataDir   string
	apiToken  string

	ytDlpPath    string
	ffmpegPath   string
	ffprobePath  string
	whisperPath  string
	whisperModel string
	subtitleLang string
	videoFormat  string

	groqAPIKey       string
	describeModel    string
	describeTemplate string

	overlay  overlay.Config
	logoPath string

	watchDir      string
	watchInterval time.Duration
}

// New loads configuration from the default locations: a .env.local or .env
// file in the working directory, the settings file named by KIRINUKI_SETTINGS
// (falling back to <data dir>/settings.yaml), and KIRINUKI_* environment
// variables on top.
func New() (*FileConfig, error) {
	return Load("")
}

// Load is New with an explicit settings file path. An empty path selects
// the default locations; a missing default file is not an error, a missing
// explicit one is.
func Load(settingsPath string) (*FileConfig, error) {
	// Values already in the process environment win over .env files.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	explicit := settingsPath != ""
	if !explicit {
		settingsPath = os.Getenv(EnvSettings)
		explicit = settingsPath != ""
	}

	cfg := &FileConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		logFormat:     DefaultLogFormat,
		dataDir:       defaultDataDir(),
		whisperModel:  DefaultWhisperModel,
		subtitleLang:  DefaultSubtitleLang,
		videoFormat:   DefaultVideoFormat,
		overlay:       overlay.DefaultConfig(),
		watchInterval: DefaultWatchInterval * time.Second,
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}
	if settingsPath == "" {
		settingsPath = filepath.Join(cfg.dataDir, SettingsFilename)
	}

	if err := cfg.applySettingsFile(settingsPath, explicit); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.describeModel == "" {
		cfg.describeModel = "llama-3.3-70b-versatile"
	}
	return cfg, nil
}

func (c *FileConfig) applySettingsFile(path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("cannot read settings file: %w", err)
	}

	var fs fileSettings
	fs.Overlay = &c.overlay // merge over defaults, absent keys keep them
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return fmt.Errorf("cannot parse settings file %s: %w", path, err)
	}

	if fs.Port != 0 {
		if fs.Port < 1 || fs.Port > 65535 {
			return fmt.Errorf("settings file %s: port must be between 1 and 65535", path)
		}
		c.port = fs.Port
	}
	if fs.LogLevel != "" {
		c.logLevel = fs.LogLevel
	}
	if fs.LogFormat != "" {
		c.logFormat = fs.LogFormat
	}
	if fs.DataDir != "" && os.Getenv(EnvDataDir) == "" {
		c.dataDir = fs.DataDir
	}
	if fs.APIToken != "" {
		c.apiToken = fs.APIToken
	}

	c.ytDlpPath = fs.Tools.YtDlp
	c.ffmpegPath = fs.Tools.FFmpeg
	c.ffprobePath = fs.Tools.FFprobe
	c.whisperPath = fs.Tools.Whisper
	if fs.Tools.WhisperModel != "" {
		c.whisperModel = fs.Tools.WhisperModel
	}
	if fs.Tools.SubtitleLang != "" {
		c.subtitleLang = fs.Tools.SubtitleLang
	}
	if fs.Tools.VideoFormat != "" {
		c.videoFormat = fs.Tools.VideoFormat
	}

	c.groqAPIKey = fs.Describe.APIKey
	c.describeModel = fs.Describe.Model
	c.describeTemplate = fs.Describe.TemplatePath

	c.logoPath = fs.LogoPath

	c.watchDir = fs.Watch.Dir
	if fs.Watch.IntervalSeconds > 0 {
		c.watchInterval = time.Duration(fs.Watch.IntervalSeconds) * time.Second
	}
	return nil
}

func (c *FileConfig) applyEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		c.port = port
	}
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if lf := os.Getenv(EnvLogFormat); lf != "" {
		c.logFormat = lf
	}
	if tok := os.Getenv(EnvAPIToken); tok != "" {
		c.apiToken = tok
	}
	if wd := os.Getenv(EnvWatchDir); wd != "" {
		c.watchDir = wd
	}

	if v := os.Getenv(EnvYtDlp); v != "" {
		c.ytDlpPath = v
	}
	if v := os.Getenv(EnvFFmpeg); v != "" {
		c.ffmpegPath = v
	}
	if v := os.Getenv(EnvFFprobe); v != "" {
		c.ffprobePath = v
	}
	if v := os.Getenv(EnvWhisper); v != "" {
		c.whisperPath = v
	}
	if v := os.Getenv(EnvWhisperModel); v != "" {
		c.whisperModel = v
	}

	if key := os.Getenv(EnvGroqAPIKey); key != "" {
		c.groqAPIKey = key
	}
	if v := os.Getenv(EnvLogoPath); v != "" {
		c.logoPath = v
	}
	return nil
}

// Port returns the HTTP server port.
func (c *FileConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error).
func (c *FileConfig) LogLevel() string {
	return c.logLevel
}

// LogFormat returns the log output format (json or text).
func (c *FileConfig) LogFormat() string {
	return c.logFormat
}

// DataDir returns the data directory path.
func (c *FileConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file.
func (c *FileConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// RunsDir returns the directory that holds per-run artifact directories.
func (c *FileConfig) RunsDir() string {
	return filepath.Join(c.dataDir, "runs")
}

// APIToken returns the bearer token for the HTTP API, empty for no auth.
func (c *FileConfig) APIToken() string {
	return c.apiToken
}

func (c *FileConfig) YtDlpPath() string   { return c.ytDlpPath }
func (c *FileConfig) FFmpegPath() string  { return c.ffmpegPath }
func (c *FileConfig) FFprobePath() string { return c.ffprobePath }
func (c *FileConfig) WhisperPath() string { return c.whisperPath }

// WhisperModel returns the whisper model size used for transcription.
func (c *FileConfig) WhisperModel() string {
	return c.whisperModel
}

// SubtitleLang returns the preferred subtitle and transcription language.
func (c *FileConfig) SubtitleLang() string {
	return c.subtitleLang
}

// VideoFormat returns the yt-dlp format selector.
func (c *FileConfig) VideoFormat() string {
	return c.videoFormat
}

// GroqAPIKey returns the chat completions API key, empty when unset.
func (c *FileConfig) GroqAPIKey() string {
	return c.groqAPIKey
}

// DescribeModel returns the chat completions model name.
func (c *FileConfig) DescribeModel() string {
	return c.describeModel
}

// DescribeTemplatePath returns the description prompt template path,
// empty for the built-in template.
func (c *FileConfig) DescribeTemplatePath() string {
	return c.describeTemplate
}

// Overlay returns the comment overlay geometry and styling.
func (c *FileConfig) Overlay() overlay.Config {
	return c.overlay
}

// LogoPath returns the branding image drawn onto the title bar, empty
// for no logo.
func (c *FileConfig) LogoPath() string {
	return c.logoPath
}

// WatchDir returns the drop directory polled for definition files,
// empty when the watcher is disabled.
func (c *FileConfig) WatchDir() string {
	return c.watchDir
}

// WatchInterval returns the drop directory poll interval.
func (c *FileConfig) WatchInterval() time.Duration {
	return c.watchInterval
}

// defaultDataDir returns the default data directory path.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
