// Package config provides configuration management for the reelcut agent.
// Values come from defaults, an optional YAML file and REELCUT_* environment
// variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	// Default values
	DefaultPort     = 8787
	DefaultLogLevel = "info"
	DefaultDataDir  = ".reelcut"

	// Environment variable names
	EnvPort       = "REELCUT_PORT"
	EnvLogLevel   = "REELCUT_LOG_LEVEL"
	EnvDataDir    = "REELCUT_DATA_DIR"
	EnvConfigFile = "REELCUT_CONFIG_FILE"
	EnvHeadless   = "REELCUT_HEADLESS"

	EnvFFmpegPath  = "REELCUT_FFMPEG"
	EnvFFprobePath = "REELCUT_FFPROBE"

	EnvExportFPS      = "REELCUT_EXPORT_FPS"
	EnvConverterURL   = "REELCUT_CONVERTER_URL"
	EnvConverterToken = "REELCUT_CONVERTER_TOKEN"
	EnvConvertTimeout = "REELCUT_CONVERT_TIMEOUT"

	EnvSpeechBackend = "REELCUT_SPEECH_BACKEND"
	EnvSpeechPython  = "REELCUT_SPEECH_PYTHON"
	EnvSpeechModule  = "REELCUT_SPEECH_MODULE"
	EnvSpeechTimeout = "REELCUT_SPEECH_TIMEOUT"
	EnvGCPCreds      = "REELCUT_GCP_CREDENTIALS"
	EnvGCPLanguage   = "REELCUT_GCP_LANGUAGE"
	EnvGCPModel      = "REELCUT_GCP_MODEL"

	EnvElevenLabsKey   = "REELCUT_ELEVENLABS_API_KEY"
	EnvElevenLabsURL   = "REELCUT_ELEVENLABS_URL"
	EnvElevenLabsVoice = "REELCUT_ELEVENLABS_VOICE"

	// Database filename
	DBFilename = "reelcut.db"

	DefaultExportFPS      = 30
	DefaultConvertTimeout = 15 * time.Minute
	DefaultSpeechModule   = "reelcut_asr"
	DefaultSpeechTimeout  = 20 * time.Minute
	DefaultGCPLanguage    = "en-US"
)

// Speech backends.
const (
	SpeechDisabled   = "disabled"
	SpeechSubprocess = "subprocess"
	SpeechGCP        = "gcp"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	CacheDir() string
	Headless() bool

	FFmpegPath() string
	FFprobePath() string

	ExportFPS() float64
	ConverterURL() string
	ConverterToken() string
	ConvertTimeout() time.Duration

	SpeechBackend() string
	SpeechPython() string
	SpeechModule() string
	SpeechTimeout() time.Duration
	GCPCredentials() string
	GCPLanguage() string
	GCPModel() string

	ElevenLabsAPIKey() string
	ElevenLabsBaseURL() string
	ElevenLabsVoiceID() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	ffmpegPath  string
	ffprobePath string

	exportFPS      float64
	converterURL   string
	converterToken string
	convertTimeout time.Duration

	speechBackend string
	speechPython  string
	speechModule  string
	speechTimeout time.Duration
	gcpCreds      string
	gcpLanguage   string
	gcpModel      string

	elevenLabsKey   string
	elevenLabsURL   string
	elevenLabsVoice string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	return Load("")
}

// Load builds the configuration from defaults, the YAML file at path (when
// non-empty) and the environment, then validates the result.
func Load(path string) (*EnvConfig, error) {
	cfg := defaults()

	if path != "" {
		fc, err := readFile(path)
		if err != nil {
			return nil, err
		}
		fc.apply(cfg)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaults() *EnvConfig {
	return &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		exportFPS:      DefaultExportFPS,
		convertTimeout: DefaultConvertTimeout,
		speechBackend:  SpeechSubprocess,
		speechModule:   DefaultSpeechModule,
		speechTimeout:  DefaultSpeechTimeout,
		gcpLanguage:    DefaultGCPLanguage,
	}
}

func (c *EnvConfig) applyEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}
	if v := os.Getenv(EnvHeadless); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = b
	}
	if v := os.Getenv(EnvExportFPS); v != "" {
		fps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvExportFPS, err)
		}
		c.exportFPS = fps
	}
	if err := envDuration(EnvConvertTimeout, &c.convertTimeout); err != nil {
		return err
	}
	if err := envDuration(EnvSpeechTimeout, &c.speechTimeout); err != nil {
		return err
	}

	envString(EnvLogLevel, &c.logLevel)
	envString(EnvDataDir, &c.dataDir)
	envString(EnvFFmpegPath, &c.ffmpegPath)
	envString(EnvFFprobePath, &c.ffprobePath)
	envString(EnvConverterURL, &c.converterURL)
	envString(EnvConverterToken, &c.converterToken)
	envString(EnvSpeechBackend, &c.speechBackend)
	envString(EnvSpeechPython, &c.speechPython)
	envString(EnvSpeechModule, &c.speechModule)
	envString(EnvGCPCreds, &c.gcpCreds)
	envString(EnvGCPLanguage, &c.gcpLanguage)
	envString(EnvGCPModel, &c.gcpModel)
	envString(EnvElevenLabsKey, &c.elevenLabsKey)
	envString(EnvElevenLabsURL, &c.elevenLabsURL)
	envString(EnvElevenLabsVoice, &c.elevenLabsVoice)
	return nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

var httpURL = regexp.MustCompile(`^https?://\S+$`)

// Validate checks ranges and enumerations.
func (c *EnvConfig) Validate() error {
	return validation.Errors{
		"port":            validation.Validate(c.port, validation.Required, validation.Min(1), validation.Max(65535)),
		"log_level":       validation.Validate(c.logLevel, validation.In("debug", "info", "warn", "warning", "error")),
		"data_dir":        validation.Validate(c.dataDir, validation.Required),
		"export_fps":      validation.Validate(c.exportFPS, validation.Required, validation.Min(1.0), validation.Max(120.0)),
		"converter_url":   validation.Validate(c.converterURL, validation.Match(httpURL)),
		"convert_timeout": validation.Validate(c.convertTimeout, validation.Required, validation.Min(time.Second)),
		"speech_backend":  validation.Validate(c.speechBackend, validation.In(SpeechDisabled, SpeechSubprocess, SpeechGCP)),
		"speech_module":   validation.Validate(c.speechModule, validation.When(c.speechBackend == SpeechSubprocess, validation.Required)),
		"elevenlabs_url":  validation.Validate(c.elevenLabsURL, validation.Match(httpURL)),
	}.Filter()
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// CacheDir holds temp copies of blobs handed to ffmpeg.
func (c *EnvConfig) CacheDir() string {
	return filepath.Join(c.dataDir, "cache")
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) ExportFPS() float64 {
	return c.exportFPS
}

// ConverterURL is the remote transcoder endpoint. Empty means exports are
// converted with the local ffmpeg.
func (c *EnvConfig) ConverterURL() string {
	return c.converterURL
}

func (c *EnvConfig) ConverterToken() string {
	return c.converterToken
}

func (c *EnvConfig) ConvertTimeout() time.Duration {
	return c.convertTimeout
}

func (c *EnvConfig) SpeechBackend() string {
	return c.speechBackend
}

func (c *EnvConfig) SpeechPython() string {
	return c.speechPython
}

func (c *EnvConfig) SpeechModule() string {
	return c.speechModule
}

func (c *EnvConfig) SpeechTimeout() time.Duration {
	return c.speechTimeout
}

// GCPCredentials is a credentials file path or inline JSON. Empty falls back
// to application default credentials.
func (c *EnvConfig) GCPCredentials() string {
	return c.gcpCreds
}

func (c *EnvConfig) GCPLanguage() string {
	return c.gcpLanguage
}

func (c *EnvConfig) GCPModel() string {
	return c.gcpModel
}

func (c *EnvConfig) ElevenLabsAPIKey() string {
	return c.elevenLabsKey
}

func (c *EnvConfig) ElevenLabsBaseURL() string {
	return c.elevenLabsURL
}

func (c *EnvConfig) ElevenLabsVoiceID() string {
	return c.elevenLabsVoice
}

// defaultDataDir returns the default data directory path
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
