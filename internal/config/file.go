package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML layout. Unset keys keep their defaults.
type fileConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`
	Headless *bool  `yaml:"headless"`

	FFmpeg struct {
		Path        string `yaml:"path"`
		FFprobePath string `yaml:"ffprobe_path"`
	} `yaml:"ffmpeg"`

	Export struct {
		FPS            float64       `yaml:"fps"`
		ConverterURL   string        `yaml:"converter_url"`
		ConverterToken string        `yaml:"converter_token"`
		ConvertTimeout time.Duration `yaml:"convert_timeout"`
	} `yaml:"export"`

	Speech struct {
		Backend string        `yaml:"backend"`
		Python  string        `yaml:"python"`
		Module  string        `yaml:"module"`
		Timeout time.Duration `yaml:"timeout"`
		GCP     struct {
			Credentials string `yaml:"credentials"`
			Language    string `yaml:"language"`
			Model       string `yaml:"model"`
		} `yaml:"gcp"`
	} `yaml:"speech"`

	ElevenLabs struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		VoiceID string `yaml:"voice_id"`
	} `yaml:"elevenlabs"`
}

// readFile parses a YAML config file after expanding ${VAR} references.
func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &fc, nil
}

func (fc *fileConfig) apply(c *EnvConfig) {
	if fc.Port != 0 {
		c.port = fc.Port
	}
	if fc.Headless != nil {
		c.headless = *fc.Headless
	}
	if fc.Export.FPS != 0 {
		c.exportFPS = fc.Export.FPS
	}
	if fc.Export.ConvertTimeout != 0 {
		c.convertTimeout = fc.Export.ConvertTimeout
	}
	if fc.Speech.Timeout != 0 {
		c.speechTimeout = fc.Speech.Timeout
	}

	setString(&c.logLevel, fc.LogLevel)
	setString(&c.dataDir, fc.DataDir)
	setString(&c.ffmpegPath, fc.FFmpeg.Path)
	setString(&c.ffprobePath, fc.FFmpeg.FFprobePath)
	setString(&c.converterURL, fc.Export.ConverterURL)
	setString(&c.converterToken, fc.Export.ConverterToken)
	setString(&c.speechBackend, fc.Speech.Backend)
	setString(&c.speechPython, fc.Speech.Python)
	setString(&c.speechModule, fc.Speech.Module)
	setString(&c.gcpCreds, fc.Speech.GCP.Credentials)
	setString(&c.gcpLanguage, fc.Speech.GCP.Language)
	setString(&c.gcpModel, fc.Speech.GCP.Model)
	setString(&c.elevenLabsKey, fc.ElevenLabs.APIKey)
	setString(&c.elevenLabsURL, fc.ElevenLabs.BaseURL)
	setString(&c.elevenLabsVoice, fc.ElevenLabs.VoiceID)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
