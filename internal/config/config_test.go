package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
		},
		Capture: CaptureConfig{
			Formats: []string{"audio/webm", "audio/wav"},
		},
		Storage: StorageConfig{
			Path: "./data/annotations.sqlite",
		},
		Transcription: TranscriptionConfig{
			Endpoint:      "http://localhost:9000/transcribe",
			APIKey:        "test-key",
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 4,
			Language:      "english",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name: "invalid http port",
			mutate: func(c *Config) {
				c.HTTP.Port = 70000
			},
			expectError: true,
			errorMsg:    "port must be between",
		},
		{
			name: "empty http address",
			mutate: func(c *Config) {
				c.HTTP.Address = ""
			},
			expectError: true,
			errorMsg:    "address cannot be empty",
		},
		{
			name: "unknown capture format",
			mutate: func(c *Config) {
				c.Capture.Formats = []string{"audio/flac"}
			},
			expectError: true,
			errorMsg:    "unknown capture format",
		},
		{
			name: "empty transcription endpoint",
			mutate: func(c *Config) {
				c.Transcription.Endpoint = ""
			},
			expectError: true,
			errorMsg:    "endpoint cannot be empty",
		},
		{
			name: "negative retries",
			mutate: func(c *Config) {
				c.Transcription.MaxRetries = -1
			},
			expectError: true,
			errorMsg:    "max_retries cannot be negative",
		},
		{
			name: "zero concurrency",
			mutate: func(c *Config) {
				c.Transcription.MaxConcurrent = 0
			},
			expectError: true,
			errorMsg:    "max_concurrent must be at least 1",
		},
		{
			name: "invalid log level",
			mutate: func(c *Config) {
				c.Logging.Level = "trace"
			},
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	configYAML := `
http:
  port: 8181
  address: "127.0.0.1"
capture:
  formats:
    - audio/wav
storage:
  path: "./annotations.sqlite"
transcription:
  endpoint: "http://localhost:9000/transcribe"
  timeout: 15
  max_retries: 2
  max_concurrent: 2
  language: "english"
logging:
  level: debug
  format: text
  output: stderr
`

	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.HTTP.Port != 8181 {
		t.Errorf("Expected port 8181, got %d", config.HTTP.Port)
	}
	if len(config.Capture.Formats) != 1 || config.Capture.Formats[0] != "audio/wav" {
		t.Errorf("Expected capture formats [audio/wav], got %v", config.Capture.Formats)
	}
	if config.Storage.Path != "./annotations.sqlite" {
		t.Errorf("Expected storage path, got %s", config.Storage.Path)
	}
	if config.Transcription.Timeout != 15 {
		t.Errorf("Expected timeout 15, got %d", config.Transcription.Timeout)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", config.Logging.Level)
	}
}

func TestConfigLoadInvalid(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name       string
		configYAML string
		errorMsg   string
	}{
		{
			name:       "malformed yaml",
			configYAML: "http: [not a mapping",
			errorMsg:   "failed to parse",
		},
		{
			name: "failing validation",
			configYAML: `
http:
  port: 8080
  address: "0.0.0.0"
transcription:
  endpoint: ""
  timeout: 30
  max_concurrent: 4
logging:
  level: info
  format: json
`,
			errorMsg: "endpoint cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			_, err := Load(configPath)
			if err == nil {
				t.Fatalf("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Errorf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDefaultIsValid(t *testing.T) {
	config := Default()
	if err := config.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	transcription := TranscriptionConfig{
		Timeout: 30,
	}

	if transcription.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", transcription.GetTimeoutDuration())
	}
}
