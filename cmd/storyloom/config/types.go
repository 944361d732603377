// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
)

// StoryloomConfig is the on-disk CLI configuration, stored at
// ~/.storyloom/config.yaml and created with defaults on first run.
type StoryloomConfig struct {
	// Server configures the editor HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Storage locates the embedded project database.
	Storage StorageConfig `yaml:"storage"`

	// Assets points at the reusable media library. Empty disables it.
	Assets AssetsConfig `yaml:"assets"`

	// Generation configures the external generation services.
	Generation GenerationConfig `yaml:"generation"`

	// History configures the optional InfluxDB generation log.
	History HistoryConfig `yaml:"history"`

	// Telemetry selects trace and metric exporters.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Logging configures the service logger.
	Logging LoggingConfig `yaml:"logging"`

	// Export configures snapshot export to cloud storage.
	Export ExportConfig `yaml:"export"`
}

type ServerConfig struct {
	Host string `yaml:"host"` // e.g. 127.0.0.1
	Port int    `yaml:"port"` // e.g. 12310
}

type StorageConfig struct {
	// DataDir is the BadgerDB directory for projects and workflows.
	DataDir string `yaml:"data_dir"`
}

type AssetsConfig struct {
	// Dir is watched for reusable images and video clips.
	Dir string `yaml:"dir,omitempty"`
}

type GenerationConfig struct {
	// OpenAIKeyEnv names the environment variable holding the API key;
	// the key itself never lives in this file.
	OpenAIKeyEnv string `yaml:"openai_key_env"`

	// OpenAIKeyFile is the container-secret fallback path.
	OpenAIKeyFile string `yaml:"openai_key_file"`

	// OpenAIBaseURL overrides the API endpoint for compatible servers.
	OpenAIBaseURL string `yaml:"openai_base_url,omitempty"`

	// ImageModel and VisionModel select the generation models.
	ImageModel  string `yaml:"image_model,omitempty"`
	VisionModel string `yaml:"vision_model,omitempty"`

	// ImageSize is the requested output size, e.g. "1024x1024".
	ImageSize string `yaml:"image_size,omitempty"`

	// ImageToImageURL and ImageToVideoURL are JSON generation endpoints
	// for the kinds the OpenAI API does not serve. Empty disables the
	// kind.
	ImageToImageURL string `yaml:"image_to_image_url,omitempty"`
	ImageToVideoURL string `yaml:"image_to_video_url,omitempty"`

	// MaxConcurrent caps in-flight generations per open project.
	MaxConcurrent int `yaml:"max_concurrent"`

	// PerSecond and Burst shape the dispatch rate limiter.
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`

	// TimeoutSeconds bounds one generation end to end.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type HistoryConfig struct {
	URL    string `yaml:"url,omitempty"` // empty disables history
	Token  string `yaml:"token,omitempty"`
	Org    string `yaml:"org,omitempty"`
	Bucket string `yaml:"bucket,omitempty"`
}

type TelemetryConfig struct {
	// TraceExporter is "otlp", "stdout", or "none".
	TraceExporter string `yaml:"trace_exporter"`

	// MetricExporter is "prometheus", "stdout", or "none".
	MetricExporter string `yaml:"metric_exporter"`

	// OTLPEndpoint receives traces when the otlp exporter is active.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Dir enables JSON file logging alongside stderr when set.
	Dir string `yaml:"dir,omitempty"`
}

type ExportConfig struct {
	// Bucket is the GCS bucket receiving snapshot exports.
	Bucket string `yaml:"bucket,omitempty"`

	// CredentialsFile is the service-account key path.
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() StoryloomConfig {
	home, _ := os.UserHomeDir()
	return StoryloomConfig{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 12310,
		},
		Storage: StorageConfig{
			DataDir: filepath.Join(home, ".storyloom", "data"),
		},
		Generation: GenerationConfig{
			OpenAIKeyEnv:   "STORYLOOM_OPENAI_API_KEY",
			OpenAIKeyFile:  "/run/secrets/openai_api_key",
			MaxConcurrent:  4,
			PerSecond:      1,
			Burst:          4,
			TimeoutSeconds: 300,
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(home, ".storyloom", "logs"),
		},
	}
}
