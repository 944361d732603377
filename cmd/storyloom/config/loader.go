// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the CLI configuration from
// ~/.storyloom/config.yaml, creating it with defaults on first run.
// STORYLOOM_* environment variables override file values for container
// deployments where editing a home-directory file is awkward.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global StoryloomConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

func loadInternal() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not find the user's home directory: %w", err)
	}
	configPath := filepath.Join(home, ".storyloom", "config.yaml")
	// create it if it doesn't exist
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf("First run detected, creating the config at %s\n", configPath)
		if err := createDefault(configPath); err != nil {
			return err
		}
	}
	// read the file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read the config file: %w", err)
	}
	// parse over the defaults so a sparse file keeps sane values
	Global = DefaultConfig()
	if err = yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to parse the config into the Global singleton: %w", err)
	}
	applyEnvOverrides(&Global)
	return nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	defaultCfg := DefaultConfig()
	data, err := yaml.Marshal(defaultCfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides lets container deployments steer the service
// without touching the config file. Only the knobs that differ per
// deployment get an override; model choices stay file-only.
func applyEnvOverrides(cfg *StoryloomConfig) {
	cfg.Server.Host = getEnvString("STORYLOOM_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("STORYLOOM_PORT", cfg.Server.Port)
	cfg.Storage.DataDir = getEnvString("STORYLOOM_DATA_DIR", cfg.Storage.DataDir)
	cfg.Assets.Dir = getEnvString("STORYLOOM_ASSETS_DIR", cfg.Assets.Dir)
	cfg.Generation.OpenAIBaseURL = getEnvString("STORYLOOM_OPENAI_BASE_URL", cfg.Generation.OpenAIBaseURL)
	cfg.Generation.ImageToImageURL = getEnvString("STORYLOOM_IMAGE_TO_IMAGE_URL", cfg.Generation.ImageToImageURL)
	cfg.Generation.ImageToVideoURL = getEnvString("STORYLOOM_IMAGE_TO_VIDEO_URL", cfg.Generation.ImageToVideoURL)
	cfg.History.URL = getEnvString("STORYLOOM_INFLUX_URL", cfg.History.URL)
	cfg.History.Token = getEnvString("STORYLOOM_INFLUX_TOKEN", cfg.History.Token)
	cfg.History.Org = getEnvString("STORYLOOM_INFLUX_ORG", cfg.History.Org)
	cfg.History.Bucket = getEnvString("STORYLOOM_INFLUX_BUCKET", cfg.History.Bucket)
	cfg.Telemetry.TraceExporter = getEnvString("STORYLOOM_TRACE_EXPORTER", cfg.Telemetry.TraceExporter)
	cfg.Telemetry.MetricExporter = getEnvString("STORYLOOM_METRIC_EXPORTER", cfg.Telemetry.MetricExporter)
	cfg.Telemetry.OTLPEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Logging.Level = getEnvString("STORYLOOM_LOG_LEVEL", cfg.Logging.Level)
	cfg.Export.Bucket = getEnvString("STORYLOOM_EXPORT_BUCKET", cfg.Export.Bucket)
	cfg.Export.CredentialsFile = getEnvString("STORYLOOM_EXPORT_CREDENTIALS", cfg.Export.CredentialsFile)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
