// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package editor assembles the workflow editor service: project CRUD,
// per-project editing sessions, generation dispatch, script import, an
// asset library, and a WebSocket event feed, served over one gin
// router.
package editor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/StoryloomAI/storyloom/pkg/logging"
	"github.com/StoryloomAI/storyloom/services/editor/assets"
	"github.com/StoryloomAI/storyloom/services/editor/autosave"
	"github.com/StoryloomAI/storyloom/services/editor/generate"
	"github.com/StoryloomAI/storyloom/services/editor/graph"
	"github.com/StoryloomAI/storyloom/services/editor/history"
	"github.com/StoryloomAI/storyloom/services/editor/lifecycle"
	"github.com/StoryloomAI/storyloom/services/editor/persist"
	"github.com/StoryloomAI/storyloom/services/editor/persist/badger"
	"github.com/StoryloomAI/storyloom/services/editor/telemetry"
)

// serviceName tags traces, meters, and the otelgin middleware.
const serviceName = "editor-service"

// ===== Service Interface =====

// Service is the editor's control surface.
//
// Description:
//
//	A Service owns every long-lived resource of one editor instance:
//	the project store, the session manager, the generator registry,
//	and the HTTP router they are wired into. Run blocks serving HTTP;
//	embedders and tests drive the Router directly and Close when done.
type Service interface {
	// Run starts the HTTP server and blocks until it exits. Resources
	// are released when Run returns.
	Run() error

	// Router exposes the configured engine for tests and embedding.
	Router() *gin.Engine

	// Close releases every resource the service holds, including
	// injected ones. Safe to call more than once.
	Close() error
}

// ===== Configuration =====

// Config carries everything the service needs to start. Zero values
// fall back to the defaults applied by applyConfigDefaults.
type Config struct {
	// Host and Port form the listen address.
	Host string
	Port int

	// GinMode is gin's run mode: debug, release, or test.
	GinMode string

	// DataDir is the BadgerDB directory. Ignored when InMemory is set.
	DataDir string

	// InMemory keeps all persistence in process memory. For tests.
	InMemory bool

	// AssetsDir, when set, is watched for reusable media and served
	// through the asset endpoint. Empty disables the asset library.
	AssetsDir string

	// AutosaveInterval and SaveTimeout tune each session's autosave
	// loop.
	AutosaveInterval time.Duration
	SaveTimeout      time.Duration

	// SessionIdleTimeout is how long an untouched session survives
	// before it is flushed and dropped.
	SessionIdleTimeout time.Duration

	// MaxGenerations caps concurrent generations per session.
	// GenerationsPerSecond and GenerationBurst shape the dispatch
	// rate. GenerationTimeout bounds one generation end to end.
	MaxGenerations       int
	GenerationsPerSecond float64
	GenerationBurst      int
	GenerationTimeout    time.Duration

	// OpenAIKeyEnv names the environment variable holding the API
	// key; OpenAIKeyFile is the container-secret fallback. The
	// OpenAI-served kinds stay unregistered when neither yields a key.
	OpenAIKeyEnv  string
	OpenAIKeyFile string
	OpenAIBaseURL string
	ImageModel    string
	VisionModel   string
	ImageSize     string

	// ImageToImageURL and ImageToVideoURL are JSON generation
	// endpoints for the kinds OpenAI does not serve. Empty leaves the
	// kind unregistered.
	ImageToImageURL string
	ImageToVideoURL string

	// History configures the InfluxDB generation log. An empty URL
	// disables it.
	History history.Config

	// Telemetry configures tracing and metrics.
	Telemetry telemetry.Config

	// Logging configures the service logger.
	Logging logging.Config
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Host:                 "127.0.0.1",
		Port:                 12310,
		GinMode:              gin.ReleaseMode,
		DataDir:              filepath.Join(home, ".storyloom", "data"),
		AutosaveInterval:     30 * time.Second,
		SaveTimeout:          10 * time.Second,
		SessionIdleTimeout:   30 * time.Minute,
		MaxGenerations:       4,
		GenerationsPerSecond: 1,
		GenerationBurst:      4,
		GenerationTimeout:    5 * time.Minute,
		OpenAIKeyEnv:         "STORYLOOM_OPENAI_API_KEY",
		OpenAIKeyFile:        "/run/secrets/openai_api_key",
		Telemetry:            telemetry.DefaultConfig(),
		Logging:              logging.Config{Service: "editor"},
	}
}

// InMemoryConfig returns a configuration for tests: in-memory
// persistence, no exporters, quiet logs.
func InMemoryConfig() Config {
	cfg := DefaultConfig()
	cfg.GinMode = gin.TestMode
	cfg.InMemory = true
	cfg.Telemetry.TraceExporter = "none"
	cfg.Telemetry.MetricExporter = "none"
	cfg.Logging.Quiet = true
	return cfg
}

// applyConfigDefaults fills zero values so partial configs work.
func applyConfigDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.GinMode == "" {
		cfg.GinMode = def.GinMode
	}
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = def.AutosaveInterval
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = def.SaveTimeout
	}
	if cfg.SessionIdleTimeout <= 0 {
		cfg.SessionIdleTimeout = def.SessionIdleTimeout
	}
	if cfg.MaxGenerations <= 0 {
		cfg.MaxGenerations = def.MaxGenerations
	}
	if cfg.GenerationsPerSecond <= 0 {
		cfg.GenerationsPerSecond = def.GenerationsPerSecond
	}
	if cfg.GenerationBurst <= 0 {
		cfg.GenerationBurst = def.GenerationBurst
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = def.GenerationTimeout
	}
	if cfg.OpenAIKeyEnv == "" {
		cfg.OpenAIKeyEnv = def.OpenAIKeyEnv
	}
	if cfg.OpenAIKeyFile == "" {
		cfg.OpenAIKeyFile = def.OpenAIKeyFile
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = serviceName
	}
	if cfg.Logging.Service == "" {
		cfg.Logging.Service = "editor"
	}
	return cfg
}

// Options injects prebuilt dependencies. Nil fields are constructed
// from the Config. Tests use this to substitute fakes.
type Options struct {
	Persist  persist.Store
	Registry *generate.Registry
	Recorder history.Recorder
	Logger   *logging.Logger
}

// ===== Service Construction =====

type service struct {
	config Config
	logger *logging.Logger
	router *gin.Engine

	store    persist.Store
	registry *generate.Registry
	recorder history.Recorder
	metrics  *telemetry.Metrics
	sessions *Manager
	assets   *assets.Watcher

	shutdownOtel func(context.Context) error
	closeOnce    sync.Once
}

// New builds a Service from the configuration, constructing whatever
// opts does not inject. A partially constructed service is cleaned up
// before the error returns.
func New(cfg Config, opts *Options) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	if opts == nil {
		opts = &Options{}
	}

	s := &service{config: cfg}
	s.initLogger(opts)

	if err := s.initTelemetry(); err != nil {
		s.cleanup()
		return nil, err
	}
	if err := s.initPersist(opts); err != nil {
		s.cleanup()
		return nil, err
	}
	s.initRegistry(opts)
	s.initRecorder(opts)
	if err := s.initSessions(); err != nil {
		s.cleanup()
		return nil, err
	}
	s.initAssets()
	s.initRouter()

	s.logger.Info("Editor service initialized",
		"in_memory", cfg.InMemory,
		"assets_dir", cfg.AssetsDir,
		"generator_kinds", s.registry.Kinds(),
	)
	return s, nil
}

func (s *service) initLogger(opts *Options) {
	if opts.Logger != nil {
		s.logger = opts.Logger
		return
	}
	s.logger = logging.New(s.config.Logging)
}

func (s *service) initTelemetry() error {
	shutdown, err := telemetry.Init(context.Background(), s.config.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	s.shutdownOtel = shutdown
	return nil
}

func (s *service) initPersist(opts *Options) error {
	if opts.Persist != nil {
		s.store = opts.Persist
		return nil
	}

	cfg := badger.DefaultConfig()
	cfg.Path = s.config.DataDir
	cfg.Logger = s.logger.Slog()
	if s.config.InMemory {
		cfg = badger.InMemoryConfig()
	}
	store, err := badger.Open(cfg)
	if err != nil {
		return fmt.Errorf("open project store: %w", err)
	}
	s.store = store
	return nil
}

// initRegistry wires generators for every kind the configuration can
// serve. Missing credentials or endpoints disable kinds rather than
// failing startup; dispatch against an unregistered kind fails that
// node with a visible error instead.
func (s *service) initRegistry(opts *Options) {
	if opts.Registry != nil {
		s.registry = opts.Registry
		return
	}
	registry := generate.NewRegistry()

	keeper, err := generate.LoadKeeper(s.config.OpenAIKeyEnv, s.config.OpenAIKeyFile)
	if err != nil {
		s.logger.Warn("API key unavailable; textToImage and describe disabled", "error", err)
		keeper = nil
	} else {
		gen, genErr := generate.NewOpenAIGenerator(keeper, generate.OpenAIConfig{
			BaseURL:     s.config.OpenAIBaseURL,
			ImageModel:  s.config.ImageModel,
			VisionModel: s.config.VisionModel,
			ImageSize:   s.config.ImageSize,
		})
		if genErr != nil {
			s.logger.Warn("OpenAI generator unavailable", "error", genErr)
		} else {
			registry.Register(graph.KindTextToImage, gen)
			registry.Register(graph.KindDescribe, gen)
		}
	}

	if s.config.ImageToImageURL != "" {
		registry.Register(graph.KindImageToImage, generate.NewHTTPGenerator(generate.HTTPConfig{
			Endpoint: s.config.ImageToImageURL,
		}, keeper))
	}
	if s.config.ImageToVideoURL != "" {
		registry.Register(graph.KindImageToVideo, generate.NewHTTPGenerator(generate.HTTPConfig{
			Endpoint: s.config.ImageToVideoURL,
		}, keeper))
	}
	s.registry = registry
}

func (s *service) initRecorder(opts *Options) {
	if opts.Recorder != nil {
		s.recorder = opts.Recorder
		return
	}
	if s.config.History.URL != "" {
		s.recorder = history.NewInfluxRecorder(s.config.History)
		return
	}
	s.recorder = history.NopRecorder{}
}

func (s *service) initSessions() error {
	meter := otel.Meter(serviceName)
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	s.metrics = metrics

	recorder := metricsRecorder{inner: s.recorder, metrics: metrics}
	s.sessions = newManager(s.store, s.registry, recorder, metrics, s.logger, managerConfig{
		Autosave: autosave.Config{
			Interval:    s.config.AutosaveInterval,
			SaveTimeout: s.config.SaveTimeout,
		},
		Dispatch: lifecycle.Config{
			MaxInFlight: s.config.MaxGenerations,
			PerSecond:   s.config.GenerationsPerSecond,
			Burst:       s.config.GenerationBurst,
			Timeout:     s.config.GenerationTimeout,
		},
		IdleTimeout: s.config.SessionIdleTimeout,
	})

	if _, err := metrics.RegisterOpenSessions(meter, s.sessions.Count); err != nil {
		s.logger.Warn("Open-sessions gauge registration failed", "error", err)
	}
	return nil
}

// initAssets is optional: a server with no asset directory configured
// simply serves an empty library.
func (s *service) initAssets() {
	if s.config.AssetsDir == "" {
		return
	}
	watcher, err := assets.New(s.config.AssetsDir, nil)
	if err != nil {
		s.logger.Warn("Asset directory unavailable; library disabled",
			"dir", s.config.AssetsDir,
			"error", err,
		)
		return
	}
	if err := watcher.Start(context.Background()); err != nil {
		s.logger.Warn("Asset watcher failed to start",
			"dir", s.config.AssetsDir,
			"error", err,
		)
		return
	}
	s.assets = watcher
}

func (s *service) initRouter() {
	gin.SetMode(s.config.GinMode)
	registerValidators()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(telemetry.RequestMetrics(s.metrics))
	s.registerRoutes(router)
	s.router = router
}

// ===== Service Lifecycle =====

// Run implements the Service interface.
func (s *service) Run() error {
	defer s.cleanup()
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("Editor service listening", "addr", addr)
	return s.router.Run(addr)
}

// Router implements the Service interface.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close implements the Service interface.
func (s *service) Close() error {
	s.cleanup()
	return nil
}

// cleanup releases resources in reverse construction order. Tolerates
// a partially constructed service.
func (s *service) cleanup() {
	s.closeOnce.Do(func() {
		if s.sessions != nil {
			ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			s.sessions.Shutdown(ctx)
			cancel()
		}
		if s.assets != nil {
			s.assets.Stop()
		}
		if s.recorder != nil {
			s.recorder.Close()
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				s.logger.Error("Closing project store failed", "error", err)
			}
		}
		if s.shutdownOtel != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.shutdownOtel(ctx); err != nil {
				s.logger.Warn("Telemetry shutdown failed", "error", err)
			}
			cancel()
		}
		if s.logger != nil {
			_ = s.logger.Close()
		}
	})
}

// Compile-time interface check.
var _ Service = (*service)(nil)
