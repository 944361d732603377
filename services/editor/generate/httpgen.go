// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of an endpoint response is read.
const maxResponseBytes = 1 << 20

// HTTPConfig configures a generic HTTP generation endpoint.
type HTTPConfig struct {
	// Endpoint receives a JSON POST per generation.
	Endpoint string

	// Timeout bounds a single HTTP attempt. Default 60s.
	Timeout time.Duration

	// MaxAttempts bounds retries on retryable failures. Default 3.
	MaxAttempts int

	// Backoff is the base delay between attempts, doubled each retry.
	// Default 2s.
	Backoff time.Duration
}

// HTTPGenerator calls a self-hosted or third-party generation endpoint that
// speaks plain JSON. It serves the kinds the OpenAI generator does not,
// typically imageToImage and imageToVideo. Transient failures (5xx, 429,
// connection errors) are retried with exponential backoff; 4xx responses
// are not.
type HTTPGenerator struct {
	endpoint    string
	httpClient  *http.Client
	maxAttempts int
	backoff     time.Duration
	keeper      *Keeper
}

// NewHTTPGenerator builds a generator for the given endpoint. keeper may be
// nil for endpoints that need no authentication.
func NewHTTPGenerator(cfg HTTPConfig, keeper *Keeper) *HTTPGenerator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	return &HTTPGenerator{
		endpoint:    cfg.Endpoint,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		keeper:      keeper,
	}
}

// endpointRequest is the wire format sent to the endpoint.
type endpointRequest struct {
	Kind    string            `json:"kind"`
	Prompt  string            `json:"prompt,omitempty"`
	Images  []string          `json:"images,omitempty"`
	Videos  []string          `json:"videos,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

// endpointResponse is the wire format expected back.
type endpointResponse struct {
	ImageURL    string `json:"image_url"`
	VideoURL    string `json:"video_url"`
	Description string `json:"description"`
	Error       string `json:"error"`
}

// Generate implements the Generator interface.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(endpointRequest{
		Kind:    string(req.Kind()),
		Prompt:  req.Prompt(),
		Images:  req.Images(),
		Videos:  req.Videos(),
		Options: req.Options(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode generation request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		res, err := g.post(ctx, body)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retryable(err) || attempt == g.maxAttempts {
			break
		}
		slog.Warn("Generation attempt failed, retrying",
			"endpoint", g.endpoint,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(g.backoff << (attempt - 1)):
		}
	}
	return Result{}, fmt.Errorf("generation endpoint failed after %d attempts: %w", g.maxAttempts, lastErr)
}

func (g *HTTPGenerator) post(ctx context.Context, body []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.keeper != nil {
		apiKey, err := g.keeper.Reveal()
		if err != nil {
			return Result{}, err
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, &statusError{code: resp.StatusCode}
	}

	var out endpointResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Result{}, fmt.Errorf("decode generation response: %w", err)
	}
	if out.Error != "" {
		return Result{}, &endpointError{message: out.Error}
	}
	res := Result{ImageURL: out.ImageURL, VideoURL: out.VideoURL, Description: out.Description}
	if res.Empty() {
		return Result{}, fmt.Errorf("generation endpoint returned no output")
	}
	return res, nil
}

// statusError marks a non-200 response so retry logic can inspect the code.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d from generation endpoint", e.code)
}

// endpointError is an application-level rejection (e.g. a filtered prompt).
// Retrying the same request cannot succeed.
type endpointError struct {
	message string
}

func (e *endpointError) Error() string {
	return "generation endpoint error: " + e.message
}

// retryable reports whether another attempt could plausibly succeed.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	var ee *endpointError
	if errors.As(err, &ee) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Connection resets and timeouts reach here as transport errors.
	return true
}
