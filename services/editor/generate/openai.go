// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/StoryloomAI/storyloom/services/editor/graph"
)

// OpenAIConfig configures the OpenAI-compatible generator. Zero values pick
// sensible defaults; BaseURL switches to any compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string
	ImageModel  string
	VisionModel string
	ImageSize   string
}

// OpenAIGenerator serves textToImage through the Images API and describe
// through a vision chat completion.
type OpenAIGenerator struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAIGenerator builds a generator with the key from the keeper.
func NewOpenAIGenerator(keeper *Keeper, cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if keeper == nil {
		return nil, fmt.Errorf("generate: nil key keeper")
	}
	apiKey, err := keeper.Reveal()
	if err != nil {
		return nil, err
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = openai.CreateImageModelDallE3
		slog.Warn("Image model not set, defaulting to dall-e-3")
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "gpt-4o-mini"
		slog.Warn("Vision model not set, defaulting to gpt-4o-mini")
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = openai.CreateImageSize1024x1024
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	slog.Info("Initializing OpenAI generator",
		"image_model", cfg.ImageModel,
		"vision_model", cfg.VisionModel,
	)
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
	}, nil
}

// Generate implements the Generator interface.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	switch req.Kind() {
	case graph.KindTextToImage:
		return g.createImage(ctx, req)
	case graph.KindDescribe:
		return g.describeImage(ctx, req)
	default:
		return Result{}, fmt.Errorf("generate: openai generator does not handle kind %q", req.Kind())
	}
}

func (g *OpenAIGenerator) createImage(ctx context.Context, req Request) (Result, error) {
	prompt := req.Prompt()
	if prompt == "" {
		return Result{}, ErrMissingPrompt
	}
	slog.Debug("Generating image via OpenAI", "model", g.config.ImageModel)
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          g.config.ImageModel,
		N:              1,
		Size:           g.config.ImageSize,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		slog.Error("OpenAI image call failed", "error", err)
		return Result{}, fmt.Errorf("OpenAI image call failed: %w", err)
	}
	if len(resp.Data) == 0 {
		slog.Warn("OpenAI returned no image data")
		return Result{}, fmt.Errorf("OpenAI returned no image data")
	}
	return Result{ImageURL: resp.Data[0].URL}, nil
}

func (g *OpenAIGenerator) describeImage(ctx context.Context, req Request) (Result, error) {
	images := req.Images()
	if len(images) == 0 {
		return Result{}, ErrMissingImage
	}
	prompt := req.Prompt()
	if prompt == "" {
		prompt = "Describe this image for a video storyboard shot list."
	}
	slog.Debug("Describing image via OpenAI", "model", g.config.VisionModel)
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.config.VisionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: images[0]},
					},
				},
			},
		},
	})
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return Result{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices or empty content")
		return Result{}, fmt.Errorf("OpenAI returned no choices")
	}
	return Result{Description: resp.Choices[0].Message.Content}, nil
}
