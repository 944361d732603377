// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StoryloomAI/storyloom/services/editor/graph"
)

func testKeeper(t *testing.T) *Keeper {
	t.Helper()
	t.Setenv("STORYLOOM_INSECURE_MEMORY", "true")
	k, err := NewKeeper("sk-test")
	require.NoError(t, err)
	return k
}

// TestOpenAIGeneratorTextToImage verifies the Images API path, including the
// default model and the bearer token.
func TestOpenAIGeneratorTextToImage(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Prompt         string `json:"prompt"`
			Model          string `json:"model"`
			Size           string `json:"size"`
			ResponseFormat string `json:"response_format"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a cat in the rain", req.Prompt)
		assert.Equal(t, "dall-e-3", req.Model)
		assert.Equal(t, "1024x1024", req.Size)
		assert.Equal(t, "url", req.ResponseFormat)

		json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]string{{"url": "https://cdn.example/gen.png"}},
		})
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(testKeeper(t), OpenAIConfig{BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	res, err := g.Generate(context.Background(), NewRequest(graph.KindTextToImage, "a cat in the rain", nil, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/gen.png", res.ImageURL)
	assert.Equal(t, int64(1), hits.Load())
}

// TestOpenAIGeneratorEmptyPromptFailsLocally verifies no HTTP call is made
// when the request has no prompt.
func TestOpenAIGeneratorEmptyPromptFailsLocally(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(testKeeper(t), OpenAIConfig{BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), NewRequest(graph.KindTextToImage, "", nil, nil, nil))
	assert.ErrorIs(t, err, ErrMissingPrompt)
	assert.Equal(t, int64(0), hits.Load())
}

// TestOpenAIGeneratorDescribe verifies the vision chat path returns the
// model's text as the description.
func TestOpenAIGeneratorDescribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Type     string `json:"type"`
					Text     string `json:"text,omitempty"`
					ImageURL *struct {
						URL string `json:"url"`
					} `json:"image_url,omitempty"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		require.NotNil(t, req.Messages[0].Content[1].ImageURL)
		assert.Equal(t, "https://cdn.example/src.png", req.Messages[0].Content[1].ImageURL.URL)

		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": "a tabby cat on a windowsill"},
					"finish_reason": "stop",
				},
			},
		})
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(testKeeper(t), OpenAIConfig{BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	res, err := g.Generate(context.Background(), NewRequest(
		graph.KindDescribe, "", []string{"https://cdn.example/src.png"}, nil, nil,
	))
	require.NoError(t, err)
	assert.Equal(t, "a tabby cat on a windowsill", res.Description)
}

// TestOpenAIGeneratorDescribeWithoutImage verifies the local guard.
func TestOpenAIGeneratorDescribeWithoutImage(t *testing.T) {
	g, err := NewOpenAIGenerator(testKeeper(t), OpenAIConfig{BaseURL: "http://localhost:0/v1"})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), NewRequest(graph.KindDescribe, "what is this", nil, nil, nil))
	assert.ErrorIs(t, err, ErrMissingImage)
}

// TestOpenAIGeneratorUnhandledKind verifies kinds served elsewhere are
// rejected with a clear error.
func TestOpenAIGeneratorUnhandledKind(t *testing.T) {
	g, err := NewOpenAIGenerator(testKeeper(t), OpenAIConfig{BaseURL: "http://localhost:0/v1"})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), NewRequest(graph.KindImageToVideo, "pan", nil, nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not handle")
}

// TestNewOpenAIGeneratorNilKeeper verifies construction requires a keeper.
func TestNewOpenAIGeneratorNilKeeper(t *testing.T) {
	_, err := NewOpenAIGenerator(nil, OpenAIConfig{})
	require.Error(t, err)
}
