// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generate

import (
	"time"

	"github.com/StoryloomAI/storyloom/services/editor/graph"
)

// Request carries everything a generator needs for one run. It is built once
// at trigger time and never changes afterward: the constructor deep-copies the
// option map and URL slices, the fields stay unexported, and the accessors
// return fresh copies. A generator running on a goroutine therefore always
// sees the inputs exactly as they were when the user clicked generate, no
// matter what happens to the graph in the meantime.
type Request struct {
	kind      graph.NodeKind
	prompt    string
	images    []string
	videos    []string
	options   map[string]string
	createdAt time.Time
}

// NewRequest snapshots the given inputs into an immutable Request.
func NewRequest(kind graph.NodeKind, prompt string, images, videos []string, options map[string]string) Request {
	return Request{
		kind:      kind,
		prompt:    prompt,
		images:    cloneStrings(images),
		videos:    cloneStrings(videos),
		options:   cloneOptions(options),
		createdAt: time.Now(),
	}
}

// Kind returns the node kind this request generates for.
func (r Request) Kind() graph.NodeKind { return r.kind }

// Prompt returns the prompt text, already joined if it came from
// multiple upstream prompt nodes.
func (r Request) Prompt() string { return r.prompt }

// Images returns a copy of the input image URLs.
func (r Request) Images() []string { return cloneStrings(r.images) }

// Videos returns a copy of the input video URLs.
func (r Request) Videos() []string { return cloneStrings(r.videos) }

// Options returns a copy of the free-form generation options.
func (r Request) Options() map[string]string {
	if r.options == nil {
		return nil
	}
	return cloneOptions(r.options)
}

// Option returns a single option value, or "" when it is not set.
func (r Request) Option(key string) string { return r.options[key] }

// CreatedAt returns when the request was snapshotted.
func (r Request) CreatedAt() time.Time { return r.createdAt }

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneOptions(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Result is what a generator hands back on success. Exactly the fields that
// map onto a placeholder node's output data: at least one of them is set.
type Result struct {
	ImageURL    string `json:"image_url,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`
	Description string `json:"description,omitempty"`
}

// Empty reports whether the result carries no output at all.
func (r Result) Empty() bool {
	return r.ImageURL == "" && r.VideoURL == "" && r.Description == ""
}
