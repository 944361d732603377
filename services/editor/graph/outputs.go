// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

// Typed output accessors.
//
// Historically every producer kind named its output field differently
// (outputImage vs imageUrl vs generatedImage vs image) and consumers
// duck-typed their way through the data map in precedence order. The
// accessors below centralize that: each kind declares its canonical output
// field, and the legacy precedence chain survives only as a fallback for
// snapshots written by older clients. Consumers never touch raw keys.

// canonicalImageField maps a producer kind to the data key its image
// output lands in. Kinds absent from this map do not produce images.
var canonicalImageField = map[NodeKind]string{
	KindTextToImage:  FieldOutputImage,
	KindImageToImage: FieldOutputImage,
	KindAnnotation:   FieldOutputImage,
	KindUpload:       FieldImageURL,
}

// legacyImageFields is the historical lookup order for image outputs.
// Checked only when the canonical field is empty or the kind is unknown.
var legacyImageFields = [...]string{
	FieldOutputImage,
	FieldImageURL,
	FieldGeneratedImage,
	FieldImage,
}

// ImageOutput returns the node's produced image URL.
//
// Description:
//
//	A node that is still loading contributes nothing regardless of what
//	its data map contains: a placeholder must never leak a stale or
//	partial value downstream. Otherwise the kind's canonical field wins;
//	the legacy chain is consulted so graphs saved by older clients keep
//	resolving.
//
// Outputs:
//
//	string - The image URL.
//	bool - False when the node has no usable image output yet.
func (n Node) ImageOutput() (string, bool) {
	if n.IsLoading() {
		return "", false
	}
	if field, ok := canonicalImageField[n.Kind]; ok {
		if v := n.Data.GetString(field); v != "" {
			return v, true
		}
	}
	for _, field := range legacyImageFields {
		if v := n.Data.GetString(field); v != "" {
			return v, true
		}
	}
	return "", false
}

// VideoOutput returns the node's produced video URL, if any.
func (n Node) VideoOutput() (string, bool) {
	if n.IsLoading() {
		return "", false
	}
	if v := n.Data.GetString(FieldVideoURL); v != "" {
		return v, true
	}
	return "", false
}

// PromptOutput returns the text a node contributes to downstream prompt
// inputs: prompt text for prompt nodes, the description for describe
// nodes, with the legacy "text" key as fallback.
func (n Node) PromptOutput() (string, bool) {
	if n.IsLoading() {
		return "", false
	}
	if n.Kind == KindDescribe {
		if v := n.Data.GetString(FieldDescription); v != "" {
			return v, true
		}
		return "", false
	}
	if v := n.Data.GetString(FieldPrompt); v != "" {
		return v, true
	}
	if v := n.Data.GetString(FieldText); v != "" {
		return v, true
	}
	return "", false
}
