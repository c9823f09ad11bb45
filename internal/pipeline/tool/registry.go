// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tool is a small registry of supported external-processor
// tools, their default credit price, and which other tools can plausibly
// chain after them. Used by ingress for price lookup and by the
// downloader worker to filter the follow-up action keyboard.
package tool

import "rag-platform/internal/pipeline"

// Spec describes one supported tool.
type Spec struct {
	Tool           pipeline.Tool
	DefaultPrice   int
	OutputFileType pipeline.FileType
	// Chainable is the set of tools that may reasonably run again on
	// this tool's output. Tools that terminate a chain (e.g. merge,
	// which already combines multiple inputs into one) have none.
	Chainable []pipeline.Tool
}

var registry = map[pipeline.Tool]Spec{
	pipeline.ToolUpscaleImage: {
		Tool:           pipeline.ToolUpscaleImage,
		DefaultPrice:   20,
		OutputFileType: pipeline.FileTypeImage,
		Chainable:      []pipeline.Tool{pipeline.ToolRemoveBackgroundImage, pipeline.ToolCompress, pipeline.ToolImagePDF},
	},
	pipeline.ToolRemoveBackgroundImage: {
		Tool:           pipeline.ToolRemoveBackgroundImage,
		DefaultPrice:   15,
		OutputFileType: pipeline.FileTypeImage,
		Chainable:      []pipeline.Tool{pipeline.ToolUpscaleImage, pipeline.ToolCompress, pipeline.ToolImagePDF},
	},
	pipeline.ToolImagePDF: {
		Tool:           pipeline.ToolImagePDF,
		DefaultPrice:   10,
		OutputFileType: pipeline.FileTypePDF,
		Chainable:      []pipeline.Tool{pipeline.ToolCompress},
	},
	pipeline.ToolMerge: {
		Tool:           pipeline.ToolMerge,
		DefaultPrice:   10,
		OutputFileType: pipeline.FileTypePDF,
		// Merge output cannot be re-merged against further followups in
		// this keyboard; a fresh submission is required.
		Chainable: nil,
	},
	pipeline.ToolCompress: {
		Tool:           pipeline.ToolCompress,
		DefaultPrice:   5,
		OutputFileType: pipeline.FileTypeDocImage,
		Chainable:      []pipeline.Tool{pipeline.ToolCompress},
	},
}

// Lookup returns the Spec for a tool and whether it is known.
func Lookup(t pipeline.Tool) (Spec, bool) {
	s, ok := registry[t]
	return s, ok
}

// Price returns the configured default price for a tool, or 0 if unknown.
func Price(t pipeline.Tool) int {
	return registry[t].DefaultPrice
}

// ChainableFollowups returns the tools that may be offered as a follow-up
// keyboard after t succeeds, excluding t itself when it cannot chain into
// itself... callers pass the raw list through unfiltered beyond what the
// registry already encodes.
func ChainableFollowups(t pipeline.Tool) []pipeline.Tool {
	s, ok := registry[t]
	if !ok {
		return nil
	}
	out := make([]pipeline.Tool, len(s.Chainable))
	copy(out, s.Chainable)
	return out
}

// OutputFileKind returns the file kind produced by t:
// image tools → image, pdf tools → pdf, unknown → generic (doc/image).
func OutputFileKind(t pipeline.Tool) pipeline.FileType {
	if s, ok := registry[t]; ok {
		return s.OutputFileType
	}
	return pipeline.FileTypeDocImage
}

// Known reports whether t is a registered tool.
func Known(t pipeline.Tool) bool {
	_, ok := registry[t]
	return ok
}
