// Package mock provides a canned transcriber for local development and
// tests where no speech backend is reachable.
package mock

import (
	"context"
	"strings"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/asr"
)

// Adapter returns a fixed set of segments regardless of input audio.
type Adapter struct {
	segments []asr.RawSegment
}

func NewAdapter() *Adapter {
	return &Adapter{
		segments: []asr.RawSegment{
			{Text: "Hello, this is a mock transcription.", StartSec: 0, EndSec: 2.4, AvgLogProb: -0.12},
			{Text: "It stands in for a real speech backend.", StartSec: 2.6, EndSec: 5.1, AvgLogProb: -0.18},
		},
	}
}

// NewAdapterWithSegments builds a mock returning exactly the given
// segments, useful for scripted test scenarios.
func NewAdapterWithSegments(segments []asr.RawSegment) *Adapter {
	return &Adapter{segments: segments}
}

func (a *Adapter) Name() string { return "mock" }

func (a *Adapter) Transcribe(_ context.Context, req asr.Request) (*asr.Result, error) {
	segs := make([]asr.RawSegment, len(a.segments))
	copy(segs, a.segments)

	var parts []string
	for _, s := range segs {
		parts = append(parts, strings.TrimSpace(s.Text))
	}

	result := &asr.Result{
		FullText: strings.Join(parts, " "),
		Segments: segs,
		Language: req.Language,
	}
	if n := len(segs); n > 0 {
		result.DurationSec = segs[n-1].EndSec
	}
	return result, nil
}
