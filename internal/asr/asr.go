// Package asr defines the interface for speech-to-text collaborators
// and the timestamped segment types they produce.
package asr

import "context"

// WordTimestamp is a word-level timing, present only when word
// timestamps were requested.
type WordTimestamp struct {
	Word     string  `json:"word"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// RawSegment is one timestamped segment of an ASR result. Timestamps are
// relative seconds from the start of the audio, not wall-clock time.
type RawSegment struct {
	Text     string          `json:"text"`
	StartSec float64         `json:"start_sec"`
	EndSec   float64         `json:"end_sec"`
	// AvgLogProb is the engine's per-segment mean token log-probability,
	// roughly in [-1, 0]. Zero means "not reported".
	AvgLogProb float64         `json:"avg_logprob,omitempty"`
	Words      []WordTimestamp `json:"words,omitempty"`
}

// StartMS returns the start time in milliseconds.
func (s RawSegment) StartMS() int64 { return int64(s.StartSec * 1000) }

// EndMS returns the end time in milliseconds.
func (s RawSegment) EndMS() int64 { return int64(s.EndSec * 1000) }

// DurationMS returns the segment duration in milliseconds.
func (s RawSegment) DurationMS() int64 { return s.EndMS() - s.StartMS() }

// Result is a complete transcription of one audio file.
type Result struct {
	FullText    string
	Segments    []RawSegment
	Language    string
	DurationSec float64
}

// Request carries the parameters of one transcription call.
type Request struct {
	AudioPath string
	// Language is an optional hint such as "en"; empty means auto-detect.
	Language string
	// WordTimestamps requests word-level timing where the provider
	// supports it.
	WordTimestamps bool
}

// Transcriber is the ASR collaborator contract. Implementations must fail
// loudly: an unrecoverable provider error returns a non-nil error, never a
// silently empty Result.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)

	// Name identifies the provider, e.g. "openai-whisper".
	Name() string
}
