// Package diarization defines the speaker-diarization collaborator
// interface and the speaker-attributed turn type.
package diarization

import "context"

// Turn is one contiguous span of audio attributed to a single speaker.
// Timestamps are relative milliseconds from the start of the audio; note
// the unit difference with asr.RawSegment, which carries seconds. Callers
// crossing that boundary must convert explicitly.
type Turn struct {
	SpeakerID string `json:"speaker_id"`
	StartMS   int64  `json:"start_ms"`
	EndMS     int64  `json:"end_ms"`
}

// Request holds parameters for a diarization call.
type Request struct {
	AudioPath string
	// NumSpeakers is the expected speaker count; 0 means auto-detect.
	NumSpeakers int
}

// Analyzer is the diarization collaborator contract. By contract an
// unavailable backend returns an empty slice and nil error; a non-nil
// error means the backend was configured but failed at call time.
type Analyzer interface {
	AnalyzeSpeakers(ctx context.Context, req Request) ([]Turn, error)

	// IsAvailable reports whether the backend is reachable and configured.
	IsAvailable(ctx context.Context) bool
}
