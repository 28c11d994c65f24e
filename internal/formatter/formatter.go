// Package formatter defines the sentence-reformatter collaborator
// interface. A formatter receives the full raw ASR text and returns
// punctuated sentences with turn-taking labels; it has no notion of time.
package formatter

import "context"

// Sentence is one formatted sentence. SpeakerLabel is the formatter's own
// small alphabet ("A", "B", "C"), not a diarization speaker id.
type Sentence struct {
	Text         string `json:"text"`
	SpeakerLabel string `json:"speaker"`
}

// Formatter is the reformatter collaborator contract.
type Formatter interface {
	// FormatConversation splits and punctuates rawText into sentences.
	FormatConversation(ctx context.Context, rawText, language string) ([]Sentence, error)

	// FormatWithComparison merges a live low-latency hint transcript with
	// the offline ASR text, preferring whichever wording is more accurate
	// per sentence.
	FormatWithComparison(ctx context.Context, liveHintText, rawText, language string) ([]Sentence, error)

	// IsAvailable reports whether the formatter is configured.
	IsAvailable() bool
}
