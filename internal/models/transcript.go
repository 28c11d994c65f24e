// Package models defines the durable and event-facing data structures
// shared across the reconciliation service.
package models

// FinalTranscriptSegment is the persisted unit of a reconciled transcript.
// Timestamps are absolute Unix milliseconds; Seq is strictly increasing per
// conversation and is never reused across reconciliation passes.
type FinalTranscriptSegment struct {
	ConversationID string `json:"conversationId"`
	Seq            int    `json:"seq"`
	IsFinal        bool   `json:"isFinal"`
	StartMS        int64  `json:"startMs"`
	EndMS          int64  `json:"endMs"`
	Text           string `json:"text"`
	SpeakerID      string `json:"speakerId"`
	AudioURL       string `json:"audioUrl,omitempty"`
}

// RecordingStopped is the event that triggers one reconciliation pass.
// StartSeq is the conversation's transcript count when the recording began;
// a negative value means "unknown, read the current maximum from the store".
type RecordingStopped struct {
	EventType      string `json:"eventType"`
	ConversationID string `json:"conversationId"`
	AudioPath      string `json:"audioPath"`
	Language       string `json:"language,omitempty"`
	LiveHintText   string `json:"liveHintText,omitempty"`
	StartSeq       int    `json:"startSeq"`
	Timestamp      int64  `json:"timestamp"`
}

// TranscriptsUpdated notifies live subscribers that a conversation's
// final transcript was rebuilt.
type TranscriptsUpdated struct {
	EventType      string `json:"eventType"`
	ConversationID string `json:"conversationId"`
	Count          int    `json:"count"`
	Timestamp      int64  `json:"timestamp"`
}
