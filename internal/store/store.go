// Package store defines the persistence collaborator for reconciled
// transcripts. Only FinalTranscriptSegment is durable; every intermediate
// entity of a reconciliation pass lives and dies with that pass.
package store

import (
	"context"
	"errors"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/models"
)

// ErrConversationNotFound is returned when the target conversation no
// longer exists, e.g. it was deleted while a pass was still running. The
// orchestrator treats this as a no-op, not a failure.
var ErrConversationNotFound = errors.New("conversation not found")

// Conversation is the minimal conversation metadata a pass needs.
type Conversation struct {
	ID        string
	StartedMS int64 // conversation start, absolute Unix milliseconds
}

// Store is the orchestrator's only durable side-effect surface.
type Store interface {
	// GetConversation returns conversation metadata, or
	// ErrConversationNotFound.
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)

	// MaxSeq returns the highest seq persisted for the conversation, or 0
	// when it has no segments.
	MaxSeq(ctx context.Context, conversationID string) (int, error)

	// LastEndMS returns the latest absolute end timestamp among segments
	// with seq <= throughSeq, i.e. among recordings that predate the one
	// being reconciled; ok is false when there are none.
	LastEndMS(ctx context.Context, conversationID string, throughSeq int) (endMS int64, ok bool, err error)

	// ReplaceSegments atomically deletes every segment with
	// seq > startSeqExclusive and inserts the given ordered list. It is a
	// single logical replace-range operation, never a partial overwrite.
	ReplaceSegments(ctx context.Context, conversationID string, startSeqExclusive int, segments []models.FinalTranscriptSegment) error

	// ListSegments returns the conversation's segments ordered by seq.
	ListSegments(ctx context.Context, conversationID string) ([]models.FinalTranscriptSegment, error)
}
