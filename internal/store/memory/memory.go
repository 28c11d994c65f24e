// Package memory provides an in-memory store.Store for development and
// tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/models"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/store"
)

// Store keeps conversations and segments in process memory. All methods
// are safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]store.Conversation
	segments      map[string][]models.FinalTranscriptSegment
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[string]store.Conversation),
		segments:      make(map[string][]models.FinalTranscriptSegment),
	}
}

// PutConversation registers or updates conversation metadata.
func (s *Store) PutConversation(conv store.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
}

// DeleteConversation removes a conversation and its segments.
func (s *Store) DeleteConversation(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	delete(s.segments, conversationID)
}

func (s *Store) GetConversation(_ context.Context, conversationID string) (*store.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	return &conv, nil
}

func (s *Store) MaxSeq(_ context.Context, conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for _, seg := range s.segments[conversationID] {
		if seg.Seq > max {
			max = seg.Seq
		}
	}
	return max, nil
}

func (s *Store) LastEndMS(_ context.Context, conversationID string, throughSeq int) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		last  int64
		found bool
	)
	for _, seg := range s.segments[conversationID] {
		if seg.Seq <= throughSeq && seg.EndMS > last {
			last = seg.EndMS
			found = true
		}
	}
	return last, found, nil
}

func (s *Store) ReplaceSegments(_ context.Context, conversationID string, startSeqExclusive int, segments []models.FinalTranscriptSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.segments[conversationID][:0:0]
	for _, seg := range s.segments[conversationID] {
		if seg.Seq <= startSeqExclusive {
			kept = append(kept, seg)
		}
	}
	kept = append(kept, segments...)
	sort.Slice(kept, func(i, j int) bool { return kept[i].Seq < kept[j].Seq })
	s.segments[conversationID] = kept
	return nil
}

func (s *Store) ListSegments(_ context.Context, conversationID string) ([]models.FinalTranscriptSegment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FinalTranscriptSegment, len(s.segments[conversationID]))
	copy(out, s.segments[conversationID])
	return out, nil
}
