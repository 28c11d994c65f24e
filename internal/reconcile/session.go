package reconcile

import (
	"sync"

	"github.com/google/uuid"
)

// Session is the per-recording context one reconciliation pass operates
// on. It is created when the recording stops, passed by ownership into the
// pass, and discarded when the pass ends; nothing in it outlives the pass.
type Session struct {
	// PassID identifies this reconciliation pass in logs.
	PassID string
	// ConversationID is the conversation the recording belongs to.
	ConversationID string
	// AudioPath is this pass's own readable copy of the recorded audio;
	// the real-time feedback path works on a separate copy.
	AudioPath string
	// Language is an optional hint forwarded to the collaborators.
	Language string
	// LiveHintText is the low-latency live transcript captured during
	// recording, if any; it switches the formatter to comparison mode.
	LiveHintText string
	// StartSeq is the conversation's transcript count when the recording
	// started. Segments with seq greater than this belong to the current
	// recording and are replaced by the pass. Negative means unknown.
	StartSeq int
}

// NewSession builds a Session with a fresh pass id.
func NewSession(conversationID, audioPath string) *Session {
	return &Session{
		PassID:         uuid.NewString(),
		ConversationID: conversationID,
		AudioPath:      audioPath,
		StartSeq:       -1,
	}
}

// conversationLocks serializes reconciliation passes per conversation
// identity. Two passes over the same conversation would race on the same
// seq delete/insert range; passes for different conversations run freely
// in parallel. Entries are reference-counted so the map does not grow with
// conversation churn.
type conversationLocks struct {
	mu   sync.Mutex
	held map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{held: map[string]*convLock{}}
}

func (l *conversationLocks) lock(conversationID string) {
	l.mu.Lock()
	entry, ok := l.held[conversationID]
	if !ok {
		entry = &convLock{}
		l.held[conversationID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *conversationLocks) unlock(conversationID string) {
	l.mu.Lock()
	entry := l.held[conversationID]
	entry.refs--
	if entry.refs == 0 {
		delete(l.held, conversationID)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
