package reconcile

import (
	"sync"
	"testing"
)

func TestNewSessionDefaults(t *testing.T) {
	ses := NewSession("conv-1", "/tmp/audio.wav")

	if ses.PassID == "" {
		t.Error("PassID must be populated")
	}
	if ses.ConversationID != "conv-1" || ses.AudioPath != "/tmp/audio.wav" {
		t.Errorf("session = %+v", ses)
	}
	if ses.StartSeq != -1 {
		t.Errorf("StartSeq = %d, want -1 (unknown)", ses.StartSeq)
	}

	other := NewSession("conv-1", "/tmp/audio.wav")
	if other.PassID == ses.PassID {
		t.Error("pass ids must be unique per session")
	}
}

func TestConversationLocksReleaseEntries(t *testing.T) {
	locks := newConversationLocks()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.lock("conv-a")
			counter++
			locks.unlock("conv-a")
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50; lock did not serialize", counter)
	}
	locks.mu.Lock()
	held := len(locks.held)
	locks.mu.Unlock()
	if held != 0 {
		t.Errorf("lock table retains %d entries after release", held)
	}
}

func TestConversationLocksIndependentConversations(t *testing.T) {
	locks := newConversationLocks()

	locks.lock("conv-a")
	done := make(chan struct{})
	go func() {
		// Must not block on conv-a's lock.
		locks.lock("conv-b")
		locks.unlock("conv-b")
		close(done)
	}()
	<-done
	locks.unlock("conv-a")
}
