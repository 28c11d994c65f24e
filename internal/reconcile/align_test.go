package reconcile

import (
	"strings"
	"testing"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/asr"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/formatter"
)

func TestAlignSingleSentence(t *testing.T) {
	sentences := []formatter.Sentence{{Text: "Hello world.", SpeakerLabel: "A"}}
	raw := []asr.RawSegment{{Text: "hello world", StartSec: 0, EndSec: 1.5}}

	aligned := Align(sentences, raw)

	if len(aligned) != 1 {
		t.Fatalf("got %d aligned sentences, want 1", len(aligned))
	}
	if aligned[0].StartSec != 0 || aligned[0].EndSec != 1.5 {
		t.Errorf("timestamps = [%v, %v], want [0, 1.5]", aligned[0].StartSec, aligned[0].EndSec)
	}
	if aligned[0].Text != "Hello world." {
		t.Errorf("text = %q, formatter text must be preserved verbatim", aligned[0].Text)
	}
	if aligned[0].SpeakerLabel != "A" {
		t.Errorf("label = %q, want %q", aligned[0].SpeakerLabel, "A")
	}
}

func TestAlignMultipleSentences(t *testing.T) {
	sentences := []formatter.Sentence{
		{Text: "Hello world.", SpeakerLabel: "A"},
		{Text: "How are you doing today?", SpeakerLabel: "B"},
	}
	raw := []asr.RawSegment{
		{Text: "hello world", StartSec: 0, EndSec: 1.5},
		{Text: "how are you doing today", StartSec: 1.6, EndSec: 3.2},
	}

	aligned := Align(sentences, raw)

	if len(aligned) != 2 {
		t.Fatalf("got %d aligned sentences, want 2", len(aligned))
	}
	if aligned[1].StartSec != 1.6 || aligned[1].EndSec != 3.2 {
		t.Errorf("second sentence = [%v, %v], want [1.6, 3.2]", aligned[1].StartSec, aligned[1].EndSec)
	}
}

func TestAlignSpansMultipleRawSegments(t *testing.T) {
	// One long formatted sentence built from two raw segments.
	sentences := []formatter.Sentence{
		{Text: "I went to the store and bought some fresh bread.", SpeakerLabel: "A"},
	}
	raw := []asr.RawSegment{
		{Text: "i went to the store", StartSec: 0, EndSec: 2.0},
		{Text: "and bought some fresh bread", StartSec: 2.1, EndSec: 4.0},
	}

	aligned := Align(sentences, raw)

	if len(aligned) != 1 {
		t.Fatalf("got %d aligned sentences, want 1", len(aligned))
	}
	if aligned[0].StartSec != 0 || aligned[0].EndSec != 4.0 {
		t.Errorf("span = [%v, %v], want [0, 4.0]", aligned[0].StartSec, aligned[0].EndSec)
	}
}

func TestAlignSynthesizesTimestampsWhenRawExhausted(t *testing.T) {
	sentences := []formatter.Sentence{
		{Text: "Hello world.", SpeakerLabel: "A"},
		{Text: "How are you?", SpeakerLabel: "B"},
	}
	raw := []asr.RawSegment{{Text: "hello world", StartSec: 0, EndSec: 1.5}}

	aligned := Align(sentences, raw)

	if len(aligned) != 2 {
		t.Fatalf("got %d aligned sentences, want 2; sentence text must never be dropped", len(aligned))
	}
	second := aligned[1]
	if second.StartSec != 1.5 {
		t.Errorf("synthesized start = %v, want previous end 1.5", second.StartSec)
	}
	wantEnd := 1.5 + float64(len("How are you?"))*synthSecPerChar
	if second.EndSec != wantEnd {
		t.Errorf("synthesized end = %v, want %v", second.EndSec, wantEnd)
	}
}

func TestAlignStartsNonDecreasing(t *testing.T) {
	sentences := []formatter.Sentence{
		{Text: "First sentence about the weather.", SpeakerLabel: "A"},
		{Text: "Second sentence about lunch plans.", SpeakerLabel: "B"},
		{Text: "Third sentence wrapping things up.", SpeakerLabel: "A"},
	}
	raw := []asr.RawSegment{
		{Text: "first sentence about the weather", StartSec: 0, EndSec: 2},
		{Text: "second sentence about lunch plans", StartSec: 2.1, EndSec: 4},
		{Text: "third sentence wrapping things up", StartSec: 4.2, EndSec: 6},
	}

	aligned := Align(sentences, raw)

	for i := 1; i < len(aligned); i++ {
		if aligned[i].StartSec < aligned[i-1].StartSec {
			t.Errorf("start times decrease at %d: %v < %v", i, aligned[i].StartSec, aligned[i-1].StartSec)
		}
	}
}

func TestAlignSkipsBlankSentences(t *testing.T) {
	sentences := []formatter.Sentence{
		{Text: "   ", SpeakerLabel: "A"},
		{Text: "Real content here.", SpeakerLabel: "B"},
	}
	raw := []asr.RawSegment{{Text: "real content here", StartSec: 0, EndSec: 1}}

	aligned := Align(sentences, raw)

	if len(aligned) != 1 {
		t.Fatalf("got %d aligned sentences, want 1", len(aligned))
	}
	if strings.TrimSpace(aligned[0].Text) == "" {
		t.Error("blank sentence survived alignment")
	}
}

func TestAlignPreservesAllText(t *testing.T) {
	sentences := []formatter.Sentence{
		{Text: "One short one.", SpeakerLabel: "A"},
		{Text: "A somewhat longer second sentence here.", SpeakerLabel: "B"},
		{Text: "And a trailing third with no raw match at all.", SpeakerLabel: "A"},
	}
	raw := []asr.RawSegment{
		{Text: "one short one", StartSec: 0, EndSec: 1},
	}

	aligned := Align(sentences, raw)

	var wantLen, gotLen int
	for _, s := range sentences {
		wantLen += len(normalizeText(s.Text))
	}
	for _, a := range aligned {
		gotLen += len(normalizeText(a.Text))
	}
	if gotLen != wantLen {
		t.Errorf("normalized text length %d, want %d; alignment lost text", gotLen, wantLen)
	}
}

func TestAlignEmptyInputs(t *testing.T) {
	if got := Align(nil, []asr.RawSegment{{Text: "x"}}); got != nil {
		t.Errorf("no sentences should yield nil, got %v", got)
	}
	if got := Align([]formatter.Sentence{{Text: "x"}}, nil); got != nil {
		t.Errorf("no raw segments should yield nil, got %v", got)
	}
}
