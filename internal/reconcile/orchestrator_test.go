package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/asr"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/diarization"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/formatter"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/store"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/store/memory"
)

type fakeTranscriber struct {
	result *asr.Result
	err    error
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Transcribe(context.Context, asr.Request) (*asr.Result, error) {
	return f.result, f.err
}

type fakeAnalyzer struct {
	turns     []diarization.Turn
	err       error
	available bool
}

func (f *fakeAnalyzer) AnalyzeSpeakers(context.Context, diarization.Request) ([]diarization.Turn, error) {
	return f.turns, f.err
}

func (f *fakeAnalyzer) IsAvailable(context.Context) bool { return f.available }

type fakeFormatter struct {
	sentences  []formatter.Sentence
	err        error
	available  bool
	comparison bool // set when FormatWithComparison was called
}

func (f *fakeFormatter) FormatConversation(context.Context, string, string) ([]formatter.Sentence, error) {
	return f.sentences, f.err
}

func (f *fakeFormatter) FormatWithComparison(context.Context, string, string, string) ([]formatter.Sentence, error) {
	f.comparison = true
	return f.sentences, f.err
}

func (f *fakeFormatter) IsAvailable() bool { return f.available }

type fakeNotifier struct {
	calls []int
}

func (f *fakeNotifier) TranscriptsUpdated(_ context.Context, _ string, count int) error {
	f.calls = append(f.calls, count)
	return nil
}

const testConvStart = int64(1_700_000_000_000)

func newTestStore(convID string) *memory.Store {
	s := memory.NewStore()
	s.PutConversation(store.Conversation{ID: convID, StartedMS: testConvStart})
	return s
}

func twoSegmentResult() *asr.Result {
	return &asr.Result{
		FullText: "hello there. hi how are you",
		Segments: []asr.RawSegment{
			{Text: "hello there", StartSec: 0, EndSec: 2.0, AvgLogProb: -0.2},
			{Text: "hi how are you", StartSec: 2.2, EndSec: 4.0, AvgLogProb: -0.2},
		},
		Language:    "en",
		DurationSec: 4.0,
	}
}

func TestRunAlignAndLabelTier(t *testing.T) {
	segments := newTestStore("conv-1")
	notifier := &fakeNotifier{}
	fmtr := &fakeFormatter{
		available: true,
		sentences: []formatter.Sentence{
			{Text: "Hello there.", SpeakerLabel: "A"},
			{Text: "Hi, how are you?", SpeakerLabel: "B"},
		},
	}
	analyzer := &fakeAnalyzer{
		available: true,
		turns: []diarization.Turn{
			{SpeakerID: "SPEAKER_00", StartMS: 0, EndMS: 2100},
			{SpeakerID: "SPEAKER_01", StartMS: 2100, EndMS: 4100},
		},
	}

	o := NewOrchestrator(
		&fakeTranscriber{result: twoSegmentResult()},
		analyzer, fmtr, segments, notifier, nil,
		Config{EnableDiarization: true, EnableFormatting: true},
		zerolog.Nop(),
	)

	ses := NewSession("conv-1", "/tmp/a.wav")
	if err := o.Run(context.Background(), ses); err != nil {
		t.Fatalf("Run: %v", err)
	}

	persisted, err := segments.ListSegments(context.Background(), "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 2 {
		t.Fatalf("persisted %d segments, want 2", len(persisted))
	}
	for i, seg := range persisted {
		if seg.Seq != i+1 {
			t.Errorf("seq[%d] = %d, want contiguous from 1", i, seg.Seq)
		}
		if !seg.IsFinal {
			t.Errorf("seq %d not marked final", seg.Seq)
		}
		if seg.StartMS < testConvStart {
			t.Errorf("seq %d start %d predates conversation start", seg.Seq, seg.StartMS)
		}
	}
	if persisted[0].SpeakerID != "SPEAKER_00" || persisted[1].SpeakerID != "SPEAKER_01" {
		t.Errorf("speakers = %q, %q", persisted[0].SpeakerID, persisted[1].SpeakerID)
	}
	if len(notifier.calls) != 1 || notifier.calls[0] != 2 {
		t.Errorf("notifier calls = %v, want one call with count 2", notifier.calls)
	}
}

func TestRunFormatterOnlyKeepsRemappedLabels(t *testing.T) {
	segments := newTestStore("conv-2")
	fmtr := &fakeFormatter{
		available: true,
		sentences: []formatter.Sentence{
			{Text: "Hello there.", SpeakerLabel: "A"},
			{Text: "Hi, how are you?", SpeakerLabel: "B"},
		},
	}

	o := NewOrchestrator(
		&fakeTranscriber{result: twoSegmentResult()},
		&fakeAnalyzer{available: false}, fmtr, segments, nil, nil,
		Config{EnableDiarization: true, EnableFormatting: true},
		zerolog.Nop(),
	)

	if err := o.Run(context.Background(), NewSession("conv-2", "/tmp/a.wav")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	persisted, _ := segments.ListSegments(context.Background(), "conv-2")
	if len(persisted) != 2 {
		t.Fatalf("persisted %d segments, want 2", len(persisted))
	}
	if persisted[0].SpeakerID != "SPEAKER_A" || persisted[1].SpeakerID != "SPEAKER_B" {
		t.Errorf("speakers = %q, %q, want remapped formatter labels",
			persisted[0].SpeakerID, persisted[1].SpeakerID)
	}
}

func TestRunMergeTier(t *testing.T) {
	segments := newTestStore("conv-3")
	analyzer := &fakeAnalyzer{
		available: true,
		turns: []diarization.Turn{
			{SpeakerID: "SPEAKER_00", StartMS: 0, EndMS: 2100},
			{SpeakerID: "SPEAKER_01", StartMS: 2100, EndMS: 4100},
		},
	}

	o := NewOrchestrator(
		&fakeTranscriber{result: twoSegmentResult()},
		analyzer, nil, segments, nil, nil,
		Config{EnableDiarization: true},
		zerolog.Nop(),
	)

	if err := o.Run(context.Background(), NewSession("conv-3", "/tmp/a.wav")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	persisted, _ := segments.ListSegments(context.Background(), "conv-3")
	if len(persisted) != 2 {
		t.Fatalf("persisted %d segments, want 2", len(persisted))
	}
	if persisted[0].Text != "hello there" {
		t.Errorf("first text = %q", persisted[0].Text)
	}
}

func TestRunSimpleSplitTier(t *testing.T) {
	segments := newTestStore("conv-4")

	o := NewOrchestrator(
		&fakeTranscriber{result: twoSegmentResult()},
		nil, nil, segments, nil, nil,
		Config{},
		zerolog.Nop(),
	)

	if err := o.Run(context.Background(), NewSession("conv-4", "/tmp/a.wav")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	persisted, _ := segments.ListSegments(context.Background(), "conv-4")
	if len(persisted) != 2 {
		t.Fatalf("persisted %d segments, want 2 from punctuation split", len(persisted))
	}
	if persisted[0].SpeakerID != "SPEAKER_A" || persisted[1].SpeakerID != "SPEAKER_B" {
		t.Errorf("speakers = %q, %q, want alternating placeholders",
			persisted[0].SpeakerID, persisted[1].SpeakerID)
	}
	if dur := persisted[0].EndMS - persisted[0].StartMS; dur != estimatedSentenceDurMS {
		t.Errorf("estimated duration = %d, want %d", dur, estimatedSentenceDurMS)
	}
}

func TestRunFormatterFailureDegradesToSimpleSplit(t *testing.T) {
	segments := newTestStore("conv-5")
	fmtr := &fakeFormatter{available: true, err: errors.New("quota exceeded")}

	o := NewOrchestrator(
		&fakeTranscriber{result: twoSegmentResult()},
		nil, fmtr, segments, nil, nil,
		Config{EnableFormatting: true},
		zerolog.Nop(),
	)

	if err := o.Run(context.Background(), NewSession("conv-5", "/tmp/a.wav")); err != nil {
		t.Fatalf("Run should survive a formatter failure, got %v", err)
	}

	persisted, _ := segments.ListSegments(context.Background(), "conv-5")
	if len(persisted) == 0 {
		t.Fatal("formatter failure must still persist a split transcript")
	}
}

func TestRunASRFailureIsFatal(t *testing.T) {
	segments := newTestStore("conv-6")

	o := NewOrchestrator(
		&fakeTranscriber{err: errors.New("engine exploded")},
		nil, nil, segments, nil, nil,
		Config{},
		zerolog.Nop(),
	)

	err := o.Run(context.Background(), NewSession("conv-6", "/tmp/a.wav"))
	if !errors.Is(err, ErrSourceFailed) {
		t.Fatalf("err = %v, want ErrSourceFailed", err)
	}
	if persisted, _ := segments.ListSegments(context.Background(), "conv-6"); len(persisted) != 0 {
		t.Errorf("store touched after ASR failure: %d segments", len(persisted))
	}
}

func TestRunEmptyTranscriptKeepsExisting(t *testing.T) {
	segments := newTestStore("conv-7")

	o := NewOrchestrator(
		&fakeTranscriber{result: &asr.Result{FullText: "  "}},
		nil, nil, segments, nil, nil,
		Config{},
		zerolog.Nop(),
	)

	err := o.Run(context.Background(), NewSession("conv-7", "/tmp/a.wav"))
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
}

func TestRunDiarizationFailureFatalInMergeTier(t *testing.T) {
	segments := newTestStore("conv-8")
	analyzer := &fakeAnalyzer{available: true, err: errors.New("sidecar down")}

	o := NewOrchestrator(
		&fakeTranscriber{result: twoSegmentResult()},
		analyzer, nil, segments, nil, nil,
		Config{EnableDiarization: true},
		zerolog.Nop(),
	)

	err := o.Run(context.Background(), NewSession("conv-8", "/tmp/a.wav"))
	if !errors.Is(err, ErrSourceFailed) {
		t.Fatalf("err = %v, want ErrSourceFailed", err)
	}
}

func TestRunNoTurnsNothingToMerge(t *testing.T) {
	segments := newTestStore("conv-9")
	analyzer := &fakeAnalyzer{available: true}

	o := NewOrchestrator(
		&fakeTranscriber{result: twoSegmentResult()},
		analyzer, nil, segments, nil, nil,
		Config{EnableDiarization: true},
		zerolog.Nop(),
	)

	err := o.Run(context.Background(), NewSession("conv-9", "/tmp/a.wav"))
	if !errors.Is(err, ErrNothingToMerge) {
		t.Fatalf("err = %v, want ErrNothingToMerge", err)
	}
}

func TestRunConversationVanishedIsNoOp(t *testing.T) {
	segments := memory.NewStore() // no conversation registered
	notifier := &fakeNotifier{}

	o := NewOrchestrator(
		&fakeTranscriber{result: twoSegmentResult()},
		nil, nil, segments, notifier, nil,
		Config{},
		zerolog.Nop(),
	)

	if err := o.Run(context.Background(), NewSession("gone", "/tmp/a.wav")); err != nil {
		t.Fatalf("vanished conversation must be a no-op, got %v", err)
	}
	if len(notifier.calls) != 0 {
		t.Errorf("notifier called %v times for a vanished conversation", len(notifier.calls))
	}
}

func TestRunReplacesOwnRangeOnRerun(t *testing.T) {
	segments := newTestStore("conv-10")

	o := NewOrchestrator(
		&fakeTranscriber{result: twoSegmentResult()},
		nil, nil, segments, nil, nil,
		Config{},
		zerolog.Nop(),
	)

	ses := NewSession("conv-10", "/tmp/a.wav")
	ses.StartSeq = 0
	if err := o.Run(context.Background(), ses); err != nil {
		t.Fatal(err)
	}

	rerun := NewSession("conv-10", "/tmp/a.wav")
	rerun.StartSeq = 0
	if err := o.Run(context.Background(), rerun); err != nil {
		t.Fatal(err)
	}

	persisted, _ := segments.ListSegments(context.Background(), "conv-10")
	if len(persisted) != 2 {
		t.Fatalf("rerun duplicated segments: got %d, want 2", len(persisted))
	}
	seen := map[int]bool{}
	for _, seg := range persisted {
		if seen[seg.Seq] {
			t.Errorf("duplicate seq %d", seg.Seq)
		}
		seen[seg.Seq] = true
	}
}

func TestRunSecondRecordingAppendsAfterFirst(t *testing.T) {
	segments := newTestStore("conv-11")

	o := NewOrchestrator(
		&fakeTranscriber{result: twoSegmentResult()},
		nil, nil, segments, nil, nil,
		Config{},
		zerolog.Nop(),
	)

	if err := o.Run(context.Background(), NewSession("conv-11", "/tmp/a.wav")); err != nil {
		t.Fatal(err)
	}
	first, _ := segments.ListSegments(context.Background(), "conv-11")

	// StartSeq unknown: the second pass reads the current max and appends.
	if err := o.Run(context.Background(), NewSession("conv-11", "/tmp/b.wav")); err != nil {
		t.Fatal(err)
	}
	all, _ := segments.ListSegments(context.Background(), "conv-11")

	if len(all) != 4 {
		t.Fatalf("got %d segments, want 4 across two recordings", len(all))
	}
	for i, seg := range all {
		if seg.Seq != i+1 {
			t.Errorf("seq[%d] = %d, want contiguous numbering", i, seg.Seq)
		}
	}
	firstEnd := first[len(first)-1].EndMS
	if all[2].StartMS < firstEnd {
		t.Errorf("second recording starts at %d, before first recording's end %d",
			all[2].StartMS, firstEnd)
	}
}

func TestRunComparisonModeUsedWithLiveHint(t *testing.T) {
	segments := newTestStore("conv-12")
	fmtr := &fakeFormatter{
		available: true,
		sentences: []formatter.Sentence{{Text: "Hello there.", SpeakerLabel: "A"}},
	}

	o := NewOrchestrator(
		&fakeTranscriber{result: twoSegmentResult()},
		nil, fmtr, segments, nil, nil,
		Config{EnableFormatting: true},
		zerolog.Nop(),
	)

	ses := NewSession("conv-12", "/tmp/a.wav")
	ses.LiveHintText = "hello there hi how"
	if err := o.Run(context.Background(), ses); err != nil {
		t.Fatal(err)
	}
	if !fmtr.comparison {
		t.Error("live hint present but comparison formatting was not used")
	}
}

func TestRunSerializesPassesPerConversation(t *testing.T) {
	segments := newTestStore("conv-13")

	o := NewOrchestrator(
		&fakeTranscriber{result: twoSegmentResult()},
		nil, nil, segments, nil, nil,
		Config{},
		zerolog.Nop(),
	)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			ses := NewSession("conv-13", "/tmp/a.wav")
			ses.StartSeq = 0
			done <- o.Run(context.Background(), ses)
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent run: %v", err)
		}
	}

	persisted, _ := segments.ListSegments(context.Background(), "conv-13")
	if len(persisted) != 2 {
		t.Fatalf("concurrent reruns left %d segments, want 2", len(persisted))
	}
}

func TestTierString(t *testing.T) {
	for tier, want := range map[Tier]string{
		TierAlignAndLabel: "align_and_label",
		TierFormatterOnly: "formatter_only",
		TierMergePipeline: "merge_pipeline",
		TierSimpleSplit:   "simple_split",
	} {
		if got := tier.String(); got != want {
			t.Errorf("Tier(%d).String() = %q, want %q", tier, got, want)
		}
	}
}

func TestSimpleSplitCJKPunctuation(t *testing.T) {
	rel := simpleSplit("こんにちは。元気ですか？")
	if len(rel) != 2 {
		t.Fatalf("got %d segments, want 2 from CJK punctuation", len(rel))
	}
}

func TestReasonKind(t *testing.T) {
	tests := []struct{ in, want string }{
		{"repeated_word: 5 times", "repeated_word"},
		{"empty_text", "empty_text"},
		{fmt.Sprintf("low_avg_confidence: %.2f", 0.12), "low_avg_confidence"},
	}
	for _, tt := range tests {
		if got := reasonKind(tt.in); got != tt.want {
			t.Errorf("reasonKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
