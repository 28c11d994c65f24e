package reconcile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/asr"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/diarization"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/formatter"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/models"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/observability/metrics"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/store"
)

// Errors surfaced by a reconciliation pass. Recoverable conditions
// (ambiguous alignment, unreliable overlap) are handled locally and never
// reach the caller.
var (
	// ErrSourceFailed marks a configured collaborator that errored at call
	// time. Fatal for ASR, and for diarization in the merge tier.
	ErrSourceFailed = errors.New("annotation source failed")
	// ErrEmptyTranscript marks an ASR result with no usable text; the pass
	// aborts and the previous transcript, if any, is left untouched.
	ErrEmptyTranscript = errors.New("asr returned empty transcript")
	// ErrNothingToMerge marks a merge tier that produced no segments even
	// after the full-text fallback.
	ErrNothingToMerge = errors.New("nothing to merge")
)

// Tier is one of the orchestrator's mutually exclusive processing
// strategies, chosen by collaborator availability.
type Tier int

const (
	// TierAlignAndLabel aligns formatter sentences to ASR timestamps and
	// votes speakers from the diarization timeline.
	TierAlignAndLabel Tier = iota
	// TierFormatterOnly keeps the formatter's own speaker labels when
	// diarization is disabled or unavailable.
	TierFormatterOnly
	// TierMergePipeline merges raw ASR segments into diarization turns
	// when no formatter ran.
	TierMergePipeline
	// TierSimpleSplit splits the raw text on punctuation with alternating
	// placeholder speakers when no annotation source is usable.
	TierSimpleSplit
)

func (t Tier) String() string {
	switch t {
	case TierAlignAndLabel:
		return "align_and_label"
	case TierFormatterOnly:
		return "formatter_only"
	case TierMergePipeline:
		return "merge_pipeline"
	case TierSimpleSplit:
		return "simple_split"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Notifier pushes "transcripts updated" events to a conversation's live
// subscribers after a pass persists.
type Notifier interface {
	TranscriptsUpdated(ctx context.Context, conversationID string, count int) error
}

// Config holds the orchestrator's feature switches.
type Config struct {
	// EnableDiarization gates both the speaker-vote step of the formatter
	// tier and the merge tier.
	EnableDiarization bool
	// EnableFormatting gates the formatter tiers.
	EnableFormatting bool
	// EnableQualityGate runs the hallucination detector before persisting.
	// The gate is advisory: its verdict is logged and counted, never
	// blocking.
	EnableQualityGate bool
	// DefaultSpeakerID labels sentences with no diarization evidence.
	DefaultSpeakerID string
}

// Orchestrator drives one reconciliation pass per stopped recording: it
// selects a processing tier from collaborator availability, runs the
// per-tier pipeline, and atomically replaces the recording's final
// transcript segments.
type Orchestrator struct {
	transcriber asr.Transcriber
	analyzer    diarization.Analyzer // may be nil
	fmtr        formatter.Formatter  // may be nil
	segments    store.Store
	notifier    Notifier
	gate        *Detector
	cfg         Config
	locks       *conversationLocks
	log         zerolog.Logger
}

// NewOrchestrator wires a pass runner. analyzer and fmtr may be nil when
// the corresponding collaborator is not configured; notifier and gate may
// be nil.
func NewOrchestrator(
	transcriber asr.Transcriber,
	analyzer diarization.Analyzer,
	fmtr formatter.Formatter,
	segments store.Store,
	notifier Notifier,
	gate *Detector,
	cfg Config,
	logger zerolog.Logger,
) *Orchestrator {
	if cfg.DefaultSpeakerID == "" {
		cfg.DefaultSpeakerID = DefaultSpeakerID
	}
	return &Orchestrator{
		transcriber: transcriber,
		analyzer:    analyzer,
		fmtr:        fmtr,
		segments:    segments,
		notifier:    notifier,
		gate:        gate,
		cfg:         cfg,
		locks:       newConversationLocks(),
		log:         logger,
	}
}

// relativeSegment is a tier product before seq assignment and absolute
// timestamp conversion. Timestamps are relative milliseconds.
type relativeSegment struct {
	startMS   int64
	endMS     int64
	text      string
	speakerID string
}

// Run executes one reconciliation pass for the session. Passes for the
// same conversation are serialized; passes for different conversations run
// concurrently. On any abort the previously persisted transcript is left
// untouched.
func (o *Orchestrator) Run(ctx context.Context, ses *Session) error {
	o.locks.lock(ses.ConversationID)
	defer o.locks.unlock(ses.ConversationID)

	logger := o.log.With().
		Str("conversationId", ses.ConversationID).
		Str("passId", ses.PassID).
		Logger()
	started := time.Now()

	asrRes, err := o.transcriber.Transcribe(ctx, asr.Request{
		AudioPath:      ses.AudioPath,
		Language:       ses.Language,
		WordTimestamps: true,
	})
	if err != nil {
		metrics.DefaultMetrics.PassesFailed.WithLabelValues("asr_failed").Inc()
		logger.Error().Err(err).Msg("ASR failed, aborting pass")
		return fmt.Errorf("asr %s: %w", o.transcriber.Name(), errors.Join(ErrSourceFailed, err))
	}
	if strings.TrimSpace(asrRes.FullText) == "" {
		metrics.DefaultMetrics.PassesFailed.WithLabelValues("empty_transcript").Inc()
		logger.Warn().Msg("ASR returned empty transcript, keeping existing segments")
		return ErrEmptyTranscript
	}
	logger.Info().
		Int("segments", len(asrRes.Segments)).
		Int("textLen", len(asrRes.FullText)).
		Str("language", asrRes.Language).
		Msg("ASR done")

	tier, rel, err := o.runTier(ctx, logger, ses, asrRes)
	if err != nil {
		metrics.DefaultMetrics.PassesFailed.WithLabelValues("tier_" + tier.String()).Inc()
		return err
	}
	if len(rel) == 0 {
		metrics.DefaultMetrics.PassesFailed.WithLabelValues("no_output").Inc()
		logger.Warn().Str("tier", tier.String()).Msg("Tier produced no segments, keeping existing transcript")
		return ErrNothingToMerge
	}

	sort.SliceStable(rel, func(i, j int) bool { return rel[i].startMS < rel[j].startMS })

	if o.cfg.EnableQualityGate && o.gate != nil {
		verdict := o.gate.Score(asrRes.FullText, asrRes.Segments)
		if verdict.IsHallucination {
			// Advisory only: record the verdict, persist anyway.
			metrics.DefaultMetrics.QualityGateFlags.WithLabelValues(reasonKind(verdict.Reason)).Inc()
			logger.Warn().
				Str("reason", verdict.Reason).
				Float64("confidence", verdict.Confidence).
				Msg("Quality gate flagged transcript")
		}
	}

	persisted, err := o.persist(ctx, logger, ses, rel)
	if err != nil {
		metrics.DefaultMetrics.PassesFailed.WithLabelValues("persist").Inc()
		return err
	}
	if persisted == 0 {
		// Conversation vanished mid-pass; already logged.
		return nil
	}

	if o.notifier != nil {
		if err := o.notifier.TranscriptsUpdated(ctx, ses.ConversationID, persisted); err != nil {
			logger.Error().Err(err).Msg("Failed to notify transcript subscribers")
		}
	}

	metrics.DefaultMetrics.PassesTotal.WithLabelValues(tier.String()).Inc()
	metrics.DefaultMetrics.PassDuration.Observe(time.Since(started).Seconds())
	metrics.DefaultMetrics.SegmentsPersisted.Add(float64(persisted))
	logger.Info().
		Str("tier", tier.String()).
		Int("persisted", persisted).
		Dur("elapsed", time.Since(started)).
		Msg("Reconciliation pass completed")
	return nil
}

// runTier selects and executes the processing tier. All degradations are
// explicit branches; a tier never silently substitutes wrong data.
func (o *Orchestrator) runTier(ctx context.Context, logger zerolog.Logger, ses *Session, asrRes *asr.Result) (Tier, []relativeSegment, error) {
	formatterUsable := o.cfg.EnableFormatting && o.fmtr != nil && o.fmtr.IsAvailable()
	diarizationUsable := o.cfg.EnableDiarization && o.analyzer != nil && o.analyzer.IsAvailable(ctx)

	switch {
	case formatterUsable:
		return o.runFormatterTier(ctx, logger, ses, asrRes, diarizationUsable)
	case diarizationUsable:
		rel, err := o.runMergeTier(ctx, logger, ses, asrRes)
		return TierMergePipeline, rel, err
	default:
		logger.Info().Msg("No annotation source usable, splitting raw text")
		return TierSimpleSplit, simpleSplit(asrRes.FullText), nil
	}
}

func (o *Orchestrator) runFormatterTier(ctx context.Context, logger zerolog.Logger, ses *Session, asrRes *asr.Result, diarizationUsable bool) (Tier, []relativeSegment, error) {
	sentences, err := o.formatSentences(ctx, logger, ses, asrRes)
	if err != nil {
		// Formatter failure degrades to the punctuation splitter over the
		// raw ASR text; the pass still completes.
		logger.Warn().Err(err).Msg("Formatter failed, degrading to simple split")
		return TierSimpleSplit, simpleSplit(asrRes.FullText), nil
	}
	logger.Info().Int("sentences", len(sentences)).Msg("Formatter done")

	aligned := Align(sentences, asrRes.Segments)

	if !diarizationUsable {
		logger.Info().Msg("Diarization not usable, keeping formatter speaker labels")
		return TierFormatterOnly, remapFormatterLabels(aligned), nil
	}

	turns, err := o.analyzer.AnalyzeSpeakers(ctx, diarization.Request{AudioPath: ses.AudioPath})
	if err != nil || len(turns) == 0 {
		// Inside the formatter tier a diarization failure is non-fatal:
		// the formatter's own labels are kept.
		logger.Warn().Err(err).Msg("Diarization unusable, keeping formatter speaker labels")
		return TierFormatterOnly, remapFormatterLabels(aligned), nil
	}

	labeled := AssignSpeakers(aligned, turns, o.cfg.DefaultSpeakerID)
	analysis := AnalyzeSpeakerChanges(labeled)
	logger.Info().
		Int("sentences", analysis.TotalSentences).
		Int("speakerChanges", analysis.SpeakerChanges).
		Strs("speakers", analysis.Speakers).
		Float64("sentencesPerTurn", analysis.AvgSentencesPerTurn).
		Msg("Speakers assigned")

	rel := make([]relativeSegment, 0, len(labeled))
	for _, s := range labeled {
		rel = append(rel, relativeSegment{
			startMS:   int64(s.StartSec * 1000),
			endMS:     int64(s.EndSec * 1000),
			text:      s.Text,
			speakerID: s.SpeakerID,
		})
	}
	return TierAlignAndLabel, rel, nil
}

func (o *Orchestrator) formatSentences(ctx context.Context, logger zerolog.Logger, ses *Session, asrRes *asr.Result) ([]formatter.Sentence, error) {
	language := asrRes.Language
	if language == "" {
		language = ses.Language
	}
	if ses.LiveHintText != "" {
		sentences, err := o.fmtr.FormatWithComparison(ctx, ses.LiveHintText, asrRes.FullText, language)
		if err == nil {
			return sentences, nil
		}
		logger.Warn().Err(err).Msg("Comparison formatting failed, retrying with ASR text only")
	}
	return o.fmtr.FormatConversation(ctx, asrRes.FullText, language)
}

func (o *Orchestrator) runMergeTier(ctx context.Context, logger zerolog.Logger, ses *Session, asrRes *asr.Result) ([]relativeSegment, error) {
	turns, err := o.analyzer.AnalyzeSpeakers(ctx, diarization.Request{AudioPath: ses.AudioPath})
	if err != nil {
		// No formatter and no diarization leaves nothing to merge against.
		logger.Error().Err(err).Msg("Diarization failed in merge tier, aborting pass")
		return nil, fmt.Errorf("diarization: %w", errors.Join(ErrSourceFailed, err))
	}
	if len(turns) == 0 {
		logger.Warn().Msg("Diarization returned no turns, aborting pass")
		return nil, ErrNothingToMerge
	}

	merged := MergeByOverlap(asrRes.Segments, turns)
	if len(merged) == 0 {
		logger.Warn().Msg("Overlap merge empty, apportioning full text across turns")
		merged = FallbackMergeWithFullText(asrRes.FullText, turns)
	}
	if len(merged) == 0 {
		return nil, ErrNothingToMerge
	}
	merged = MergeConsecutiveSameSpeaker(merged)

	rel := make([]relativeSegment, 0, len(merged))
	for _, m := range merged {
		rel = append(rel, relativeSegment{
			startMS:   m.StartMS,
			endMS:     m.EndMS,
			text:      m.Text,
			speakerID: m.SpeakerID,
		})
	}
	return rel, nil
}

// persist atomically replaces the recording's segment range with the new
// ordered list. Returns the number of persisted segments; (0, nil) means
// the conversation vanished mid-pass and the pass ends as a no-op.
func (o *Orchestrator) persist(ctx context.Context, logger zerolog.Logger, ses *Session, rel []relativeSegment) (int, error) {
	conv, err := o.segments.GetConversation(ctx, ses.ConversationID)
	if errors.Is(err, store.ErrConversationNotFound) {
		logger.Warn().Msg("Conversation deleted mid-pass, abandoning persist")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load conversation: %w", err)
	}

	startSeq := ses.StartSeq
	if startSeq < 0 {
		startSeq, err = o.segments.MaxSeq(ctx, ses.ConversationID)
		if err != nil {
			return 0, fmt.Errorf("read max seq: %w", err)
		}
	}

	// Later recording rounds append after the previous round's last
	// timestamp so absolute times never collide. The offset is measured
	// against segments that predate this recording (seq <= startSeq).
	var timeOffset int64
	if lastEnd, ok, err := o.segments.LastEndMS(ctx, ses.ConversationID, startSeq); err != nil {
		return 0, fmt.Errorf("read last end: %w", err)
	} else if ok && lastEnd > conv.StartedMS {
		timeOffset = lastEnd - conv.StartedMS
	}

	finals := make([]models.FinalTranscriptSegment, 0, len(rel))
	for i, seg := range rel {
		finals = append(finals, models.FinalTranscriptSegment{
			ConversationID: ses.ConversationID,
			Seq:            startSeq + 1 + i,
			IsFinal:        true,
			StartMS:        conv.StartedMS + timeOffset + seg.startMS,
			EndMS:          conv.StartedMS + timeOffset + seg.endMS,
			Text:           seg.text,
			SpeakerID:      seg.speakerID,
		})
	}

	if err := o.segments.ReplaceSegments(ctx, ses.ConversationID, startSeq, finals); err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			logger.Warn().Msg("Conversation deleted mid-pass, abandoning persist")
			return 0, nil
		}
		return 0, fmt.Errorf("replace segments: %w", err)
	}
	logger.Info().
		Int("count", len(finals)).
		Int("fromSeq", startSeq+1).
		Int64("timeOffsetMs", timeOffset).
		Msg("Replaced transcript segments")
	return len(finals), nil
}

var sentenceBoundaryRe = regexp.MustCompile(`[.!?。！？]+`)

// estimatedSentenceDurMS is the fixed per-sentence duration used when no
// timing source exists at all.
const estimatedSentenceDurMS = 3000

// simpleSplit is the last-resort tier: split on sentence punctuation,
// alternate two placeholder speakers, estimate a fixed duration per
// sentence.
func simpleSplit(fullText string) []relativeSegment {
	var rel []relativeSegment
	for _, part := range sentenceBoundaryRe.Split(fullText, -1) {
		text := strings.TrimSpace(part)
		if text == "" {
			continue
		}
		i := len(rel)
		speaker := "SPEAKER_A"
		if i%2 == 1 {
			speaker = "SPEAKER_B"
		}
		rel = append(rel, relativeSegment{
			startMS:   int64(i * estimatedSentenceDurMS),
			endMS:     int64((i + 1) * estimatedSentenceDurMS),
			text:      text,
			speakerID: speaker,
		})
	}
	return rel
}

// remapFormatterLabels converts the formatter's label alphabet into the
// speaker-id namespace ("A" -> "SPEAKER_A") when diarization is skipped.
func remapFormatterLabels(aligned []AlignedSentence) []relativeSegment {
	rel := make([]relativeSegment, 0, len(aligned))
	for _, s := range aligned {
		label := strings.TrimSpace(s.SpeakerLabel)
		if label == "" {
			label = "UNKNOWN"
		}
		rel = append(rel, relativeSegment{
			startMS:   int64(s.StartSec * 1000),
			endMS:     int64(s.EndSec * 1000),
			text:      s.Text,
			speakerID: "SPEAKER_" + label,
		})
	}
	return rel
}

// reasonKind strips the variable suffix from a gate reason so it can be
// used as a metric label ("repeated_word: 5 times" -> "repeated_word").
func reasonKind(reason string) string {
	if i := strings.IndexByte(reason, ':'); i > 0 {
		return reason[:i]
	}
	return reason
}
