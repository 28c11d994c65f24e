package reconcile

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/asr"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/diarization"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/observability/metrics"
)

const (
	// overlapRatioThreshold is the minimum share of a raw segment's own
	// duration that must fall inside a diarization turn for the segment to
	// be attributed to that turn. Looser catches more text, stricter keeps
	// speaker attribution cleaner.
	overlapRatioThreshold = 0.45

	// maxMergeGapMS is the largest silence between two same-speaker
	// segments that still counts as one utterance.
	maxMergeGapMS = 2000
)

// MergedSegment is a speaker-attributed span built from raw ASR segments
// in the no-formatter tier. Timestamps are relative milliseconds.
type MergedSegment struct {
	SpeakerID string
	StartMS   int64
	EndMS     int64
	Text      string
}

// MergeByOverlap attributes raw ASR segments to diarization turns: for
// each turn it gathers every still-unused raw segment whose overlap ratio
// meets the threshold and concatenates their text in original order.
//
// Raw segments that match no turn are logged and dropped rather than
// guessed onto a speaker. Attribution is tuned via overlapRatioThreshold,
// never by guessing an owner.
func MergeByOverlap(raw []asr.RawSegment, turns []diarization.Turn) []MergedSegment {
	if len(raw) == 0 || len(turns) == 0 {
		return nil
	}

	used := make([]bool, len(raw))
	var merged []MergedSegment

	for _, turn := range turns {
		var texts []string
		for i, seg := range raw {
			if used[i] {
				continue
			}
			overlapStart := turn.StartMS
			if seg.StartMS() > overlapStart {
				overlapStart = seg.StartMS()
			}
			overlapEnd := turn.EndMS
			if seg.EndMS() < overlapEnd {
				overlapEnd = seg.EndMS()
			}
			overlap := overlapEnd - overlapStart
			dur := seg.DurationMS()
			if dur <= 0 || overlap <= 0 {
				continue
			}
			if float64(overlap)/float64(dur) >= overlapRatioThreshold {
				texts = append(texts, strings.TrimSpace(seg.Text))
				used[i] = true
			}
		}
		if len(texts) > 0 {
			merged = append(merged, MergedSegment{
				SpeakerID: turn.SpeakerID,
				StartMS:   turn.StartMS,
				EndMS:     turn.EndMS,
				Text:      strings.TrimSpace(strings.Join(texts, " ")),
			})
		}
	}

	unmatched := 0
	for i, seg := range raw {
		if !used[i] {
			unmatched++
			log.Debug().
				Str("component", "merge").
				Str("text", seg.Text).
				Float64("startSec", seg.StartSec).
				Msg("Raw segment matched no diarization turn, dropping")
		}
	}
	if unmatched > 0 {
		metrics.DefaultMetrics.RawSegmentsDropped.Add(float64(unmatched))
		log.Warn().
			Str("component", "merge").
			Int("unmatched", unmatched).
			Msg("Dropped raw segments without a turn match")
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].StartMS < merged[j].StartMS })
	return merged
}

// MergeConsecutiveSameSpeaker folds adjacent same-speaker segments whose
// gap is at most maxMergeGapMS into one, repairing diarization's tendency
// to fragment a single utterance into micro-turns. Idempotent.
func MergeConsecutiveSameSpeaker(segments []MergedSegment) []MergedSegment {
	if len(segments) == 0 {
		return nil
	}

	sorted := make([]MergedSegment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartMS < sorted[j].StartMS })

	merged := make([]MergedSegment, 0, len(sorted))
	current := sorted[0]
	for _, seg := range sorted[1:] {
		if seg.SpeakerID == current.SpeakerID && seg.StartMS-current.EndMS <= maxMergeGapMS {
			current.EndMS = seg.EndMS
			switch {
			case current.Text != "" && seg.Text != "":
				current.Text = strings.TrimSpace(current.Text) + " " + strings.TrimSpace(seg.Text)
			case seg.Text != "":
				current.Text = seg.Text
			}
			continue
		}
		merged = append(merged, current)
		current = seg
	}
	merged = append(merged, current)
	return merged
}

// FallbackMergeWithFullText apportions the whitespace-tokenized full text
// across diarization turns proportionally to each turn's share of the total
// diarized duration, appending any remainder to the final turn. A crude
// last resort used only when MergeByOverlap yields nothing: it guarantees
// no audio-derived text is discarded even when segment matching fails
// entirely.
func FallbackMergeWithFullText(fullText string, turns []diarization.Turn) []MergedSegment {
	words := strings.Fields(fullText)
	if len(words) == 0 || len(turns) == 0 {
		return nil
	}

	var totalDur int64
	for _, t := range turns {
		totalDur += t.EndMS - t.StartMS
	}
	if totalDur == 0 {
		return nil
	}

	var merged []MergedSegment
	wordIdx := 0
	for _, turn := range turns {
		share := float64(turn.EndMS-turn.StartMS) / float64(totalDur)
		count := int(float64(len(words)) * share)
		if count < 1 {
			count = 1
		}
		if wordIdx >= len(words) {
			break
		}
		end := wordIdx + count
		if end > len(words) {
			end = len(words)
		}
		merged = append(merged, MergedSegment{
			SpeakerID: turn.SpeakerID,
			StartMS:   turn.StartMS,
			EndMS:     turn.EndMS,
			Text:      strings.Join(words[wordIdx:end], " "),
		})
		wordIdx = end
	}

	if wordIdx < len(words) && len(merged) > 0 {
		merged[len(merged)-1].Text += " " + strings.Join(words[wordIdx:], " ")
	}

	log.Info().
		Str("component", "merge").
		Int("segments", len(merged)).
		Msg("Fallback full-text apportionment used")
	return merged
}
