// Package reconcile implements the post-recording reconciliation pipeline:
// it aligns formatter sentences against ASR timestamps, votes a speaker per
// sentence from the diarization timeline, merges raw segments when no
// formatter ran, and rebuilds the conversation's final transcript.
package reconcile

import (
	"strings"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/asr"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/formatter"
)

const (
	// acceptSimilarity stops accumulation: the gathered raw text matches
	// the sentence well enough.
	acceptSimilarity = 0.70
	// provisionalSimilarity keeps a partially matching raw segment in the
	// running match rather than truncating legitimate content.
	provisionalSimilarity = 0.30
	// synthSecPerChar estimates sentence duration when the raw segments
	// are exhausted and a timestamp has to be made up.
	synthSecPerChar = 0.1
)

// AlignedSentence is a formatter sentence enriched with a best-effort time
// range derived from raw ASR segments.
type AlignedSentence struct {
	StartSec     float64
	EndSec       float64
	Text         string
	SpeakerLabel string // the formatter's own label ("A", "B", ...)
}

// Align maps formatter sentences onto raw ASR segment timestamps using
// text similarity. Both inputs are consumed once, in order; a greedy
// monotonic cursor over raw guarantees the output is non-decreasing in
// start time. No sentence text is ever dropped: when no good match
// exists the sentence gets an approximate timestamp instead.
func Align(sentences []formatter.Sentence, raw []asr.RawSegment) []AlignedSentence {
	if len(sentences) == 0 || len(raw) == 0 {
		return nil
	}

	aligned := make([]AlignedSentence, 0, len(sentences))
	cursor := 0

	for _, sent := range sentences {
		if strings.TrimSpace(sent.Text) == "" {
			continue
		}
		wantLen := len(normalizeText(sent.Text))

		// Accumulate consecutive raw segments from the cursor until the
		// similarity or coverage condition fires. Segments with middling
		// similarity are provisionally included; low-similarity segments
		// still feed the accumulated text so a later segment can complete
		// the match.
		var matched []asr.RawSegment
		var accumulated strings.Builder
		for i := cursor; i < len(raw); i++ {
			accumulated.WriteString(" ")
			accumulated.WriteString(raw[i].Text)

			sim := textSimilarity(sent.Text, accumulated.String())
			if sim > acceptSimilarity || len(normalizeText(accumulated.String())) >= wantLen {
				matched = append(matched, raw[i])
				cursor = i + 1
				break
			}
			if sim > provisionalSimilarity {
				matched = append(matched, raw[i])
			}
		}

		// No condition fired before raw ran out: force-consume one segment
		// so the cursor keeps moving.
		if len(matched) == 0 && cursor < len(raw) {
			matched = append(matched, raw[cursor])
			cursor++
		}

		var startSec, endSec float64
		if len(matched) > 0 {
			startSec = matched[0].StartSec
			endSec = matched[len(matched)-1].EndSec
		} else {
			// Raw exhausted entirely: synthesize a timestamp after the
			// previous sentence with a crude per-character duration.
			if len(aligned) > 0 {
				startSec = aligned[len(aligned)-1].EndSec
			}
			endSec = startSec + float64(len(sent.Text))*synthSecPerChar
		}

		aligned = append(aligned, AlignedSentence{
			StartSec:     startSec,
			EndSec:       endSec,
			Text:         sent.Text,
			SpeakerLabel: sent.SpeakerLabel,
		})
	}

	return aligned
}
