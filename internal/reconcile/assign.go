package reconcile

import (
	"sort"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/diarization"
)

// minReliableOverlapSec is the total overlap below which a diarization
// match is considered noise; the sentence then inherits the previous
// sentence's speaker instead.
const minReliableOverlapSec = 0.1

// DefaultSpeakerID labels a sentence when no diarization evidence and no
// previous sentence exist.
const DefaultSpeakerID = "SPEAKER_00"

// LabeledSentence is an aligned sentence with a voted speaker identity.
type LabeledSentence struct {
	StartSec     float64
	EndSec       float64
	Text         string
	SpeakerID    string
	SpeakerLabel string  // formatter label kept for reference
	Confidence   float64 // winner overlap / total overlap, in [0,1]
}

// AssignSpeakers votes a speaker per sentence by accumulated time overlap
// with diarization turns. Maximum overlap wins; near-zero overlap defers to
// the previous sentence's speaker, which keeps turns contiguous when
// diarization slightly mis-times sentence edges. Turns carry milliseconds
// and are converted to seconds here, at the unit boundary.
func AssignSpeakers(sentences []AlignedSentence, turns []diarization.Turn, defaultSpeaker string) []LabeledSentence {
	if defaultSpeaker == "" {
		defaultSpeaker = DefaultSpeakerID
	}

	labeled := make([]LabeledSentence, 0, len(sentences))
	for _, sent := range sentences {
		overlaps := map[string]float64{}
		for _, turn := range turns {
			turnStart := float64(turn.StartMS) / 1000.0
			turnEnd := float64(turn.EndMS) / 1000.0
			if turnStart >= sent.EndSec || turnEnd <= sent.StartSec {
				continue
			}
			lo := sent.StartSec
			if turnStart > lo {
				lo = turnStart
			}
			hi := sent.EndSec
			if turnEnd < hi {
				hi = turnEnd
			}
			if hi > lo {
				overlaps[turn.SpeakerID] += hi - lo
			}
		}

		speaker, confidence := voteSpeaker(overlaps)
		if speaker == "" || confidence == 0 {
			// Unreliable or absent overlap: fall back to the previous
			// sentence's speaker, or the default for the first sentence.
			if len(labeled) > 0 {
				speaker = labeled[len(labeled)-1].SpeakerID
			} else {
				speaker = defaultSpeaker
			}
			confidence = 0.0
		}

		labeled = append(labeled, LabeledSentence{
			StartSec:     sent.StartSec,
			EndSec:       sent.EndSec,
			Text:         sent.Text,
			SpeakerID:    speaker,
			SpeakerLabel: sent.SpeakerLabel,
			Confidence:   confidence,
		})
	}
	return labeled
}

// voteSpeaker picks the speaker with maximum accumulated overlap. Ties are
// broken toward the lexicographically smaller id so results are
// deterministic. Returns ("", 0) when total overlap is absent or below the
// reliability floor.
func voteSpeaker(overlaps map[string]float64) (string, float64) {
	if len(overlaps) == 0 {
		return "", 0.0
	}
	total := 0.0
	speakers := make([]string, 0, len(overlaps))
	for id, dur := range overlaps {
		total += dur
		speakers = append(speakers, id)
	}
	if total < minReliableOverlapSec {
		return "", 0.0
	}
	sort.Strings(speakers)
	best := speakers[0]
	for _, id := range speakers[1:] {
		if overlaps[id] > overlaps[best] {
			best = id
		}
	}
	return best, overlaps[best] / total
}

// SpeakerChangeAnalysis summarizes turn-taking in a labeled transcript,
// used for post-pass diagnostics.
type SpeakerChangeAnalysis struct {
	TotalSentences      int
	SpeakerChanges      int
	Speakers            []string
	AvgSentencesPerTurn float64
}

// AnalyzeSpeakerChanges computes speaker-change statistics over the
// labeled sentences in order.
func AnalyzeSpeakerChanges(sentences []LabeledSentence) SpeakerChangeAnalysis {
	out := SpeakerChangeAnalysis{TotalSentences: len(sentences)}
	if len(sentences) == 0 {
		return out
	}
	seen := map[string]bool{}
	for i, sent := range sentences {
		seen[sent.SpeakerID] = true
		if i > 0 && sent.SpeakerID != sentences[i-1].SpeakerID {
			out.SpeakerChanges++
		}
	}
	for id := range seen {
		out.Speakers = append(out.Speakers, id)
	}
	sort.Strings(out.Speakers)
	out.AvgSentencesPerTurn = float64(len(sentences)) / float64(out.SpeakerChanges+1)
	return out
}
