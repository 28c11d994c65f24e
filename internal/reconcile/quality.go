package reconcile

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/asr"
)

// Thresholds of the hallucination checks. Tuned loose on purpose: a false
// positive costs a real utterance, a false negative costs one garbage row.
const (
	minAvgConfidence       = 0.30
	maxLowConfidenceRatio  = 0.70
	lowConfidenceScore     = 0.50
	minWordsPerSecond      = 0.5
	maxWordsPerSecond      = 6.0
	maxConsecutiveRepeats  = 4
	minPhraseRepeatCount   = 3
	minDuplicateSentence   = 10
	maxRepeatedCharRun     = 7
	minTextLength          = 3
	maxSpecialCharRatio    = 0.30
	minHistoryOverlapRatio = 0.05
	gateHistorySize        = 5
)

// GateResult is the verdict of one quality-gate evaluation.
type GateResult struct {
	IsHallucination bool
	Reason          string
	Confidence      float64
}

// Detector scores raw ASR output for hallucination symptoms: emptiness,
// low engine confidence, repetition, garbage patterns, and topical
// discontinuity against recent accepted transcripts. It is advisory, a
// side-effect-free scorer aside from its rolling history buffer, so it
// can be wired in front of persistence without restructuring the pipeline.
type Detector struct {
	mu      sync.Mutex
	history []string
}

// NewDetector returns a Detector with empty history.
func NewDetector() *Detector {
	return &Detector{}
}

// Score runs the checks in fixed order; the first failing check wins.
// Segments are optional; without them the confidence check passes with a
// neutral score.
func (d *Detector) Score(text string, segments []asr.RawSegment) GateResult {
	if strings.TrimSpace(text) == "" {
		return GateResult{IsHallucination: true, Reason: "empty_text", Confidence: 0.0}
	}

	conf := checkConfidence(text, segments)
	if conf.IsHallucination {
		return conf
	}

	if res := checkRepetition(text); res.IsHallucination {
		return res
	}
	if res := checkPatterns(text); res.IsHallucination {
		return res
	}
	if res := d.checkCoherence(text); res.IsHallucination {
		return res
	}

	return GateResult{IsHallucination: false, Reason: "valid", Confidence: conf.Confidence}
}

// Reset clears the rolling history; call when a new session starts.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = nil
}

// checkConfidence converts per-segment log-probabilities to 0-1 scores and
// flags low mean confidence, a high share of low-confidence segments, or
// an implausible speech rate.
func checkConfidence(text string, segments []asr.RawSegment) GateResult {
	if len(segments) == 0 {
		return GateResult{Reason: "no_segments", Confidence: 0.7}
	}

	confidences := make([]float64, 0, len(segments))
	totalDur := 0.0
	for _, seg := range segments {
		logProb := seg.AvgLogProb
		if logProb == 0 {
			// Engine did not report one; assume middling.
			logProb = -0.5
		}
		score := logProb + 1.0
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		confidences = append(confidences, score)
		if d := seg.EndSec - seg.StartSec; d > 0 {
			totalDur += d
		}
	}

	avg := stat.Mean(confidences, nil)
	if avg < minAvgConfidence {
		return GateResult{
			IsHallucination: true,
			Reason:          fmt.Sprintf("low_avg_confidence: %.2f", avg),
			Confidence:      avg,
		}
	}

	low := 0
	for _, c := range confidences {
		if c < lowConfidenceScore {
			low++
		}
	}
	if ratio := float64(low) / float64(len(confidences)); ratio > maxLowConfidenceRatio {
		return GateResult{
			IsHallucination: true,
			Reason:          fmt.Sprintf("high_low_confidence_ratio: %.2f", ratio),
			Confidence:      avg,
		}
	}

	if totalDur > 0 {
		wps := float64(len(strings.Fields(text))) / totalDur
		if wps < minWordsPerSecond || wps > maxWordsPerSecond {
			return GateResult{
				IsHallucination: true,
				Reason:          fmt.Sprintf("abnormal_speech_rate: %.2f words/sec", wps),
				Confidence:      avg,
			}
		}
	}

	return GateResult{Reason: "valid_confidence", Confidence: avg}
}

var sentenceSplitRe = regexp.MustCompile(`[.!?]+`)

// checkRepetition flags runs of identical words, short phrases recurring
// several times, and duplicated sentences.
func checkRepetition(text string) GateResult {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < 2 {
		return GateResult{Reason: "too_short", Confidence: 0.7}
	}

	run, maxRun := 1, 1
	for i := 1; i < len(words); i++ {
		if words[i] == words[i-1] {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 1
		}
	}
	if maxRun >= maxConsecutiveRepeats {
		return GateResult{
			IsHallucination: true,
			Reason:          fmt.Sprintf("repeated_word: %d times", maxRun),
			Confidence:      0.3,
		}
	}

	lower := strings.Join(words, " ")
	for phraseLen := 2; phraseLen <= 5; phraseLen++ {
		if len(words) < phraseLen*2 {
			continue
		}
		for i := 0; i+phraseLen*2 <= len(words); i++ {
			phrase := strings.Join(words[i:i+phraseLen], " ")
			rest := strings.Join(words[i+phraseLen:], " ")
			if !strings.Contains(rest, phrase) {
				continue
			}
			if count := strings.Count(lower, phrase); count >= minPhraseRepeatCount {
				return GateResult{
					IsHallucination: true,
					Reason:          fmt.Sprintf("repeated_phrase: %q (%d times)", phrase, count),
					Confidence:      0.4,
				}
			}
		}
	}

	seen := map[string]bool{}
	for _, raw := range sentenceSplitRe.Split(text, -1) {
		sent := strings.ToLower(strings.TrimSpace(raw))
		if sent == "" {
			continue
		}
		if seen[sent] && len(normalizeText(sent)) > minDuplicateSentence {
			return GateResult{
				IsHallucination: true,
				Reason:          fmt.Sprintf("repeated_sentence: %q", sent),
				Confidence:      0.4,
			}
		}
		seen[sent] = true
	}

	return GateResult{Reason: "no_repetition", Confidence: 0.8}
}

var punctuationOnlyRe = regexp.MustCompile(`^[\s.,!?;:]+$`)

// checkPatterns flags text that cannot plausibly be speech: pure
// punctuation, long single-character runs, near-empty strings, or a high
// share of non-word characters.
func checkPatterns(text string) GateResult {
	if punctuationOnlyRe.MatchString(text) {
		return GateResult{IsHallucination: true, Reason: "only_punctuation", Confidence: 0.0}
	}

	run := 0
	var prev rune
	for _, r := range text {
		if r == prev {
			run++
			if run >= maxRepeatedCharRun {
				return GateResult{IsHallucination: true, Reason: "repeated_characters", Confidence: 0.2}
			}
		} else {
			run = 1
			prev = r
		}
	}

	if len(strings.TrimSpace(text)) < minTextLength {
		return GateResult{IsHallucination: true, Reason: "text_too_short", Confidence: 0.3}
	}

	compact := strings.ReplaceAll(text, " ", "")
	if len(compact) > 0 {
		special := len(nonWordRe.FindAllString(text, -1))
		if ratio := float64(special) / float64(len(compact)); ratio > maxSpecialCharRatio {
			return GateResult{
				IsHallucination: true,
				Reason:          fmt.Sprintf("too_many_special_chars: %.0f%%", ratio*100),
				Confidence:      0.4,
			}
		}
	}

	return GateResult{Reason: "normal_pattern", Confidence: 0.8}
}

var keywordRe = regexp.MustCompile(`\w+`)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "i": true, "you": true,
	"he": true, "she": true, "it": true, "we": true, "they": true,
	"me": true, "him": true, "her": true, "us": true, "them": true,
	"my": true, "your": true, "his": true, "its": true, "our": true,
	"their": true, "this": true, "that": true, "these": true, "those": true,
	"have": true, "has": true, "had": true, "do": true, "does": true, "did": true,
}

// checkCoherence compares keyword overlap against recent accepted
// transcripts to flag topic discontinuities and verbatim repeats across
// transcripts. Skipped entirely on the first transcript of a session.
func (d *Detector) checkCoherence(text string) GateResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.history) == 0 {
		d.history = append(d.history, text)
		return GateResult{Reason: "no_history", Confidence: 0.7}
	}

	current := extractKeywords(text)
	recent := d.history
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}

	maxOverlap := 0.0
	for _, hist := range recent {
		histKeywords := extractKeywords(hist)
		if len(histKeywords) == 0 {
			continue
		}
		shared := 0
		for kw := range current {
			if histKeywords[kw] {
				shared++
			}
		}
		denom := len(current)
		if denom == 0 {
			denom = 1
		}
		if ratio := float64(shared) / float64(denom); ratio > maxOverlap {
			maxOverlap = ratio
		}
	}

	if len(d.history) >= 2 && maxOverlap < minHistoryOverlapRatio {
		return GateResult{
			IsHallucination: true,
			Reason:          fmt.Sprintf("topic_shift: overlap=%.0f%%", maxOverlap*100),
			Confidence:      0.5,
		}
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, hist := range recent {
		if normalized == strings.ToLower(strings.TrimSpace(hist)) && len(normalized) > 20 {
			return GateResult{
				IsHallucination: true,
				Reason:          "duplicate_across_transcripts",
				Confidence:      0.4,
			}
		}
	}

	d.history = append(d.history, text)
	if len(d.history) > gateHistorySize {
		d.history = d.history[1:]
	}
	return GateResult{Reason: "coherent", Confidence: 0.8}
}

func extractKeywords(text string) map[string]bool {
	keywords := map[string]bool{}
	for _, w := range keywordRe.FindAllString(strings.ToLower(text), -1) {
		if len(w) > 2 && !stopwords[w] {
			keywords[w] = true
		}
	}
	return keywords
}
