// Package google transcribes audio through the Google Cloud
// Speech-to-Text API.
package google

import (
	"context"
	"fmt"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/asr"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/observability/logging"
)

// Adapter implements asr.Transcriber using synchronous recognition on a
// local audio file. Word time offsets are always requested so segment
// boundaries can be derived from result alternatives.
type Adapter struct {
	client     *speech.Client
	sampleRate int32
}

func NewAdapter(ctx context.Context, sampleRate int32) (*Adapter, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Adapter{client: client, sampleRate: sampleRate}, nil
}

func (a *Adapter) Name() string { return "google-speech" }

func (a *Adapter) Close() error { return a.client.Close() }

func (a *Adapter) Transcribe(ctx context.Context, req asr.Request) (*asr.Result, error) {
	data, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = "en-US"
	}

	resp, err := a.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:              speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:       a.sampleRate,
			LanguageCode:          lang,
			EnableWordTimeOffsets: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	result := &asr.Result{Language: lang}
	var full strings.Builder

	// Each recognition result becomes one raw segment bounded by its
	// first and last word offsets.
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if strings.TrimSpace(alt.Transcript) == "" {
			continue
		}

		seg := asr.RawSegment{
			Text: alt.Transcript,
			// The API reports confidence in [0,1]; shift so downstream
			// confidence recovery (logprob+1) lands back on it.
			AvgLogProb: float64(alt.Confidence) - 1,
		}
		for _, w := range alt.Words {
			seg.Words = append(seg.Words, asr.WordTimestamp{
				Word:     w.Word,
				StartSec: w.StartTime.AsDuration().Seconds(),
				EndSec:   w.EndTime.AsDuration().Seconds(),
			})
		}
		if n := len(seg.Words); n > 0 {
			seg.StartSec = seg.Words[0].StartSec
			seg.EndSec = seg.Words[n-1].EndSec
		}

		if full.Len() > 0 {
			full.WriteByte(' ')
		}
		full.WriteString(strings.TrimSpace(alt.Transcript))
		result.Segments = append(result.Segments, seg)
	}

	result.FullText = full.String()
	if n := len(result.Segments); n > 0 {
		result.DurationSec = result.Segments[n-1].EndSec
	}

	logger := logging.Logger()
	logger.Debug().
		Str("audio_path", req.AudioPath).
		Int("segments", len(result.Segments)).
		Msg("google transcription complete")

	return result, nil
}
