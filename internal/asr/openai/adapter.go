// Package openai transcribes audio through the OpenAI Whisper API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/asr"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/observability/logging"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Adapter implements asr.Transcriber against the audio/transcriptions
// endpoint using the verbose_json response format, which carries
// per-segment timestamps and average log probabilities.
type Adapter struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type Option func(*Adapter)

func WithBaseURL(url string) Option {
	return func(a *Adapter) { a.baseURL = url }
}

func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

func NewAdapter(apiKey, model string, opts ...Option) *Adapter {
	a := &Adapter{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return "openai-whisper" }

type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text       string  `json:"text"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		AvgLogProb float64 `json:"avg_logprob"`
	} `json:"segments"`
	Words []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

// Transcribe uploads the audio file and returns timestamped segments.
// Any transport or API error is returned to the caller; there is no
// silent fallback.
func (a *Adapter) Transcribe(ctx context.Context, req asr.Request) (*asr.Result, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio: %w", err)
	}

	fields := map[string]string{
		"model":           a.model,
		"response_format": "verbose_json",
	}
	if req.Language != "" {
		fields["language"] = req.Language
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	granularities := []string{"segment"}
	if req.WordTimestamps {
		granularities = append(granularities, "word")
	}
	for _, g := range granularities {
		if err := w.WriteField("timestamp_granularities[]", g); err != nil {
			return nil, fmt.Errorf("write granularity: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("transcription API status %d: %s", resp.StatusCode, msg)
	}

	var vr verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := &asr.Result{
		FullText:    vr.Text,
		Language:    vr.Language,
		DurationSec: vr.Duration,
	}
	for _, s := range vr.Segments {
		result.Segments = append(result.Segments, asr.RawSegment{
			Text:       s.Text,
			StartSec:   s.Start,
			EndSec:     s.End,
			AvgLogProb: s.AvgLogProb,
		})
	}

	// Word timestamps come back as a flat list; attach each word to the
	// segment whose time range contains its start.
	if req.WordTimestamps && len(vr.Words) > 0 {
		attachWords(result.Segments, vr)
	}

	logger := logging.Logger()
	logger.Debug().
		Str("audio_path", req.AudioPath).
		Int("segments", len(result.Segments)).
		Float64("duration_sec", vr.Duration).
		Msg("whisper transcription complete")

	return result, nil
}

func attachWords(segments []asr.RawSegment, vr verboseResponse) {
	for _, word := range vr.Words {
		for i := range segments {
			if word.Start >= segments[i].StartSec && word.Start < segments[i].EndSec {
				segments[i].Words = append(segments[i].Words, asr.WordTimestamp{
					Word:     word.Word,
					StartSec: word.Start,
					EndSec:   word.End,
				})
				break
			}
		}
	}
}
