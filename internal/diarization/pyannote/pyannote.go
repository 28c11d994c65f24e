// Package pyannote talks to a diarization sidecar exposing speaker
// turn analysis over HTTP.
package pyannote

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
	"strconv"
	"time"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/diarization"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/observability/logging"
)

// Client implements diarization.Analyzer against a sidecar service.
// The sidecar reports turns in seconds; they are converted to
// milliseconds here so the rest of the pipeline never sees floats.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

type diarizeResponse struct {
	Turns []struct {
		Speaker string  `json:"speaker"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
	} `json:"turns"`
}

func (c *Client) AnalyzeSpeakers(ctx context.Context, req diarization.Request) ([]diarization.Turn, error) {
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
	if req.NumSpeakers > 0 {
		if err := w.WriteField("num_speakers", strconv.Itoa(req.NumSpeakers)); err != nil {
			return nil, fmt.Errorf("write num_speakers: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/diarize", &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("diarization request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("diarization status %d: %s", resp.StatusCode, msg)
	}

	var dr diarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	turns := make([]diarization.Turn, 0, len(dr.Turns))
	for _, t := range dr.Turns {
		turns = append(turns, diarization.Turn{
			SpeakerID: t.Speaker,
			StartMS:   int64(t.Start * 1000),
			EndMS:     int64(t.End * 1000),
		})
	}

	logger := logging.Logger()
	logger.Debug().
		Str("audio_path", req.AudioPath).
		Int("turns", len(turns)).
		Msg("diarization complete")

	return turns, nil
}

// IsAvailable probes the sidecar health endpoint with a short timeout.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
