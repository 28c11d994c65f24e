// Package openai refines raw transcripts into punctuated, speaker
// labeled sentences using the chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/formatter"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/observability/logging"
)

const defaultBaseURL = "https://api.openai.com/v1"

const systemPrompt = `You are a transcript editor. You receive the raw text of a recorded conversation.
Split it into natural sentences, fix punctuation and casing without changing any words,
and label each sentence with the speaker you believe said it, using "A" for the first
speaker, "B" for the second, and so on.
Respond with JSON only, in the form:
{"sentences": [{"text": "...", "speaker": "A"}, ...]}`

const comparisonPrompt = `You are a transcript editor. You receive two versions of the same recorded
conversation: a LIVE version captured in real time, which may have gaps, and a FULL
version transcribed afterwards, which is more complete but unlabeled.
Produce the best final transcript: prefer the FULL version's wording, and use the LIVE
version only to resolve ambiguity. Split the result into natural sentences, fix
punctuation and casing, and label each sentence with the speaker you believe said it,
using "A" for the first speaker, "B" for the second, and so on.
Respond with JSON only, in the form:
{"sentences": [{"text": "...", "speaker": "A"}, ...]}`

// Client implements formatter.Formatter. Requests pin temperature to
// zero and force a JSON object response so output stays parseable.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func NewClient(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) IsAvailable() bool { return c.apiKey != "" }

func (c *Client) FormatConversation(ctx context.Context, rawText, language string) ([]formatter.Sentence, error) {
	user := fmt.Sprintf("Language: %s\n\nTranscript:\n%s", language, rawText)
	return c.complete(ctx, systemPrompt, user)
}

func (c *Client) FormatWithComparison(ctx context.Context, liveHintText, rawText, language string) ([]formatter.Sentence, error) {
	user := fmt.Sprintf("Language: %s\n\nLIVE version:\n%s\n\nFULL version:\n%s",
		language, liveHintText, rawText)
	return c.complete(ctx, comparisonPrompt, user)
}

type chatRequest struct {
	Model          string        `json:"model"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat respFormat    `json:"response_format"`
	Messages       []chatMessage `json:"messages"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type sentencePayload struct {
	Sentences []struct {
		Text    string `json:"text"`
		Speaker string `json:"speaker"`
	} `json:"sentences"`
}

func (c *Client) complete(ctx context.Context, system, user string) ([]formatter.Sentence, error) {
	payload, err := json.Marshal(chatRequest{
		Model:          c.model,
		Temperature:    0,
		ResponseFormat: respFormat{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat API status %d: %s", resp.StatusCode, msg)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("chat API returned no choices")
	}

	var sp sentencePayload
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &sp); err != nil {
		return nil, fmt.Errorf("parse sentences: %w", err)
	}
	if len(sp.Sentences) == 0 {
		return nil, fmt.Errorf("formatter returned no sentences")
	}

	out := make([]formatter.Sentence, 0, len(sp.Sentences))
	for _, s := range sp.Sentences {
		out = append(out, formatter.Sentence{Text: s.Text, SpeakerLabel: s.Speaker})
	}

	logger := logging.Logger()
	logger.Debug().
		Int("sentences", len(out)).
		Msg("formatting complete")

	return out, nil
}
