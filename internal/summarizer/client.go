// Package summarizer turns a finished session's prompts, reasoning blocks,
// and observation metadata into a compact JSON narrative, by asking an
// external OpenAI-compatible chat-completions endpoint for one. The result
// is framed for agent context reconstruction, not human readability: it
// reads like a handoff note to a fresh agent picking the work back up, not
// a changelog entry a person would read.
package summarizer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nmem/nmem/internal/config"
	"github.com/nmem/nmem/internal/store"
)

// Narrative is the JSON shape the LLM is asked to return, and the shape
// stored verbatim (re-marshaled) into sessions.summary / episode summaries.
type Narrative struct {
	Intent      string   `json:"intent"`
	Learned     []string `json:"learned"`
	Completed   []string `json:"completed"`
	NextSteps   []string `json:"next_steps"`
	FilesRead   []string `json:"files_read"`
	FilesEdited []string `json:"files_edited"`
	Notes       string   `json:"notes"`
}

// Client wraps an OpenAI-compatible chat-completions endpoint, configured
// from config.toml's [summarization] section. A Client with no configured
// endpoint is inert: every call returns an error the caller is expected to
// log and swallow rather than surface to the harness.
type Client struct {
	openai  *openai.Client
	model   string
	timeout time.Duration
	enabled bool
}

// New builds a Client from a loaded Config. Disabled or endpoint-less
// configuration yields a Client whose methods always fail fast, so callers
// don't need a separate nil-check path.
func New(cfg config.SummarizationConfig) *Client {
	if !cfg.Enabled || strings.TrimSpace(cfg.Endpoint) == "" {
		return &Client{enabled: false}
	}

	oaiCfg := openai.DefaultConfig(apiKeyFromEnv())
	oaiCfg.BaseURL = cfg.Endpoint

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &Client{
		openai:  openai.NewClientWithConfig(oaiCfg),
		model:   model,
		timeout: timeout,
		enabled: true,
	}
}

// Enabled reports whether this Client has a usable endpoint configured.
func (c *Client) Enabled() bool { return c.enabled }

// Summarize gathers sessionID's prompts and observations, asks the
// configured endpoint for a Narrative, and stores it via
// store.SetSessionSummary. Satisfies the Recorder's Summarizer interface.
func (c *Client) Summarize(ctx context.Context, db *sql.DB, sessionID string) error {
	if !c.enabled {
		return fmt.Errorf("summarizer: no endpoint configured")
	}

	prompts, err := store.ListPromptsBySession(ctx, db, sessionID)
	if err != nil {
		return fmt.Errorf("summarizer: load prompts for session %s: %w", sessionID, err)
	}
	if len(prompts) == 0 {
		return nil
	}

	obs, err := store.ListObservationsBySession(ctx, db, sessionID)
	if err != nil {
		return fmt.Errorf("summarizer: load observations for session %s: %w", sessionID, err)
	}

	narrative, err := c.Narrate(ctx, buildTranscript("session", prompts, obs))
	if err != nil {
		return fmt.Errorf("summarizer: session %s: %w", sessionID, err)
	}

	payload, err := json.Marshal(narrative)
	if err != nil {
		return fmt.Errorf("summarizer: marshal narrative for session %s: %w", sessionID, err)
	}
	return store.SetSessionSummary(ctx, db, sessionID, payload)
}

// Narrate sends a pre-built transcript to the configured endpoint and
// parses the JSON Narrative it returns. Exported so the Episode Detector
// can reuse this Client for episode-scoped narratives instead of opening a
// second HTTP client.
func (c *Client) Narrate(ctx context.Context, transcript string) (Narrative, error) {
	if !c.enabled {
		return Narrative{}, fmt.Errorf("summarizer: no endpoint configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.openai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.2,
	})
	if err != nil {
		return Narrative{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Narrative{}, fmt.Errorf("chat completion: empty response")
	}

	var n Narrative
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &n); err != nil {
		return Narrative{}, fmt.Errorf("parse narrative JSON: %w", err)
	}
	return n, nil
}

// systemPrompt frames the request for agent context reconstruction: a
// fresh agent resuming this work needs intent, what's already done, what's
// left, and which files matter, not a human-readable changelog entry.
const systemPrompt = `You are compressing an AI coding agent's session history into a compact handoff note for a different agent that will resume this work later with no other context. Write for that agent, not for a human reader. Respond with a single JSON object with exactly these fields: intent (string), learned (array of strings), completed (array of strings), next_steps (array of strings), files_read (array of strings), files_edited (array of strings), notes (string). Omit nothing; use empty arrays/strings where there is nothing to report.`

func apiKeyFromEnv() string {
	if v := os.Getenv("NMEM_SUMMARIZER_API_KEY"); v != "" {
		return v
	}
	return os.Getenv("OPENAI_API_KEY")
}
