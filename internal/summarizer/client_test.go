package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nmem/nmem/internal/config"
	"github.com/nmem/nmem/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func fakeChatServer(t *testing.T, narrative Narrative) *httptest.Server {
	t.Helper()
	content, err := json.Marshal(narrative)
	require.NoError(t, err)

	var resp fakeChatResponse
	resp.ID, resp.Object, resp.Created, resp.Model = "x", "chat.completion", 1, "test"
	resp.Choices = make([]struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	}, 1)
	resp.Choices[0].Message.Role = "assistant"
	resp.Choices[0].Message.Content = string(content)
	resp.Choices[0].FinishReason = "stop"

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClient_New_DisabledWithoutEndpoint(t *testing.T) {
	c := New(config.SummarizationConfig{})
	require.False(t, c.Enabled())

	err := c.Summarize(context.Background(), nil, "s1")
	require.Error(t, err)
}

func TestClient_Narrate_ParsesJSONResponse(t *testing.T) {
	want := Narrative{
		Intent:      "add retention sweep",
		Learned:     []string{"WAL checkpoint must run after purge"},
		Completed:   []string{"wrote sweep query"},
		NextSteps:   []string{"wire config flag"},
		FilesRead:   []string{"internal/store/retention.go"},
		FilesEdited: []string{"internal/store/purge.go"},
		Notes:       "",
	}
	server := fakeChatServer(t, want)
	defer server.Close()

	c := New(config.SummarizationConfig{Enabled: true, Endpoint: server.URL, Model: "test-model", TimeoutSeconds: 5})
	require.True(t, c.Enabled())

	got, err := c.Narrate(context.Background(), "irrelevant transcript text")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestClient_Narrate_InvalidJSONFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"test","choices":[{"index":0,"message":{"role":"assistant","content":"not json"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	c := New(config.SummarizationConfig{Enabled: true, Endpoint: server.URL, TimeoutSeconds: 5})
	_, err := c.Narrate(context.Background(), "transcript")
	require.Error(t, err)
}

func TestClient_Narrate_TimeoutIsNonFatalToCaller(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(config.SummarizationConfig{Enabled: true, Endpoint: server.URL, TimeoutSeconds: 0})
	c.timeout = 10 * time.Millisecond

	_, err := c.Narrate(context.Background(), "transcript")
	require.Error(t, err)
}

func TestBuildTranscript_IncludesPromptsAndObservations(t *testing.T) {
	prompts := []models.Prompt{
		{Source: models.PromptSourceUser, Content: "add the sweep command"},
	}
	obs := []models.Observation{
		{ObsType: models.ObsFileEdit, ToolName: "Edit", FilePath: "internal/control/sweep.go"},
	}
	text := buildTranscript("session", prompts, obs)
	require.Contains(t, text, "add the sweep command")
	require.Contains(t, text, "internal/control/sweep.go")
}
