package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopost/config"
	"autopost/post"
)

type llmFunc func(context.Context, Prompt) (string, error)

func (f llmFunc) Complete(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

func newGen(t *testing.T, mode config.Mode, llm LLMClient) *TextGenerator {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	g, err := NewTextGenerator(mode, llm, logger)
	require.NoError(t, err)
	return g
}

func TestOfflineReturnsCannedCopy(t *testing.T) {
	called := false
	g := newGen(t, config.ModeOffline, llmFunc(func(context.Context, Prompt) (string, error) {
		called = true
		return "", nil
	}))

	for _, pl := range post.Platforms {
		for _, tone := range []Tone{Professional, Casual, Humorous} {
			got, err := g.GenerateText(context.Background(), TextRequest{Prompt: "launch", Platform: pl, Tone: tone})
			require.NoError(t, err)
			assert.Equal(t, strings.TrimSpace(CannedText(pl, tone)), got)
		}
	}
	assert.False(t, called, "offline mode never calls the provider")
}

func TestOfflineIsDeterministic(t *testing.T) {
	g := newGen(t, config.ModeOffline, nil)
	a, _ := g.GenerateText(context.Background(), TextRequest{Prompt: "a", Platform: post.LinkedIn, Tone: Casual})
	b, _ := g.GenerateText(context.Background(), TextRequest{Prompt: "b", Platform: post.LinkedIn, Tone: Casual})
	assert.Equal(t, a, b)
}

func TestGenerateTextValidation(t *testing.T) {
	g := newGen(t, config.ModeOffline, nil)

	_, err := g.GenerateText(context.Background(), TextRequest{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = g.GenerateText(context.Background(), TextRequest{Prompt: "x", Tone: "angry"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = g.GenerateText(context.Background(), TextRequest{Prompt: "x", Platform: "myspace"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLiveBuildsPromptWithDefaults(t *testing.T) {
	var got Prompt
	g := newGen(t, config.ModeLive, llmFunc(func(_ context.Context, p Prompt) (string, error) {
		got = p
		return "ok", nil
	}))

	_, err := g.GenerateText(context.Background(), TextRequest{Prompt: "our new API"})
	require.NoError(t, err)
	assert.Equal(t, "You are an expert social media content creator. Write content for twitter in a professional tone.", got.System)
	assert.Equal(t, "Write a professional social media post for twitter about: our new API. Keep it under 280 characters.", got.User)
	assert.EqualValues(t, 280, got.MaxTokens)

	_, err = g.GenerateText(context.Background(), TextRequest{Prompt: "x", MaxLength: 3000})
	require.NoError(t, err)
	assert.EqualValues(t, 1000, got.MaxTokens)
}

func TestLiveProviderErrorBecomesMessage(t *testing.T) {
	g := newGen(t, config.ModeLive, llmFunc(func(context.Context, Prompt) (string, error) {
		return "", errors.New("rate limited")
	}))

	got, err := g.GenerateText(context.Background(), TextRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Failed to generate text: rate limited", got)
}

func TestLiveEmptyOutputBecomesMessage(t *testing.T) {
	g := newGen(t, config.ModeLive, llmFunc(func(context.Context, Prompt) (string, error) {
		return "   ", nil
	}))

	got, err := g.GenerateText(context.Background(), TextRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, FailurePrefix))
}

func TestLiveRequiresClient(t *testing.T) {
	_, err := NewTextGenerator(config.ModeLive, nil, nil)
	assert.Error(t, err)

	_, err = NewTextGenerator(config.ModeAuto, MockLLM{}, nil)
	assert.Error(t, err)
}

func TestOpenAILLMAgainstFakeProvider(t *testing.T) {
	var body map[string]any
	var auth, referer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		referer = r.Header.Get("HTTP-Referer")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "gen-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "  **Big news:** we shipped [v2](https://x.example)! #launch  "}}]
		}`))
	}))
	defer srv.Close()

	llm, err := NewOpenAILLMFromConfig(&LLMSettings{Model: "gpt-4o-mini", APIKey: "sk-test", BaseURL: srv.URL, Referer: "https://autopost.example"})
	require.NoError(t, err)
	g := newGen(t, config.ModeLive, llm)

	got, err := g.GenerateText(context.Background(), TextRequest{Prompt: "v2", Platform: post.Facebook, Tone: Casual, MaxLength: 200})
	require.NoError(t, err)
	assert.Equal(t, "Big news: we shipped v2! #launch", got)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "https://autopost.example", referer)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.EqualValues(t, 200, body["max_tokens"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAILLMProviderError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "upstream exploded"}}`))
	}))
	defer srv.Close()

	llm, err := NewOpenAILLMFromConfig(&LLMSettings{Model: "m", APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	g := newGen(t, config.ModeLive, llm)

	got, err := g.GenerateText(context.Background(), TextRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, FailurePrefix), got)
	assert.Equal(t, 1, calls, "no retries")
}

func TestNewOpenAILLMValidation(t *testing.T) {
	_, err := NewOpenAILLMFromConfig(nil)
	assert.Error(t, err)
	_, err = NewOpenAILLMFromConfig(&LLMSettings{Model: "m"})
	assert.Error(t, err)
	_, err = NewOpenAILLMFromConfig(&LLMSettings{APIKey: "k"})
	assert.Error(t, err)
}
