package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopost/config"
)

func TestSessionProposeAndRevise(t *testing.T) {
	var prompts []Prompt
	replies := []string{"first draft", "second draft"}
	g := newGen(t, config.ModeLive, llmFunc(func(_ context.Context, p Prompt) (string, error) {
		prompts = append(prompts, p)
		r := replies[0]
		replies = replies[1:]
		return r, nil
	}))

	s, err := NewSession("s1", TextRequest{Prompt: "conference recap"}, g)
	require.NoError(t, err)

	d := s.Propose(context.Background())
	assert.Equal(t, "first draft", d.Content)

	d = s.Revise(context.Background(), "shorter please")
	assert.Equal(t, "second draft", d.Content)

	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1].User, "first draft")
	assert.Contains(t, prompts[1].User, "shorter please")

	draft, history := s.Snapshot()
	assert.Equal(t, "second draft", draft.Content)
	require.Len(t, history, 2)
	assert.Equal(t, "shorter please", history[1].Comment)
}

func TestSessionReviseFailureKeepsDraft(t *testing.T) {
	fail := false
	g := newGen(t, config.ModeLive, llmFunc(func(context.Context, Prompt) (string, error) {
		if fail {
			return "", errors.New("timeout")
		}
		return "good copy", nil
	}))
	s, err := NewSession("s2", TextRequest{Prompt: "x"}, g)
	require.NoError(t, err)
	s.Propose(context.Background())

	fail = true
	d := s.Revise(context.Background(), "more emoji")
	assert.True(t, strings.HasPrefix(d.Content, FailurePrefix))

	draft, _ := s.Snapshot()
	assert.Equal(t, "good copy", draft.Content)
}

func TestSessionAttachImage(t *testing.T) {
	s, err := NewSession("s3", TextRequest{Prompt: "x"}, newGen(t, config.ModeOffline, nil))
	require.NoError(t, err)
	s.AttachImage("https://img.example/a.png")
	d := s.Propose(context.Background())
	assert.Equal(t, "https://img.example/a.png", d.ImageURL)
}

func TestNewSessionValidates(t *testing.T) {
	_, err := NewSession("s4", TextRequest{}, newGen(t, config.ModeOffline, nil))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPlainText(t *testing.T) {
	cases := map[string]string{
		"plain #hashtag":             "plain #hashtag",
		"# Title\n\nBody *text*":     "Title\n\nBody text",
		"- one\n- two":               "one\ntwo",
		"see <https://example.com>":  "see https://example.com",
		"line one\nline two":         "line one\nline two",
		"Use `go test` and **ship**": "Use go test and ship",
		"> quoted\n\nafter":          "quoted\n\nafter",
	}
	for in, want := range cases {
		got, err := PostProcess(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
