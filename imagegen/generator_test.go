package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopost/config"
)

func newLive(t *testing.T, baseURL string, attempts int) *Generator {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	g, err := New(Config{
		Mode:         config.ModeLive,
		APIKey:       "r8-test",
		BaseURL:      baseURL,
		Model:        "flux.1",
		PollInterval: time.Millisecond,
		MaxAttempts:  attempts,
	}, nil, logger)
	require.NoError(t, err)
	return g
}

func TestOfflineCartoonPlaceholderWithoutNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	g, err := New(Config{Mode: config.ModeOffline, BaseURL: srv.URL, OfflineDelay: time.Millisecond}, nil, nil)
	require.NoError(t, err)

	url, err := g.GenerateImage(context.Background(), ImageRequest{Prompt: "a cat", Style: Cartoon})
	require.NoError(t, err)
	assert.Equal(t, "https://via.placeholder.com/512x512?text=Cartoon+Style", url)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestOfflineDelayHonoursContext(t *testing.T) {
	g, err := New(Config{Mode: config.ModeOffline, OfflineDelay: time.Hour}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.GenerateImage(ctx, ImageRequest{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequestValidation(t *testing.T) {
	g, err := New(Config{Mode: config.ModeOffline}, nil, nil)
	require.NoError(t, err)

	for _, req := range []ImageRequest{
		{},
		{Prompt: "x", Style: "watercolor"},
		{Prompt: "x", AspectRatio: "2:1"},
	} {
		_, err := g.GenerateImage(context.Background(), req)
		assert.ErrorIs(t, err, ErrValidation, "%+v", req)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	r, err := ImageRequest{Prompt: "sunrise"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, Photorealistic, r.Style)
	assert.Equal(t, Square, r.AspectRatio)
	assert.Equal(t, DefaultNegativePrompt, r.NegativePrompt)
	assert.Equal(t, "sunrise, photorealistic, detailed, high resolution", r.StyledPrompt())

	d, ok := DimensionsFor(Wide)
	require.True(t, ok)
	assert.Equal(t, Dimensions{Width: 1344, Height: 768}, d)
}

func TestLiveSubmitsAndPolls(t *testing.T) {
	var submitted predictionRequest
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer r8-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/predictions":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"p1","status":"starting"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/p1":
			if atomic.AddInt32(&polls, 1) < 3 {
				_, _ = w.Write([]byte(`{"id":"p1","status":"processing"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":["https://cdn.example/p1.png"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	g := newLive(t, srv.URL, 10)
	url, err := g.GenerateImage(context.Background(), ImageRequest{Prompt: "city", Style: Render3D, AspectRatio: Portrait})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/p1.png", url)
	assert.EqualValues(t, 3, atomic.LoadInt32(&polls))

	assert.Equal(t, "flux.1", submitted.Version)
	assert.Equal(t, "city, 3D rendered, blender style, soft lighting, ray tracing", submitted.Input.Prompt)
	assert.Equal(t, DefaultNegativePrompt, submitted.Input.NegativePrompt)
	assert.Equal(t, 768, submitted.Input.Width)
	assert.Equal(t, 1344, submitted.Input.Height)
}

func TestLiveSingleStringOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"id":"p2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"p2","status":"succeeded","output":"https://cdn.example/p2.png"}`))
	}))
	defer srv.Close()

	url, err := newLive(t, srv.URL, 3).GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/p2.png", url)
}

func TestLiveFailedPrediction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"id":"p3"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"p3","status":"failed","error":"NSFW content detected"}`))
	}))
	defer srv.Close()

	_, err := newLive(t, srv.URL, 3).GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	require.ErrorIs(t, err, ErrGenerationFailed)
	assert.Contains(t, err.Error(), "NSFW content detected")
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestLiveTimeoutIsDistinct(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"id":"p4"}`))
			return
		}
		atomic.AddInt32(&polls, 1)
		_, _ = w.Write([]byte(`{"id":"p4","status":"processing"}`))
	}))
	defer srv.Close()

	_, err := newLive(t, srv.URL, 4).GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	require.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrGenerationFailed)
	assert.EqualValues(t, 4, atomic.LoadInt32(&polls))
}

func TestLiveProviderErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"non-2xx": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"bad token"}`))
		},
		"malformed": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
		"missing id": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := newLive(t, srv.URL, 2).GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
			assert.ErrorIs(t, err, ErrProvider)
		})
	}
}

func TestNewRequiresLiveCredentials(t *testing.T) {
	_, err := New(Config{Mode: config.ModeLive, Model: "m"}, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{Mode: config.ModeAuto}, nil, nil)
	assert.Error(t, err)

	g, err := New(Config{Mode: config.ModeLive, APIKey: "k", Model: "m", BaseURL: "https://x.example/v1/"}, nil, nil)
	require.NoError(t, err)
	assert.False(t, strings.HasSuffix(g.cfg.BaseURL, "/"))
}
