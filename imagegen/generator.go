package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"autopost/config"
	"autopost/metrics"
)

const (
	DefaultBaseURL      = "https://api.replicate.com/v1"
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 60
	DefaultOfflineDelay = 2 * time.Second
)

// Config configures a Generator.
type Config struct {
	Mode         config.Mode
	APIKey       string
	BaseURL      string
	Model        string
	PollInterval time.Duration
	MaxAttempts  int
	OfflineDelay time.Duration
}

// Generator produces an image URL for a request. Live mode submits a
// prediction and polls it; offline mode waits briefly and returns a static
// placeholder.
type Generator struct {
	cfg    Config
	client *http.Client
	logger logrus.FieldLogger
	sleep  func(context.Context, time.Duration) error
}

// New creates a Generator. A nil client gets a 60 second timeout.
func New(cfg Config, client *http.Client, logger logrus.FieldLogger) (*Generator, error) {
	switch cfg.Mode {
	case config.ModeOffline:
	case config.ModeLive:
		if cfg.APIKey == "" {
			return nil, errors.New("image api key is required in live mode")
		}
		if cfg.Model == "" {
			return nil, errors.New("image model is required in live mode")
		}
	default:
		return nil, fmt.Errorf("unsupported image mode %q", cfg.Mode)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.OfflineDelay < 0 {
		cfg.OfflineDelay = 0
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Generator{
		cfg:    cfg,
		client: client,
		logger: logger.WithFields(logrus.Fields{"component": "image_generator", "mode": cfg.Mode}),
		sleep:  sleepCtx,
	}, nil
}

// Mode reports which mode the generator runs in.
func (g *Generator) Mode() config.Mode { return g.cfg.Mode }

// GenerateImage returns the URL of an image for req. Validation happens
// before any I/O.
func (g *Generator) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	req, err := req.Normalize()
	if err != nil {
		return "", err
	}

	start := time.Now()
	var url string
	if g.cfg.Mode == config.ModeOffline {
		url, err = g.offline(ctx, req)
	} else {
		url, err = g.live(ctx, req)
	}

	log := g.logger.WithFields(logrus.Fields{
		"style":        req.Style,
		"aspect_ratio": req.AspectRatio,
		"duration":     time.Since(start),
	})
	metrics.Generations.WithLabelValues("image", string(g.cfg.Mode), metrics.Result(err == nil)).Inc()
	if err != nil {
		log.WithError(err).Warn("image generation failed")
		return "", err
	}
	log.WithField("url", url).Debug("image generated")
	return url, nil
}

func (g *Generator) offline(ctx context.Context, req ImageRequest) (string, error) {
	if err := g.sleep(ctx, g.cfg.OfflineDelay); err != nil {
		return "", err
	}
	return Placeholder(req.Style), nil
}

type predictionInput struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

func (g *Generator) live(ctx context.Context, req ImageRequest) (string, error) {
	dims := dimensions[req.AspectRatio]
	body, err := json.Marshal(predictionRequest{
		Version: g.cfg.Model,
		Input: predictionInput{
			Prompt:         req.StyledPrompt(),
			NegativePrompt: req.NegativePrompt,
			Width:          dims.Width,
			Height:         dims.Height,
		},
	})
	if err != nil {
		return "", err
	}

	var pred prediction
	if err := g.do(ctx, http.MethodPost, g.cfg.BaseURL+"/predictions", body, &pred); err != nil {
		return "", err
	}
	if pred.ID == "" {
		return "", fmt.Errorf("%w: prediction id missing", ErrProvider)
	}
	g.logger.WithField("prediction_id", pred.ID).Debug("prediction submitted")

	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		if err := g.sleep(ctx, g.cfg.PollInterval); err != nil {
			return "", err
		}
		var status prediction
		if err := g.do(ctx, http.MethodGet, g.cfg.BaseURL+"/predictions/"+pred.ID, nil, &status); err != nil {
			return "", err
		}
		switch status.Status {
		case "succeeded":
			return firstOutput(status.Output)
		case "failed", "canceled":
			return "", fmt.Errorf("%w: %s", ErrGenerationFailed, providerMessage(status.Error, status.Status))
		}
	}
	return "", fmt.Errorf("%w after %d polls", ErrTimeout, g.cfg.MaxAttempts)
}

func (g *Generator) do(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrProvider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrProvider, method, url, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}
	return nil
}

// firstOutput accepts either a single URL or a list of URLs.
func firstOutput(raw json.RawMessage) (string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 && list[0] != "" {
		return list[0], nil
	}
	return "", fmt.Errorf("%w: prediction succeeded without output", ErrProvider)
}

func providerMessage(raw json.RawMessage, fallback string) string {
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
		return msg
	}
	return fallback
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
