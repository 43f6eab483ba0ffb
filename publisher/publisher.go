// Package publisher sends posts to social platforms. Each platform has a
// PlatformPublisher; the Orchestrator fans a post out to all of its targets.
package publisher

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
	"autopost/post"
)

// PlatformPublisher delivers a post to one platform. A false result or a
// non-nil error both count as failure.
type PlatformPublisher interface {
	Publish(ctx context.Context, p post.Post) (bool, error)
}

// PublisherFunc adapts a function to PlatformPublisher.
type PublisherFunc func(ctx context.Context, p post.Post) (bool, error)

func (f PublisherFunc) Publish(ctx context.Context, p post.Post) (bool, error) { return f(ctx, p) }

var defaultLatency = map[post.Platform]time.Duration{
	post.Twitter:  1000 * time.Millisecond,
	post.LinkedIn: 1200 * time.Millisecond,
	post.Facebook: 800 * time.Millisecond,
}

// DefaultLatency is the simulated round trip for platform.
func DefaultLatency(platform post.Platform) time.Duration {
	if d, ok := defaultLatency[platform]; ok {
		return d
	}
	return time.Second
}

// SimulatedPublisher stands in for a platform API in offline mode. It waits
// Latency and reports success.
type SimulatedPublisher struct {
	Platform post.Platform
	Latency  time.Duration
}

// NewSimulated returns a simulated publisher with the platform's default
// latency.
func NewSimulated(platform post.Platform) *SimulatedPublisher {
	return &SimulatedPublisher{Platform: platform, Latency: DefaultLatency(platform)}
}

func (s *SimulatedPublisher) Publish(ctx context.Context, _ post.Post) (bool, error) {
	if s.Latency <= 0 {
		return true, nil
	}
	t := time.NewTimer(s.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-t.C:
		return true, nil
	}
}

// HTTPPublisher posts the content as JSON to a platform endpoint with a
// bearer token.
type HTTPPublisher struct {
	platform post.Platform
	endpoint string
	token    string
	client   *http.Client
	logger   logrus.FieldLogger
}

// NewHTTP creates an HTTPPublisher. A nil client gets a 30 second timeout.
func NewHTTP(platform post.Platform, endpoint, token string, client *http.Client, logger logrus.FieldLogger) (*HTTPPublisher, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for %s", platform)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HTTPPublisher{
		platform: platform,
		endpoint: endpoint,
		token:    token,
		client:   client,
		logger:   logger.WithField("platform", platform),
	}, nil
}

type publishPayload struct {
	ID       string        `json:"id"`
	Platform post.Platform `json:"platform"`
	Content  string        `json:"content"`
	ImageURL string        `json:"imageUrl,omitempty"`
}

type publishResp struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

func (h *HTTPPublisher) Publish(ctx context.Context, p post.Post) (bool, error) {
	body, err := json.Marshal(publishPayload{
		ID:       p.ID,
		Platform: h.platform,
		Content:  p.Content,
		ImageURL: p.ImageURL,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var r publishResp
		if json.Unmarshal(data, &r) == nil && r.Error != "" {
			return false, fmt.Errorf("%s returned %d: %s", h.platform, resp.StatusCode, r.Error)
		}
		return false, fmt.Errorf("%s returned %d: %s", h.platform, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var r publishResp
	if json.Unmarshal(data, &r) == nil && r.ID != "" {
		h.logger.WithFields(logrus.Fields{"post_id": p.ID, "remote_id": r.ID}).Debug("platform accepted post")
	}
	return true, nil
}

// FromConfig builds one publisher per platform. In live mode platforms with
// an endpoint get an HTTPPublisher and the rest stay simulated; offline mode
// simulates everything.
func FromConfig(cfg config.PublishConfig, mode config.Mode, logger logrus.FieldLogger) (map[post.Platform]PlatformPublisher, error) {
	if mode != config.ModeLive && mode != config.ModeOffline {
		return nil, errors.New("publish mode must be resolved to live or offline")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	out := make(map[post.Platform]PlatformPublisher, len(post.Platforms))
	for _, pl := range post.Platforms {
		endpoint := cfg.Endpoints[string(pl)]
		if mode == config.ModeOffline || endpoint == "" {
			out[pl] = NewSimulated(pl)
			continue
		}
		h, err := NewHTTP(pl, endpoint, cfg.Tokens[string(pl)], client, logger)
		if err != nil {
			return nil, err
		}
		out[pl] = h
	}
	return out, nil
}
