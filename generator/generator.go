package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"autopost/config"
	"autopost/metrics"
)

// FailurePrefix starts the display string returned when the provider fails.
const FailurePrefix = "Failed to generate text: "

// TextGenerator produces post copy. In offline mode it answers with canned
// copy; in live mode it forwards to the configured LLM client.
type TextGenerator struct {
	mode   config.Mode
	llm    LLMClient
	logger logrus.FieldLogger
}

// NewTextGenerator wires a generator for mode. Offline mode ignores llm and
// uses MockLLM; live mode requires one.
func NewTextGenerator(mode config.Mode, llm LLMClient, logger logrus.FieldLogger) (*TextGenerator, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	switch mode {
	case config.ModeOffline:
		llm = MockLLM{}
	case config.ModeLive:
		if llm == nil {
			return nil, errors.New("llm client is required in live mode")
		}
	default:
		return nil, fmt.Errorf("unsupported generator mode %q", mode)
	}
	return &TextGenerator{
		mode:   mode,
		llm:    llm,
		logger: logger.WithFields(logrus.Fields{"component": "text_generator", "mode": mode}),
	}, nil
}

// Mode reports which mode the generator runs in.
func (g *TextGenerator) Mode() config.Mode { return g.mode }

// GenerateText returns copy for req. Only request validation produces an
// error; provider failures come back as a displayable FailurePrefix string.
func (g *TextGenerator) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	req, err := req.Normalize()
	if err != nil {
		return "", err
	}
	return g.generate(ctx, req, BuildInitialPrompt(req)), nil
}

// revise regenerates prev following comment. Same error contract as
// GenerateText.
func (g *TextGenerator) revise(ctx context.Context, req TextRequest, prev Draft, history []Turn, comment string) string {
	return g.generate(ctx, req, BuildRevisionPrompt(req, prev, comment, history))
}

func (g *TextGenerator) generate(ctx context.Context, req TextRequest, prompt Prompt) string {
	start := time.Now()
	raw, err := g.llm.Complete(ctx, prompt)
	if err == nil {
		raw, err = PostProcess(raw)
	}
	log := g.logger.WithFields(logrus.Fields{
		"platform": req.Platform,
		"tone":     req.Tone,
		"duration": time.Since(start),
	})
	metrics.Generations.WithLabelValues("text", string(g.mode), metrics.Result(err == nil)).Inc()
	if err != nil {
		log.WithError(err).Warn("text generation failed")
		return FailurePrefix + err.Error()
	}
	log.Debug("text generated")
	return raw
}
