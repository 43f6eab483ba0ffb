package generator

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Session holds the multi-turn drafting context for one topic.
type Session struct {
	ID      string
	Request TextRequest

	mu      sync.Mutex
	draft   Draft
	history []Turn
	gen     *TextGenerator
	now     func() time.Time
}

// NewSession creates a session with no draft yet. The request is normalized
// and validated up front.
func NewSession(id string, req TextRequest, gen *TextGenerator) (*Session, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:      id,
		Request: req,
		gen:     gen,
		now:     time.Now,
	}, nil
}

// Propose generates the first draft.
func (s *Session) Propose(ctx context.Context) Draft {
	content := s.gen.generate(ctx, s.Request, BuildInitialPrompt(s.Request))

	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.HasPrefix(content, FailurePrefix) {
		s.appendTurn("", s.draft, content)
		return Draft{Content: content, ImageURL: s.draft.ImageURL}
	}
	s.draft = Draft{Content: content, ImageURL: s.draft.ImageURL}
	s.appendTurn("", s.draft, "initial draft")
	return s.draft
}

// Revise regenerates the draft following comment. A provider failure keeps
// the previous draft and returns the failure message in its place.
func (s *Session) Revise(ctx context.Context, comment string) Draft {
	s.mu.Lock()
	prev := s.draft
	history := append([]Turn(nil), s.history...)
	s.mu.Unlock()

	content := s.gen.revise(ctx, s.Request, prev, history, comment)

	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.HasPrefix(content, FailurePrefix) {
		s.appendTurn(comment, s.draft, content)
		return Draft{Content: content, ImageURL: s.draft.ImageURL}
	}
	s.draft = Draft{Content: content, ImageURL: s.draft.ImageURL}
	s.appendTurn(comment, s.draft, "revision")
	return s.draft
}

// AttachImage sets the image on the current draft.
func (s *Session) AttachImage(url string) Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.ImageURL = url
	return s.draft
}

// Snapshot returns the current draft and a copy of the history.
func (s *Session) Snapshot() (Draft, []Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft, append([]Turn(nil), s.history...)
}

func (s *Session) appendTurn(comment string, draft Draft, summary string) {
	s.history = append(s.history, Turn{
		Comment:   comment,
		Draft:     draft,
		Summary:   summary,
		CreatedAt: s.now(),
	})
}
