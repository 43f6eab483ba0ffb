// Package post holds the post model and the in-memory store that owns the
// canonical copy of every post.
package post

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a post id is not in the store.
	ErrNotFound = errors.New("post not found")
	// ErrValidation marks caller errors detected before any I/O.
	ErrValidation = errors.New("invalid post")
)

// ShortFormLimit is the soft character budget for short-form platforms.
const ShortFormLimit = 280

// Platform is one of the social networks a post can target.
type Platform string

const (
	Twitter  Platform = "twitter"
	LinkedIn Platform = "linkedin"
	Facebook Platform = "facebook"
)

// Platforms lists every supported platform in display order.
var Platforms = []Platform{Twitter, LinkedIn, Facebook}

// ParsePlatform maps a user supplied name onto a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown platform %q", ErrValidation, s)
	}
	return p, nil
}

// Valid reports whether p is part of the fixed enumeration.
func (p Platform) Valid() bool {
	switch p {
	case Twitter, LinkedIn, Facebook:
		return true
	}
	return false
}

// ShortForm reports whether the platform has a tight character budget.
func (p Platform) ShortForm() bool {
	return p == Twitter
}

// NormalizePlatforms validates platforms and removes duplicates, keeping the
// order of first appearance.
func NormalizePlatforms(in []Platform) ([]Platform, error) {
	seen := make(map[Platform]struct{}, len(in))
	out := make([]Platform, 0, len(in))
	for _, p := range in {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: unknown platform %q", ErrValidation, p)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// Status is the lifecycle state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusPublished, StatusFailed:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusDraft:     {StatusScheduled, StatusPublished, StatusFailed},
	StatusScheduled: {StatusDraft, StatusPublished, StatusFailed},
	StatusFailed:    {StatusDraft, StatusScheduled, StatusPublished},
}

// CanTransition reports whether a post may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Post is a social media post targeting one or more platforms.
type Post struct {
	ID             string            `json:"id"`
	Content        string            `json:"content"`
	ImageURL       string            `json:"imageUrl,omitempty"`
	Platforms      []Platform        `json:"platforms"`
	ScheduledFor   *time.Time        `json:"scheduledFor,omitempty"`
	Status         Status            `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
	PublishResults map[Platform]bool `json:"publishResults,omitempty"`
	PublishedAt    *time.Time        `json:"publishedAt,omitempty"`
}

// Clone returns a deep copy of p.
func (p Post) Clone() Post {
	out := p
	if p.Platforms != nil {
		out.Platforms = append([]Platform(nil), p.Platforms...)
	}
	if p.ScheduledFor != nil {
		t := *p.ScheduledFor
		out.ScheduledFor = &t
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		out.PublishedAt = &t
	}
	if p.PublishResults != nil {
		out.PublishResults = make(map[Platform]bool, len(p.PublishResults))
		for k, v := range p.PublishResults {
			out.PublishResults[k] = v
		}
	}
	return out
}

// Warnings lists soft-constraint violations, such as content longer than the
// short-form budget of a targeted platform.
func (p Post) Warnings() []string {
	var out []string
	n := len([]rune(p.Content))
	for _, pl := range p.Platforms {
		if pl.ShortForm() && n > ShortFormLimit {
			out = append(out, fmt.Sprintf("content is %d characters, over the %d character budget for %s", n, ShortFormLimit, pl))
		}
	}
	return out
}

// validate checks the invariants every stored post must satisfy.
func (p *Post) validate() error {
	if !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, p.Status)
	}
	platforms, err := NormalizePlatforms(p.Platforms)
	if err != nil {
		return err
	}
	p.Platforms = platforms
	if p.Status == StatusDraft {
		return nil
	}
	if len(p.Platforms) == 0 {
		return fmt.Errorf("%w: at least one platform is required outside draft", ErrValidation)
	}
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("%w: content is required outside draft", ErrValidation)
	}
	if p.Status == StatusScheduled && p.ScheduledFor == nil {
		return fmt.Errorf("%w: scheduled posts need a scheduledFor time", ErrValidation)
	}
	return nil
}

// Patch carries a partial update. Nil fields are left untouched.
type Patch struct {
	Content        *string
	ImageURL       *string
	Platforms      []Platform
	ScheduledFor   *time.Time
	ClearSchedule  bool
	Status         *Status
	PublishResults map[Platform]bool
	PublishedAt    *time.Time
}

// apply merges the patch into a copy of p and checks the result.
func (pt Patch) apply(p Post) (Post, error) {
	out := p.Clone()
	if pt.Content != nil {
		out.Content = *pt.Content
	}
	if pt.ImageURL != nil {
		out.ImageURL = *pt.ImageURL
	}
	if pt.Platforms != nil {
		out.Platforms = append([]Platform(nil), pt.Platforms...)
	}
	if pt.ClearSchedule {
		out.ScheduledFor = nil
	}
	if pt.ScheduledFor != nil {
		t := *pt.ScheduledFor
		out.ScheduledFor = &t
	}
	if pt.PublishResults != nil {
		out.PublishResults = make(map[Platform]bool, len(pt.PublishResults))
		for k, v := range pt.PublishResults {
			out.PublishResults[k] = v
		}
	}
	if pt.PublishedAt != nil {
		t := *pt.PublishedAt
		out.PublishedAt = &t
	}
	if pt.Status != nil {
		to := *pt.Status
		if !CanTransition(p.Status, to) {
			return Post{}, fmt.Errorf("%w: cannot move from %s to %s", ErrValidation, p.Status, to)
		}
		if p.Status == StatusDraft && (to == StatusPublished || to == StatusFailed) && (p.ScheduledFor != nil || out.ScheduledFor != nil) {
			return Post{}, fmt.Errorf("%w: a post with scheduledFor set must be scheduled before it is published", ErrValidation)
		}
		out.Status = to
	}
	if err := out.validate(); err != nil {
		return Post{}, err
	}
	return out, nil
}
