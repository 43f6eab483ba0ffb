package generator

import (
	"errors"
	"fmt"
	"time"

	"autopost/post"
)

// ErrValidation marks a request rejected before any provider call.
var ErrValidation = errors.New("invalid generation request")

// Tone is the register the generated copy is written in.
type Tone string

const (
	Professional Tone = "professional"
	Casual       Tone = "casual"
	Humorous     Tone = "humorous"
)

// Valid reports whether t is a supported tone.
func (t Tone) Valid() bool {
	switch t {
	case Professional, Casual, Humorous:
		return true
	}
	return false
}

const (
	defaultMaxLength = post.ShortFormLimit
	maxTokenBudget   = 1000
)

// TextRequest describes the copy to generate.
type TextRequest struct {
	Prompt    string        `json:"prompt"`
	Platform  post.Platform `json:"platform,omitempty"`
	Tone      Tone          `json:"tone,omitempty"`
	MaxLength int           `json:"maxLength,omitempty"`
}

// Normalize fills defaults and validates the request.
func (r TextRequest) Normalize() (TextRequest, error) {
	if r.Platform == "" {
		r.Platform = post.Twitter
	}
	if r.Tone == "" {
		r.Tone = Professional
	}
	if r.MaxLength <= 0 {
		r.MaxLength = defaultMaxLength
	}
	if r.Prompt == "" {
		return r, fmt.Errorf("%w: prompt is required", ErrValidation)
	}
	if !r.Platform.Valid() {
		return r, fmt.Errorf("%w: unknown platform %q", ErrValidation, r.Platform)
	}
	if !r.Tone.Valid() {
		return r, fmt.Errorf("%w: unknown tone %q", ErrValidation, r.Tone)
	}
	return r, nil
}

// maxTokens caps the completion budget at the requested length.
func (r TextRequest) maxTokens() int64 {
	if r.MaxLength < maxTokenBudget {
		return int64(r.MaxLength)
	}
	return maxTokenBudget
}

// Draft is the current generated copy of a drafting session.
type Draft struct {
	Content string `json:"content"`
	// ImageURL is attached by the caller once an image is generated.
	ImageURL string `json:"imageUrl,omitempty"`
}

// Turn records one generation or revision.
type Turn struct {
	Comment   string    `json:"comment"`
	Draft     Draft     `json:"draft"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
}
