// Package imagegen generates post images through a prediction-style provider
// that is submitted once and then polled until it settles.
package imagegen

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a request rejected before any provider call.
	ErrValidation = errors.New("invalid image request")
	// ErrGenerationFailed means the provider reported the prediction failed.
	ErrGenerationFailed = errors.New("image generation failed")
	// ErrTimeout means polling ran out of attempts before a terminal state.
	ErrTimeout = errors.New("image generation timed out")
	// ErrProvider covers transport errors, non-2xx answers and bodies that
	// cannot be decoded.
	ErrProvider = errors.New("image provider error")
)

// Style selects the prompt augmentation and offline placeholder.
type Style string

const (
	Photorealistic Style = "photorealistic"
	Cartoon        Style = "cartoon"
	Abstract       Style = "abstract"
	Render3D       Style = "3d-render"
)

var styleSuffix = map[Style]string{
	Photorealistic: "photorealistic, detailed, high resolution",
	Cartoon:        "cartoon style, vibrant colors, stylized",
	Abstract:       "abstract art style, expressionist, non-representational",
	Render3D:       "3D rendered, blender style, soft lighting, ray tracing",
}

var placeholders = map[Style]string{
	Photorealistic: "https://via.placeholder.com/512x512?text=AI+Generated+Image",
	Cartoon:        "https://via.placeholder.com/512x512?text=Cartoon+Style",
	Abstract:       "https://via.placeholder.com/512x512?text=Abstract+Art",
	Render3D:       "https://via.placeholder.com/512x512?text=3D+Render",
}

// Placeholder returns the static offline image for style.
func Placeholder(style Style) string {
	return placeholders[style]
}

// AspectRatio is one of the supported output shapes.
type AspectRatio string

const (
	Square   AspectRatio = "1:1"
	Wide     AspectRatio = "16:9"
	Classic  AspectRatio = "4:3"
	Portrait AspectRatio = "9:16"
)

// Dimensions is an output size in pixels.
type Dimensions struct {
	Width  int
	Height int
}

var dimensions = map[AspectRatio]Dimensions{
	Square:   {Width: 1024, Height: 1024},
	Wide:     {Width: 1344, Height: 768},
	Classic:  {Width: 1152, Height: 896},
	Portrait: {Width: 768, Height: 1344},
}

// DimensionsFor looks up the pixel size of ratio.
func DimensionsFor(ratio AspectRatio) (Dimensions, bool) {
	d, ok := dimensions[ratio]
	return d, ok
}

// DefaultNegativePrompt is used when a request leaves it empty.
const DefaultNegativePrompt = "low quality, blurry, distorted"

// ImageRequest describes the image to generate.
type ImageRequest struct {
	Prompt         string      `json:"prompt"`
	Style          Style       `json:"style,omitempty"`
	AspectRatio    AspectRatio `json:"aspectRatio,omitempty"`
	NegativePrompt string      `json:"negativePrompt,omitempty"`
}

// Normalize fills defaults and validates the request.
func (r ImageRequest) Normalize() (ImageRequest, error) {
	if r.Style == "" {
		r.Style = Photorealistic
	}
	if r.AspectRatio == "" {
		r.AspectRatio = Square
	}
	if r.NegativePrompt == "" {
		r.NegativePrompt = DefaultNegativePrompt
	}
	if r.Prompt == "" {
		return r, fmt.Errorf("%w: prompt is required", ErrValidation)
	}
	if _, ok := styleSuffix[r.Style]; !ok {
		return r, fmt.Errorf("%w: unknown style %q", ErrValidation, r.Style)
	}
	if _, ok := dimensions[r.AspectRatio]; !ok {
		return r, fmt.Errorf("%w: unknown aspect ratio %q", ErrValidation, r.AspectRatio)
	}
	return r, nil
}

// StyledPrompt appends the style augmentation to the prompt.
func (r ImageRequest) StyledPrompt() string {
	suffix, ok := styleSuffix[r.Style]
	if !ok {
		return r.Prompt
	}
	return r.Prompt + ", " + suffix
}
