// Package image holds the remote image-to-image editing client.
package image

import (
	"context"
	goimage "image"
	"strings"
	"time"
)

// GenerationParams are the tuning values sent with every edit request.
type GenerationParams struct {
	ImageStrength float64 `json:"image_strength"`
	CFGScale      float64 `json:"cfg_scale"`
	Steps         int     `json:"steps"`
	Samples       int     `json:"samples"`
}

// ModelVariant names a remote engine and the parameters tuned for it.
type ModelVariant struct {
	ID       string           `json:"id"`
	Flagship bool             `json:"flagship"`
	Params   GenerationParams `json:"params"`
}

func (v ModelVariant) String() string { return v.ID }

var (
	flagshipParams = GenerationParams{ImageStrength: 0.35, CFGScale: 7, Steps: 30, Samples: 1}
	standardParams = GenerationParams{ImageStrength: 0.40, CFGScale: 8, Steps: 25, Samples: 1}
)

// NewVariant builds a variant for an engine id. Engines whose id contains
// "xl" are treated as flagship and get the lighter-touch parameters.
func NewVariant(id string) ModelVariant {
	id = strings.TrimSpace(id)
	if strings.Contains(strings.ToLower(id), "xl") {
		return ModelVariant{ID: id, Flagship: true, Params: flagshipParams}
	}
	return ModelVariant{ID: id, Params: standardParams}
}

// DefaultVariantIDs is the default engine order, flagship first.
var DefaultVariantIDs = []string{
	"stable-diffusion-xl-1024-v1-0",
	"stable-diffusion-v1-5",
	"stable-diffusion-512-v2-1",
}

// Variants builds variants for the given ids, skipping blanks. An empty
// result falls back to DefaultVariantIDs.
func Variants(ids ...string) []ModelVariant {
	out := make([]ModelVariant, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		out = append(out, NewVariant(id))
	}
	if len(out) == 0 {
		for _, id := range DefaultVariantIDs {
			out = append(out, NewVariant(id))
		}
	}
	return out
}

// PromptPair is a positive and a negative text prompt with their weights.
// The sign of a weight carries its direction; a zero weight means +1 for
// the positive prompt and -1 for the negative one.
type PromptPair struct {
	Positive       string  `json:"positive"`
	PositiveWeight float64 `json:"positive_weight,omitempty"`
	Negative       string  `json:"negative"`
	NegativeWeight float64 `json:"negative_weight,omitempty"`
}

// Weights returns the effective positive and negative weights.
func (p PromptPair) Weights() (positive, negative float64) {
	positive, negative = p.PositiveWeight, p.NegativeWeight
	if positive == 0 {
		positive = 1
	}
	if negative == 0 {
		negative = -1
	}
	return positive, negative
}

// EditRequest is one remote edit call. Image must already satisfy the
// engine's size constraints.
type EditRequest struct {
	Image   goimage.Image
	Prompt  PromptPair
	Variant ModelVariant
}

// OutcomeKind classifies one remote edit attempt.
type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeRateLimited      OutcomeKind = "rate_limited"
	OutcomeServerError      OutcomeKind = "server_error"
	OutcomeClientError      OutcomeKind = "client_error"
	OutcomeTransportFailure OutcomeKind = "transport_failure"
)

// Outcome is the classified result of one edit attempt. Image is set only
// for OutcomeSuccess. StatusCode is 0 for transport failures.
type Outcome struct {
	Kind       OutcomeKind   `json:"kind"`
	Image      goimage.Image `json:"-"`
	StatusCode int           `json:"status_code,omitempty"`
	Message    string        `json:"message,omitempty"`
	Latency    time.Duration `json:"latency"`
}

// Succeeded reports whether the attempt produced an image.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Kind == OutcomeSuccess && o.Image != nil
}

// Editor submits a single image-to-image edit. Remote failures come back as
// an Outcome; the error return is reserved for failures that retrying
// cannot fix (missing credential, cancelled context).
type Editor interface {
	Edit(ctx context.Context, req *EditRequest) (*Outcome, error)
}
