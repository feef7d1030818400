package weirdling

import (
	"math"
	"strings"

	"github.com/suPer8Hu/weirdling/internal/ai"
)

// Request is one user's ask for a new persona. It is consumed once and never stored.
type Request struct {
	DisplayNameOrHandle string   `json:"displayNameOrHandle"`
	RoleVibe            string   `json:"roleVibe"`
	IndustryOrInterests []string `json:"industryOrInterests"`
	Tone                float64  `json:"tone"`
	Boundaries          string   `json:"boundaries"`
	BioSeed             *string  `json:"bioSeed,omitempty"`
	IncludeImage        bool     `json:"includeImage"`
	IdempotencyKey      *string  `json:"idempotencyKey,omitempty"`
}

func (r Request) normalized() Request {
	out := r
	out.DisplayNameOrHandle = strings.TrimSpace(r.DisplayNameOrHandle)
	out.RoleVibe = strings.TrimSpace(r.RoleVibe)
	out.Boundaries = strings.TrimSpace(r.Boundaries)
	out.IndustryOrInterests = normalizeTags(r.IndustryOrInterests, maxPersonaTags)

	switch {
	case math.IsNaN(r.Tone):
		out.Tone = 0.5
	case r.Tone < 0:
		out.Tone = 0
	case r.Tone > 1:
		out.Tone = 1
	}

	if r.BioSeed != nil {
		bio := strings.TrimSpace(*r.BioSeed)
		if bio == "" {
			out.BioSeed = nil
		} else {
			out.BioSeed = &bio
		}
	}
	if r.IdempotencyKey != nil {
		key := strings.TrimSpace(*r.IdempotencyKey)
		if key == "" {
			out.IdempotencyKey = nil
		} else {
			out.IdempotencyKey = &key
		}
	}
	return out
}

func (r Request) providerInput(promptVersion string) ai.Input {
	return ai.Input{
		DisplayNameOrHandle: r.DisplayNameOrHandle,
		RoleVibe:            r.RoleVibe,
		IndustryOrInterests: r.IndustryOrInterests,
		Tone:                r.Tone,
		Boundaries:          r.Boundaries,
		BioSeed:             r.BioSeed,
		IncludeImage:        r.IncludeImage,
		PromptVersion:       promptVersion,
	}
}
