package weirdling

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/suPer8Hu/weirdling/internal/ai"
)

const (
	maxDisplayName = 64
	maxHandle      = 24
	maxTagline     = 200
	maxText        = 500
	maxInputTags   = 20
	maxPersonaTags = 10
)

// Persona is a provider payload that passed Validate. Build it only through
// Validate.
type Persona struct {
	DisplayName   string
	Handle        string
	RoleVibe      string
	IndustryTags  []string
	Tone          float64
	Tagline       string
	Boundaries    string
	Bio           *string
	AvatarURL     *string
	PromptVersion string
	ModelVersion  string

	// Raw is the payload exactly as received, kept for replay.
	Raw map[string]any
}

// ValidationError names the first offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks a raw provider payload field by field and returns the
// normalised persona. It does no I/O and never modifies raw.
func Validate(raw map[string]any) (*Persona, error) {
	if raw == nil {
		return nil, invalid("payload", "is missing")
	}

	displayName, err := boundedString(raw, ai.KeyDisplayName, maxDisplayName, true)
	if err != nil {
		return nil, err
	}
	handle, err := boundedString(raw, ai.KeyHandle, maxHandle, true)
	if err != nil {
		return nil, err
	}

	var roleVibe string
	if v, ok := raw[ai.KeyRoleVibe]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, invalid(ai.KeyRoleVibe, "must be a string")
		}
		roleVibe = strings.TrimSpace(s)
	}

	tags, err := industryTags(raw[ai.KeyIndustryTags])
	if err != nil {
		return nil, err
	}

	tone, err := toneValue(raw[ai.KeyTone])
	if err != nil {
		return nil, err
	}

	tagline, err := boundedString(raw, ai.KeyTagline, maxTagline, true)
	if err != nil {
		return nil, err
	}
	boundaries, err := boundedString(raw, ai.KeyBoundaries, maxText, false)
	if err != nil {
		return nil, err
	}

	bio, err := optionalString(raw, ai.KeyBio, maxText)
	if err != nil {
		return nil, err
	}
	avatarURL, err := optionalString(raw, ai.KeyAvatarURL, 0)
	if err != nil {
		return nil, err
	}

	promptVersion, ok := raw[ai.KeyPromptVersion].(string)
	if !ok {
		return nil, invalid(ai.KeyPromptVersion, "must be a string")
	}
	modelVersion, ok := raw[ai.KeyModelVersion].(string)
	if !ok {
		return nil, invalid(ai.KeyModelVersion, "must be a string")
	}

	return &Persona{
		DisplayName:   displayName,
		Handle:        strings.ToLower(handle),
		RoleVibe:      roleVibe,
		IndustryTags:  tags,
		Tone:          tone,
		Tagline:       tagline,
		Boundaries:    boundaries,
		Bio:           bio,
		AvatarURL:     avatarURL,
		PromptVersion: promptVersion,
		ModelVersion:  modelVersion,
		Raw:           raw,
	}, nil
}

func boundedString(raw map[string]any, key string, limit int, required bool) (string, error) {
	v, ok := raw[key].(string)
	if !ok {
		return "", invalid(key, "must be a string")
	}
	s := strings.TrimSpace(v)
	if required && s == "" {
		return "", invalid(key, "must not be empty")
	}
	if n := utf8.RuneCountInString(s); n > limit {
		return "", invalid(key, "must be at most %d characters, got %d", limit, n)
	}
	return s, nil
}

// optionalString treats absent, null and blank alike. limit 0 means unbounded.
func optionalString(raw map[string]any, key string, limit int) (*string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, invalid(key, "must be a string or null")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if limit > 0 {
		if n := utf8.RuneCountInString(s); n > limit {
			return nil, invalid(key, "must be at most %d characters, got %d", limit, n)
		}
	}
	return &s, nil
}

func industryTags(v any) ([]string, error) {
	var in []string
	switch t := v.(type) {
	case []string:
		in = t
	case []any:
		in = make([]string, 0, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, invalid(ai.KeyIndustryTags, "entry %d must be a string", i)
			}
			in = append(in, s)
		}
	default:
		return nil, invalid(ai.KeyIndustryTags, "must be an array of strings")
	}
	if len(in) > maxInputTags {
		return nil, invalid(ai.KeyIndustryTags, "must have at most %d entries, got %d", maxInputTags, len(in))
	}
	return normalizeTags(in, maxPersonaTags), nil
}

func toneValue(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, invalid(ai.KeyTone, "must be a number")
		}
		f = parsed
	default:
		return 0, invalid(ai.KeyTone, "must be a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid(ai.KeyTone, "must be finite")
	}
	if f < 0 || f > 1 {
		return 0, invalid(ai.KeyTone, "must be between 0 and 1, got %v", f)
	}
	return f, nil
}

// normalizeTags trims, drops blanks and duplicates, keeps order, caps at limit.
func normalizeTags(in []string, limit int) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out
}
