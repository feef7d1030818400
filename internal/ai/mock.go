package ai

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MockModelVersion  = "mock-1"
	placeholderHandle = "weirdling"

	maxDisplayName = 64
	maxHandle      = 24
	maxTagline     = 200
	maxText        = 500
	maxTags        = 10
	bioTaglineLen  = 80
)

// PresetAvatars are the bundled images the mock provider picks from.
var PresetAvatars = []string{
	"/weirdlings/presets/moss-sprite.png",
	"/weirdlings/presets/static-owl.png",
	"/weirdlings/presets/neon-slug.png",
	"/weirdlings/presets/paper-golem.png",
	"/weirdlings/presets/velvet-moth.png",
	"/weirdlings/presets/glitch-fox.png",
}

// MockProvider is deterministic: the same input always yields the same
// payload. Every string is cut to the validator's bounds, so its output
// passes validation by construction.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Generate(ctx context.Context, in Input) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	displayName := truncate(strings.TrimSpace(in.DisplayNameOrHandle), maxDisplayName)
	roleVibe := strings.TrimSpace(in.RoleVibe)
	handle := MockHandle(displayName)

	tags := make([]any, 0, maxTags)
	for _, t := range in.IndustryOrInterests {
		if len(tags) == maxTags {
			break
		}
		tags = append(tags, t)
	}

	tone := in.Tone
	if tone < 0 {
		tone = 0
	}
	if tone > 1 {
		tone = 1
	}

	out := map[string]any{
		KeyDisplayName:   displayName,
		KeyHandle:        handle,
		KeyRoleVibe:      roleVibe,
		KeyIndustryTags:  tags,
		KeyTone:          tone,
		KeyTagline:       truncate(mockTagline(in), maxTagline),
		KeyBoundaries:    truncate(strings.TrimSpace(in.Boundaries), maxText),
		KeyAvatarURL:     nil,
		KeyPromptVersion: in.PromptVersion,
		KeyModelVersion:  MockModelVersion,
	}
	if in.BioSeed != nil {
		if bio := strings.TrimSpace(*in.BioSeed); bio != "" {
			out[KeyBio] = truncate(bio, maxText)
		}
	}
	if in.IncludeImage {
		out[KeyAvatarURL] = PresetAvatars[PresetIndex(handle, roleVibe)]
	}
	return out, nil
}

// MockHandle strips all whitespace, lower-cases and cuts to 24 runes.
func MockHandle(displayName string) string {
	h := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, displayName)
	h = truncate(strings.ToLower(h), maxHandle)
	if h == "" {
		return placeholderHandle
	}
	return h
}

// PresetIndex maps (handle, roleVibe) to a stable preset slot.
func PresetIndex(handle, roleVibe string) int {
	var h uint32
	for _, r := range handle + "|" + roleVibe {
		h = h*31 + uint32(r)
	}
	return int(h % uint32(len(PresetAvatars)))
}

func mockTagline(in Input) string {
	if in.BioSeed != nil {
		if bio := strings.TrimSpace(*in.BioSeed); bio != "" {
			if utf8.RuneCountInString(bio) > bioTaglineLen {
				return truncate(bio, bioTaglineLen) + "…"
			}
			return bio
		}
	}

	role := strings.TrimSpace(in.RoleVibe)
	var picks []string
	for _, t := range in.IndustryOrInterests {
		if t = strings.TrimSpace(t); t != "" {
			picks = append(picks, t)
		}
		if len(picks) == 2 {
			break
		}
	}
	if len(picks) == 0 {
		if role == "" {
			return placeholderHandle
		}
		return role
	}
	if role == "" {
		return strings.Join(picks, " & ")
	}
	return role + " into " + strings.Join(picks, " & ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
