package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const systemPrompt = `You design "Weirdlings": playful, safe-for-work persona cards for a professional social network.
Reply with ONE JSON object and nothing else, using exactly these keys:
  "displayName"  string, 1-64 chars
  "handle"       string, 1-24 chars, lowercase, no spaces
  "roleVibe"     string
  "industryTags" array of at most 10 short strings
  "tone"         number between 0 and 1 (0 = deadpan, 1 = chaotic)
  "tagline"      string, 1-200 chars
  "boundaries"   string, at most 500 chars, restating the user's boundaries
  "bio"          string, at most 500 chars, or null
Never include personal data that was not given to you.`

// BuildMessages renders the persona prompt for chat-style providers.
func BuildMessages(in Input) []Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Prompt version: %s\n", in.PromptVersion)
	fmt.Fprintf(&b, "Name or handle: %s\n", in.DisplayNameOrHandle)
	fmt.Fprintf(&b, "Role / vibe: %s\n", in.RoleVibe)
	if len(in.IndustryOrInterests) > 0 {
		fmt.Fprintf(&b, "Industries and interests: %s\n", strings.Join(in.IndustryOrInterests, ", "))
	}
	fmt.Fprintf(&b, "Tone: %.2f\n", in.Tone)
	if s := strings.TrimSpace(in.Boundaries); s != "" {
		fmt.Fprintf(&b, "Boundaries (must be respected): %s\n", s)
	}
	if in.BioSeed != nil && strings.TrimSpace(*in.BioSeed) != "" {
		fmt.Fprintf(&b, "Bio seed: %s\n", strings.TrimSpace(*in.BioSeed))
	}

	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// DecodePersona pulls the first JSON object out of a model reply and stamps
// the provenance keys. Models sometimes wrap JSON in prose or code fences.
func DecodePersona(content, model, promptVersion string) (map[string]any, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, errors.New("model reply contains no JSON object")
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}

	// the model never gets to choose these
	out[KeyPromptVersion] = promptVersion
	out[KeyModelVersion] = model
	out[KeyRawResponse] = content
	// preset avatars only come from the mock provider; image generation is separate
	delete(out, KeyAvatarURL)
	return out, nil
}
