package ai

import "context"

// Input is what a provider receives: the caller's already-normalised
// request plus the orchestrator's prompt version.
type Input struct {
	DisplayNameOrHandle string
	RoleVibe            string
	IndustryOrInterests []string
	Tone                float64
	Boundaries          string
	BioSeed             *string
	IncludeImage        bool
	PromptVersion       string
}

// Result keys shared by every provider.
const (
	KeyDisplayName   = "displayName"
	KeyHandle        = "handle"
	KeyRoleVibe      = "roleVibe"
	KeyIndustryTags  = "industryTags"
	KeyTone          = "tone"
	KeyTagline       = "tagline"
	KeyBoundaries    = "boundaries"
	KeyBio           = "bio"
	KeyAvatarURL     = "avatarUrl"
	KeyPromptVersion = "promptVersion"
	KeyModelVersion  = "modelVersion"
	KeyRawResponse   = "rawResponse"
)

// Provider produces a raw, unvalidated persona payload. The returned map is
// expected to carry the persona fields plus modelVersion and promptVersion;
// callers must validate it before trusting anything in it.
type Provider interface {
	Generate(ctx context.Context, in Input) (map[string]any, error)
}
