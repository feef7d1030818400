package weirdling

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRaw() map[string]any {
	return map[string]any{
		"displayName":   "  Ada L. ",
		"handle":        " AdaL ",
		"roleVibe":      " Builder ",
		"industryTags":  []any{" infra ", "design", "infra", "", "ops"},
		"tone":          0.5,
		"tagline":       " ships weird things ",
		"boundaries":    "",
		"bio":           "   ",
		"avatarUrl":     nil,
		"promptVersion": "p1",
		"modelVersion":  "m1",
	}
}

func TestValidate_Normalizes(t *testing.T) {
	raw := validRaw()
	p, err := Validate(raw)
	require.NoError(t, err)

	assert.Equal(t, "Ada L.", p.DisplayName)
	assert.Equal(t, "adal", p.Handle)
	assert.Equal(t, "Builder", p.RoleVibe)
	assert.Equal(t, []string{"infra", "design", "ops"}, p.IndustryTags)
	assert.Equal(t, 0.5, p.Tone)
	assert.Equal(t, "ships weird things", p.Tagline)
	assert.Equal(t, "", p.Boundaries)
	assert.Nil(t, p.Bio, "blank bio collapses to absent")
	assert.Nil(t, p.AvatarURL)
	assert.Equal(t, "p1", p.PromptVersion)
	assert.Equal(t, "m1", p.ModelVersion)

	// raw is kept as given
	assert.Equal(t, "  Ada L. ", p.Raw["displayName"])
	assert.Equal(t, validRaw(), raw)
}

func TestValidate_IsIdempotent(t *testing.T) {
	first, err := Validate(validRaw())
	require.NoError(t, err)
	second, err := Validate(first.Raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidate_SurvivesJSONRoundTrip(t *testing.T) {
	first, err := Validate(validRaw())
	require.NoError(t, err)

	b, err := json.Marshal(first.Raw)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))

	second, err := Validate(decoded)
	require.NoError(t, err)
	second.Raw = first.Raw
	assert.Equal(t, first, second)
}

func TestValidate_CapsTagsAtTen(t *testing.T) {
	raw := validRaw()
	tags := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		tags = append(tags, strings.Repeat("t", i+1))
	}
	raw["industryTags"] = tags

	p, err := Validate(raw)
	require.NoError(t, err)
	assert.Len(t, p.IndustryTags, 10)
}

func TestValidate_AcceptsOtherNumberKinds(t *testing.T) {
	for _, tone := range []any{1, int64(0), float32(0.25), json.Number("0.75")} {
		raw := validRaw()
		raw["tone"] = tone
		_, err := Validate(raw)
		assert.NoErrorf(t, err, "tone %#v", tone)
	}
}

func TestValidate_KeepsOptionalStrings(t *testing.T) {
	raw := validRaw()
	raw["bio"] = " hi "
	raw["avatarUrl"] = "/weirdlings/presets/neon-slug.png"
	delete(raw, "roleVibe")

	p, err := Validate(raw)
	require.NoError(t, err)
	require.NotNil(t, p.Bio)
	assert.Equal(t, "hi", *p.Bio)
	require.NotNil(t, p.AvatarURL)
	assert.Equal(t, "", p.RoleVibe)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"nil payload", nil, "payload"},
		{"missing displayName", func(m map[string]any) { delete(m, "displayName") }, "displayName"},
		{"blank displayName", func(m map[string]any) { m["displayName"] = "   " }, "displayName"},
		{"long displayName", func(m map[string]any) { m["displayName"] = strings.Repeat("a", 65) }, "displayName"},
		{"numeric displayName", func(m map[string]any) { m["displayName"] = 7 }, "displayName"},
		{"missing handle", func(m map[string]any) { delete(m, "handle") }, "handle"},
		{"long handle", func(m map[string]any) { m["handle"] = strings.Repeat("h", 25) }, "handle"},
		{"roleVibe not string", func(m map[string]any) { m["roleVibe"] = []any{"x"} }, "roleVibe"},
		{"tags missing", func(m map[string]any) { delete(m, "industryTags") }, "industryTags"},
		{"tags not array", func(m map[string]any) { m["industryTags"] = "infra" }, "industryTags"},
		{"tags with number", func(m map[string]any) { m["industryTags"] = []any{"a", 1} }, "industryTags"},
		{"too many tags", func(m map[string]any) { m["industryTags"] = make([]string, 21) }, "industryTags"},
		{"tone missing", func(m map[string]any) { delete(m, "tone") }, "tone"},
		{"tone string", func(m map[string]any) { m["tone"] = "0.5" }, "tone"},
		{"tone NaN", func(m map[string]any) { m["tone"] = math.NaN() }, "tone"},
		{"tone inf", func(m map[string]any) { m["tone"] = math.Inf(1) }, "tone"},
		{"tone above 1", func(m map[string]any) { m["tone"] = 1.01 }, "tone"},
		{"tone below 0", func(m map[string]any) { m["tone"] = -0.1 }, "tone"},
		{"tagline missing", func(m map[string]any) { delete(m, "tagline") }, "tagline"},
		{"tagline blank", func(m map[string]any) { m["tagline"] = " " }, "tagline"},
		{"tagline long", func(m map[string]any) { m["tagline"] = strings.Repeat("t", 201) }, "tagline"},
		{"boundaries missing", func(m map[string]any) { delete(m, "boundaries") }, "boundaries"},
		{"boundaries long", func(m map[string]any) { m["boundaries"] = strings.Repeat("b", 501) }, "boundaries"},
		{"bio not string", func(m map[string]any) { m["bio"] = 12 }, "bio"},
		{"bio long", func(m map[string]any) { m["bio"] = strings.Repeat("b", 501) }, "bio"},
		{"avatar not string", func(m map[string]any) { m["avatarUrl"] = true }, "avatarUrl"},
		{"promptVersion missing", func(m map[string]any) { delete(m, "promptVersion") }, "promptVersion"},
		{"modelVersion not string", func(m map[string]any) { m["modelVersion"] = 3 }, "modelVersion"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var raw map[string]any
			if tc.mutate != nil {
				raw = validRaw()
				tc.mutate(raw)
			}
			p, err := Validate(raw)
			require.Error(t, err)
			assert.Nil(t, p)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestRequestNormalized(t *testing.T) {
	bio := "  "
	key := " k1 "
	r := Request{
		DisplayNameOrHandle: " Ada ",
		RoleVibe:            " Builder ",
		IndustryOrInterests: []string{"a", " a", "", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"},
		Tone:                math.NaN(),
		BioSeed:             &bio,
		IdempotencyKey:      &key,
	}.normalized()

	assert.Equal(t, "Ada", r.DisplayNameOrHandle)
	assert.Equal(t, "Builder", r.RoleVibe)
	assert.Len(t, r.IndustryOrInterests, 10)
	assert.Equal(t, 0.5, r.Tone)
	assert.Nil(t, r.BioSeed)
	require.NotNil(t, r.IdempotencyKey)
	assert.Equal(t, "k1", *r.IdempotencyKey)

	blank := "   "
	assert.Nil(t, Request{IdempotencyKey: &blank}.normalized().IdempotencyKey)
	assert.Equal(t, 1.0, Request{Tone: 4}.normalized().Tone)
	assert.Equal(t, 0.0, Request{Tone: -2}.normalized().Tone)
}
