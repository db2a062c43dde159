package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/mhpenta/weaver"
)

type fakeModels struct {
	gotModel  string
	gotPrompt string
	resp      *genai.GenerateContentResponse
	err       error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.gotPrompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func TestGenerate_InlineImage(t *testing.T) {
	fake := &fakeModels{
		resp: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{Text: "thinking about raccoons", Thought: true},
					{Text: "Here you go"},
					{InlineData: &genai.Blob{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}},
				}},
			}},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 42},
		},
	}
	g := &GeminiGenerator{models: fake}

	res, err := g.Generate(context.Background(), "A raccoon astronaut", nil)
	require.NoError(t, err)

	assert.Equal(t, APIModelNanoBanana1, fake.gotModel)
	assert.Equal(t, "A raccoon astronaut", fake.gotPrompt)
	assert.Equal(t, "Here you go", res.Text)
	require.Len(t, res.Images, 1)
	assert.True(t, strings.HasPrefix(res.ImageURL(), "data:image/png;base64,"))
	assert.Equal(t, 42, res.UsageMetadata.TotalTokens)
}

func TestGenerate_NoCandidates(t *testing.T) {
	g := &GeminiGenerator{models: &fakeModels{resp: &genai.GenerateContentResponse{}}}

	_, err := g.Generate(context.Background(), "A raccoon astronaut", nil)
	assert.Error(t, err)
}

func TestGenerate_TextOnlyHasNoImageURL(t *testing.T) {
	g := &GeminiGenerator{models: &fakeModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "I can't draw that"}}}}},
	}}}

	res, err := g.Generate(context.Background(), "A raccoon astronaut", nil)
	require.NoError(t, err)
	assert.Empty(t, res.ImageURL())
}

func TestGenerate_RateLimited(t *testing.T) {
	g := &GeminiGenerator{models: &fakeModels{err: genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}}}

	_, err := g.Generate(context.Background(), "A raccoon astronaut", nil)
	assert.True(t, weaver.IsRateLimitError(err))
}

func TestGenerate_OtherErrorWrapped(t *testing.T) {
	cause := errors.New("connection reset")
	g := &GeminiGenerator{models: &fakeModels{err: cause}}

	_, err := g.Generate(context.Background(), "A raccoon astronaut", nil)
	assert.ErrorIs(t, err, cause)
	assert.False(t, weaver.IsRateLimitError(err))
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	g := &GeminiGenerator{models: &fakeModels{}}

	_, err := g.Generate(context.Background(), "", nil)
	assert.ErrorIs(t, err, weaver.ErrEmptyPrompt)
}
