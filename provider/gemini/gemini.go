// Package gemini provides an ImageGenerator implementation using Google's Gemini API.
//
// This provider uses the Gemini API backend via the official Go SDK:
// https://github.com/googleapis/go-genai
//
// Gemini returns images inline, so results carry bytes and are rendered as
// data URLs by the caller.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/mhpenta/weaver"
)

// APIModelNanoBanana1 is the actual API name for Gemini 2.5 Flash Image.
const APIModelNanoBanana1 = "gemini-2.5-flash-image"

// contentGenerator is the slice of the genai client this provider uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator implements ImageGenerator using Google's Gemini API.
type GeminiGenerator struct {
	models contentGenerator
}

var _ weaver.ImageGenerator = (*GeminiGenerator)(nil)

// New creates a new GeminiGenerator from a ProviderConfig.
func New(ctx context.Context, config *weaver.ProviderConfig) (*GeminiGenerator, error) {
	if config == nil {
		config = &weaver.ProviderConfig{}
	}

	clientCfg := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	}

	// If APIKey is empty, the SDK will try GOOGLE_API_KEY or GEMINI_API_KEY env vars
	if config.APIKey != "" {
		clientCfg.APIKey = config.APIKey
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiGenerator{models: client.Models}, nil
}

// NewWithAPIKey creates a generator with an API key for Gemini API.
func NewWithAPIKey(ctx context.Context, apiKey string) (*GeminiGenerator, error) {
	return New(ctx, &weaver.ProviderConfig{
		Provider: weaver.ProviderGeminiAPI,
		APIKey:   apiKey,
	})
}

// Generate creates images from a text prompt.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, config *weaver.GenerateConfig) (*weaver.GenerateResult, error) {
	if err := weaver.ValidatePrompt(prompt); err != nil {
		return nil, err
	}

	if config == nil {
		config = weaver.DefaultConfig()
	}

	modelName := g.resolveModel(config)

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	result, err := g.models.GenerateContent(ctx, modelName, contents, buildGenerateContentConfig(config))
	if err != nil {
		if rlErr := checkRateLimitError(err, modelName); rlErr != nil {
			return nil, rlErr
		}
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	return parseResult(result)
}

// Models returns the model definitions supported by this provider.
func (g *GeminiGenerator) Models() []weaver.ModelInfo {
	return []weaver.ModelInfo{NanoBanana1Info}
}

// Close releases any resources held by the generator.
func (g *GeminiGenerator) Close() error {
	// The genai.Client doesn't require explicit closing in the current SDK
	return nil
}

// resolveModel determines which API model name to use.
func (g *GeminiGenerator) resolveModel(config *weaver.GenerateConfig) string {
	if config != nil && config.Model != "" && config.Model != weaver.ModelDefault {
		return string(config.Model)
	}
	return APIModelNanoBanana1
}

// buildGenerateContentConfig converts our config to Gemini's GenerateContentConfig format.
func buildGenerateContentConfig(config *weaver.GenerateConfig) *genai.GenerateContentConfig {
	genConfig := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	if config.AspectRatio != "" {
		genConfig.ImageConfig = &genai.ImageConfig{
			AspectRatio: config.AspectRatio.String(),
		}
	}

	if config.Temperature != nil {
		genConfig.Temperature = genai.Ptr(*config.Temperature)
	}

	if config.NumberOfImages > 1 {
		genConfig.CandidateCount = int32(config.NumberOfImages)
	}

	return genConfig
}

// parseResult converts Gemini response to our result type.
func parseResult(result *genai.GenerateContentResponse) (*weaver.GenerateResult, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, errors.New("empty response from model")
	}

	genResult := &weaver.GenerateResult{
		Images: make([]weaver.GeneratedImage, 0),
	}

	var text []string
	imageIndex := 0
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			if part.Thought {
				continue
			}
			if part.Text != "" {
				text = append(text, part.Text)
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				genResult.Images = append(genResult.Images, weaver.GeneratedImage{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
					Index:    imageIndex,
				})
				imageIndex++
			}
		}
	}
	genResult.Text = strings.Join(text, "")

	if result.UsageMetadata != nil {
		genResult.UsageMetadata = &weaver.UsageMetadata{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CandidatesTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
			ImageCount:       len(genResult.Images),
		}
	}

	return genResult, nil
}

// checkRateLimitError wraps 429 / RESOURCE_EXHAUSTED API errors in a RateLimitError.
// It returns nil for any other error.
func checkRateLimitError(err error, model string) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return nil
	}

	if apiErr.Code != 429 && apiErr.Status != "RESOURCE_EXHAUSTED" {
		return nil
	}

	return &weaver.RateLimitError{
		RetryAfter: 60 * time.Second, // API doesn't reliably provide Retry-After
		LimitType:  "requests",
		Model:      model,
		Err:        err,
	}
}
