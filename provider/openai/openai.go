// Package openai provides an ImageGenerator backed by the OpenAI images API
// (or any OpenAI-compatible endpoint). Results are hosted URLs.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/mhpenta/weaver"
)

type imageCreator interface {
	CreateImage(ctx context.Context, request goopenai.ImageRequest) (goopenai.ImageResponse, error)
}

// Generator implements weaver.ImageGenerator with DALL·E.
type Generator struct {
	client imageCreator
}

var _ weaver.ImageGenerator = (*Generator)(nil)

// New creates a Generator. BaseURL may point at a compatible gateway.
func New(config *weaver.ProviderConfig) (*Generator, error) {
	if config == nil || config.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key", weaver.ErrProviderNotConfigured)
	}
	clientCfg := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}
	return &Generator{client: goopenai.NewClientWithConfig(clientCfg)}, nil
}

// Generate creates an image from prompt.
func (g *Generator) Generate(ctx context.Context, prompt string, config *weaver.GenerateConfig) (*weaver.GenerateResult, error) {
	if err := weaver.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	if config == nil {
		config = weaver.DefaultConfig()
	}

	model := goopenai.CreateImageModelDallE3
	if config.Model != "" && config.Model != weaver.ModelDefault {
		model = string(config.Model)
	}

	resp, err := g.client.CreateImage(ctx, goopenai.ImageRequest{
		Prompt:         prompt,
		Model:          model,
		N:              1,
		Size:           sizeFor(config.AspectRatio),
		ResponseFormat: goopenai.CreateImageResponseFormatURL,
	})
	if err != nil {
		if rlErr := checkRateLimitError(err, model); rlErr != nil {
			return nil, rlErr
		}
		return nil, fmt.Errorf("image request failed: %w", err)
	}

	result := &weaver.GenerateResult{Images: make([]weaver.GeneratedImage, 0, len(resp.Data))}
	for i, d := range resp.Data {
		img := weaver.GeneratedImage{
			URL:           d.URL,
			MIMEType:      "image/png",
			Index:         i,
			RevisedPrompt: d.RevisedPrompt,
		}
		if d.URL == "" && d.B64JSON != "" {
			data, err := base64.StdEncoding.DecodeString(d.B64JSON)
			if err != nil {
				return nil, fmt.Errorf("decode image %d: %w", i, err)
			}
			img.Data = data
		}
		result.Images = append(result.Images, img)
	}
	return result, nil
}

// Models returns the model definitions supported by this provider.
func (g *Generator) Models() []weaver.ModelInfo {
	return []weaver.ModelInfo{DallE3Info}
}

func (g *Generator) Close() error { return nil }

// sizeFor maps an aspect ratio onto the fixed sizes DALL·E 3 accepts.
func sizeFor(ratio weaver.AspectRatio) string {
	switch ratio {
	case weaver.AspectRatio16x9, weaver.AspectRatio4x3:
		return goopenai.CreateImageSize1792x1024
	case weaver.AspectRatio9x16, weaver.AspectRatio3x4:
		return goopenai.CreateImageSize1024x1792
	default:
		return goopenai.CreateImageSize1024x1024
	}
}

func checkRateLimitError(err error, model string) error {
	var apiErr *goopenai.APIError
	if !errors.As(err, &apiErr) || apiErr.HTTPStatusCode != http.StatusTooManyRequests {
		return nil
	}
	return &weaver.RateLimitError{
		RetryAfter: 60 * time.Second,
		LimitType:  "requests",
		Model:      model,
		Err:        err,
	}
}

// DallE3Info describes DALL·E 3 as served by OpenAI.
var DallE3Info = weaver.ModelInfo{
	Name:         string(weaver.ModelDallE3),
	Provider:     weaver.ProviderOpenAI,
	APIModelName: goopenai.CreateImageModelDallE3,

	Capabilities: weaver.ModelCapabilities{
		SupportsTextToImage: true,
		SupportsHostedURLs:  true,
		MaxOutputImages:     1,
	},

	ImageConstraints: weaver.ImageConstraints{
		SupportedAspectRatios: []weaver.AspectRatio{
			weaver.AspectRatio1x1,
			weaver.AspectRatio16x9,
			weaver.AspectRatio9x16,
		},
	},

	RateLimits: weaver.RateLimits{
		TokensPerMinute:   100000,
		RequestsPerMinute: 15,
	},

	Pricing: weaver.Pricing{
		ImageGenerationCost: 0.08, // 1792x1024 standard
	},
}
