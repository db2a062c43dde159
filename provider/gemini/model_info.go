package gemini

import "github.com/mhpenta/weaver"

// NanoBanana1Info is the model info for Gemini 2.5 Flash Image (nano-banana-1).
var NanoBanana1Info = weaver.ModelInfo{
	Name:         string(weaver.ModelNanoBanana1),
	Provider:     weaver.ProviderGeminiAPI,
	APIModelName: APIModelNanoBanana1,

	Capabilities: weaver.ModelCapabilities{
		SupportsTextToImage: true,
		SupportsHostedURLs:  false,
		MaxOutputImages:     4,
	},

	ImageConstraints: weaver.ImageConstraints{
		SupportedAspectRatios: []weaver.AspectRatio{
			weaver.AspectRatio1x1,
			weaver.AspectRatio16x9,
			weaver.AspectRatio9x16,
			weaver.AspectRatio4x3,
			weaver.AspectRatio3x4,
		},
		// Flash Image only supports ~1024px output (1K)
		SupportedSizes: []weaver.ImageSize{
			weaver.ImageSize1K,
		},
	},

	RateLimits: weaver.RateLimits{
		TokensPerMinute:   4000000,
		RequestsPerMinute: 500, // ~500 RPM for Tier 1
		TokensPerDay:      1000000000,
	},

	Pricing: weaver.Pricing{
		InputTokensPerMillion:  0.15,
		OutputTokensPerMillion: 0.60,
	},
}
