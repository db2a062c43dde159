package weaver

// ModelCapabilities describes what features a model supports.
type ModelCapabilities struct {
	SupportsTextToImage bool
	SupportsHostedURLs  bool // Provider can return a hosted URL instead of bytes

	MaxOutputImages int // Max images generated per request
}

// RateLimits defines rate limiting parameters for a model.
type RateLimits struct {
	TokensPerMinute   int
	RequestsPerMinute int
	TokensPerDay      int // 0 = unlimited
}

// Pricing defines cost information for a model.
type Pricing struct {
	InputTokensPerMillion  float64
	OutputTokensPerMillion float64
	ImageGenerationCost    float64 // Per image (if applicable)
}

// ImageConstraints defines supported image configurations for a model.
type ImageConstraints struct {
	SupportedAspectRatios []AspectRatio
	SupportedSizes        []ImageSize
}

// ModelInfo contains complete metadata for a model.
type ModelInfo struct {
	// Identity
	Name         string   `json:"name"`           // Public model name (e.g., "nano-banana-1")
	Provider     Provider `json:"provider"`       // Which provider serves this model
	APIModelName string   `json:"api_model_name"` // Actual API name (e.g., "gemini-2.5-flash-image")

	Capabilities     ModelCapabilities `json:"capabilities"`
	ImageConstraints ImageConstraints  `json:"image_constraints"`
	RateLimits       RateLimits        `json:"rate_limits"`
	Pricing          Pricing           `json:"pricing"`
}
