package weaver

import (
	"encoding/base64"
	"strings"
)

// GeneratedImage represents a single generated image result.
// Providers fill either URL (hosted result) or Data (inline bytes).
type GeneratedImage struct {
	// URL is a provider-hosted location of the image, if any
	URL string

	// Data contains the raw image bytes
	Data []byte

	// MIMEType of the generated image
	MIMEType string

	// Index is the position in a multi-image result (0-indexed)
	Index int

	// RevisedPrompt is the prompt after any model modifications
	RevisedPrompt string
}

// Location returns a URL the image can be displayed from: the hosted URL when
// present, otherwise a data URL built from the inline bytes.
func (img GeneratedImage) Location() string {
	if img.URL != "" {
		return img.URL
	}
	if len(img.Data) == 0 {
		return ""
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	var b strings.Builder
	b.WriteString("data:")
	b.WriteString(mime)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(img.Data))
	return b.String()
}

// GenerateResult holds the complete result of an image generation request.
type GenerateResult struct {
	// Images contains all generated images
	Images []GeneratedImage

	// Text contains any text response from the model
	Text string

	// UsageMetadata contains token/billing information
	UsageMetadata *UsageMetadata
}

// ImageURL returns the location of the first usable image, or "" if the
// provider produced nothing displayable.
func (r *GenerateResult) ImageURL() string {
	if r == nil {
		return ""
	}
	for _, img := range r.Images {
		if loc := img.Location(); loc != "" {
			return loc
		}
	}
	return ""
}

// UsageMetadata contains usage information for billing and monitoring.
type UsageMetadata struct {
	PromptTokens     int
	CandidatesTokens int
	TotalTokens      int
	ImageCount       int
}
