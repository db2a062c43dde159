package weaver

import "context"

// ImageGenerator is the collaborator that turns a prompt into an image.
// Implement this interface to add support for new models or providers.
//
// The first model returned by Models() is considered the default model.
type ImageGenerator interface {
	// Generate creates images from a text prompt.
	Generate(ctx context.Context, prompt string, genConfig *GenerateConfig) (*GenerateResult, error)

	// Models returns the model definitions supported by this provider.
	// The first model in the list is the default.
	Models() []ModelInfo

	// Close releases any resources held by the generator.
	Close() error
}

// PromptGenerator is the never-failing boundary used by the request lifecycle.
// Every failure is folded into the returned ActionResult.
type PromptGenerator interface {
	Generate(ctx context.Context, prompt string) ActionResult
}
