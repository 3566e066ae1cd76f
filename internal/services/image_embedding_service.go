package services

import "context"

// ImageEmbedder produces image-space embeddings. The gateway is optional;
// when absent the image index is simply empty and retrieval proceeds on text
// alone.
type ImageEmbedder interface {
	// Enabled reports whether the image embedding path is configured.
	Enabled() bool

	// EmbedImage embeds one PNG image.
	EmbedImage(ctx context.Context, imageBytes []byte) ([]float32, error)

	// EmbedQuery embeds a text query into the image space.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// GatewayImageEmbedder implements ImageEmbedder over the embedding gateway.
// A nil gateway disables the image path entirely.
type GatewayImageEmbedder struct {
	gateway EmbedGatewayInterface
}

// NewGatewayImageEmbedder creates an image embedder. gateway may be nil.
func NewGatewayImageEmbedder(gateway EmbedGatewayInterface) *GatewayImageEmbedder {
	return &GatewayImageEmbedder{gateway: gateway}
}

func (e *GatewayImageEmbedder) Enabled() bool {
	return e.gateway != nil
}

func (e *GatewayImageEmbedder) EmbedImage(ctx context.Context, imageBytes []byte) ([]float32, error) {
	if e.gateway == nil {
		return nil, nil
	}
	return e.gateway.EmbedImage(ctx, imageBytes)
}

func (e *GatewayImageEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.gateway == nil {
		return nil, nil
	}
	return e.gateway.EmbedImageText(ctx, query)
}
