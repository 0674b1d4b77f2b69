package model

import "context"

// Embedder maps text to a fixed-length vector. The ranking engine and
// the loader both depend on this, never on a concrete client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
